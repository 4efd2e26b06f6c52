package openmeteo

import (
	"strconv"
	"strings"

	"outweb/lib/browser"
)

type place struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Country   string  `json:"country"`
	Admin1    string  `json:"admin1"`
}

func (p place) id() string {
	return formatCoordinates(p.Latitude, p.Longitude)
}

func (p place) fullName() string {
	parts := []string{p.Name}
	for _, part := range []string{p.Admin1, p.Country} {
		if part != "" && part != p.Name {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, ", ")
}

func formatCoordinates(lat, lon float64) string {
	return strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lon, 'f', -1, 64)
}

type SearchPage struct {
	Results []place `json:"results"`
}

func newSearchPage(p *browser.JSONPage) (*SearchPage, error) {
	var page SearchPage
	return &page, p.Decode(&page)
}

type current struct {
	Time             string  `json:"time"`
	Temperature      float64 `json:"temperature_2m"`
	RelativeHumidity int     `json:"relative_humidity_2m"`
	WeatherCode      int     `json:"weather_code"`
	WindSpeed        float64 `json:"wind_speed_10m"`
}

type daily struct {
	Time           []string  `json:"time"`
	WeatherCode    []int     `json:"weather_code"`
	TemperatureMax []float64 `json:"temperature_2m_max"`
	TemperatureMin []float64 `json:"temperature_2m_min"`
}

type ForecastPage struct {
	Timezone         string   `json:"timezone"`
	UtcOffsetSeconds int      `json:"utc_offset_seconds"`
	Current          *current `json:"current"`
	Daily            *daily   `json:"daily"`
}

func newForecastPage(p *browser.JSONPage) (*ForecastPage, error) {
	var page ForecastPage
	return &page, p.Decode(&page)
}
