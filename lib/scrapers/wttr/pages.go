package wttr

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"outweb/lib/browser"
)

type value struct {
	Value string `json:"value"`
}

func first(values []value) string {
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0].Value)
}

type currentCondition struct {
	TempC            string  `json:"temp_C"`
	Humidity         string  `json:"humidity"`
	WindspeedKmph    string  `json:"windspeedKmph"`
	WeatherDesc      []value `json:"weatherDesc"`
	LocalObsDateTime string  `json:"localObsDateTime"`
}

type area struct {
	AreaName  []value `json:"areaName"`
	Region    []value `json:"region"`
	Country   []value `json:"country"`
	Latitude  string  `json:"latitude"`
	Longitude string  `json:"longitude"`
}

type hourly struct {
	Time        string  `json:"time"`
	WeatherDesc []value `json:"weatherDesc"`
}

type day struct {
	Date     string   `json:"date"`
	MaxtempC string   `json:"maxtempC"`
	MintempC string   `json:"mintempC"`
	Hourly   []hourly `json:"hourly"`
}

// ReportPage is the `?format=j1` json report of a location.
type ReportPage struct {
	CurrentCondition []currentCondition `json:"current_condition"`
	NearestArea      []area             `json:"nearest_area"`
	Weather          []day              `json:"weather"`
}

func newReportPage(p *browser.JSONPage) (*ReportPage, error) {
	var page ReportPage
	err := p.Decode(&page)
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// IsHere rejects the json error wttr returns for unknown locations, which
// has no area.
func (p *ReportPage) IsHere() bool {
	return len(p.NearestArea) > 0
}

func (a area) id() string {
	return a.Latitude + "," + a.Longitude
}

func (a area) name() string {
	var parts []string
	for _, part := range []string{first(a.AreaName), first(a.Region), first(a.Country)} {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, ", ")
}

func parseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty number")
	}
	return strconv.ParseFloat(s, 64)
}

// wttr gives local observation times without a zone, like "2024-05-01 10:30 AM".
const observationLayout = "2006-01-02 03:04 PM"

// description is the one at noon, or the middle of the day when there is no
// noon entry.
func (d day) description() string {
	if len(d.Hourly) == 0 {
		return ""
	}
	for _, h := range d.Hourly {
		if h.Time == "1200" {
			return first(h.WeatherDesc)
		}
	}
	return first(d.Hourly[len(d.Hourly)/2].WeatherDesc)
}

func parseDate(s string) (time.Time, error) {
	return time.ParseInLocation(time.DateOnly, s, time.UTC)
}
