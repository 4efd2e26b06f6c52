// Package openmeteo is a weather backend for the open-meteo.com geocoding and
// forecast apis.
package openmeteo

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"outweb/lib/backends"
	"outweb/lib/browser"
	"outweb/lib/capabilities/base"
	"outweb/lib/capabilities/weather"
	"outweb/lib/telemetry"
)

const (
	report_browser_search   = "browser.search"
	report_browser_forecast = "browser.forecast"
	report_parse_daily      = "parse.daily"
	report_parse_time       = "parse.time"
)

const (
	defaultGeocodingUrl = "https://geocoding-api.open-meteo.com"
	defaultForecastUrl  = "https://api.open-meteo.com"
	maxCities           = 10
)

var Module = backends.Module{
	Name:         "openmeteo",
	Description:  "Open-Meteo free weather api",
	Maintainer:   "outweb",
	Version:      "1.0",
	License:      "MIT",
	Capabilities: []base.Capability{base.CapWeather},
	Params: []backends.ParamSpec{
		{Key: "geocoding_url", Label: "Geocoding api url", Default: defaultGeocodingUrl},
		{Key: "forecast_url", Label: "Forecast api url", Default: defaultForecastUrl},
		{Key: "unit", Label: "Temperature unit", Default: "C", Choices: []string{"C", "F"}},
		{Key: "days", Label: "Days of forecast", Default: "7", Regexp: "[1-9]|1[0-6]"},
	},
	New: func(ctx context.Context, env backends.Env) (any, error) {
		return New(env)
	},
}

type Backend struct {
	name     string
	unit     weather.Unit
	days     string
	tel      telemetry.API
	search   *browser.URL[*SearchPage]
	forecast *browser.URL[*ForecastPage]
}

func paramOr(env backends.Env, key, fallback string) string {
	if v := env.Params[key]; v != "" {
		return v
	}
	return fallback
}

func New(env backends.Env) (*Backend, error) {
	geocodingUrl := strings.TrimSuffix(paramOr(env, "geocoding_url", defaultGeocodingUrl), "/")
	forecastUrl := strings.TrimSuffix(paramOr(env, "forecast_url", defaultForecastUrl), "/")

	b, err := browser.New(env.BrowserOptions(forecastUrl))
	if err != nil {
		return nil, err
	}
	return &Backend{
		name: env.Name,
		unit: weather.Unit(paramOr(env, "unit", "C")),
		days: paramOr(env, "days", "7"),
		tel:  b.Telemetry(),
		// the apis live on two hosts, both patterns are absolute
		search: browser.Register(
			b, browser.JSON(newSearchPage),
			regexp.QuoteMeta(geocodingUrl)+`/v1/search`,
		),
		forecast: browser.Register(
			b, browser.JSON(newForecastPage),
			regexp.QuoteMeta(forecastUrl)+`/v1/forecast`,
		),
	}, nil
}

func (m *Backend) object(id string) base.Object {
	return base.Object{ID: id, Backend: m.name}
}

func (m *Backend) IterCities(ctx context.Context, pattern string) ([]weather.City, error) {
	page, err := m.search.Open(ctx, nil, browser.WithQuery(url.Values{
		"name":     {pattern},
		"count":    {strconv.Itoa(maxCities)},
		"language": {"en"},
		"format":   {"json"},
	}))
	if err != nil {
		m.tel.ReportBroken(report_browser_search, err, pattern)
		return nil, err
	}

	cities := make([]weather.City, 0, len(page.Results))
	for _, p := range page.Results {
		cities = append(cities, weather.City{
			Object: m.object(p.id()),
			Name:   p.fullName(),
		})
	}
	return cities, nil
}

func parseCityID(id string) (lat, lon string, err error) {
	lat, lon, ok := strings.Cut(id, ",")
	if !ok {
		return "", "", fmt.Errorf("%w: city id %q is not latitude,longitude", base.ErrNotFound, id)
	}
	_, errLat := strconv.ParseFloat(lat, 64)
	_, errLon := strconv.ParseFloat(lon, 64)
	if errLat != nil || errLon != nil {
		return "", "", fmt.Errorf("%w: city id %q is not latitude,longitude", base.ErrNotFound, id)
	}
	return lat, lon, nil
}

func (m *Backend) fetchForecast(ctx context.Context, cityID string, query url.Values) (*ForecastPage, error) {
	lat, lon, err := parseCityID(cityID)
	if err != nil {
		return nil, err
	}
	query.Set("latitude", lat)
	query.Set("longitude", lon)
	query.Set("timezone", "auto")
	query.Set("wind_speed_unit", "kmh")
	if m.unit == weather.Fahrenheit {
		query.Set("temperature_unit", "fahrenheit")
	}

	page, err := m.forecast.Open(ctx, nil, browser.WithQuery(query))
	if err != nil {
		m.tel.ReportBroken(report_browser_forecast, err, cityID)
		return nil, err
	}
	return page, nil
}

func (p *ForecastPage) location() *time.Location {
	name := p.Timezone
	if name == "" {
		name = "UTC"
	}
	return time.FixedZone(name, p.UtcOffsetSeconds)
}

func (m *Backend) temperature(v float64) weather.Temperature {
	unit := weather.Celsius
	if m.unit == weather.Fahrenheit {
		unit = weather.Fahrenheit
	}
	return weather.Temperature{Value: v, Unit: unit}
}

func (m *Backend) GetCurrent(ctx context.Context, cityID string) (weather.Current, error) {
	page, err := m.fetchForecast(ctx, cityID, url.Values{
		"current": {"temperature_2m,relative_humidity_2m,weather_code,wind_speed_10m"},
	})
	if err != nil {
		return weather.Current{}, err
	}
	if page.Current == nil {
		return weather.Current{}, fmt.Errorf("no current weather for %s", cityID)
	}

	date, err := time.ParseInLocation("2006-01-02T15:04", page.Current.Time, page.location())
	if err != nil {
		m.tel.ReportWarning(report_parse_time, err, page.Current.Time)
	}
	return weather.Current{
		Object:   m.object(cityID),
		Date:     date,
		Temp:     m.temperature(page.Current.Temperature),
		Text:     describe(page.Current.WeatherCode),
		Humidity: page.Current.RelativeHumidity,
		WindKmh:  page.Current.WindSpeed,
	}, nil
}

func (m *Backend) IterForecast(ctx context.Context, cityID string) ([]weather.Forecast, error) {
	page, err := m.fetchForecast(ctx, cityID, url.Values{
		"daily":         {"weather_code,temperature_2m_max,temperature_2m_min"},
		"forecast_days": {m.days},
	})
	if err != nil {
		return nil, err
	}
	d := page.Daily
	if d == nil {
		return nil, fmt.Errorf("no daily forecast for %s", cityID)
	}
	if len(d.WeatherCode) != len(d.Time) ||
		len(d.TemperatureMax) != len(d.Time) ||
		len(d.TemperatureMin) != len(d.Time) {
		err := fmt.Errorf("daily arrays of different lengths")
		m.tel.ReportBroken(report_parse_daily, err, cityID)
		return nil, err
	}

	out := make([]weather.Forecast, 0, len(d.Time))
	for i, day := range d.Time {
		date, err := time.ParseInLocation(time.DateOnly, day, page.location())
		if err != nil {
			m.tel.ReportBroken(report_parse_daily, err, day)
			continue
		}
		out = append(out, weather.Forecast{
			Object: m.object(cityID + ":" + day),
			Date:   date,
			Low:    m.temperature(d.TemperatureMin[i]),
			High:   m.temperature(d.TemperatureMax[i]),
			Text:   describe(d.WeatherCode[i]),
		})
	}
	return out, nil
}
