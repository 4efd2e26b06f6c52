// Package wttr is a weather backend for wttr.in, through its json format.
package wttr

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"outweb/lib/backends"
	"outweb/lib/browser"
	"outweb/lib/capabilities/base"
	"outweb/lib/capabilities/weather"
	"outweb/lib/telemetry"
)

const (
	report_browser_report = "browser.report"
	report_parse_current  = "parse.current"
	report_parse_forecast = "parse.forecast"
	report_parse_obs_date = "parse.observation-date"
	report_parse_nearest  = "parse.nearest-area"
)

const defaultUrl = "https://wttr.in"

var Module = backends.Module{
	Name:         "wttr",
	Description:  "wttr.in console weather service",
	Maintainer:   "outweb",
	Version:      "1.0",
	License:      "MIT",
	Capabilities: []base.Capability{base.CapWeather},
	Params: []backends.ParamSpec{
		{Key: "url", Label: "Service url", Default: defaultUrl},
		{Key: "lang", Label: "Language of descriptions", Default: "en", Regexp: "[a-z]{2}(-[a-z]{2})?"},
	},
	New: func(ctx context.Context, env backends.Env) (any, error) {
		return New(env)
	},
}

type Backend struct {
	name   string
	lang   string
	tel    telemetry.API
	b      *browser.Browser
	report *browser.URL[*ReportPage]
}

func New(env backends.Env) (*Backend, error) {
	baseUrl := env.Params["url"]
	if baseUrl == "" {
		baseUrl = defaultUrl
	}
	b, err := browser.New(env.BrowserOptions(baseUrl))
	if err != nil {
		return nil, err
	}
	return &Backend{
		name:   env.Name,
		lang:   env.Params["lang"],
		tel:    b.Telemetry(),
		b:      b,
		report: browser.Register(b, browser.JSON(newReportPage), `/(?P<location>[^?]+)`),
	}, nil
}

func (w *Backend) fetch(ctx context.Context, location string) (*ReportPage, error) {
	query := url.Values{"format": {"j1"}}
	if w.lang != "" && w.lang != "en" {
		query.Set("lang", w.lang)
	}
	page, err := w.report.Open(ctx, map[string]string{"location": location}, browser.WithQuery(query))
	if errors.Is(err, browser.ErrNoRoute) || errors.Is(err, browser.ErrHTTPNotFound) {
		return nil, fmt.Errorf("%w: location %q", base.ErrNotFound, location)
	}
	if err != nil {
		w.tel.ReportBroken(report_browser_report, err, location)
		return nil, err
	}
	return page, nil
}

func (w *Backend) object(id string) base.Object {
	return base.Object{ID: id, Backend: w.name}
}

// IterCities resolves pattern to the single area wttr picks for it.
func (w *Backend) IterCities(ctx context.Context, pattern string) ([]weather.City, error) {
	page, err := w.fetch(ctx, pattern)
	if errors.Is(err, base.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	area := page.NearestArea[0]
	if area.Latitude == "" || area.Longitude == "" {
		w.tel.ReportBroken(report_parse_nearest, fmt.Errorf("area without coordinates"), pattern)
		return nil, nil
	}
	return []weather.City{{
		Object: w.object(area.id()),
		Name:   area.name(),
	}}, nil
}

func (w *Backend) GetCurrent(ctx context.Context, cityID string) (weather.Current, error) {
	page, err := w.fetch(ctx, cityID)
	if err != nil {
		return weather.Current{}, err
	}
	if len(page.CurrentCondition) == 0 {
		err = fmt.Errorf("no current condition")
		w.tel.ReportBroken(report_parse_current, err, cityID)
		return weather.Current{}, err
	}

	cond := page.CurrentCondition[0]
	temp, err := parseNumber(cond.TempC)
	if err != nil {
		w.tel.ReportBroken(report_parse_current, err, cityID, cond.TempC)
		return weather.Current{}, err
	}

	current := weather.Current{
		Object: w.object(cityID),
		Temp:   weather.C(temp),
		Text:   first(cond.WeatherDesc),
	}
	if humidity, err := parseNumber(cond.Humidity); err == nil {
		current.Humidity = int(humidity)
	}
	if wind, err := parseNumber(cond.WindspeedKmph); err == nil {
		current.WindKmh = wind
	}
	current.Date, err = time.ParseInLocation(observationLayout, cond.LocalObsDateTime, time.UTC)
	if err != nil {
		w.tel.ReportWarning(report_parse_obs_date, err, cond.LocalObsDateTime)
	}
	return current, nil
}

func (w *Backend) IterForecast(ctx context.Context, cityID string) ([]weather.Forecast, error) {
	page, err := w.fetch(ctx, cityID)
	if err != nil {
		return nil, err
	}

	out := make([]weather.Forecast, 0, len(page.Weather))
	for _, d := range page.Weather {
		date, err := parseDate(d.Date)
		if err != nil {
			w.tel.ReportBroken(report_parse_forecast, err, d.Date)
			continue
		}
		low, errLow := parseNumber(d.MintempC)
		high, errHigh := parseNumber(d.MaxtempC)
		if err := errors.Join(errLow, errHigh); err != nil {
			w.tel.ReportBroken(report_parse_forecast, err, d.Date)
			continue
		}
		out = append(out, weather.Forecast{
			Object: w.object(fmt.Sprintf("%s:%s", cityID, d.Date)),
			Date:   date,
			Low:    weather.C(low),
			High:   weather.C(high),
			Text:   d.description(),
		})
	}
	return out, nil
}
