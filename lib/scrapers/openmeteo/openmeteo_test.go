package openmeteo

import (
	"context"
	_ "embed"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"outweb/lib/backends"
	"outweb/lib/capabilities/base"
	"outweb/lib/capabilities/weather"
	"outweb/lib/telemetry"

	"github.com/stretchr/testify/require"
)

var (
	//go:embed testdata/search.json
	searchJson []byte
	//go:embed testdata/forecast.json
	forecastJson []byte
)

type servers struct {
	backend *Backend
	// last forecast query
	query chan map[string]string
}

func setup(t testing.TB, unit string) servers {
	t.Helper()
	cleanup := telemetry.SetupForTesting("test:openmeteo")
	t.Cleanup(cleanup)

	geocoding := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/search" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.URL.Query().Get("name") != "Paris" {
			w.Write([]byte(`{"generationtime_ms": 0.2}`))
			return
		}
		w.Write(searchJson)
	}))
	t.Cleanup(geocoding.Close)

	query := make(chan map[string]string, 10)
	forecast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/forecast" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		params := map[string]string{}
		for k := range r.URL.Query() {
			params[k] = r.URL.Query().Get(k)
		}
		query <- params
		w.Write(forecastJson)
	}))
	t.Cleanup(forecast.Close)

	backend, err := New(backends.Env{
		Name: "meteo",
		Params: map[string]string{
			"geocoding_url": geocoding.URL,
			"forecast_url":  forecast.URL + "/",
			"unit":          unit,
		},
	})
	require.NoError(t, err)
	return servers{backend: backend, query: query}
}

func TestIterCities(t *testing.T) {
	s := setup(t, "C")

	cities, err := s.backend.IterCities(context.Background(), "Paris")
	require.NoError(t, err)
	require.Len(t, cities, 2)
	require.Equal(t, "48.85341,2.3488", cities[0].ID)
	require.Equal(t, "Paris, Île-de-France, France", cities[0].Name)
	require.Equal(t, "33.66094,-95.55551", cities[1].ID)
	require.Equal(t, "meteo", cities[1].Backend)

	cities, err = s.backend.IterCities(context.Background(), "Nowhere")
	require.NoError(t, err)
	require.Empty(t, cities)
}

func TestGetCurrent(t *testing.T) {
	s := setup(t, "C")

	current, err := s.backend.GetCurrent(context.Background(), "48.85341,2.3488")
	require.NoError(t, err)

	query := <-s.query
	require.Equal(t, "48.85341", query["latitude"])
	require.Equal(t, "2.3488", query["longitude"])
	require.Equal(t, "auto", query["timezone"])
	require.NotContains(t, query, "temperature_unit")

	require.Equal(t, weather.C(12.3), current.Temp)
	require.Equal(t, "Partly cloudy", current.Text)
	require.Equal(t, 71, current.Humidity)
	require.True(t, current.Date.Equal(time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)))

	_, err = s.backend.GetCurrent(context.Background(), "paris")
	require.ErrorIs(t, err, base.ErrNotFound)
}

func TestIterForecastFahrenheit(t *testing.T) {
	s := setup(t, "F")

	forecast, err := s.backend.IterForecast(context.Background(), "48.85341,2.3488")
	require.NoError(t, err)
	query := <-s.query
	require.Equal(t, "fahrenheit", query["temperature_unit"])
	require.Equal(t, "7", query["forecast_days"])

	require.Len(t, forecast, 2)
	require.Equal(t, weather.Temperature{Value: 8, Unit: weather.Fahrenheit}, forecast[1].Low)
	require.Equal(t, "Slight rain", forecast[1].Text)
	require.Equal(t, "Overcast", forecast[0].Text)
}

func TestDescribe(t *testing.T) {
	require.Equal(t, "Fog", describe(45))
	require.Equal(t, "Unknown (WMO 42)", describe(42))
}
