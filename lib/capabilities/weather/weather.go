package weather

import (
	"context"
	"fmt"
	"time"

	"outweb/lib/capabilities/base"
)

type Unit string

const (
	Celsius    Unit = "C"
	Fahrenheit Unit = "F"
)

type Temperature struct {
	Value float64 `json:"value"`
	Unit  Unit    `json:"unit"`
}

func C(v float64) Temperature {
	return Temperature{Value: v, Unit: Celsius}
}

func (t Temperature) AsCelsius() Temperature {
	if t.Unit == Fahrenheit {
		return Temperature{Value: (t.Value - 32) * 5 / 9, Unit: Celsius}
	}
	return Temperature{Value: t.Value, Unit: Celsius}
}

func (t Temperature) AsFahrenheit() Temperature {
	if t.Unit == Fahrenheit {
		return t
	}
	return Temperature{Value: t.Value*9/5 + 32, Unit: Fahrenheit}
}

// In converts to the given unit, anything but Fahrenheit means Celsius.
func (t Temperature) In(u Unit) Temperature {
	if u == Fahrenheit {
		return t.AsFahrenheit()
	}
	return t.AsCelsius()
}

func (t Temperature) String() string {
	return fmt.Sprintf("%.1f°%s", t.Value, t.Unit)
}

type City struct {
	base.Object
	Name string `json:"name"`
}

type Current struct {
	base.Object
	Date     time.Time   `json:"date"`
	Temp     Temperature `json:"temp"`
	Text     string      `json:"text"`
	Humidity int         `json:"humidity"`
	WindKmh  float64     `json:"wind_kmh"`
}

type Forecast struct {
	base.Object
	Date time.Time   `json:"date"`
	Low  Temperature `json:"low"`
	High Temperature `json:"high"`
	Text string      `json:"text"`
}

// Provider is the weather capability.
type Provider interface {
	IterCities(ctx context.Context, pattern string) ([]City, error)
	GetCurrent(ctx context.Context, cityID string) (Current, error)
	IterForecast(ctx context.Context, cityID string) ([]Forecast, error)
}
