package weather

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTemperatureConversion(t *testing.T) {
	require.Equal(t, Temperature{Value: 212, Unit: Fahrenheit}, C(100).AsFahrenheit())
	require.Equal(t, C(0), Temperature{Value: 32, Unit: Fahrenheit}.AsCelsius())
	require.Equal(t, C(20), C(20).In(Celsius))
	require.Equal(t, "20.0°C", C(20).String())
}
