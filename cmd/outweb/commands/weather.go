package commands

import (
	"context"
	"fmt"
	"strings"

	"outweb/lib/capabilities/weather"

	"github.com/spf13/cobra"
)

func parseUnit(s string) (weather.Unit, error) {
	switch strings.ToUpper(s) {
	case "":
		return "", nil
	case "C":
		return weather.Celsius, nil
	case "F":
		return weather.Fahrenheit, nil
	}
	return "", fmt.Errorf("unknown unit %q, expected C or F", s)
}

func newWeatherCmd(s *session) *cobra.Command {
	var unitFlag string
	cmd := &cobra.Command{
		Use:   "weather",
		Short: "Current conditions and forecasts.",
	}
	cmd.PersistentFlags().StringVarP(&unitFlag, "unit", "u", "", "Convert temperatures to C or F.")

	cmd.AddCommand(&cobra.Command{
		Use:   "cities <pattern>",
		Short: "Search cities, their ids are used by the other weather commands.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern := strings.Join(args, " ")
			return runList(cmd.Context(), s, "city", pattern,
				func(ctx context.Context, p weather.Provider) ([]weather.City, error) {
					return p.IterCities(ctx, pattern)
				},
				func(c weather.City) string { return c.Name },
			)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "current <city id>",
		Short: "Show the current conditions of a city.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			unit, err := parseUnit(unitFlag)
			if err != nil {
				return err
			}
			return runGet(cmd.Context(), s, "current", args[0],
				func(ctx context.Context, p weather.Provider, id string) (weather.Current, error) {
					current, err := p.GetCurrent(ctx, id)
					if unit != "" {
						current.Temp = current.Temp.In(unit)
					}
					return current, err
				},
			)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "forecast <city id>",
		Short: "Show the forecast of a city.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			unit, err := parseUnit(unitFlag)
			if err != nil {
				return err
			}
			return runGetList(cmd.Context(), s, "forecast", args[0],
				func(ctx context.Context, p weather.Provider, id string) ([]weather.Forecast, error) {
					forecasts, err := p.IterForecast(ctx, id)
					for i := range forecasts {
						if unit != "" {
							forecasts[i].Low = forecasts[i].Low.In(unit)
							forecasts[i].High = forecasts[i].High.In(unit)
						}
					}
					return forecasts, err
				},
			)
		},
	})
	return cmd
}
