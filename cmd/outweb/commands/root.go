package commands

import (
	"context"
	"fmt"
	"strings"

	"outweb/lib/formatter"
	"outweb/lib/telemetry"

	"github.com/spf13/cobra"
)

// NewRootCmd builds the command tree. The repl builds a fresh one per line,
// state that has to survive lives in app.
func NewRootCmd(app *App) *cobra.Command {
	f := &flags{}
	s := &session{app: app, flags: f}

	rootCmd := &cobra.Command{
		Use:           "outweb",
		Short:         "outweb gives websites a command line through pluggable backends.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			telemetry.InitSlog(f.verbose)
			if f.verbose {
				app.startPerfStats(cmd.Context())
			}
			_, err := formatter.Get(f.format)
			return err
		},
	}
	rootCmd.SetIn(app.In)
	rootCmd.SetOut(app.Out)
	rootCmd.SetErr(app.Err)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&f.config, "config", defaultConfigPath(), "The backends config file (json5 or yaml).")
	pf.StringSliceVarP(&f.backends, "backends", "b", nil, "Only use these backends, even if disabled.")
	pf.StringVarP(&f.format, "format", "f", "table", fmt.Sprintf("The output format, one of %s.", strings.Join(formatter.Names(), ", ")))
	pf.StringVarP(&f.output, "output", "o", "", "Write the output to this file instead of stdout.")
	pf.StringSliceVarP(&f.columns, "select", "s", nil, "Only show these fields, nested fields are joined with dots.")
	pf.IntVarP(&f.count, "count", "n", 0, "Stop after this many results, 0 means no limit.")
	pf.StringVarP(&f.condition, "condition", "c", "", "Only keep results matching this condition, e.g. 'seeders>10 AND name|x265'.")
	pf.BoolVarP(&f.verbose, "verbose", "v", false, "Log debug information.")
	pf.IntVar(&f.maxConcurrency, "max-concurrency", 0, "How many backends are called at once, 0 means all.")
	pf.DurationVar(&f.timeout, "timeout", 0, "Give up on a backend after this long, 0 means never.")
	pf.StringVar(&f.dumpDir, "dump-dir", "", "Write every http request and response to this directory.")

	rootCmd.AddCommand(
		newBackendsCmd(s),
		newWeatherCmd(s),
		newTorrentCmd(s),
		newBugsCmd(s),
		newVideoCmd(s),
		newReplCmd(s),
	)
	return rootCmd
}

func Execute(ctx context.Context, app *App, args []string) error {
	rootCmd := NewRootCmd(app)
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}
