package commands

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/google/shlex"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const replPrompt = "outweb> "

func newReplCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Run commands interactively, backends stay logged in between commands.",
		Long: "Run commands interactively. Listings are numbered, later commands take " +
			"the number in place of an id. Flags given to repl apply to every command.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.app.repl(cmd.Context(), changedFlags(cmd.Flags()))
		},
	}
}

// changedFlags renders the flags that were set on the command line so they
// can be given again to every command of the repl.
func changedFlags(fs *pflag.FlagSet) []string {
	var out []string
	fs.Visit(func(f *pflag.Flag) {
		if slice, ok := f.Value.(pflag.SliceValue); ok {
			for _, v := range slice.GetSlice() {
				out = append(out, "--"+f.Name+"="+v)
			}
			return
		}
		out = append(out, "--"+f.Name+"="+f.Value.String())
	})
	return out
}

func (a *App) repl(ctx context.Context, defaults []string) error {
	reader := a.input()
	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(a.Out, replPrompt)

		line, err := reader.ReadString('\n')
		eof := err == io.EOF
		if err != nil && !eof {
			return err
		}

		args, err := shlex.Split(line)
		switch {
		case err != nil:
			fmt.Fprintln(a.Err, "error:", err)
		case len(args) == 0:
		case args[0] == "exit" || args[0] == "quit":
			return nil
		case args[0] == "repl":
			fmt.Fprintln(a.Err, "error: already in the repl")
		default:
			err = Execute(ctx, a, append(slices.Clone(defaults), args...))
			if err != nil {
				fmt.Fprintln(a.Err, "error:", err)
			}
		}

		if eof {
			fmt.Fprintln(a.Out)
			return nil
		}
	}
}
