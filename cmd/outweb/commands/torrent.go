package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"outweb/lib/capabilities/torrent"

	"github.com/spf13/cobra"
)

func newTorrentCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "torrent",
		Short: "Search torrents and download .torrent files.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "search <pattern>",
		Short: "Search torrents on every torrent backend.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern := strings.Join(args, " ")
			return runList(cmd.Context(), s, "torrent", pattern,
				func(ctx context.Context, c torrent.Searcher) ([]torrent.Torrent, error) {
					return c.IterTorrents(ctx, pattern)
				},
				func(t torrent.Torrent) string { return t.Name },
			)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "info <id>",
		Short: "Show a torrent with its description and files.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(cmd.Context(), s, "torrent", args[0],
				func(ctx context.Context, c torrent.Searcher, id string) (torrent.Torrent, error) {
					return c.GetTorrent(ctx, id)
				},
			)
		},
	})

	var dest string
	getfile := &cobra.Command{
		Use:   "getfile <id>",
		Short: "Download the .torrent file of a torrent.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, contents, err := lookup(cmd.Context(), s, "torrent", args[0],
				func(ctx context.Context, c torrent.Searcher, id string) ([]byte, error) {
					return c.GetTorrentFile(ctx, id)
				},
			)
			if err != nil {
				return err
			}
			if dest == "-" {
				_, err = s.app.Out.Write(contents)
				return err
			}
			if dest == "" {
				id, _, _ := s.resolveID(args[0])
				dest = fmt.Sprintf("%s-%s.torrent", backend, id)
			}
			err = os.WriteFile(dest, contents, 0644)
			if err != nil {
				return err
			}
			fmt.Fprintf(s.app.Out, "wrote %s\n", dest)
			return nil
		},
	}
	getfile.Flags().StringVarP(&dest, "dest", "O", "", "Where to write the file, - for stdout.")
	cmd.AddCommand(getfile)
	return cmd
}
