package commands

import (
	"context"
	"fmt"
	"strings"

	"outweb/lib/capabilities/video"

	"github.com/spf13/cobra"
)

func newVideoCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "video",
		Short: "Search videos.",
	}

	var sortBy string
	var nsfw bool
	search := &cobra.Command{
		Use:   "search <pattern>",
		Short: "Search videos on every video backend.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := video.SearchOptions{SortBy: video.SortBy(sortBy), NSFW: nsfw}
			switch opts.SortBy {
			case video.SortRelevance, video.SortDate, video.SortViews:
			default:
				return fmt.Errorf("unknown sort %q", sortBy)
			}
			pattern := strings.Join(args, " ")

			// results sorted by the site are not ranked again
			var name func(video.Video) string
			if opts.SortBy == video.SortRelevance {
				name = func(v video.Video) string { return v.Title }
			}
			return runList(cmd.Context(), s, "video", pattern,
				func(ctx context.Context, p video.Provider) ([]video.Video, error) {
					return p.SearchVideos(ctx, pattern, opts)
				},
				name,
			)
		},
	}
	search.Flags().StringVar(&sortBy, "sort", string(video.SortRelevance), "Sort by relevance, date or views.")
	search.Flags().BoolVar(&nsfw, "nsfw", false, "Include videos marked as not safe for work.")
	cmd.AddCommand(search)

	cmd.AddCommand(&cobra.Command{
		Use:   "info <id>",
		Short: "Show a video with its streams.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(cmd.Context(), s, "video", args[0],
				func(ctx context.Context, p video.Provider, id string) (video.Video, error) {
					return p.GetVideo(ctx, id)
				},
			)
		},
	})
	return cmd
}
