package commands

import (
	"context"
	"strings"

	"outweb/lib/capabilities/bugtracker"

	"github.com/spf13/cobra"
)

func newBugsCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bugs",
		Short: "Browse projects and issues of bug trackers.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "projects",
		Short: "List the projects visible to the configured accounts.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.Context(), s, "project", "",
				func(ctx context.Context, t bugtracker.Tracker) ([]bugtracker.Project, error) {
					return t.IterProjects(ctx)
				},
				nil,
			)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "project <id>",
		Short: "Show a project with its members and statuses.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(cmd.Context(), s, "project", args[0],
				func(ctx context.Context, t bugtracker.Tracker, id string) (bugtracker.Project, error) {
					return t.GetProject(ctx, id)
				},
			)
		},
	})

	var query bugtracker.Query
	search := &cobra.Command{
		Use:   "search [title]",
		Short: "Search issues.",
		RunE: func(cmd *cobra.Command, args []string) error {
			query.Title = strings.Join(args, " ")
			return runList(cmd.Context(), s, "issue", query.Title,
				func(ctx context.Context, t bugtracker.Tracker) ([]bugtracker.Issue, error) {
					return t.IterIssues(ctx, query)
				},
				func(i bugtracker.Issue) string { return i.Title },
			)
		},
	}
	search.Flags().StringVar(&query.Project, "project", "", "Only issues of this project.")
	search.Flags().StringVar(&query.Status, "status", "", "Only issues with this status.")
	search.Flags().StringVar(&query.Author, "author", "", "Only issues reported by this user.")
	search.Flags().StringVar(&query.Assignee, "assignee", "", "Only issues assigned to this user.")
	cmd.AddCommand(search)

	cmd.AddCommand(&cobra.Command{
		Use:   "get <id>",
		Short: "Show an issue with its history.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(cmd.Context(), s, "issue", args[0],
				func(ctx context.Context, t bugtracker.Tracker, id string) (bugtracker.Issue, error) {
					return t.GetIssue(ctx, id)
				},
			)
		},
	})
	return cmd
}
