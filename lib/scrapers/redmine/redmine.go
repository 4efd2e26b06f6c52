// Package redmine is a bug tracker backend scraping the html interface of
// redmine instances, logged in or anonymously.
package redmine

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"outweb/lib/backends"
	"outweb/lib/browser"
	"outweb/lib/capabilities/base"
	"outweb/lib/capabilities/bugtracker"
	"outweb/lib/telemetry"
	"outweb/lib/textutil"
)

const (
	report_browser_login    = "browser.login"
	report_browser_projects = "browser.projects"
	report_browser_project  = "browser.project"
	report_browser_issues   = "browser.issues"
	report_browser_issue    = "browser.issue"
	report_parse_date       = "parse.date"
	report_project_statuses = "browser.project-statuses"
)

var Module = backends.Module{
	Name:         "redmine",
	Description:  "Redmine project management web application",
	Maintainer:   "outweb",
	Version:      "1.0",
	License:      "MIT",
	Capabilities: []base.Capability{base.CapBugTracker},
	Params: []backends.ParamSpec{
		{Key: "url", Label: "Redmine url", Required: true, Regexp: `https?://.+`},
		{Key: "username", Label: "Login, empty for anonymous access"},
		{Key: "password", Label: "Password", Secret: true},
		{Key: "timezone", Label: "Timezone of displayed dates", Default: "UTC"},
		{Key: "max_pages", Label: "Issue pages to fetch", Default: "5", Regexp: `\d+`},
	},
	New: func(ctx context.Context, env backends.Env) (any, error) {
		return New(env)
	},
}

var issueColumns = []string{
	"project", "tracker", "status", "priority", "subject",
	"author", "assigned_to", "created_on", "updated_on",
}

type Backend struct {
	*browser.LoginBrowser

	name     string
	username string
	password string
	tz       *time.Location
	maxPages int
	tel      telemetry.API

	login    *browser.URL[*LoginPage]
	action   *browser.URL[*ActionPage]
	projects *browser.URL[*ProjectsPage]
	issues   *browser.URL[*IssuesPage]
	issue    *browser.URL[*IssuePage]
	project  *browser.URL[*ProjectPage]
}

func New(env backends.Env) (*Backend, error) {
	baseUrl := env.Params["url"]
	if baseUrl == "" {
		return nil, fmt.Errorf("url is required")
	}
	opts := env.BrowserOptions(baseUrl)
	parsed, err := url.Parse(baseUrl)
	if err != nil {
		return nil, err
	}
	opts.AllowedHosts = []string{parsed.Hostname()}
	b, err := browser.New(opts)
	if err != nil {
		return nil, err
	}

	tz := time.UTC
	if name := env.Params["timezone"]; name != "" {
		tz, err = time.LoadLocation(name)
		if err != nil {
			return nil, fmt.Errorf("timezone: %w", err)
		}
	}
	maxPages := 5
	if v := env.Params["max_pages"]; v != "" {
		maxPages, err = strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("max_pages: %w", err)
		}
	}

	r := &Backend{
		name:     env.Name,
		username: env.Params["username"],
		password: env.Params["password"],
		tz:       tz,
		maxPages: maxPages,
		tel:      b.Telemetry(),

		login:    browser.Register(b, browser.HTML(newLoginPage), `/login`),
		action:   browser.Register(b, browser.HTML(newActionPage), `/my/password`, `/account/twofa(?:/confirm)?`),
		projects: browser.Register(b, browser.HTML(newProjectsPage), `/projects`),
		issues: browser.Register(
			b, browser.HTML(newIssuesPage),
			`/projects/(?P<project>[\w-]+)/issues`, `/issues`,
		),
		issue:   browser.Register(b, browser.HTML(newIssuePage), `/issues/(?P<id>\d+)`),
		project: browser.Register(b, browser.HTML(newProjectPage), `/projects/(?P<id>[\w-]+)`),
	}
	r.LoginBrowser = browser.NewLoginBrowser(b, r)
	return r, nil
}

func (r *Backend) DoLogin(ctx context.Context) error {
	page, err := r.login.Go(ctx, nil)
	if err != nil {
		r.tel.ReportBroken(report_browser_login, err)
		return err
	}
	form, err := page.Form(r.Browser, "#login-form")
	if err != nil {
		r.tel.ReportBroken(report_browser_login, err)
		return err
	}
	form.Set("username", r.username)
	form.Set("password", r.password)

	res, err := form.Submit(ctx)
	if err != nil {
		return err
	}
	switch p := res.Page.(type) {
	case *LoginPage:
		if msg := p.Error(); msg != "" {
			return fmt.Errorf("%w: %s", browser.ErrIncorrectPassword, msg)
		}
		return browser.ErrIncorrectPassword
	case *ActionPage:
		return &browser.ActionNeededError{Message: p.Message()}
	}
	return nil
}

// visit runs fn logged in when credentials are configured, anonymously
// otherwise.
func (r *Backend) visit(ctx context.Context, fn func() error) error {
	if r.username == "" {
		return fn()
	}
	return r.NeedLogin(ctx, fn)
}

func (r *Backend) object(id string) base.Object {
	return base.Object{ID: id, Backend: r.name}
}

func notFound(err error, what string) error {
	if errors.Is(err, browser.ErrHTTPNotFound) {
		return fmt.Errorf("%w: %s", base.ErrNotFound, what)
	}
	return err
}

func (r *Backend) IterProjects(ctx context.Context) ([]bugtracker.Project, error) {
	var out []bugtracker.Project
	err := r.visit(ctx, func() error {
		page, err := r.projects.Go(ctx, nil, browser.WithQuery(url.Values{"display_type": {"list"}}))
		if err != nil {
			return err
		}
		out = out[:0]
		for _, p := range page.Projects {
			out = append(out, bugtracker.Project{
				Object:      r.object(p.Identifier),
				Name:        p.Name,
				Description: p.Description,
			})
		}
		return nil
	})
	if err != nil {
		r.tel.ReportBroken(report_browser_projects, err)
		return nil, err
	}
	return out, nil
}

func (r *Backend) GetProject(ctx context.Context, id string) (bugtracker.Project, error) {
	var out bugtracker.Project
	err := r.visit(ctx, func() error {
		page, err := r.project.StayOrGo(ctx, map[string]string{"id": id})
		if err != nil {
			return err
		}
		out = bugtracker.Project{
			Object:      r.object(page.Identifier),
			Name:        page.Name,
			Description: page.Description,
			Members:     page.Members,
		}
		return nil
	})
	if err != nil {
		err = notFound(err, "project "+id)
		if !errors.Is(err, base.ErrNotFound) {
			r.tel.ReportBroken(report_browser_project, err, id)
		}
		return bugtracker.Project{}, err
	}

	// statuses are only listed on the issues page filters
	issues, err := r.iterIssues(ctx, bugtracker.Query{Project: id}, 1)
	if err != nil {
		r.tel.ReportWarning(report_project_statuses, err, id)
		return out, nil
	}
	seen := map[string]bool{}
	for _, issue := range issues {
		if !seen[issue.Status] {
			seen[issue.Status] = true
			out.Statuses = append(out.Statuses, issue.Status)
		}
	}
	return out, nil
}

func (r *Backend) date(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := parseDate(s, r.tz)
	if err != nil {
		r.tel.ReportWarning(report_parse_date, err)
	}
	return t
}

func issuesQuery(q bugtracker.Query) url.Values {
	values := url.Values{
		"set_filter": {"1"},
		"sort":       {"id:desc"},
		"per_page":   {"100"},
		"c[]":        issueColumns,
		"f[]":        {"status_id"},
		// every status, the name is matched afterwards
		"op[status_id]": {"*"},
	}
	if q.Title != "" {
		values.Add("f[]", "subject")
		values.Set("op[subject]", "~")
		values.Set("v[subject][]", q.Title)
	}
	return values
}

func matches(q bugtracker.Query, issue bugtracker.Issue) bool {
	if q.Status != "" && !strings.EqualFold(q.Status, issue.Status) {
		return false
	}
	if q.Author != "" && !textutil.MatchName(issue.Author, []string{q.Author}) {
		return false
	}
	if q.Assignee != "" && !textutil.MatchName(issue.Assignee, []string{q.Assignee}) {
		return false
	}
	return true
}

func (r *Backend) IterIssues(ctx context.Context, q bugtracker.Query) ([]bugtracker.Issue, error) {
	return r.iterIssues(ctx, q, r.maxPages)
}

func (r *Backend) iterIssues(ctx context.Context, q bugtracker.Query, maxPages int) ([]bugtracker.Issue, error) {
	params := map[string]string{}
	if q.Project != "" {
		params["project"] = q.Project
	}
	start, err := r.issues.Build(params)
	if err != nil {
		return nil, err
	}
	start += "?" + issuesQuery(q).Encode()

	var out []bugtracker.Issue
	err = r.visit(ctx, func() error {
		out = out[:0]
		return browser.Paginate(ctx, r.issues, start, maxPages, func(page *IssuesPage) (string, error) {
			for _, row := range page.Rows {
				project := row.Project
				if q.Project != "" {
					project = q.Project
				}
				issue := bugtracker.Issue{
					Object:   r.object(row.ID),
					Project:  project,
					Title:    row.Subject,
					Author:   row.Author,
					Assignee: row.Assignee,
					Status:   row.Status,
					Priority: row.Priority,
					Category: row.Tracker,
					Created:  r.date(row.Created),
					Updated:  r.date(row.Updated),
					URL:      r.issueUrl(row.ID),
				}
				if matches(q, issue) {
					out = append(out, issue)
				}
			}
			return page.Next, nil
		})
	})
	if err != nil {
		err = notFound(err, "project "+q.Project)
		if !errors.Is(err, base.ErrNotFound) {
			r.tel.ReportBroken(report_browser_issues, err, q.Project)
		}
		return nil, err
	}
	return out, nil
}

func (r *Backend) issueUrl(id string) string {
	u, err := r.issue.Build(map[string]string{"id": id})
	if err != nil {
		return ""
	}
	return u
}

func (r *Backend) GetIssue(ctx context.Context, id string) (bugtracker.Issue, error) {
	if _, err := strconv.Atoi(id); err != nil {
		return bugtracker.Issue{}, fmt.Errorf("%w: issue ids are numbers, got %q", base.ErrNotFound, id)
	}

	var out bugtracker.Issue
	err := r.visit(ctx, func() error {
		page, err := r.issue.Go(ctx, map[string]string{"id": id})
		if err != nil {
			return err
		}
		out = bugtracker.Issue{
			Object:   r.object(page.ID),
			Project:  page.Project,
			Title:    page.Title,
			Body:     page.Description,
			Author:   page.Author,
			Assignee: page.Assignee,
			Status:   page.Status,
			Priority: page.Priority,
			Category: page.Category,
			Version:  page.Version,
			Created:  r.date(page.Created),
			Updated:  r.date(page.Updated),
			URL:      page.URL.String(),
		}
		for _, j := range page.Journals {
			out.History = append(out.History, bugtracker.Update{
				Author:  j.Author,
				Date:    r.date(j.Date),
				Message: j.Notes,
				Changes: j.Details,
			})
		}
		return nil
	})
	if err != nil {
		err = notFound(err, "issue "+id)
		if !errors.Is(err, base.ErrNotFound) {
			r.tel.ReportBroken(report_browser_issue, err, id)
		}
		return bugtracker.Issue{}, err
	}
	return out, nil
}
