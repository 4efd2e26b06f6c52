package redmine

import (
	"context"
	_ "embed"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"outweb/lib/browser"
	"outweb/lib/capabilities/base"
	"outweb/lib/capabilities/bugtracker"
	"outweb/lib/telemetry"
	"outweb/lib/testutil"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

var (
	//go:embed testdata/login.html
	loginHtml string
	//go:embed testdata/projects.html
	projectsHtml string
	//go:embed testdata/project.html
	projectHtml string
	//go:embed testdata/issues_1.html
	issues1Html string
	//go:embed testdata/issues_2.html
	issues2Html string
	//go:embed testdata/issue.html
	issueHtml string
	//go:embed testdata/mypage.html
	myPageHtml string
)

// fakeRedmine serves the fixtures, private pages redirect to the login form
// when requireLogin is set and the session cookie is unknown.
type fakeRedmine struct {
	requireLogin bool
	brokenIssues bool

	mutex    sync.Mutex
	sessions map[string]bool
	logins   int
}

func (f *fakeRedmine) loggedIn(r *http.Request) bool {
	cookie, err := r.Cookie("_redmine_session")
	if err != nil {
		return false
	}
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.sessions[cookie.Value]
}

func (f *fakeRedmine) expireSessions() {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.sessions = map[string]bool{}
}

func (f *fakeRedmine) loginCount() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.logins
}

func (f *fakeRedmine) private(page string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if f.requireLogin && !f.loggedIn(r) {
			http.Redirect(w, r, "/login?back_url="+r.URL.String(), http.StatusFound)
			return
		}
		fmt.Fprint(w, page)
	}
}

func (f *fakeRedmine) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			fmt.Fprint(w, strings.Replace(loginHtml, "{{FLASH}}", "", 1))
			return
		}
		r.ParseForm()
		if r.Form.Get("authenticity_token") != "tok3n" {
			http.Error(w, "invalid token", http.StatusUnprocessableEntity)
			return
		}
		switch {
		case r.Form.Get("username") == "expired":
			http.Redirect(w, r, "/my/password", http.StatusFound)
		case r.Form.Get("username") == "alice" && r.Form.Get("password") == "secret":
			f.mutex.Lock()
			f.logins++
			id := fmt.Sprintf("session-%d", f.logins)
			f.sessions[id] = true
			f.mutex.Unlock()
			http.SetCookie(w, &http.Cookie{Name: "_redmine_session", Value: id, Path: "/"})
			http.Redirect(w, r, "/my/page", http.StatusFound)
		default:
			fmt.Fprint(w, strings.Replace(
				loginHtml, "{{FLASH}}",
				`<div class="flash error" id="flash_error">Invalid user or password</div>`, 1,
			))
		}
	})
	mux.HandleFunc("/my/page", f.private(myPageHtml))
	mux.HandleFunc("/my/password", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><div id="flash_warning">Your password has expired or the administrator requires you to change it.</div></body></html>`)
	})
	mux.HandleFunc("/projects", f.private(projectsHtml))
	mux.HandleFunc("/projects/outweb", f.private(projectHtml))
	mux.HandleFunc("/projects/outweb/issues", func(w http.ResponseWriter, r *http.Request) {
		if f.brokenIssues {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		page := issues1Html
		if r.URL.Query().Get("page") == "2" {
			page = issues2Html
		}
		f.private(page)(w, r)
	})
	mux.HandleFunc("/issues/42", f.private(issueHtml))
	return mux
}

func setup(t testing.TB, f *fakeRedmine, username, password string) *Backend {
	t.Helper()
	f.sessions = map[string]bool{}
	backend, _ := testutil.SetupBackend[*Backend](t, Module, "work", f.handler(), map[string]string{
		"username": username,
		"password": password,
	})
	return backend
}

func TestLogin(t *testing.T) {
	f := &fakeRedmine{requireLogin: true}

	r := setup(t, f, "alice", "wrong")
	_, err := r.IterProjects(context.Background())
	require.ErrorIs(t, err, browser.ErrIncorrectPassword)
	require.ErrorContains(t, err, "Invalid user or password")

	r = setup(t, f, "expired", "whatever")
	_, err = r.IterProjects(context.Background())
	require.ErrorIs(t, err, browser.ErrActionNeeded)
	require.ErrorContains(t, err, "password has expired")
}

func TestIterProjects(t *testing.T) {
	f := &fakeRedmine{requireLogin: true}
	r := setup(t, f, "alice", "secret")

	projects, err := r.IterProjects(context.Background())
	require.NoError(t, err)
	expected := []bugtracker.Project{
		{
			Object:      base.Object{ID: "outweb", Backend: "work"},
			Name:        "Outweb",
			Description: "Scraping all the things.",
		},
		{
			Object: base.Object{ID: "outweb-docs", Backend: "work"},
			Name:   "Documentation",
		},
	}
	if diff := cmp.Diff(expected, projects); diff != "" {
		t.Fatal(diff)
	}
	require.Equal(t, 1, f.loginCount())

	// the session expires server side, the backend logs in again
	f.expireSessions()
	projects, err = r.IterProjects(context.Background())
	require.NoError(t, err)
	require.Len(t, projects, 2)
	require.Equal(t, 2, f.loginCount())
}

func TestGetProject(t *testing.T) {
	f := &fakeRedmine{requireLogin: true}
	r := setup(t, f, "alice", "secret")

	project, err := r.GetProject(context.Background(), "outweb")
	require.NoError(t, err)
	require.Equal(t, "outweb", project.ID)
	require.Equal(t, "Outweb", project.Name)
	require.Equal(t, "Scraping all the things.", project.Description)
	require.Equal(t, []string{"alice", "Bob Builder"}, project.Members)
	require.Equal(t, []string{"New", "Closed"}, project.Statuses)

	_, err = r.GetProject(context.Background(), "nope")
	require.ErrorIs(t, err, base.ErrNotFound)
}

// warnings records ReportWarning ids and drops everything else.
type warnings struct {
	telemetry.API
	mutex sync.Mutex
	ids   []string
}

func (w *warnings) ReportWarning(id string, params ...any) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.ids = append(w.ids, id)
}

func TestGetProjectWithoutStatuses(t *testing.T) {
	f := &fakeRedmine{brokenIssues: true}
	r := setup(t, f, "", "")
	tel := &warnings{API: telemetry.SlogAPI{}}
	r.tel = tel

	project, err := r.GetProject(context.Background(), "outweb")
	require.NoError(t, err)
	require.Equal(t, "Outweb", project.Name)
	require.Empty(t, project.Statuses)
	require.Equal(t, []string{report_project_statuses}, tel.ids)
}

func TestIterIssues(t *testing.T) {
	f := &fakeRedmine{}
	r := setup(t, f, "", "")

	issues, err := r.IterIssues(context.Background(), bugtracker.Query{Project: "outweb"})
	require.NoError(t, err)
	require.Len(t, issues, 3)
	require.Equal(t, 0, f.loginCount())

	first := issues[0]
	require.Equal(t, "42", first.ID)
	require.Equal(t, "outweb", first.Project)
	require.Equal(t, "Crash on empty search", first.Title)
	require.Equal(t, "Bob Builder", first.Author)
	require.Equal(t, "alice", first.Assignee)
	require.Equal(t, "New", first.Status)
	require.Equal(t, "Bug", first.Category)
	require.Equal(t, time.Date(2024, 5, 2, 12, 30, 0, 0, time.UTC), first.Updated)
	require.True(t, strings.HasSuffix(first.URL, "/issues/42"))
	require.Empty(t, issues[1].Assignee)

	issues, err = r.IterIssues(context.Background(), bugtracker.Query{Project: "outweb", Status: "in progress"})
	require.NoError(t, err)
	require.Len(t, issues, 1)
	require.Equal(t, "7", issues[0].ID)

	issues, err = r.IterIssues(context.Background(), bugtracker.Query{Project: "outweb", Author: "bob"})
	require.NoError(t, err)
	require.Len(t, issues, 2)
}

func TestGetIssue(t *testing.T) {
	f := &fakeRedmine{requireLogin: true}
	r := setup(t, f, "alice", "secret")

	issue, err := r.GetIssue(context.Background(), "42")
	require.NoError(t, err)
	require.Equal(t, "42", issue.ID)
	require.Equal(t, "outweb", issue.Project)
	require.Equal(t, "Crash on empty search", issue.Title)
	require.Equal(t, "Bob Builder", issue.Author)
	require.Equal(t, "alice", issue.Assignee)
	require.Equal(t, "New", issue.Status)
	require.Equal(t, "Normal", issue.Priority)
	require.Equal(t, "cli", issue.Category)
	require.Equal(t, "1.1", issue.Version)
	require.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), issue.Created)
	require.Equal(t, time.Date(2024, 5, 2, 12, 30, 0, 0, time.UTC), issue.Updated)
	require.Contains(t, issue.Body, "`outweb torrent search \"\"`")
	require.Contains(t, issue.Body, "**nyaa**")

	require.Len(t, issue.History, 1)
	update := issue.History[0]
	require.Equal(t, "alice", update.Author)
	require.Equal(t, []string{"Assignee set to alice"}, update.Changes)
	require.Equal(t, "I can reproduce, _looking into it_.", update.Message)

	_, err = r.GetIssue(context.Background(), "999")
	require.ErrorIs(t, err, base.ErrNotFound)
	_, err = r.GetIssue(context.Background(), "abc")
	require.ErrorIs(t, err, base.ErrNotFound)
}

func TestParseDate(t *testing.T) {
	for _, s := range []string{"2024-05-01 10:00", "05/01/2024 10:00 AM", "2024-05-01 10:00 AM"} {
		date, err := parseDate(s, time.UTC)
		require.NoError(t, err, s)
		require.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), date, s)
	}
	_, err := parseDate("yesterday", time.UTC)
	require.Error(t, err)
}
