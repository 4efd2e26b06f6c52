package redmine

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"outweb/lib/browser"
	"outweb/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// basePage is embedded by every redmine page, the header tells whether the
// session is logged in.
type basePage struct {
	*browser.HTMLPage
}

func (p basePage) Logged() bool {
	return p.Find("#loggedas").Length() > 0
}

// projectIdentifier comes from the `project-<identifier>` class redmine puts on
// the body of every project page.
var projectClassRegex = regexp.MustCompile(`(?:^|\s)project-([\w-]+)`)

func (p basePage) projectIdentifier() string {
	groups := projectClassRegex.FindStringSubmatch(p.Find("body").AttrOr("class", ""))
	if groups == nil {
		return ""
	}
	return groups[1]
}

// redmine formats dates with the locale of the user, these are the usual ones.
var dateLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02 03:04 PM",
	"01/02/2006 03:04 PM",
	"01/02/2006 15:04",
	"02/01/2006 15:04",
	"02.01.2006 15:04",
	"2006-01-02",
	"01/02/2006",
}

func parseDate(s string, tz *time.Location) (time.Time, error) {
	s = htmlutil.CleanText(s)
	for _, layout := range dateLayouts {
		t, err := time.ParseInLocation(layout, s, tz)
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unknown date format %q", s)
}

type LoginPage struct {
	basePage
}

func (p *LoginPage) Logged() bool {
	return false
}

// Error is the flash message shown after a rejected login.
func (p *LoginPage) Error() string {
	return htmlutil.Text(p.Find("#flash_error"))
}

func newLoginPage(p *browser.HTMLPage) (*LoginPage, error) {
	return &LoginPage{basePage{p}}, nil
}

// ActionPage is where redmine sends users that have to do something before
// going on, like changing an expired password.
type ActionPage struct {
	basePage
}

func (p *ActionPage) Message() string {
	if flash := htmlutil.Text(p.Find("#flash_warning, #flash_notice")); flash != "" {
		return flash
	}
	if strings.HasPrefix(p.URL.Path, "/account/twofa") {
		return "two-factor authentication required"
	}
	return "password change required"
}

func newActionPage(p *browser.HTMLPage) (*ActionPage, error) {
	return &ActionPage{basePage{p}}, nil
}

type projectEntry struct {
	Identifier  string
	Name        string
	Description string
}

type ProjectsPage struct {
	basePage
	Projects []projectEntry
}

func newProjectsPage(p *browser.HTMLPage) (*ProjectsPage, error) {
	page := &ProjectsPage{basePage: basePage{p}}
	p.Find("#projects-index a.project, ul.projects a.project").Each(func(_ int, a *goquery.Selection) {
		page.Projects = append(page.Projects, projectEntry{
			Identifier:  path.Base(a.AttrOr("href", "")),
			Name:        htmlutil.Text(a),
			Description: htmlutil.Text(a.Parent().ChildrenFiltered("div.wiki.description")),
		})
	})
	return page, nil
}

type ProjectPage struct {
	basePage
	Identifier  string
	Name        string
	Description string
	Members     []string
}

func newProjectPage(p *browser.HTMLPage) (*ProjectPage, error) {
	page := &ProjectPage{basePage: basePage{p}}
	page.Identifier = page.projectIdentifier()
	if page.Identifier == "" {
		page.Identifier = path.Base(p.URL.Path)
	}

	// the header holds the ancestors too, `Parent » Child`
	title := htmlutil.Text(p.Find("#header h1"))
	if i := strings.LastIndex(title, "»"); i >= 0 {
		title = strings.TrimSpace(title[i+len("»"):])
	}
	page.Name = title

	description, err := p.XPathOne(`//div[contains(@class, "wiki") and contains(@class, "description")]`)
	if err == nil && description != nil {
		page.Description = htmlutil.CleanText(htmlquery.InnerText(description))
	}

	seen := map[string]bool{}
	p.Find("div.members a.user").Each(func(_ int, a *goquery.Selection) {
		name := htmlutil.Text(a)
		if name != "" && !seen[name] {
			seen[name] = true
			page.Members = append(page.Members, name)
		}
	})
	return page, nil
}

type issueRow struct {
	ID       string
	Project  string
	Tracker  string
	Status   string
	Priority string
	Subject  string
	Author   string
	Assignee string
	Created  string
	Updated  string
}

type IssuesPage struct {
	basePage
	Rows []issueRow
	Next string
}

func newIssuesPage(p *browser.HTMLPage) (*IssuesPage, error) {
	page := &IssuesPage{basePage: basePage{p}}
	p.Find("table.list.issues tr.issue").Each(func(_ int, tr *goquery.Selection) {
		cell := func(class string) string {
			return htmlutil.Text(tr.ChildrenFiltered("td." + class))
		}
		id := strings.TrimPrefix(tr.AttrOr("id", ""), "issue-")
		if id == "" {
			id = strings.TrimPrefix(cell("id"), "#")
		}
		page.Rows = append(page.Rows, issueRow{
			ID:       id,
			Project:  cell("project"),
			Tracker:  cell("tracker"),
			Status:   cell("status"),
			Priority: cell("priority"),
			Subject:  cell("subject"),
			Author:   cell("author"),
			Assignee: cell("assigned_to"),
			Created:  cell("created_on"),
			Updated:  cell("updated_on"),
		})
	})
	page.Next = p.Find(".pagination a.next").AttrOr("href", "")
	return page, nil
}

type journal struct {
	Author  string
	Date    string
	Notes   string
	Details []string
}

type IssuePage struct {
	basePage
	ID          string
	Project     string
	Title       string
	Author      string
	Created     string
	Updated     string
	Status      string
	Priority    string
	Assignee    string
	Category    string
	Version     string
	Description string
	Journals    []journal
}

// attribute reads the value of one of the `div.<class>.attribute` blocks of
// the issue summary.
func attribute(p *browser.HTMLPage, class string) string {
	return p.XPathText(fmt.Sprintf(
		`//div[contains(concat(" ", normalize-space(@class), " "), " %s ") and contains(@class, "attribute")]/div[@class="value"]`,
		class,
	))
}

func attr(n *html.Node, key string) string {
	if n == nil {
		return ""
	}
	return htmlquery.SelectAttr(n, key)
}

var issueIdRegex = regexp.MustCompile(`/issues/(\d+)`)

func newIssuePage(p *browser.HTMLPage) (*IssuePage, error) {
	groups := issueIdRegex.FindStringSubmatch(p.URL.Path)
	if groups == nil {
		return nil, fmt.Errorf("no issue id in %s", p.URL)
	}

	page := &IssuePage{
		basePage: basePage{p},
		ID:       groups[1],
		Title:    p.XPathText(`//div[@class="subject"]//h3`),
		Author:   p.XPathText(`//div[contains(@class, "issue")]//p[@class="author"]/a[contains(@class, "user")]`),
		Status:   attribute(p, "status"),
		Priority: attribute(p, "priority"),
		Assignee: attribute(p, "assigned-to"),
		Category: attribute(p, "category"),
		Version:  attribute(p, "fixed-version"),
	}
	page.Project = page.projectIdentifier()

	// the author line links the creation and update dates, with the absolute
	// date in the title
	dates, err := p.XPath(`//div[contains(@class, "issue")]//p[@class="author"]/a[@title]`)
	if err == nil {
		if len(dates) > 0 {
			page.Created = attr(dates[0], "title")
		}
		if len(dates) > 1 {
			page.Updated = attr(dates[1], "title")
		}
	}

	description, err := p.XPathOne(`//div[@class="description"]//div[contains(@class, "wiki")]`)
	if err == nil && description != nil {
		page.Description, err = htmlutil.ToMarkdown(htmlquery.OutputHTML(description, false))
		if err != nil {
			return nil, fmt.Errorf("convert description: %w", err)
		}
	}

	journals, err := p.XPath(`//div[@id="history"]//div[contains(concat(" ", normalize-space(@class), " "), " journal ")]`)
	if err != nil {
		return nil, err
	}
	for _, node := range journals {
		j := journal{
			Author: htmlutil.CleanText(innerText(htmlquery.FindOne(node, `.//h4//a[contains(@class, "user")]`))),
			Date:   attr(htmlquery.FindOne(node, `.//h4//a[@title]`), "title"),
		}
		for _, li := range htmlquery.Find(node, `.//ul[contains(@class, "details")]/li`) {
			j.Details = append(j.Details, htmlutil.CleanText(htmlquery.InnerText(li)))
		}
		if notes := htmlquery.FindOne(node, `.//div[contains(@class, "wiki")]`); notes != nil {
			j.Notes, err = htmlutil.ToMarkdown(htmlquery.OutputHTML(notes, false))
			if err != nil {
				return nil, fmt.Errorf("convert journal notes: %w", err)
			}
		}
		page.Journals = append(page.Journals, j)
	}

	return page, nil
}

func innerText(n *html.Node) string {
	if n == nil {
		return ""
	}
	return htmlquery.InnerText(n)
}
