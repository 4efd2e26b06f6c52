package nyaa

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"outweb/lib/browser"
	"outweb/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"github.com/dustin/go-humanize"
	"golang.org/x/net/html"
)

var viewIdRegex = regexp.MustCompile(`/view/(\d+)`)

// row is one line of the search table, before it becomes a torrent.
type row struct {
	ID       string
	Name     string
	Category string
	Size     int64
	Date     time.Time
	Seeders  int
	Leechers int
	Magnet   string
	Download string
}

type SearchPage struct {
	*browser.HTMLPage
	Rows []row
	// Next is the href of the next page, empty on the last one.
	Next string
	// Broken holds the rows that could not be parsed with the reason.
	Broken []error
}

func parseTimestamp(s string) (time.Time, error) {
	ts, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(ts, 0).UTC(), nil
}

func parseInt(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

func parseSize(s string) (int64, error) {
	size, err := humanize.ParseBytes(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return int64(size), nil
}

func newSearchPage(p *browser.HTMLPage) (*SearchPage, error) {
	page := &SearchPage{HTMLPage: p}

	p.Find("table.torrent-list > tbody > tr").Each(func(i int, tr *goquery.Selection) {
		cells := tr.Children()
		if cells.Length() < 7 {
			page.Broken = append(page.Broken, fmt.Errorf("row %d: %d cells", i, cells.Length()))
			return
		}

		var r row
		r.Category = cells.Eq(0).Find("a").AttrOr("title", "")

		title := cells.Eq(1).Find("a:not(.comments)").Last()
		r.Name = htmlutil.CleanText(title.AttrOr("title", title.Text()))
		groups := viewIdRegex.FindStringSubmatch(title.AttrOr("href", ""))
		if groups == nil {
			page.Broken = append(page.Broken, fmt.Errorf("row %d: no view link", i))
			return
		}
		r.ID = groups[1]

		links := cells.Eq(2)
		r.Download = links.Find(`a[href$=".torrent"]`).AttrOr("href", "")
		r.Magnet = links.Find(`a[href^="magnet:"]`).AttrOr("href", "")

		size, err := parseSize(cells.Eq(3).Text())
		if err != nil {
			page.Broken = append(page.Broken, fmt.Errorf("row %d: size: %w", i, err))
		}
		r.Size = size

		date, err := parseTimestamp(cells.Eq(4).AttrOr("data-timestamp", ""))
		if err != nil {
			page.Broken = append(page.Broken, fmt.Errorf("row %d: date: %w", i, err))
		}
		r.Date = date

		r.Seeders = parseInt(cells.Eq(5).Text())
		r.Leechers = parseInt(cells.Eq(6).Text())
		page.Rows = append(page.Rows, r)
	})

	page.Next = p.Find("ul.pagination li.next:not(.disabled) a").AttrOr("href", "")
	return page, nil
}

// ownText is the text of the selection without the text of its child elements.
func ownText(sel *goquery.Selection) string {
	var out strings.Builder
	sel.Contents().Each(func(_ int, child *goquery.Selection) {
		if child.Nodes[0].Type == html.TextNode {
			out.WriteString(child.Nodes[0].Data)
		}
	})
	return htmlutil.CleanText(out.String())
}

type file struct {
	Path string
	Size int64
}

type ViewPage struct {
	*browser.HTMLPage
	ID          string
	Name        string
	Category    string
	Date        time.Time
	Seeders     int
	Leechers    int
	Size        int64
	InfoHash    string
	Magnet      string
	Description string
	Files       []file
}

// field is the value cell next to a `<label>:` cell of the info panel.
func field(p *browser.HTMLPage, label string) string {
	return p.XPathText(fmt.Sprintf(
		`//div[contains(@class, "panel-body")]//div[normalize-space(text())="%s:"]/following-sibling::div[1]`,
		label,
	))
}

func newViewPage(p *browser.HTMLPage) (*ViewPage, error) {
	groups := viewIdRegex.FindStringSubmatch(p.URL.Path)
	if groups == nil {
		return nil, fmt.Errorf("no torrent id in %s", p.URL)
	}

	page := &ViewPage{
		HTMLPage:    p,
		ID:          groups[1],
		Name:        p.XPathText(`//h3[contains(@class, "panel-title")]`),
		Category:    field(p, "Category"),
		Seeders:     parseInt(field(p, "Seeders")),
		Leechers:    parseInt(field(p, "Leechers")),
		InfoHash:    p.XPathText(`//kbd`),
		Magnet:      p.Find(`.panel-footer a[href^="magnet:"]`).AttrOr("href", ""),
		Description: strings.TrimSpace(p.Find("#torrent-description").Text()),
	}
	if page.Name == "" {
		return nil, fmt.Errorf("no title on %s", p.URL)
	}

	size, err := parseSize(field(p, "File size"))
	if err == nil {
		page.Size = size
	}
	dateNode, err := p.XPathOne(`//div[@data-timestamp]`)
	if err == nil && dateNode != nil {
		for _, attr := range dateNode.Attr {
			if attr.Key == "data-timestamp" {
				page.Date, _ = parseTimestamp(attr.Val)
			}
		}
	}

	p.Find(".torrent-file-list li").Each(func(_ int, li *goquery.Selection) {
		if li.ChildrenFiltered("i.fa-file").Length() == 0 {
			return
		}
		sizeSpan := li.ChildrenFiltered("span.file-size")
		name := ownText(li)

		var folders []string
		li.ParentsFiltered("li").Each(func(_ int, parent *goquery.Selection) {
			folders = append(folders, htmlutil.Text(parent.ChildrenFiltered("a.folder")))
		})
		path := name
		for _, folder := range folders {
			path = folder + "/" + path
		}

		size, _ := parseSize(strings.Trim(sizeSpan.Text(), "() "))
		page.Files = append(page.Files, file{Path: path, Size: size})
	})

	return page, nil
}
