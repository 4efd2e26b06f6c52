// Package nyaa is a torrent backend for nyaa.si and sites running the same
// software.
package nyaa

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"outweb/lib/backends"
	"outweb/lib/browser"
	"outweb/lib/capabilities/base"
	"outweb/lib/capabilities/torrent"
	"outweb/lib/telemetry"
)

const (
	report_browser_search   = "browser.search"
	report_browser_view     = "browser.view"
	report_browser_download = "browser.download"
	report_parse_row        = "parse.search-row"
	report_search_results   = "search.results"
)

const defaultUrl = "https://nyaa.si"

var Module = backends.Module{
	Name:         "nyaa",
	Description:  "Nyaa BitTorrent tracker",
	Maintainer:   "outweb",
	Version:      "1.0",
	License:      "MIT",
	Capabilities: []base.Capability{base.CapTorrent},
	Params: []backends.ParamSpec{
		{Key: "url", Label: "Tracker url", Default: defaultUrl},
		{Key: "category", Label: "Category", Default: "0_0", Regexp: `\d+_\d+`},
		{Key: "filter", Label: "Filter", Default: "0", Choices: []string{"0", "1", "2"}},
		{Key: "sort", Label: "Sort by", Default: "id", Choices: []string{"id", "seeders", "leechers", "size", "downloads"}},
		{Key: "max_pages", Label: "Result pages to fetch", Default: "3", Regexp: `\d+`},
	},
	New: func(ctx context.Context, env backends.Env) (any, error) {
		return New(env)
	},
}

type Backend struct {
	name     string
	params   map[string]string
	maxPages int
	tel      telemetry.API

	b        *browser.Browser
	search   *browser.URL[*SearchPage]
	view     *browser.URL[*ViewPage]
	download *browser.URL[*browser.RawPage]
}

func New(env backends.Env) (*Backend, error) {
	baseUrl := env.Params["url"]
	if baseUrl == "" {
		baseUrl = defaultUrl
	}
	b, err := browser.New(env.BrowserOptions(baseUrl))
	if err != nil {
		return nil, err
	}

	maxPages := 3
	if v := env.Params["max_pages"]; v != "" {
		maxPages, err = strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("max_pages: %w", err)
		}
	}

	return &Backend{
		name:     env.Name,
		params:   env.Params,
		maxPages: maxPages,
		tel:      b.Telemetry(),
		b:        b,
		search:   browser.Register(b, browser.HTML(newSearchPage), `/`),
		view:     browser.Register(b, browser.HTML(newViewPage), `/view/(?P<id>\d+)`),
		download: browser.Register(b, browser.Raw, `/download/(?P<id>\d+)\.torrent`),
	}, nil
}

func (n *Backend) param(key, fallback string) string {
	if v := n.params[key]; v != "" {
		return v
	}
	return fallback
}

func (n *Backend) abs(href string) string {
	if href == "" || strings.HasPrefix(href, "magnet:") {
		return href
	}
	u, err := n.b.Abs(href)
	if err != nil {
		return href
	}
	return u.String()
}

func (n *Backend) IterTorrents(ctx context.Context, pattern string) ([]torrent.Torrent, error) {
	query := url.Values{
		"f": {n.param("filter", "0")},
		"c": {n.param("category", "0_0")},
		"q": {pattern},
		"s": {n.param("sort", "id")},
		"o": {"desc"},
	}

	var out []torrent.Torrent
	err := browser.Paginate(ctx, n.search, "/?"+query.Encode(), n.maxPages, func(page *SearchPage) (string, error) {
		for _, err := range page.Broken {
			n.tel.ReportBroken(report_parse_row, err, page.URL.String())
		}
		for _, r := range page.Rows {
			out = append(out, torrent.Torrent{
				Object:   base.Object{ID: r.ID, Backend: n.name},
				Name:     r.Name,
				Category: r.Category,
				Size:     r.Size,
				Seeders:  r.Seeders,
				Leechers: r.Leechers,
				URL:      n.abs(r.Download),
				Magnet:   r.Magnet,
				Date:     r.Date,
			})
		}
		return page.Next, nil
	})
	if err != nil {
		n.tel.ReportBroken(report_browser_search, err, pattern)
		return out, err
	}
	n.tel.ReportCount(report_search_results, int64(len(out)))
	return out, nil
}

func notFound(err error, id string) error {
	if errors.Is(err, browser.ErrHTTPNotFound) {
		return fmt.Errorf("%w: torrent %s", base.ErrNotFound, id)
	}
	return err
}

func (n *Backend) GetTorrent(ctx context.Context, id string) (torrent.Torrent, error) {
	page, err := n.view.Go(ctx, map[string]string{"id": id})
	if err != nil {
		err = notFound(err, id)
		if !errors.Is(err, base.ErrNotFound) {
			n.tel.ReportBroken(report_browser_view, err, id)
		}
		return torrent.Torrent{}, err
	}

	t := torrent.Torrent{
		Object:      base.Object{ID: page.ID, Backend: n.name},
		Name:        page.Name,
		Category:    page.Category,
		Size:        page.Size,
		Seeders:     page.Seeders,
		Leechers:    page.Leechers,
		URL:         n.abs(fmt.Sprintf("/download/%s.torrent", page.ID)),
		Magnet:      page.Magnet,
		Date:        page.Date,
		Description: page.Description,
	}
	if t.Magnet == "" && page.InfoHash != "" {
		t.Magnet = "magnet:?xt=urn:btih:" + page.InfoHash + "&dn=" + url.QueryEscape(page.Name)
	}
	for _, f := range page.Files {
		t.Files = append(t.Files, torrent.File{Path: f.Path, Size: f.Size})
	}
	return t, nil
}

func (n *Backend) GetTorrentFile(ctx context.Context, id string) ([]byte, error) {
	page, err := n.download.Open(ctx, map[string]string{"id": id})
	if err != nil {
		err = notFound(err, id)
		if !errors.Is(err, base.ErrNotFound) {
			n.tel.ReportBroken(report_browser_download, err, id)
		}
		return nil, err
	}
	return page.Body, nil
}
