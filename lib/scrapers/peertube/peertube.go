// Package peertube is a video backend for PeerTube instances, through their
// rest api.
package peertube

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"outweb/lib/backends"
	"outweb/lib/browser"
	"outweb/lib/capabilities/base"
	"outweb/lib/capabilities/video"
	"outweb/lib/telemetry"
)

const (
	report_browser_search = "browser.search"
	report_browser_video  = "browser.video"
)

const (
	defaultUrl      = "https://framatube.org"
	defaultPageSize = 25
)

var Module = backends.Module{
	Name:         "peertube",
	Description:  "PeerTube federated video platform",
	Maintainer:   "outweb",
	Version:      "1.0",
	License:      "MIT",
	Capabilities: []base.Capability{base.CapVideo},
	Params: []backends.ParamSpec{
		{Key: "url", Label: "Instance url", Default: defaultUrl, Regexp: `https?://.+`},
		{Key: "max_results", Label: "Results to fetch per search", Default: "50", Regexp: `\d+`},
	},
	New: func(ctx context.Context, env backends.Env) (any, error) {
		return New(env)
	},
}

type Backend struct {
	name       string
	maxResults int
	pageSize   int
	tel        telemetry.API

	b      *browser.Browser
	search *browser.URL[*SearchPage]
	video  *browser.URL[*VideoPage]
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

	maxResults := 50
	if v := env.Params["max_results"]; v != "" {
		maxResults, err = strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("max_results: %w", err)
		}
	}

	return &Backend{
		name:       env.Name,
		maxResults: maxResults,
		pageSize:   defaultPageSize,
		tel:        b.Telemetry(),
		b:          b,
		search:     browser.Register(b, browser.JSON(newSearchPage), `/api/v1/search/videos`),
		video:      browser.Register(b, browser.JSON(newVideoPage), `/api/v1/videos/(?P<id>[\w-]+)`),
	}, nil
}

var sorts = map[video.SortBy]string{
	video.SortRelevance: "-match",
	video.SortDate:      "-publishedAt",
	video.SortViews:     "-views",
}

func (p *Backend) abs(path string) string {
	if path == "" {
		return ""
	}
	u, err := p.b.Abs(path)
	if err != nil {
		return path
	}
	return u.String()
}

func (p *Backend) toVideo(v apiVideo) video.Video {
	link := v.Url
	if link == "" {
		link = p.abs("/videos/watch/" + v.UUID)
	}
	author := v.Account.DisplayName
	if author == "" {
		author = v.Account.Name
	}
	return video.Video{
		Object:      base.Object{ID: v.UUID, Backend: p.name},
		Title:       v.Name,
		Author:      author,
		Duration:    time.Duration(v.Duration) * time.Second,
		Date:        v.PublishedAt,
		URL:         link,
		Thumbnail:   p.abs(v.ThumbnailPath),
		Description: v.Description,
		NSFW:        v.NSFW,
		Views:       v.Views,
	}
}

func (p *Backend) SearchVideos(ctx context.Context, pattern string, opts video.SearchOptions) ([]video.Video, error) {
	sort, ok := sorts[opts.SortBy]
	if !ok {
		sort = sorts[video.SortRelevance]
	}
	query := url.Values{
		"search": {pattern},
		"sort":   {sort},
		"nsfw":   {strconv.FormatBool(opts.NSFW)},
		"count":  {strconv.Itoa(p.pageSize)},
		"start":  {"0"},
	}
	start, err := p.search.Build(nil)
	if err != nil {
		return nil, err
	}

	var out []video.Video
	err = browser.Paginate(ctx, p.search, start+"?"+query.Encode(), 0, func(page *SearchPage) (string, error) {
		for _, v := range page.Data {
			if len(out) >= p.maxResults {
				return "", nil
			}
			out = append(out, p.toVideo(v))
		}

		offset, _ := strconv.Atoi(query.Get("start"))
		offset += p.pageSize
		if len(page.Data) == 0 || offset >= page.Total || len(out) >= p.maxResults {
			return "", nil
		}
		query.Set("start", strconv.Itoa(offset))
		return start + "?" + query.Encode(), nil
	})
	if err != nil {
		p.tel.ReportBroken(report_browser_search, err, pattern)
		return out, err
	}
	return out, nil
}

func (p *Backend) GetVideo(ctx context.Context, id string) (video.Video, error) {
	page, err := p.video.Open(ctx, map[string]string{"id": id})
	if errors.Is(err, browser.ErrHTTPNotFound) {
		return video.Video{}, fmt.Errorf("%w: video %s", base.ErrNotFound, id)
	}
	if err != nil {
		p.tel.ReportBroken(report_browser_video, err, id)
		return video.Video{}, err
	}

	out := p.toVideo(page.apiVideo)
	for _, f := range page.Files {
		out.Streams = append(out.Streams, video.Stream{
			Label: f.Resolution.Label,
			URL:   f.FileUrl,
			Size:  f.Size,
		})
	}
	for _, playlist := range page.StreamingPlaylists {
		out.Streams = append(out.Streams, video.Stream{
			Label: "HLS",
			URL:   playlist.PlaylistUrl,
		})
		for _, f := range playlist.Files {
			out.Streams = append(out.Streams, video.Stream{
				Label: f.Resolution.Label + " (HLS)",
				URL:   f.FileUrl,
				Size:  f.Size,
			})
		}
	}
	return out, nil
}
