package peertube

import (
	"time"

	"outweb/lib/browser"
)

type account struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Host        string `json:"host"`
}

type resolution struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
}

type videoFile struct {
	Resolution      resolution `json:"resolution"`
	Size            int64      `json:"size"`
	FileUrl         string     `json:"fileUrl"`
	FileDownloadUrl string     `json:"fileDownloadUrl"`
}

type streamingPlaylist struct {
	Type        int         `json:"type"`
	PlaylistUrl string      `json:"playlistUrl"`
	Files       []videoFile `json:"files"`
}

type apiVideo struct {
	ID                 int64               `json:"id"`
	UUID               string              `json:"uuid"`
	ShortUUID          string              `json:"shortUUID"`
	Name               string              `json:"name"`
	Description        string              `json:"description"`
	Duration           int64               `json:"duration"`
	PublishedAt        time.Time           `json:"publishedAt"`
	Views              int64               `json:"views"`
	NSFW               bool                `json:"nsfw"`
	ThumbnailPath      string              `json:"thumbnailPath"`
	Url                string              `json:"url"`
	Account            account             `json:"account"`
	Files              []videoFile         `json:"files"`
	StreamingPlaylists []streamingPlaylist `json:"streamingPlaylists"`
}

type SearchPage struct {
	Total int        `json:"total"`
	Data  []apiVideo `json:"data"`
}

func newSearchPage(p *browser.JSONPage) (*SearchPage, error) {
	var page SearchPage
	return &page, p.Decode(&page)
}

type VideoPage struct {
	apiVideo
}

func newVideoPage(p *browser.JSONPage) (*VideoPage, error) {
	var page VideoPage
	return &page, p.Decode(&page.apiVideo)
}
