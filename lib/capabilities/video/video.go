package video

import (
	"context"
	"time"

	"outweb/lib/capabilities/base"
)

type SortBy string

const (
	SortRelevance SortBy = "relevance"
	SortDate      SortBy = "date"
	SortViews     SortBy = "views"
)

type SearchOptions struct {
	SortBy SortBy
	NSFW   bool
}

// Stream is one playable file of a video.
type Stream struct {
	Label string `json:"label"`
	URL   string `json:"url"`
	Size  int64  `json:"size"`
}

type Video struct {
	base.Object
	Title       string        `json:"title"`
	Author      string        `json:"author"`
	Duration    time.Duration `json:"duration"`
	Date        time.Time     `json:"date"`
	URL         string        `json:"url"`
	Thumbnail   string        `json:"thumbnail"`
	Description string        `json:"description,omitempty"`
	NSFW        bool          `json:"nsfw"`
	Views       int64         `json:"views"`
	Streams     []Stream      `json:"streams,omitempty"`
}

// Provider is the video capability.
type Provider interface {
	SearchVideos(ctx context.Context, pattern string, opts SearchOptions) ([]Video, error)
	GetVideo(ctx context.Context, id string) (Video, error)
}
