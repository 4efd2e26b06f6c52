package torrent

import (
	"context"
	"time"

	"outweb/lib/capabilities/base"
)

type File struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

type Torrent struct {
	base.Object
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	Size        int64     `json:"size"`
	Seeders     int       `json:"seeders"`
	Leechers    int       `json:"leechers"`
	URL         string    `json:"url"`
	Magnet      string    `json:"magnet"`
	Date        time.Time `json:"date"`
	Description string    `json:"description,omitempty"`
	Files       []File    `json:"files,omitempty"`
}

// Searcher is the torrent capability.
type Searcher interface {
	IterTorrents(ctx context.Context, pattern string) ([]Torrent, error)
	GetTorrent(ctx context.Context, id string) (Torrent, error)
	// GetTorrentFile returns the contents of the .torrent file.
	GetTorrentFile(ctx context.Context, id string) ([]byte, error)
}
