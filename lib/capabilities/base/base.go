// Package base holds what every capability shares: object identity and the
// errors capability methods return.
package base

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned by Get* methods when the backend has no object
	// with the given id.
	ErrNotFound = errors.New("object not found")
	// ErrNotSupported is returned when a backend implements a capability but
	// not one of its operations.
	ErrNotSupported = errors.New("operation not supported by backend")
)

type Capability string

const (
	CapWeather    Capability = "weather"
	CapTorrent    Capability = "torrent"
	CapBugTracker Capability = "bugtracker"
	CapVideo      Capability = "video"
)

// Object is embedded by every capability object.
type Object struct {
	ID      string `json:"id"`
	Backend string `json:"backend"`
}

// FullID is the id qualified with the backend it came from, `id@backend`.
func (o Object) FullID() string {
	if o.Backend == "" {
		return o.ID
	}
	return o.ID + "@" + o.Backend
}

// ParseFullID splits `id@backend`. The backend is empty when there is no `@`.
// Ids may contain `@` themselves, the last one is the separator.
func ParseFullID(full string) (id, backend string, err error) {
	if full == "" {
		return "", "", fmt.Errorf("empty id")
	}
	i := strings.LastIndex(full, "@")
	if i < 0 {
		return full, "", nil
	}
	id, backend = full[:i], full[i+1:]
	if id == "" || backend == "" {
		return "", "", fmt.Errorf("malformed id %q, expected id@backend", full)
	}
	return id, backend, nil
}
