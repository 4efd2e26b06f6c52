package bugtracker

import (
	"context"
	"time"

	"outweb/lib/capabilities/base"
)

type Project struct {
	base.Object
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Statuses    []string `json:"statuses,omitempty"`
	Members     []string `json:"members,omitempty"`
}

// Update is one entry of the history of an issue.
type Update struct {
	Author  string    `json:"author"`
	Date    time.Time `json:"date"`
	Message string    `json:"message"`
	Changes []string  `json:"changes,omitempty"`
}

type Issue struct {
	base.Object
	Project  string    `json:"project"`
	Title    string    `json:"title"`
	Body     string    `json:"body,omitempty"`
	Author   string    `json:"author"`
	Assignee string    `json:"assignee"`
	Status   string    `json:"status"`
	Priority string    `json:"priority"`
	Category string    `json:"category,omitempty"`
	Version  string    `json:"version,omitempty"`
	Created  time.Time `json:"created"`
	Updated  time.Time `json:"updated"`
	URL      string    `json:"url"`
	History  []Update  `json:"history,omitempty"`
}

// Query filters IterIssues, empty fields match everything.
type Query struct {
	Project  string
	Title    string
	Status   string
	Author   string
	Assignee string
}

// Tracker is the bug tracker capability.
type Tracker interface {
	IterProjects(ctx context.Context) ([]Project, error)
	GetProject(ctx context.Context, id string) (Project, error)
	IterIssues(ctx context.Context, query Query) ([]Issue, error)
	GetIssue(ctx context.Context, id string) (Issue, error)
}
