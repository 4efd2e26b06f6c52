package browser

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrIncorrectPassword is returned by logins rejected by the site.
	ErrIncorrectPassword = errors.New("incorrect login or password")
	// ErrUnavailable is returned when the site cannot be reached or keeps
	// failing with server errors after retries.
	ErrUnavailable  = errors.New("website is unavailable")
	ErrHTTPNotFound = errors.New("page not found")
	// ErrBanned is returned when the site refuses to serve us (403, 429).
	ErrBanned = errors.New("access denied by website")
	// ErrLoggedOut is returned by page checks that find the session expired.
	// LoginBrowser.NeedLogin logs in again when it sees it.
	ErrLoggedOut = errors.New("session is not logged in")
	// ErrActionNeeded means the site wants the user to do something by hand
	// (accept new terms, solve a captcha, ...) before it can be used.
	ErrActionNeeded   = errors.New("action needed on website")
	ErrNoRoute        = errors.New("no route matches url")
	ErrUnexpectedPage = errors.New("unexpected page")
	ErrFormNotFound   = errors.New("form not found")
)

// HTTPError is returned for responses with a status >= 400. It unwraps to one
// of the sentinels above when the status has a more specific meaning.
type HTTPError struct {
	Status int
	URL    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d %s: %s", e.Status, http.StatusText(e.Status), e.URL)
}

func (e *HTTPError) Unwrap() error {
	switch {
	case e.Status == http.StatusNotFound || e.Status == http.StatusGone:
		return ErrHTTPNotFound
	case e.Status == http.StatusForbidden || e.Status == http.StatusTooManyRequests:
		return ErrBanned
	case e.Status >= 500:
		return ErrUnavailable
	}
	return nil
}

// ActionNeededError carries the message the site showed to the user.
type ActionNeededError struct {
	Message string
}

func (e *ActionNeededError) Error() string {
	return fmt.Sprintf("%s: %s", ErrActionNeeded.Error(), e.Message)
}

func (e *ActionNeededError) Unwrap() error {
	return ErrActionNeeded
}
