package browser

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

type route interface {
	match(full string) (map[string]string, bool)
	build(res *Response) (Page, error)
}

type pattern struct {
	raw      string
	absolute bool
	regex    *regexp.Regexp
}

// URL is a route: a set of url patterns which all lead to the same kind of
// page. Relative patterns are prefixed with the base url of the browser.
// A pattern must match the whole url, an optional query string aside. Named
// groups are the parameters used by Build.
type URL[P any] struct {
	browser  *Browser
	patterns []pattern
	factory  Factory[P]
}

func isAbsolute(p string) bool {
	return strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://")
}

// Register adds a route to b. Routes are tried in the order they were
// registered. It panics on invalid patterns since those are programming errors.
func Register[P any](b *Browser, factory Factory[P], patterns ...string) *URL[P] {
	if len(patterns) == 0 {
		panic("browser: route without patterns")
	}

	prefix := strings.TrimSuffix(b.BaseUrl.String(), "/")
	u := &URL[P]{browser: b, factory: factory}
	for _, p := range patterns {
		compiled := pattern{raw: p, absolute: isAbsolute(p)}
		source := p
		if !compiled.absolute {
			if !strings.HasPrefix(source, "/") {
				source = "/" + source
			}
			source = regexp.QuoteMeta(prefix) + source
		}
		source = strings.TrimSuffix(strings.TrimPrefix(source, "^"), "$")
		compiled.regex = regexp.MustCompile("^(?:" + source + `)(?:\?.*)?$`)
		u.patterns = append(u.patterns, compiled)
	}

	b.routes = append(b.routes, u)
	return u
}

func (u *URL[P]) match(full string) (map[string]string, bool) {
	for _, p := range u.patterns {
		groups := p.regex.FindStringSubmatch(full)
		if groups == nil {
			continue
		}
		params := map[string]string{}
		for i, name := range p.regex.SubexpNames() {
			if name != "" && groups[i] != "" {
				params[name] = groups[i]
			}
		}
		return params, true
	}
	return nil, false
}

func (u *URL[P]) build(res *Response) (Page, error) {
	return u.factory(res)
}

// Match returns the named groups if target (resolved against the base url)
// matches one of the patterns.
func (u *URL[P]) Match(target string) (map[string]string, bool) {
	abs, err := u.browser.Abs(target)
	if err != nil {
		return nil, false
	}
	return u.match(abs.String())
}

// IsHere reports whether the browser currently sits on this route.
func (u *URL[P]) IsHere() bool {
	if !IsOnPage[P](u.browser) {
		return false
	}
	current := u.browser.URL()
	if current == nil {
		return false
	}
	_, ok := u.match(current.String())
	return ok
}

// Build fills the named groups of the first pattern that has all its
// parameters in params.
func (u *URL[P]) Build(params map[string]string) (string, error) {
	var lastErr error
	for _, p := range u.patterns {
		built, err := buildPattern(p.raw, params)
		if err != nil {
			lastErr = err
			continue
		}
		abs, err := u.browser.Abs(built)
		if err != nil {
			lastErr = err
			continue
		}
		return abs.String(), nil
	}
	return "", fmt.Errorf("build url: %w", lastErr)
}

func (u *URL[P]) pageOf(res *Response) (P, error) {
	page, ok := res.Page.(P)
	if ok {
		return page, nil
	}
	var zero P
	if l, ok := res.Page.(LoginState); ok && !l.Logged() {
		return zero, fmt.Errorf("%w: landed on %s", ErrLoggedOut, res.URL)
	}
	if res.Page == nil {
		return zero, fmt.Errorf("%w: %s", ErrNoRoute, res.URL)
	}
	return zero, fmt.Errorf("%w: %T at %s", ErrUnexpectedPage, res.Page, res.URL)
}

// Go builds the url, makes it the browser's location and returns the page.
// Landing on anything else than a P is an error.
func (u *URL[P]) Go(ctx context.Context, params map[string]string, opts ...RequestOption) (P, error) {
	target, err := u.Build(params)
	if err != nil {
		var zero P
		return zero, err
	}
	res, err := u.browser.Location(ctx, target, opts...)
	if err != nil {
		var zero P
		return zero, err
	}
	return u.pageOf(res)
}

// Open is Go without changing the browser's location.
func (u *URL[P]) Open(ctx context.Context, params map[string]string, opts ...RequestOption) (P, error) {
	target, err := u.Build(params)
	if err != nil {
		var zero P
		return zero, err
	}
	res, err := u.browser.Open(ctx, target, opts...)
	if err != nil {
		var zero P
		return zero, err
	}
	return u.pageOf(res)
}

// StayOrGo returns the current page if the browser is already on this route
// with the same parameters, otherwise it does Go.
func (u *URL[P]) StayOrGo(ctx context.Context, params map[string]string, opts ...RequestOption) (P, error) {
	if u.IsHere() {
		current, _ := u.match(u.browser.URL().String())
		same := true
		for k, v := range params {
			if current[k] != v {
				same = false
				break
			}
		}
		if same {
			return u.browser.Page().(P), nil
		}
	}
	return u.Go(ctx, params, opts...)
}

func closingParen(p string, open int) int {
	depth := 0
	for i := open; i < len(p); i++ {
		switch p[i] {
		case '\\':
			i++
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// buildPattern turns a pattern back into a url. Only literal text, escapes
// and named groups can be reversed, other regex syntax is an error.
func buildPattern(p string, params map[string]string) (string, error) {
	var out strings.Builder
	for i := 0; i < len(p); {
		c := p[i]
		switch {
		case c == '\\' && i+1 < len(p):
			out.WriteByte(p[i+1])
			i += 2
		case strings.HasPrefix(p[i:], "(?P<"):
			end := strings.IndexByte(p[i:], '>')
			closing := closingParen(p, i)
			if end < 0 || closing < 0 {
				return "", fmt.Errorf("unbalanced group in %q", p)
			}
			name := p[i+4 : i+end]
			value, ok := params[name]
			if !ok {
				return "", fmt.Errorf("missing parameter %q for %q", name, p)
			}
			out.WriteString(url.PathEscape(value))
			i = closing + 1
		case c == '^' || c == '$':
			i++
		case strings.IndexByte("()[]{}*+?|", c) >= 0:
			return "", fmt.Errorf("cannot build url from regex syntax %q in %q", c, p)
		default:
			out.WriteByte(c)
			i++
		}
	}
	return out.String(), nil
}
