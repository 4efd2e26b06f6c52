package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"outweb/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/go-resty/resty/v2"
	"golang.org/x/net/html"
)

// Page is the parsed form of a response, any type can be a page.
type Page = any

// Loader is implemented by pages that need to do work right after they are
// built, like detecting an error banner.
type Loader interface {
	OnLoad(ctx context.Context) error
}

// Here is implemented by pages that share a url pattern with other pages and
// need to look at the content to know if they are the right one.
type Here interface {
	IsHere() bool
}

// LoginState is implemented by pages that know whether the session is logged
// in, Location copies it to the browser.
type LoginState interface {
	Logged() bool
}

type Response struct {
	*resty.Response
	// URL is the final url, after redirects.
	URL  *url.URL
	Page Page
}

// Factory builds a page out of a response.
type Factory[P any] func(res *Response) (P, error)

type HTMLPage struct {
	Response *Response
	URL      *url.URL
	Doc      *goquery.Document
	Root     *html.Node
}

func ParseHTML(res *Response) (*HTMLPage, error) {
	root, err := html.Parse(bytes.NewReader(res.Body()))
	if err != nil {
		return nil, err
	}
	return &HTMLPage{
		Response: res,
		URL:      res.URL,
		Doc:      goquery.NewDocumentFromNode(root),
		Root:     root,
	}, nil
}

// HTML returns a factory parsing the response as html before handing it to fn.
func HTML[P any](fn func(p *HTMLPage) (P, error)) Factory[P] {
	return func(res *Response) (P, error) {
		page, err := ParseHTML(res)
		if err != nil {
			var zero P
			return zero, err
		}
		return fn(page)
	}
}

func (p *HTMLPage) Find(selector string) *goquery.Selection {
	return p.Doc.Find(selector)
}

func (p *HTMLPage) XPath(expr string) ([]*html.Node, error) {
	return htmlquery.QueryAll(p.Root, expr)
}

func (p *HTMLPage) XPathOne(expr string) (*html.Node, error) {
	return htmlquery.Query(p.Root, expr)
}

// XPathText returns the cleaned up text of the first node matching expr, an
// empty string if nothing matches.
func (p *HTMLPage) XPathText(expr string) string {
	node, err := htmlquery.Query(p.Root, expr)
	if err != nil || node == nil {
		return ""
	}
	return htmlutil.CleanText(htmlquery.InnerText(node))
}

func (p *HTMLPage) Anchors(selector string) []htmlutil.Anchor {
	return htmlutil.GetAnchors(p.URL, p.Doc.Find(selector))
}

// Abs resolves href against the page url.
func (p *HTMLPage) Abs(href string) (*url.URL, error) {
	parsed, err := url.Parse(href)
	if err != nil {
		return nil, err
	}
	return p.URL.ResolveReference(parsed), nil
}

type JSONPage struct {
	Response *Response
	URL      *url.URL
	Raw      []byte
}

func (p *JSONPage) Decode(out any) error {
	err := json.Unmarshal(p.Raw, out)
	if err != nil {
		return fmt.Errorf("decode json from %s: %w", p.URL, err)
	}
	return nil
}

// JSON returns a factory handing the raw json response to fn.
func JSON[P any](fn func(p *JSONPage) (P, error)) Factory[P] {
	return func(res *Response) (P, error) {
		return fn(&JSONPage{Response: res, URL: res.URL, Raw: res.Body()})
	}
}

// RawPage is for downloads that are not parsed at all.
type RawPage struct {
	Response *Response
	Body     []byte
}

func Raw(res *Response) (*RawPage, error) {
	return &RawPage{Response: res, Body: res.Body()}, nil
}
