package browser

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Form is an html form with its fields as they would be submitted by a
// browser that did not touch anything.
type Form struct {
	browser *Browser
	Action  *url.URL
	Method  string
	Values  url.Values
}

// Form parses the form matched by selector, or the first form inside of it.
func (p *HTMLPage) Form(b *Browser, selector string) (*Form, error) {
	sel := p.Doc.Find(selector).First()
	if sel.Length() > 0 && goquery.NodeName(sel) != "form" {
		sel = sel.Find("form").First()
	}
	if sel.Length() == 0 {
		return nil, fmt.Errorf("%w: %q on %s", ErrFormNotFound, selector, p.URL)
	}

	action, err := p.Abs(sel.AttrOr("action", ""))
	if err != nil {
		return nil, fmt.Errorf("parse form action: %w", err)
	}
	method := strings.ToUpper(strings.TrimSpace(sel.AttrOr("method", "GET")))
	if method == "" {
		method = "GET"
	}

	values := url.Values{}
	sel.Find("input, select, textarea").Each(func(_ int, field *goquery.Selection) {
		name, ok := field.Attr("name")
		if !ok || name == "" {
			return
		}
		if _, disabled := field.Attr("disabled"); disabled {
			return
		}

		switch goquery.NodeName(field) {
		case "textarea":
			values.Add(name, field.Text())
		case "select":
			option := field.Find("option[selected]").First()
			if option.Length() == 0 {
				option = field.Find("option").First()
			}
			if option.Length() == 0 {
				return
			}
			values.Add(name, option.AttrOr("value", strings.TrimSpace(option.Text())))
		default:
			switch strings.ToLower(field.AttrOr("type", "text")) {
			case "submit", "button", "image", "reset", "file":
				return
			case "checkbox", "radio":
				if _, checked := field.Attr("checked"); !checked {
					return
				}
				values.Add(name, field.AttrOr("value", "on"))
			default:
				values.Add(name, field.AttrOr("value", ""))
			}
		}
	})

	return &Form{
		browser: b,
		Action:  action,
		Method:  method,
		Values:  values,
	}, nil
}

func (f *Form) Get(key string) string {
	return f.Values.Get(key)
}

func (f *Form) Set(key, value string) {
	f.Values.Set(key, value)
}

// Submit sends the form and makes the response the browser's location.
func (f *Form) Submit(ctx context.Context, opts ...RequestOption) (*Response, error) {
	if f.Method == "GET" {
		target := *f.Action
		target.RawQuery = f.Values.Encode()
		return f.browser.Location(ctx, target.String(), opts...)
	}
	opts = append([]RequestOption{WithForm(f.Values), WithMethod(f.Method)}, opts...)
	return f.browser.Location(ctx, f.Action.String(), opts...)
}
