package browser

import (
	"context"
	"fmt"
)

// Paginate visits start and then every next page returned by visit until it
// returns an empty url, maxPages pages were seen (<= 0 for no limit) or a url
// comes up a second time. Next urls are resolved against the page they came from.
func Paginate[P any](ctx context.Context, u *URL[P], start string, maxPages int, visit func(page P) (next string, err error)) error {
	seen := map[string]bool{}
	target, err := u.browser.Abs(start)
	if err != nil {
		return err
	}

	for count := 0; maxPages <= 0 || count < maxPages; count++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if seen[target.String()] {
			return nil
		}
		seen[target.String()] = true

		res, err := u.browser.Location(ctx, target.String())
		if err != nil {
			return err
		}
		page, err := u.pageOf(res)
		if err != nil {
			return err
		}

		next, err := visit(page)
		if err != nil {
			return err
		}
		if next == "" {
			return nil
		}
		target, err = res.URL.Parse(next)
		if err != nil {
			return fmt.Errorf("parse next page url: %w", err)
		}
	}
	return nil
}
