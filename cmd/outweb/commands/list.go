package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"outweb/lib/backendscall"
	"outweb/lib/capabilities/base"
	"outweb/lib/condition"
	"outweb/lib/formatter"
	"outweb/lib/textutil"
)

type identified interface {
	FullID() string
}

func callOptions[T any](f *flags) ([]backendscall.Option[T], error) {
	var opts []backendscall.Option[T]
	if f.maxConcurrency > 0 {
		opts = append(opts, backendscall.WithMaxConcurrency[T](f.maxConcurrency))
	}
	if f.count > 0 {
		opts = append(opts, backendscall.WithLimit[T](f.count))
	}
	if f.timeout > 0 {
		opts = append(opts, backendscall.WithTimeout[T](f.timeout))
	}
	if f.condition != "" {
		cond, err := condition.Parse(f.condition)
		if err != nil {
			return nil, err
		}
		opts = append(opts, backendscall.WithCondition(func(v T) bool {
			ok, err := cond.Match(v)
			if err != nil {
				slog.Debug("condition not applicable", "condition", cond.String(), "err", err)
				return false
			}
			return ok
		}))
	}
	return opts, nil
}

// runList calls fn on every loaded backend implementing C and prints the
// merged results, numbered so that later commands can refer to them by index.
// name, when set, ranks the results by similarity to pattern.
func runList[C any, T identified](
	ctx context.Context,
	s *session,
	kind, pattern string,
	fn func(ctx context.Context, c C) ([]T, error),
	name func(T) string,
) error {
	list, err := s.backends(ctx)
	if err != nil {
		return err
	}
	opts, err := callOptions[T](s.flags)
	if err != nil {
		return err
	}

	call := backendscall.Do(ctx, list, func(ctx context.Context, _ string, c C) ([]T, error) {
		return fn(ctx, c)
	}, opts...)
	if call.Ran() == 0 {
		return fmt.Errorf("none of the loaded backends can list %ss", kind)
	}
	results, callErr := backendscall.Collect(call)
	if call.AllFailed() {
		return callErr
	}

	if name != nil {
		textutil.RankBySimilarity(results, pattern, func(r backendscall.Result[T]) string {
			return name(r.Value)
		})
	}

	ids := make([]string, len(results))
	records := make([]formatter.Record, len(results))
	for i, r := range results {
		ids[i] = r.Value.FullID()
		records[i] = formatter.Record{Index: i + 1, Backend: r.Backend, Value: r.Value}
	}
	s.app.remember(ids)

	err = s.print(ctx, kind, records, false)
	if err != nil {
		return err
	}
	s.warnCallErrors(callErr)
	return nil
}

func (s *session) warnCallErrors(err error) {
	var callErrs backendscall.CallErrors
	if errors.As(err, &callErrs) {
		for _, e := range callErrs {
			s.warn("%s: %v", e.Backend, e.Err)
		}
		return
	}
	if err != nil {
		s.warn("%v", err)
	}
}

// lookup resolves arg to a backend implementing C and calls fn on it with the
// bare id.
func lookup[C, T any](
	ctx context.Context,
	s *session,
	kind, arg string,
	fn func(ctx context.Context, c C, id string) (T, error),
) (string, T, error) {
	var zero T
	id, backend, err := s.resolveID(arg)
	if err != nil {
		return "", zero, err
	}
	list, err := s.backends(ctx)
	if err != nil {
		return "", zero, err
	}
	backend, err = pickBackend[C](list, id, backend)
	if err != nil {
		return "", zero, err
	}

	value, err := backendscall.DoOne(ctx, list, backend, func(ctx context.Context, c C) (T, error) {
		return fn(ctx, c, id)
	})
	if errors.Is(err, base.ErrNotFound) {
		return "", zero, fmt.Errorf("%s %s not found on %s", kind, id, backend)
	}
	return backend, value, err
}

// runGet prints the details of a single object.
func runGet[C, T any](
	ctx context.Context,
	s *session,
	kind, arg string,
	fn func(ctx context.Context, c C, id string) (T, error),
) error {
	backend, value, err := lookup(ctx, s, kind, arg, fn)
	if err != nil {
		return err
	}
	return s.print(ctx, kind, []formatter.Record{{Backend: backend, Value: value}}, true)
}

// runGetList prints a listing that belongs to a single object, like the
// forecast of a city.
func runGetList[C, T any](
	ctx context.Context,
	s *session,
	kind, arg string,
	fn func(ctx context.Context, c C, id string) ([]T, error),
) error {
	backend, values, err := lookup(ctx, s, kind, arg, fn)
	if err != nil {
		return err
	}
	if s.flags.count > 0 && len(values) > s.flags.count {
		values = values[:s.flags.count]
	}
	records := make([]formatter.Record, len(values))
	for i, v := range values {
		records[i] = formatter.Record{Backend: backend, Value: v}
	}
	return s.print(ctx, kind, records, false)
}
