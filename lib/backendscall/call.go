// Package backendscall runs one capability method on many backends at once
// and merges what they return.
package backendscall

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"outweb/lib/backends"
	"outweb/lib/capabilities/base"

	"golang.org/x/sync/semaphore"
)

var ErrUnknownBackend = errors.New("unknown backend")

type Result[T any] struct {
	Backend string
	Value   T
}

type BackendError struct {
	Backend string
	Err     error
}

func (e BackendError) Error() string {
	return fmt.Sprintf("%s: %v", e.Backend, e.Err)
}

func (e BackendError) Unwrap() error {
	return e.Err
}

// CallErrors holds the errors of every failed backend, sorted by backend.
type CallErrors []BackendError

func (e CallErrors) Error() string {
	lines := make([]string, len(e))
	for i, err := range e {
		lines[i] = err.Error()
	}
	return strings.Join(lines, "\n")
}

func (e CallErrors) Unwrap() []error {
	out := make([]error, len(e))
	for i, err := range e {
		out[i] = err
	}
	return out
}

type config[T any] struct {
	maxConcurrency int
	condition      func(T) bool
	limit          int
	timeout        time.Duration
}

type Option[T any] func(cfg *config[T])

// WithMaxConcurrency bounds how many backends run at the same time.
func WithMaxConcurrency[T any](n int) Option[T] {
	return func(cfg *config[T]) {
		cfg.maxConcurrency = n
	}
}

// WithCondition drops results for which keep returns false.
func WithCondition[T any](keep func(T) bool) Option[T] {
	return func(cfg *config[T]) {
		cfg.condition = keep
	}
}

// WithLimit stops the call after n results, backends still running are
// cancelled.
func WithLimit[T any](n int) Option[T] {
	return func(cfg *config[T]) {
		cfg.limit = n
	}
}

// WithTimeout gives every backend its own deadline.
func WithTimeout[T any](d time.Duration) Option[T] {
	return func(cfg *config[T]) {
		cfg.timeout = d
	}
}

type Call[T any] struct {
	results chan Result[T]
	done    chan struct{}
	ran     int

	lock    sync.Mutex
	count   int
	limited bool
	errs    CallErrors
}

// Results streams results in arrival order. It is closed once every backend
// has returned.
func (c *Call[T]) Results() <-chan Result[T] {
	return c.results
}

// Ran is the number of backends the call was made on.
func (c *Call[T]) Ran() int {
	return c.ran
}

// Wait blocks until every backend has returned and returns their errors as
// CallErrors, or nil. Results not read by then are discarded.
func (c *Call[T]) Wait() error {
	for range c.results {
	}
	<-c.done

	c.lock.Lock()
	defer c.lock.Unlock()
	if len(c.errs) == 0 {
		return nil
	}
	sort.SliceStable(c.errs, func(i, j int) bool {
		return c.errs[i].Backend < c.errs[j].Backend
	})
	return c.errs
}

// AllFailed reports whether every backend of a finished call failed.
func (c *Call[T]) AllFailed() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.ran > 0 && len(c.errs) == c.ran
}

func (c *Call[T]) fail(backend string, err error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.errs = append(c.errs, BackendError{Backend: backend, Err: err})
}

// emit sends res unless the limit was reached, it returns false when the
// backend should stop emitting. The send happens outside of the lock so that
// consumers may call AllFailed while reading.
func (c *Call[T]) emit(res Result[T], limit int, cancel context.CancelFunc) bool {
	c.lock.Lock()
	if c.limited {
		c.lock.Unlock()
		return false
	}
	c.count++
	last := limit > 0 && c.count >= limit
	if last {
		c.limited = true
		cancel()
	}
	c.lock.Unlock()

	c.results <- res
	return !last
}

func (c *Call[T]) isLimited() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.limited
}

func protect[T any](fn func() ([]T, error)) (values []T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn()
}

// Do calls fn on every backend implementing C, concurrently.
func Do[C, T any](
	ctx context.Context,
	list []backends.Backend,
	fn func(ctx context.Context, name string, c C) ([]T, error),
	opts ...Option[T],
) *Call[T] {
	var cfg config[T]
	for _, opt := range opts {
		opt(&cfg)
	}

	targets := backends.Filter[C](list)
	call := &Call[T]{
		results: make(chan Result[T]),
		done:    make(chan struct{}),
		ran:     len(targets),
	}

	ctx, cancel := context.WithCancel(ctx)

	var sem *semaphore.Weighted
	if cfg.maxConcurrency > 0 {
		sem = semaphore.NewWeighted(int64(cfg.maxConcurrency))
	}

	wg := sync.WaitGroup{}
	for _, b := range targets {
		wg.Add(1)
		go func(b backends.Backend) {
			defer wg.Done()

			if sem != nil {
				err := sem.Acquire(ctx, 1)
				if err != nil {
					if !call.isLimited() {
						call.fail(b.Name, err)
					}
					return
				}
				defer sem.Release(1)
			}

			bctx := ctx
			if cfg.timeout > 0 {
				var bcancel context.CancelFunc
				bctx, bcancel = context.WithTimeout(ctx, cfg.timeout)
				defer bcancel()
			}

			values, err := protect(func() ([]T, error) {
				return fn(bctx, b.Name, b.Impl.(C))
			})
			for _, v := range values {
				if cfg.condition != nil && !cfg.condition(v) {
					continue
				}
				if !call.emit(Result[T]{Backend: b.Name, Value: v}, cfg.limit, cancel) {
					break
				}
			}
			if err != nil {
				if call.isLimited() && errors.Is(err, context.Canceled) {
					return
				}
				call.fail(b.Name, err)
			}
		}(b)
	}

	go func() {
		wg.Wait()
		cancel()
		close(call.results)
		close(call.done)
	}()

	return call
}

// Collect drains call and waits for it.
func Collect[T any](call *Call[T]) ([]Result[T], error) {
	var out []Result[T]
	for res := range call.Results() {
		out = append(out, res)
	}
	return out, call.Wait()
}

// DoOne calls fn on the backend called name, for lookups of an `id@backend`.
func DoOne[C, T any](
	ctx context.Context,
	list []backends.Backend,
	name string,
	fn func(ctx context.Context, c C) (T, error),
) (out T, err error) {
	for _, b := range list {
		if b.Name != name {
			continue
		}
		impl, ok := b.Impl.(C)
		if !ok {
			return out, fmt.Errorf("%s: %w", name, base.ErrNotSupported)
		}
		values, err := protect(func() ([]T, error) {
			v, err := fn(ctx, impl)
			return []T{v}, err
		})
		if err != nil {
			return out, BackendError{Backend: name, Err: err}
		}
		return values[0], nil
	}
	return out, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
}
