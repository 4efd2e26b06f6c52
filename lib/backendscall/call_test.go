package backendscall

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"outweb/lib/backends"
	"outweb/lib/capabilities/base"

	"github.com/bxcodec/faker/v4"
	"github.com/stretchr/testify/require"
)

type lister interface {
	List(ctx context.Context) ([]string, error)
}

type fakeLister struct {
	items []string
	err   error
	delay time.Duration
	panic bool
}

func (f fakeLister) List(ctx context.Context) ([]string, error) {
	if f.panic {
		panic("boom")
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.items, f.err
}

func fakeItems(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = faker.Word()
	}
	return out
}

func listAll(ctx context.Context, _ string, l lister) ([]string, error) {
	return l.List(ctx)
}

func TestDoMergesResults(t *testing.T) {
	a := fakeItems(3)
	b := fakeItems(2)
	list := []backends.Backend{
		{Name: "a", Impl: fakeLister{items: a}},
		{Name: "b", Impl: fakeLister{items: b}},
		{Name: "not-a-lister", Impl: struct{}{}},
	}

	call := Do(context.Background(), list, listAll)
	results, err := Collect(call)
	require.NoError(t, err)
	require.Equal(t, 2, call.Ran())

	got := map[string][]string{}
	for _, res := range results {
		got[res.Backend] = append(got[res.Backend], res.Value)
	}
	require.Equal(t, a, got["a"])
	require.Equal(t, b, got["b"])
}

func TestDoErrors(t *testing.T) {
	errBroken := errors.New("broken")
	list := []backends.Backend{
		{Name: "ok", Impl: fakeLister{items: []string{"x"}}},
		{Name: "z-broken", Impl: fakeLister{items: []string{"partial"}, err: errBroken}},
		{Name: "missing", Impl: fakeLister{err: base.ErrNotFound}},
		{Name: "panics", Impl: fakeLister{panic: true}},
	}

	call := Do(context.Background(), list, listAll)
	results, err := Collect(call)
	require.Len(t, results, 2)
	require.False(t, call.AllFailed())

	var callErrs CallErrors
	require.ErrorAs(t, err, &callErrs)
	require.Len(t, callErrs, 3)
	require.Equal(t, "missing", callErrs[0].Backend)
	require.Equal(t, "panics", callErrs[1].Backend)
	require.Equal(t, "z-broken", callErrs[2].Backend)
	require.ErrorIs(t, err, errBroken)
	require.ErrorIs(t, err, base.ErrNotFound)
	require.ErrorContains(t, callErrs[1], "panic: boom")
}

func TestDoAllFailed(t *testing.T) {
	list := []backends.Backend{
		{Name: "a", Impl: fakeLister{err: errors.New("a")}},
		{Name: "b", Impl: fakeLister{err: errors.New("b")}},
	}
	call := Do(context.Background(), list, listAll)
	_, err := Collect(call)
	require.Error(t, err)
	require.True(t, call.AllFailed())
}

func TestDoAllFailedWhileReading(t *testing.T) {
	list := []backends.Backend{
		{Name: "a", Impl: fakeLister{items: fakeItems(3)}},
		{Name: "b", Impl: fakeLister{items: fakeItems(3)}},
		{Name: "c", Impl: fakeLister{err: errors.New("c")}},
	}
	call := Do(context.Background(), list, listAll, WithLimit[string](4))

	done := make(chan int)
	go func() {
		n := 0
		for range call.Results() {
			if !call.AllFailed() {
				n++
			}
		}
		done <- n
	}()

	select {
	case n := <-done:
		require.Equal(t, 4, n)
	case <-time.After(5 * time.Second):
		t.Fatal("reading results blocked")
	}
	require.Error(t, call.Wait())
	require.False(t, call.AllFailed())
}

func TestDoCondition(t *testing.T) {
	list := []backends.Backend{
		{Name: "a", Impl: fakeLister{items: []string{"apple", "banana", "avocado"}}},
	}
	results, err := Collect(Do(context.Background(), list, listAll, WithCondition(func(s string) bool {
		return s[0] == 'a'
	})))
	require.NoError(t, err)
	var values []string
	for _, res := range results {
		values = append(values, res.Value)
	}
	require.Equal(t, []string{"apple", "avocado"}, values)
}

func TestDoLimitCancelsOthers(t *testing.T) {
	list := []backends.Backend{
		{Name: "fast", Impl: fakeLister{items: fakeItems(5)}},
		{Name: "slow", Impl: fakeLister{items: fakeItems(5), delay: time.Minute}},
	}

	start := time.Now()
	results, err := Collect(Do(context.Background(), list, listAll, WithLimit[string](3)))
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, res := range results {
		require.Equal(t, "fast", res.Backend)
	}
	require.Less(t, time.Since(start), time.Second*10)
}

func TestDoTimeout(t *testing.T) {
	list := []backends.Backend{
		{Name: "slow", Impl: fakeLister{delay: time.Minute}},
		{Name: "fast", Impl: fakeLister{items: []string{"x"}}},
	}
	results, err := Collect(Do(context.Background(), list, listAll, WithTimeout[string](time.Millisecond*20)))
	require.Len(t, results, 1)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

type countingLister struct {
	running *atomic.Int32
	peak    *atomic.Int32
}

func (c countingLister) List(ctx context.Context) ([]string, error) {
	n := c.running.Add(1)
	defer c.running.Add(-1)
	for {
		current := c.peak.Load()
		if n <= current || c.peak.CompareAndSwap(current, n) {
			break
		}
	}
	time.Sleep(time.Millisecond * 10)
	return []string{"x"}, nil
}

func TestDoMaxConcurrency(t *testing.T) {
	var running, peak atomic.Int32
	var list []backends.Backend
	for i := 0; i < 8; i++ {
		list = append(list, backends.Backend{
			Name: fmt.Sprint(i),
			Impl: countingLister{running: &running, peak: &peak},
		})
	}

	results, err := Collect(Do(context.Background(), list, listAll, WithMaxConcurrency[string](2)))
	require.NoError(t, err)
	require.Len(t, results, 8)
	require.LessOrEqual(t, peak.Load(), int32(2))
}

func TestDoOne(t *testing.T) {
	list := []backends.Backend{
		{Name: "a", Impl: fakeLister{items: []string{"1", "2"}}},
		{Name: "plain", Impl: struct{}{}},
	}
	first := func(ctx context.Context, l lister) (string, error) {
		items, err := l.List(ctx)
		if err != nil {
			return "", err
		}
		sort.Strings(items)
		return items[0], nil
	}

	v, err := DoOne(context.Background(), list, "a", first)
	require.NoError(t, err)
	require.Equal(t, "1", v)

	_, err = DoOne(context.Background(), list, "plain", first)
	require.ErrorIs(t, err, base.ErrNotSupported)

	_, err = DoOne(context.Background(), list, "nope", first)
	require.ErrorIs(t, err, ErrUnknownBackend)
}
