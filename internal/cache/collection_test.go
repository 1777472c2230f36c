package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	name string
}

func countingFetch(calls *atomic.Int32, names ...string) FetchFunc[*item] {
	return func(context.Context) ([]*item, error) {
		calls.Add(1)
		out := make([]*item, 0, len(names))
		for _, name := range names {
			out = append(out, &item{name: name})
		}
		return out, nil
	}
}

func TestCollectionCachesUntilRefresh(t *testing.T) {
	var calls atomic.Int32
	c := New(countingFetch(&calls, "a", "b"))
	ctx := context.Background()

	first, err := c.Get(ctx, false)
	require.NoError(t, err)
	second, err := c.Get(ctx, false)
	require.NoError(t, err)

	require.Len(t, second, 2)
	assert.Same(t, first[0], second[0])
	assert.Same(t, first[1], second[1])
	assert.Equal(t, int32(1), calls.Load())

	refreshed, err := c.Get(ctx, true)
	require.NoError(t, err)
	assert.NotSame(t, first[0], refreshed[0])
	assert.Equal(t, first[0].name, refreshed[0].name)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCollectionDoesNotCacheErrors(t *testing.T) {
	boom := errors.New("boom")
	fail := true
	c := New(func(context.Context) ([]string, error) {
		if fail {
			return nil, boom
		}
		return []string{"ok"}, nil
	})

	_, err := c.Get(context.Background(), false)
	require.ErrorIs(t, err, boom)
	assert.False(t, c.Populated())

	fail = false
	items, err := c.Get(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, items)
}

func TestCollectionAppendOnlyWhenPopulated(t *testing.T) {
	var calls atomic.Int32
	c := New(countingFetch(&calls, "a"))

	assert.False(t, c.Append(&item{name: "early"}))
	assert.False(t, c.Populated())

	items, err := c.Get(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, items, 1)

	assert.True(t, c.Append(&item{name: "late"}))
	items, err = c.Get(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "late", items[1].name)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCollectionRemove(t *testing.T) {
	var calls atomic.Int32
	c := New(countingFetch(&calls, "a", "b", "c"))

	assert.Zero(t, c.Remove(func(*item) bool { return true }))

	_, err := c.Get(context.Background(), false)
	require.NoError(t, err)
	removed := c.Remove(func(i *item) bool { return i.name == "b" })
	assert.Equal(t, 1, removed)

	items, err := c.Get(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].name)
	assert.Equal(t, "c", items[1].name)
}

func TestCollectionConcurrentFillsShareFetch(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	c := New(func(context.Context) ([]int, error) {
		calls.Add(1)
		<-release
		return []int{1, 2, 3}, nil
	})

	const callers = 8
	var wg sync.WaitGroup
	started := make(chan struct{}, callers)
	results := make([][]int, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			started <- struct{}{}
			items, err := c.Get(context.Background(), false)
			assert.NoError(t, err)
			results[i] = items
		}(i)
	}
	for i := 0; i < callers; i++ {
		<-started
	}
	close(release)
	wg.Wait()

	for _, items := range results {
		assert.Equal(t, []int{1, 2, 3}, items)
	}
	assert.LessOrEqual(t, calls.Load(), int32(callers))
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
}

func TestCollectionResetDuringFillDiscardsResult(t *testing.T) {
	inFetch := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	c := New(func(context.Context) ([]int, error) {
		if calls.Add(1) == 1 {
			close(inFetch)
			<-release
			return []int{1}, nil
		}
		return []int{2}, nil
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.Get(context.Background(), false)
	}()
	<-inFetch
	c.Reset()
	close(release)
	<-done

	assert.False(t, c.Populated())
	items, err := c.Get(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, items)
}
