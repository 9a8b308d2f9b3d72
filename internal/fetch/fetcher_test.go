package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hybridseq/internal/cache"
	"github.com/roach88/hybridseq/internal/item"
	"github.com/roach88/hybridseq/internal/metrics"
)

var params = item.Params{"quest-1"}

func mkItems(prefix string, n int) []item.Item {
	items := make([]item.Item, n)
	for i := range items {
		items[i] = item.Item{
			ID:          fmt.Sprintf("%s%d", prefix, i),
			SequenceKey: "quest-1",
			OrderKey:    int64(i+1) * 1000,
		}
	}
	return items
}

// sliceQuery pages over a fixed slice and counts calls.
func sliceQuery(src item.Source, items []item.Item, pageSize int, calls *atomic.Int32) QueryFunc {
	return func(ctx context.Context, _ item.Params, cursor int) (item.Page, error) {
		if calls != nil {
			calls.Add(1)
		}
		start := cursor * pageSize
		if start > len(items) {
			start = len(items)
		}
		end := start + pageSize
		if end > len(items) {
			end = len(items)
		}
		batch := append([]item.Item(nil), items[start:end]...)
		return item.NewPage(src, batch, cursor, pageSize), nil
	}
}

func failingQuery(err error) QueryFunc {
	return func(context.Context, item.Params, int) (item.Page, error) {
		return item.Page{}, err
	}
}

func ids(items []item.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestRefresh_RemoteFailureKeepsLocal(t *testing.T) {
	f := New(
		sliceQuery(item.SourceLocal, mkItems("l", 5), 10, nil),
		failingQuery(errors.New("503 service unavailable")),
		params,
	)

	require.NoError(t, f.Refresh(context.Background()))

	st := f.State()
	assert.Len(t, st.Items, 5)
	assert.False(t, st.IsLoading)
	assert.NoError(t, st.LocalErr)
	assert.True(t, IsRemoteFetch(st.RemoteErr))
	assert.False(t, st.Fatal())
	assert.ErrorContains(t, st.Err(), "503")
}

func TestRefresh_LocalFailureIsFatal(t *testing.T) {
	f := New(
		failingQuery(errors.New("disk I/O error")),
		sliceQuery(item.SourceRemote, mkItems("r", 2), 10, nil),
		params,
	)

	err := f.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, IsLocalFetch(err))

	st := f.State()
	assert.True(t, st.Fatal())
	assert.Len(t, st.Items, 2, "remote data still resolves")
}

func TestRefresh_ResolvesLocalOverRemote(t *testing.T) {
	local := []item.Item{
		{ID: "1", OrderKey: 10, Payload: item.Payload{Name: "local-a"}},
		{ID: "2", OrderKey: 20, Payload: item.Payload{Name: "local-b"}},
	}
	remote := []item.Item{
		{ID: "2", OrderKey: 20, Payload: item.Payload{Name: "remote-b"}},
		{ID: "3", OrderKey: 30, Payload: item.Payload{Name: "remote-c"}},
	}
	f := New(
		sliceQuery(item.SourceLocal, local, 10, nil),
		sliceQuery(item.SourceRemote, remote, 10, nil),
		params,
	)
	require.NoError(t, f.Refresh(context.Background()))

	st := f.State()
	require.Len(t, st.Items, 3)
	assert.Equal(t, []string{"1", "2", "3"}, ids(st.Items))
	assert.Equal(t, "local-b", st.Items[1].Payload.Name)
	assert.Equal(t, item.SourceLocal, st.Items[1].Source)
	assert.Equal(t, item.SourceRemote, st.Items[2].Source)
}

func TestFetchNextPage_IndependentCursors(t *testing.T) {
	f := New(
		sliceQuery(item.SourceLocal, mkItems("l", 5), 2, nil),
		sliceQuery(item.SourceRemote, mkItems("r", 2), 2, nil),
		params,
	)
	ctx := context.Background()
	require.NoError(t, f.Refresh(ctx))

	assert.True(t, f.HasNextPage(item.SourceLocal))
	assert.True(t, f.HasNextPage(item.SourceRemote), "a full page may have more")

	require.NoError(t, f.FetchNextPage(ctx))
	assert.True(t, f.HasNextPage(item.SourceLocal))
	assert.False(t, f.HasNextPage(item.SourceRemote))

	require.NoError(t, f.FetchNextPage(ctx))
	assert.False(t, f.HasNextPage(item.SourceLocal))

	assert.Len(t, f.State().Items, 7)

	page, err := f.FetchPage(ctx, item.SourceLocal)
	require.NoError(t, err)
	assert.Empty(t, page.Items, "exhausted source returns the zero page")
}

func TestRefresh_KeepsLoadedPages(t *testing.T) {
	var mu sync.Mutex
	items := mkItems("l", 5)
	var calls atomic.Int32
	local := func(ctx context.Context, params item.Params, cursor int) (item.Page, error) {
		mu.Lock()
		defer mu.Unlock()
		return sliceQuery(item.SourceLocal, items, 2, &calls)(ctx, params, cursor)
	}
	f := New(local, nil, params)
	ctx := context.Background()

	require.NoError(t, f.Load(ctx))
	require.NoError(t, f.FetchNextPage(ctx))
	require.Len(t, f.State().Items, 4)
	assert.True(t, f.Partial(item.SourceLocal))

	calls.Store(0)
	require.NoError(t, f.Refresh(ctx))
	assert.Len(t, f.State().Items, 4, "refresh keeps both loaded pages")
	assert.Equal(t, int32(2), calls.Load())
	assert.True(t, f.HasNextPage(item.SourceLocal))

	require.NoError(t, f.FetchNextPage(ctx))
	require.Len(t, f.State().Items, 5)
	assert.False(t, f.Partial(item.SourceLocal))

	// A source read to the end is read to the end again, however long it
	// has grown.
	mu.Lock()
	items = mkItems("l", 8)
	mu.Unlock()
	require.NoError(t, f.Refresh(ctx))
	assert.Len(t, f.State().Items, 8)
	assert.False(t, f.HasNextPage(item.SourceLocal))
}

func TestRefresh_CoversLastLoadedItem(t *testing.T) {
	var mu sync.Mutex
	items := mkItems("l", 5)
	local := func(ctx context.Context, params item.Params, cursor int) (item.Page, error) {
		mu.Lock()
		defer mu.Unlock()
		return sliceQuery(item.SourceLocal, items, 2, nil)(ctx, params, cursor)
	}
	f := New(local, nil, params)
	ctx := context.Background()

	require.NoError(t, f.Load(ctx))
	require.NoError(t, f.FetchNextPage(ctx))
	require.Equal(t, []string{"l0", "l1", "l2", "l3"}, ids(f.State().Items))

	// An insert at the head pushes l3 onto the third page.
	mu.Lock()
	items = append([]item.Item{{ID: "x", OrderKey: 500}}, items...)
	mu.Unlock()

	require.NoError(t, f.Refresh(ctx))
	assert.Equal(t, []string{"x", "l0", "l1", "l2", "l3", "l4"}, ids(f.State().Items))

	// Deleting the last loaded items reads one page further, not to the end.
	mu.Lock()
	items = append(items[:4:4], mkItems("m", 6)...)
	mu.Unlock()

	require.NoError(t, f.Refresh(ctx))
	assert.Len(t, f.State().Items, 8)
	assert.True(t, f.HasNextPage(item.SourceLocal))
}

func TestRefresh_FailureKeepsLoadedPages(t *testing.T) {
	var fail atomic.Bool
	base := sliceQuery(item.SourceLocal, mkItems("l", 5), 2, nil)
	local := func(ctx context.Context, params item.Params, cursor int) (item.Page, error) {
		if fail.Load() && cursor > 0 {
			return item.Page{}, errors.New("disk I/O error")
		}
		return base(ctx, params, cursor)
	}
	f := New(local, nil, params)
	ctx := context.Background()

	require.NoError(t, f.Load(ctx))
	require.NoError(t, f.FetchNextPage(ctx))

	fail.Store(true)
	err := f.Refresh(ctx)
	require.Error(t, err)
	assert.True(t, IsLocalFetch(err))

	st := f.State()
	assert.True(t, st.Fatal())
	assert.Len(t, st.Items, 4, "a failed refetch does not replace pages halfway")
}

func TestPartial(t *testing.T) {
	f := New(
		sliceQuery(item.SourceLocal, mkItems("l", 3), 2, nil),
		sliceQuery(item.SourceRemote, mkItems("r", 1), 2, nil),
		params,
	)
	assert.False(t, f.Partial(item.SourceLocal), "nothing loaded yet")

	require.NoError(t, f.Load(context.Background()))
	assert.True(t, f.Partial(item.SourceLocal))
	assert.False(t, f.Partial(item.SourceRemote))
	assert.False(t, f.Partial(item.Source("other")))
}

func TestFetch_LastRequestWins(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	remote := func(ctx context.Context, _ item.Params, cursor int) (item.Page, error) {
		if calls.Add(1) == 1 {
			close(started)
			<-release
			return item.NewPage(item.SourceRemote, mkItems("old", 1), cursor, 10), nil
		}
		return item.NewPage(item.SourceRemote, mkItems("new", 1), cursor, 10), nil
	}

	f := New(sliceQuery(item.SourceLocal, nil, 10, nil), remote, params, WithMetrics(m))
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = f.Refresh(ctx)
	}()
	<-started

	require.NoError(t, f.Refresh(ctx))
	close(release)
	wg.Wait()

	assert.Equal(t, []string{"new0"}, ids(f.State().Items))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FetchDiscarded.WithLabelValues("remote")))
}

func TestLoad_ReadsThroughCache(t *testing.T) {
	c := cache.New()
	var localCalls, remoteCalls atomic.Int32
	newFetcher := func() *Fetcher {
		return New(
			sliceQuery(item.SourceLocal, mkItems("l", 2), 10, &localCalls),
			sliceQuery(item.SourceRemote, mkItems("r", 1), 10, &remoteCalls),
			params,
			WithCache(c),
		)
	}
	ctx := context.Background()

	require.NoError(t, newFetcher().Load(ctx))
	assert.Equal(t, int32(1), localCalls.Load())
	assert.Equal(t, int32(1), remoteCalls.Load())

	second := newFetcher()
	require.NoError(t, second.Load(ctx))
	assert.Equal(t, int32(1), localCalls.Load(), "second load served from cache")
	assert.Len(t, second.State().Items, 3)

	require.NoError(t, second.Refresh(ctx))
	assert.Equal(t, int32(2), localCalls.Load(), "refresh bypasses cache")
}

func TestFetch_InvalidationDuringFetchDropsCacheWrite(t *testing.T) {
	c := cache.New()
	local := func(ctx context.Context, _ item.Params, cursor int) (item.Page, error) {
		// A mutation lands while this read is in flight.
		c.Invalidate(DefaultDataType)
		return item.NewPage(item.SourceLocal, mkItems("l", 1), cursor, 10), nil
	}
	f := New(local, nil, params, WithCache(c))

	require.NoError(t, f.Refresh(context.Background()))

	_, ok := c.Get(f.CacheKey(item.SourceLocal))
	assert.False(t, ok, "pre-mutation page must not be cached")
	assert.Len(t, f.State().Items, 1)
}

func TestFetch_OfflineSkipsRemote(t *testing.T) {
	var remoteCalls atomic.Int32
	net := NewSwitch(false)
	f := New(
		sliceQuery(item.SourceLocal, mkItems("l", 2), 10, nil),
		sliceQuery(item.SourceRemote, mkItems("r", 2), 10, &remoteCalls),
		params,
		WithNetwork(net),
	)
	ctx := context.Background()

	require.NoError(t, f.Refresh(ctx))
	st := f.State()
	assert.False(t, st.IsOnline)
	assert.NoError(t, st.RemoteErr)
	assert.Len(t, st.Items, 2)
	assert.Zero(t, remoteCalls.Load())

	net.Set(true)
	require.NoError(t, f.Refresh(ctx))
	assert.Len(t, f.State().Items, 4)
}

func TestFetch_LazyRemoteWaitsForLocal(t *testing.T) {
	var mu sync.Mutex
	var order []item.Source
	record := func(src item.Source) QueryFunc {
		return func(ctx context.Context, _ item.Params, cursor int) (item.Page, error) {
			mu.Lock()
			order = append(order, src)
			mu.Unlock()
			return item.NewPage(src, nil, cursor, 10), nil
		}
	}
	f := New(record(item.SourceLocal), record(item.SourceRemote), params, WithLazyRemote(true))

	require.NoError(t, f.Refresh(context.Background()))
	assert.Equal(t, []item.Source{item.SourceLocal, item.SourceRemote}, order)
}

func TestFetch_LocalOnly(t *testing.T) {
	f := New(sliceQuery(item.SourceLocal, mkItems("l", 1), 10, nil), nil, params)
	require.NoError(t, f.Refresh(context.Background()))
	assert.False(t, f.HasNextPage(item.SourceRemote))
	assert.False(t, f.ApplyRemoteChange(Change{Kind: ChangeInsert, Item: item.Item{ID: "x"}}))
	assert.Len(t, f.State().Items, 1)
}

func TestApplyRemoteChange(t *testing.T) {
	c := cache.New()
	local := []item.Item{{ID: "shared", OrderKey: 1000, Payload: item.Payload{Name: "local"}}}
	f := New(
		sliceQuery(item.SourceLocal, local, 10, nil),
		sliceQuery(item.SourceRemote, nil, 10, nil),
		params,
		WithCache(c),
	)
	require.NoError(t, f.Refresh(context.Background()))

	assert.True(t, f.ApplyRemoteChange(Change{Kind: ChangeInsert, Item: item.Item{ID: "r1", OrderKey: 2000}}))
	assert.False(t, f.ApplyRemoteChange(Change{Kind: ChangeInsert, Item: item.Item{ID: "R1", OrderKey: 2000}}), "insert de-duplicates by normalized id")
	assert.True(t, f.ApplyRemoteChange(Change{Kind: ChangeInsert, Item: item.Item{ID: "shared", OrderKey: 1000, Payload: item.Payload{Name: "remote"}}}))
	assert.Equal(t, []string{"shared", "r1"}, ids(f.State().Items))
	assert.Equal(t, "local", f.State().Items[0].Payload.Name, "local still wins")

	assert.True(t, f.ApplyRemoteChange(Change{Kind: ChangeUpdate, Item: item.Item{ID: "r1", OrderKey: 500}}))
	assert.Equal(t, []string{"r1", "shared"}, ids(f.State().Items))
	assert.False(t, f.ApplyRemoteChange(Change{Kind: ChangeUpdate, Item: item.Item{ID: "ghost"}}))

	assert.True(t, f.ApplyRemoteChange(Change{Kind: ChangeDelete, Item: item.Item{ID: "shared"}}))
	assert.Equal(t, []string{"r1", "shared"}, ids(f.State().Items), "remote delete leaves the local copy")

	pages, ok := c.Get(f.CacheKey(item.SourceRemote))
	require.True(t, ok)
	assert.Equal(t, []string{"r1"}, ids(item.Flatten(pages)))
}
