// Package fetch reads a sequence from two independently paginated sources,
// the local store and the cloud mirror, and exposes the resolved view.
//
// Each source keeps its own cursor, loading flag and error. A remote failure
// never hides local data; a local failure is fatal for the view. Every
// request bumps a per-source generation and a response that comes back with
// a stale generation is dropped, so the last request wins.
//
// Pages are read through the reconciliation cache on Load and written to it
// after every fetch. Writes use the cache epoch observed before the request
// started, so a page fetched before a mutation never lands after the
// mutation's invalidation.
package fetch

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/hybridseq/internal/cache"
	"github.com/roach88/hybridseq/internal/item"
	"github.com/roach88/hybridseq/internal/metrics"
	"github.com/roach88/hybridseq/internal/resolve"
)

// DefaultDataType names the cache partition used when none is configured.
const DefaultDataType = "items"

// QueryFunc reads one page of a source. cursor is a zero-based page number.
type QueryFunc func(ctx context.Context, params item.Params, cursor int) (item.Page, error)

// State is the UI-facing snapshot of a Fetcher.
type State struct {
	// Items is the resolved durable collection sorted by order key.
	Items []item.Item

	// Dropped counts items filtered for a missing ID.
	Dropped int

	IsLoading bool
	LocalErr  error
	RemoteErr error
	IsOnline  bool
}

// Fatal reports whether the view cannot be trusted. Only local failures are
// fatal.
func (s State) Fatal() bool {
	return s.LocalErr != nil
}

// Err returns the most significant error, local first.
func (s State) Err() error {
	if s.LocalErr != nil {
		return s.LocalErr
	}
	return s.RemoteErr
}

type sourceState struct {
	source  item.Source
	query   QueryFunc
	pages   []item.Page
	gen     uint64
	loading bool
	err     error
}

// Fetcher loads and paginates one Sequence query from both sources.
type Fetcher struct {
	params   item.Params
	dataType string
	network  Network
	cache    *cache.Cache
	lazy     bool
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu     sync.Mutex
	local  *sourceState
	remote *sourceState
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithDataType sets the cache partition for this query.
func WithDataType(dataType string) Option {
	return func(f *Fetcher) {
		if dataType != "" {
			f.dataType = dataType
		}
	}
}

// WithNetwork gates remote fetches on n.
func WithNetwork(n Network) Option {
	return func(f *Fetcher) {
		if n != nil {
			f.network = n
		}
	}
}

// WithCache shares c instead of a private cache.
func WithCache(c *cache.Cache) Option {
	return func(f *Fetcher) {
		if c != nil {
			f.cache = c
		}
	}
}

// WithLazyRemote defers the remote first page until the local one resolved.
func WithLazyRemote(lazy bool) Option {
	return func(f *Fetcher) {
		f.lazy = lazy
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithMetrics reports fetch errors and discarded responses to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Fetcher) {
		if m != nil {
			f.metrics = m
		}
	}
}

// New creates a Fetcher for params. remote may be nil for a local-only
// sequence.
func New(local, remote QueryFunc, params item.Params, opts ...Option) *Fetcher {
	f := &Fetcher{
		params:   append(item.Params(nil), params...),
		dataType: DefaultDataType,
		network:  AlwaysOnline,
		logger:   slog.Default(),
		local:    &sourceState{source: item.SourceLocal, query: local},
	}
	if remote != nil {
		f.remote = &sourceState{source: item.SourceRemote, query: remote}
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.cache == nil {
		f.cache = cache.New()
	}
	if f.metrics == nil {
		f.metrics = metrics.Discard()
	}
	return f
}

// Params returns the query parameters.
func (f *Fetcher) Params() item.Params {
	return f.params
}

// DataType returns the cache partition.
func (f *Fetcher) DataType() string {
	return f.dataType
}

// CacheKey returns the cache key for src.
func (f *Fetcher) CacheKey(src item.Source) cache.Key {
	return cache.Key{DataType: f.dataType, Source: src, Params: f.params}
}

// Load populates the first page of each source, preferring cached pages.
// Returns the local error, if any; remote failures surface through State.
func (f *Fetcher) Load(ctx context.Context) error {
	return f.first(ctx, true)
}

// Refresh refetches every page already loaded from each source, bypassing
// the cache, so a mutation never shrinks the view back to one page. A source
// that had been read to the end is read to the end again. Returns the local
// error, if any.
func (f *Fetcher) Refresh(ctx context.Context) error {
	return f.first(ctx, false)
}

func (f *Fetcher) first(ctx context.Context, useCache bool) error {
	load := func(s *sourceState) error {
		if useCache {
			if f.fromCache(s) {
				return nil
			}
			_, err := f.fetch(ctx, s, 0)
			return err
		}
		return f.refetch(ctx, s)
	}

	if f.remote == nil {
		return fatalOnly(load(f.local))
	}

	if f.lazy {
		err := load(f.local)
		_ = load(f.remote)
		return fatalOnly(err)
	}

	var g errgroup.Group
	g.Go(func() error { return fatalOnly(load(f.local)) })
	g.Go(func() error {
		_ = load(f.remote)
		return nil
	})
	return g.Wait()
}

// FetchNextPage advances every source that has another page, in parallel.
// Returns the local error, if any.
func (f *Fetcher) FetchNextPage(ctx context.Context) error {
	var g errgroup.Group
	for _, s := range f.sources() {
		if !f.HasNextPage(s.source) {
			continue
		}
		g.Go(func() error {
			_, err := f.FetchPage(ctx, s.source)
			if s.source == item.SourceRemote {
				return nil
			}
			return fatalOnly(err)
		})
	}
	return g.Wait()
}

// FetchPage loads the next page of src: page 0 when nothing is loaded, the
// last page's NextCursor otherwise. When src has no more pages it returns the
// zero Page and no error.
func (f *Fetcher) FetchPage(ctx context.Context, src item.Source) (item.Page, error) {
	s := f.source(src)
	if s == nil {
		return item.Page{}, nil
	}

	f.mu.Lock()
	cursor := 0
	if n := len(s.pages); n > 0 {
		last := s.pages[n-1]
		if !last.HasMore {
			f.mu.Unlock()
			return item.Page{}, nil
		}
		cursor = last.NextCursor
	}
	f.mu.Unlock()

	return f.fetch(ctx, s, cursor)
}

// HasNextPage reports whether src has a page after the last loaded one.
// A source with nothing loaded yet has a next page.
func (f *Fetcher) HasNextPage(src item.Source) bool {
	s := f.source(src)
	if s == nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(s.pages) == 0 {
		return true
	}
	return s.pages[len(s.pages)-1].HasMore
}

// Partial reports whether src has loaded pages and more after them, so the
// loaded items are only a prefix of the source.
func (f *Fetcher) Partial(src item.Source) bool {
	s := f.source(src)
	if s == nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(s.pages)
	return n > 0 && s.pages[n-1].HasMore
}

// ApplyRemoteChange patches the loaded remote pages with a realtime event
// and mirrors the patch into the cache. Changes for a Fetcher without a
// remote source are ignored.
func (f *Fetcher) ApplyRemoteChange(ch Change) bool {
	if f.remote == nil {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	pages, changed := patchPages(clonePages(f.remote.pages), ch)
	if !changed {
		return false
	}
	f.remote.pages = pages

	f.cache.Update(f.CacheKey(item.SourceRemote), func([]item.Page) []item.Page {
		return pages
	})
	f.logger.Debug("remote change applied",
		"params", f.params.String(),
		"kind", ch.Kind,
		"id", ch.Item.ID,
	)
	return true
}

// State returns a snapshot of the resolved view.
func (f *Fetcher) State() State {
	f.mu.Lock()
	local := clonePages(f.local.pages)
	var remote []item.Page
	st := State{
		IsLoading: f.local.loading,
		LocalErr:  f.local.err,
	}
	if f.remote != nil {
		remote = clonePages(f.remote.pages)
		st.IsLoading = st.IsLoading || f.remote.loading
		st.RemoteErr = f.remote.err
	}
	f.mu.Unlock()

	res := resolve.Resolve(local, remote)
	for _, dup := range res.Duplicates {
		f.logger.Debug("duplicate id collapsed", "source", dup.Source, "id", dup.ID)
	}
	item.SortByOrderKey(res.Items)

	st.Items = res.Items
	st.Dropped = res.Dropped
	st.IsOnline = f.network.Online()
	return st
}

func (f *Fetcher) fetch(ctx context.Context, s *sourceState, cursor int) (item.Page, error) {
	if s.source == item.SourceRemote && !f.network.Online() {
		f.logger.Debug("remote fetch skipped: offline", "params", f.params.String())
		return item.Page{}, ErrOffline
	}

	gen, epoch := f.begin(s)
	page, err := s.query(ctx, f.params, cursor)

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.superseded(s, gen, cursor) {
		return item.Page{}, ErrSuperseded
	}
	s.loading = false
	if err != nil {
		return item.Page{}, f.failed(s, cursor, err)
	}

	page = stamp(s.source, page, cursor)
	switch {
	case cursor == 0:
		s.pages = []item.Page{page}
	case cursor <= len(s.pages):
		s.pages = append(s.pages[:cursor:cursor], page)
	default:
		s.pages = append(s.pages, page)
	}
	f.loaded(s, epoch)
	return page, nil
}

// refetch reloads at least as many pages as s holds, or every page when s
// had been read to the end. It keeps going while an insert may have pushed
// the last loaded item onto an unloaded page: until that item is seen again
// or more items arrived than were loaded before. The pages replace the old
// ones in one step, and only if no newer request for s started meanwhile.
func (f *Fetcher) refetch(ctx context.Context, s *sourceState) error {
	if s.source == item.SourceRemote && !f.network.Online() {
		f.logger.Debug("remote fetch skipped: offline", "params", f.params.String())
		return ErrOffline
	}

	f.mu.Lock()
	want := max(len(s.pages), 1)
	exhausted := len(s.pages) > 0 && !s.pages[len(s.pages)-1].HasMore
	prev, lastKey := 0, ""
	for _, p := range s.pages {
		prev += len(p.Items)
		if n := len(p.Items); n > 0 {
			lastKey = p.Items[n-1].Key()
		}
	}
	f.mu.Unlock()

	gen, epoch := f.begin(s)

	var (
		pages   []item.Page
		cursor  int
		fetched int
		covered = lastKey == ""
		err     error
	)
	for {
		var page item.Page
		page, err = s.query(ctx, f.params, cursor)
		if err != nil {
			break
		}
		pages = append(pages, stamp(s.source, page, cursor))
		fetched += len(page.Items)
		if !covered && item.IndexOf(page.Items, lastKey) >= 0 {
			covered = true
		}
		if !page.HasMore {
			break
		}
		if !exhausted && len(pages) >= want && (covered || fetched > prev) {
			break
		}
		cursor = page.NextCursor
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.superseded(s, gen, cursor) {
		return ErrSuperseded
	}
	s.loading = false
	if err != nil {
		return f.failed(s, cursor, err)
	}

	s.pages = pages
	f.loaded(s, epoch)
	f.logger.Debug("pages refetched", "source", s.source, "params", f.params.String(), "pages", len(pages))
	return nil
}

// begin starts a request on s and returns its generation and the cache
// epoch observed before it.
func (f *Fetcher) begin(s *sourceState) (uint64, uint64) {
	f.mu.Lock()
	s.gen++
	gen := s.gen
	s.loading = true
	f.mu.Unlock()
	return gen, f.cache.Epoch(f.dataType)
}

// superseded reports whether a newer request on s started after gen.
// Caller holds f.mu.
func (f *Fetcher) superseded(s *sourceState, gen uint64, cursor int) bool {
	if gen == s.gen {
		return false
	}
	f.metrics.FetchDiscarded.WithLabelValues(string(s.source)).Inc()
	f.logger.Debug("stale page discarded",
		"source", s.source,
		"params", f.params.String(),
		"cursor", cursor,
	)
	return true
}

// failed records a query error on s. Caller holds f.mu.
func (f *Fetcher) failed(s *sourceState, cursor int, err error) error {
	s.err = wrapFetchError(s.source, f.params, cursor, err)
	f.metrics.FetchErrors.WithLabelValues(string(s.source)).Inc()
	if s.source == item.SourceRemote {
		f.logger.Warn("remote fetch failed", "params", f.params.String(), "cursor", cursor, "error", err)
	} else {
		f.logger.Error("local fetch failed", "params", f.params.String(), "cursor", cursor, "error", err)
	}
	return s.err
}

// loaded clears the error of s and caches its pages unless the partition
// was invalidated since epoch. Caller holds f.mu.
func (f *Fetcher) loaded(s *sourceState, epoch uint64) {
	s.err = nil
	if !f.cache.PutIfCurrent(f.CacheKey(s.source), s.pages, epoch) {
		f.logger.Debug("cache write skipped: invalidated during fetch",
			"source", s.source,
			"params", f.params.String(),
		)
	}
}

func stamp(src item.Source, page item.Page, cursor int) item.Page {
	page.Source = src
	page.Cursor = cursor
	for i := range page.Items {
		page.Items[i].Source = src
	}
	return page
}

func (f *Fetcher) fromCache(s *sourceState) bool {
	pages, ok := f.cache.Get(f.CacheKey(s.source))
	if !ok {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s.gen++
	s.pages = pages
	s.loading = false
	s.err = nil
	return true
}

func (f *Fetcher) source(src item.Source) *sourceState {
	switch src {
	case item.SourceLocal:
		return f.local
	case item.SourceRemote:
		return f.remote
	}
	return nil
}

func (f *Fetcher) sources() []*sourceState {
	if f.remote == nil {
		return []*sourceState{f.local}
	}
	return []*sourceState{f.local, f.remote}
}

// fatalOnly passes through errors that should fail a load. A superseded
// request is not a failure; a newer one owns the outcome.
func fatalOnly(err error) error {
	if err == nil || errors.Is(err, ErrSuperseded) {
		return nil
	}
	return err
}

func clonePages(pages []item.Page) []item.Page {
	if pages == nil {
		return nil
	}
	out := make([]item.Page, len(pages))
	for i, p := range pages {
		p.Items = append([]item.Item(nil), p.Items...)
		out[i] = p
	}
	return out
}
