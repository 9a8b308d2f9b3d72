package sequence

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roach88/hybridseq/internal/cache"
	"github.com/roach88/hybridseq/internal/cursor"
	"github.com/roach88/hybridseq/internal/fetch"
	"github.com/roach88/hybridseq/internal/ids"
	"github.com/roach88/hybridseq/internal/item"
	"github.com/roach88/hybridseq/internal/metrics"
	"github.com/roach88/hybridseq/internal/pending"
	"github.com/roach88/hybridseq/internal/reindex"
	"github.com/roach88/hybridseq/internal/resolve"
)

// Writer is the durable store behind a Sequence. InsertAt and Move take an
// index into the store's own ordering of the sequence.
type Writer interface {
	reindex.Writer
	Delete(ctx context.Context, id string) (item.Item, error)
	Move(ctx context.Context, sequenceKey, id string, toIndex int) (int64, error)
	Rename(ctx context.Context, id, name string) error
}

// Deps are the collaborators of a Sequence. Local and Writer are required.
type Deps struct {
	Local   fetch.QueryFunc
	Remote  fetch.QueryFunc
	Writer  Writer
	Network fetch.Network
	Cache   *cache.Cache
	IDs     ids.Generator
	Clock   ids.Clock
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

type options struct {
	stride      int64
	maxAttempts int
	dataType    string
	lazyRemote  bool
}

// Option configures a Sequence.
type Option func(*options)

// WithStride sets the order-key spacing for optimistic placement. It should
// match the store's stride.
func WithStride(stride int64) Option {
	return func(o *options) {
		if stride > 0 {
			o.stride = stride
		}
	}
}

// WithMaxAttempts bounds write-conflict retries per insert.
func WithMaxAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithDataType sets the cache partition invalidated by mutations.
func WithDataType(dataType string) Option {
	return func(o *options) {
		if dataType != "" {
			o.dataType = dataType
		}
	}
}

// WithLazyRemote defers remote loading until the local page resolved.
func WithLazyRemote(lazy bool) Option {
	return func(o *options) {
		o.lazyRemote = lazy
	}
}

// State is the UI-facing snapshot of a Sequence.
type State struct {
	Items     []item.Item
	Pending   []pending.Entry
	IsLoading bool
	Err       error
	LocalErr  error
	RemoteErr error
	IsOnline  bool
	Cursor    int
}

// Sequence is the engine instance for one ordered list view.
type Sequence struct {
	key      string
	params   item.Params
	dataType string
	stride   int64

	fetcher   *fetch.Fetcher
	pending   *pending.Set
	cursor    *cursor.Cursor
	writer    Writer
	reindexer *reindex.Reindexer
	cache     *cache.Cache
	queue     *mutationQueue

	ids     ids.Generator
	clock   ids.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics

	// planMu makes view-read + plan + entry creation atomic.
	planMu sync.Mutex
}

// New creates a Sequence for key. params identify the query; when empty
// they default to {key}.
func New(key string, params item.Params, deps Deps, opts ...Option) *Sequence {
	o := options{
		stride:      reindex.DefaultStride,
		maxAttempts: reindex.DefaultMaxAttempts,
		dataType:    fetch.DefaultDataType,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if len(params) == 0 {
		params = item.Params{key}
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("sequence", key)

	m := deps.Metrics
	if m == nil {
		m = metrics.Discard()
	}
	c := deps.Cache
	if c == nil {
		c = cache.New(cache.WithMetrics(m))
	}
	gen := deps.IDs
	if gen == nil {
		gen = ids.UUIDv7Generator{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = ids.SystemClock{}
	}

	s := &Sequence{
		key:      key,
		params:   params,
		dataType: o.dataType,
		stride:   o.stride,
		pending:  pending.NewSet(pending.WithLogger(logger), pending.WithMetrics(m)),
		cursor:   cursor.New(),
		writer:   deps.Writer,
		cache:    c,
		queue:    newMutationQueue(),
		ids:      gen,
		clock:    clock,
		logger:   logger,
		metrics:  m,
	}
	s.fetcher = fetch.New(deps.Local, deps.Remote, params,
		fetch.WithDataType(o.dataType),
		fetch.WithNetwork(deps.Network),
		fetch.WithCache(c),
		fetch.WithLazyRemote(o.lazyRemote),
		fetch.WithLogger(logger),
		fetch.WithMetrics(m),
	)
	s.reindexer = reindex.New(deps.Writer,
		reindex.WithMaxAttempts(o.maxAttempts),
		reindex.WithLogger(logger),
		reindex.WithMetrics(m),
	)
	return s
}

// Key returns the sequence key.
func (s *Sequence) Key() string {
	return s.key
}

// Load fills the first page of each source, using cached pages when present.
func (s *Sequence) Load(ctx context.Context) error {
	err := s.fetcher.Load(ctx)
	s.settle()
	return err
}

// Refresh refetches the first page of each source.
func (s *Sequence) Refresh(ctx context.Context) error {
	err := s.fetcher.Refresh(ctx)
	s.settle()
	return err
}

// FetchNextPage loads the next page of every source that has one.
func (s *Sequence) FetchNextPage(ctx context.Context) error {
	err := s.fetcher.FetchNextPage(ctx)
	s.settle()
	return err
}

// HasNextPage reports whether any source has more pages.
func (s *Sequence) HasNextPage() bool {
	return s.fetcher.HasNextPage(item.SourceLocal) || s.fetcher.HasNextPage(item.SourceRemote)
}

// ApplyRemoteChange feeds a realtime change from the cloud mirror.
func (s *Sequence) ApplyRemoteChange(ch fetch.Change) {
	if s.fetcher.ApplyRemoteChange(ch) {
		s.settle()
	}
}

// Items returns the rendered view: resolved durable items with optimistic
// entries overlaid, sorted by order key.
func (s *Sequence) Items() []item.Item {
	return s.render(s.fetcher.State())
}

// State returns the rendered view with loading and error flags.
func (s *Sequence) State() State {
	fs := s.fetcher.State()
	items := s.render(fs)
	s.cursor.ClampTo(len(items))
	return State{
		Items:     items,
		Pending:   s.pending.Entries(),
		IsLoading: fs.IsLoading,
		Err:       fs.Err(),
		LocalErr:  fs.LocalErr,
		RemoteErr: fs.RemoteErr,
		IsOnline:  fs.IsOnline,
		Cursor:    s.cursor.Get(),
	}
}

// Pending returns the entry for id, if one is pending.
func (s *Sequence) Pending(id string) (pending.Entry, bool) {
	return s.pending.Get(id)
}

// Cursor returns the insertion cursor, clamped to the rendered length.
func (s *Sequence) Cursor() int {
	s.cursor.ClampTo(len(s.Items()))
	return s.cursor.Get()
}

// SetCursor moves the insertion cursor, clamped to the rendered length.
func (s *Sequence) SetCursor(i int) {
	s.cursor.ClampTo(len(s.Items()))
	s.cursor.Set(i)
}

func (s *Sequence) render(fs fetch.State) []item.Item {
	s.reconcile(fs.Items)
	return s.pending.Overlay(fs.Items)
}

// reconcile retires pending entries whose ID a durable source now returns.
func (s *Sequence) reconcile(durable []item.Item) {
	_, retired := resolve.Reconcile(s.pending.Visible(), durable)
	if len(retired) == 0 {
		return
	}
	s.pending.Observe(retired)
	s.logger.Debug("optimistic entries retired", "ids", retired)
}

// settle reconciles after new pages and re-clamps the cursor.
func (s *Sequence) settle() {
	s.cursor.ClampTo(len(s.Items()))
}

// durableIndex converts the rendered position of id into an index in the
// store's ordering: the number of rendered items before it that the store
// already holds.
func (s *Sequence) durableIndex(view []item.Item, pos int) int {
	committed := make(map[string]bool)
	for _, e := range s.pending.Entries() {
		if e.Status == pending.Committed {
			committed[e.Item.Key()] = true
		}
	}

	n := 0
	for _, it := range view[:pos] {
		switch {
		case it.Source == item.SourceLocal:
			n++
		case it.Source == item.SourceOptimistic && committed[it.Key()]:
			n++
		}
	}
	return n
}

// invalidate clears the cache partition and refetches both sources so the
// next read and the next mutation see post-mutation data.
func (s *Sequence) invalidate(ctx context.Context) {
	n := s.cache.Invalidate(s.dataType)
	s.logger.Debug("cache invalidated", "data_type", s.dataType, "entries", n)
	if err := s.fetcher.Refresh(ctx); err != nil {
		s.logger.Warn("refresh after mutation failed", "error", err)
	}
	s.settle()
}
