// Package reindex places new items into a durably stored ordered sequence.
//
// The algorithm runs inside one transaction of the backing store: read the
// sequence's keys, shift every key at or after the insertion point when no
// gap is left, then write the new item with the vacated key. A partial shift
// is never visible; the store's transaction either commits all of it or
// none.
//
// PlanInsert is the pure part and is shared with the sequence engine, which
// uses it to place optimistic entries before the write lands. Reindexer adds
// bounded retry on WriteConflictError around a Writer.
package reindex

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/hybridseq/internal/item"
	"github.com/roach88/hybridseq/internal/metrics"
)

// DefaultMaxAttempts bounds retries on write conflicts.
const DefaultMaxAttempts = 3

// Writer is the transactional insert primitive. index is a position in the
// store's own view of the sequence. it.OrderKey is ignored unless PreferKey
// is passed. The returned key is the committed order key of it.
type Writer interface {
	InsertAt(ctx context.Context, sequenceKey string, index int, it item.Item, opts ...InsertOption) (int64, error)
}

// WriterFunc adapts a function to Writer.
type WriterFunc func(ctx context.Context, sequenceKey string, index int, it item.Item, opts ...InsertOption) (int64, error)

// InsertAt implements Writer.
func (f WriterFunc) InsertAt(ctx context.Context, sequenceKey string, index int, it item.Item, opts ...InsertOption) (int64, error) {
	return f(ctx, sequenceKey, index, it, opts...)
}

// InsertOptions are the resolved options of one InsertAt call.
type InsertOptions struct {
	// Preferred is kept when HasPreferred and it fits at the index.
	Preferred    int64
	HasPreferred bool
}

// InsertOption adjusts one InsertAt call.
type InsertOption func(*InsertOptions)

// PreferKey asks the writer to keep key when it still sorts between the
// neighbours at the insert index.
func PreferKey(key int64) InsertOption {
	return func(o *InsertOptions) {
		o.Preferred = key
		o.HasPreferred = true
	}
}

// ResolveInsertOptions applies opts in order.
func ResolveInsertOptions(opts []InsertOption) InsertOptions {
	var o InsertOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Reindexer retries conflicting inserts.
type Reindexer struct {
	writer      Writer
	maxAttempts int
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// Option configures a Reindexer.
type Option func(*Reindexer)

// WithMaxAttempts sets the total number of attempts, including the first.
func WithMaxAttempts(n int) Option {
	return func(r *Reindexer) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reindexer) {
		r.logger = l
	}
}

// WithMetrics reports attempts and conflicts to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reindexer) {
		r.metrics = m
	}
}

// New creates a Reindexer over w.
func New(w Writer, opts ...Option) *Reindexer {
	r := &Reindexer{
		writer:      w,
		maxAttempts: DefaultMaxAttempts,
		logger:      slog.Default(),
		metrics:     metrics.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// InsertAt writes it at index, retrying write conflicts up to the attempt
// limit. Each retry re-reads the store, so it runs against a fresh
// snapshot. Any other error is returned immediately.
//
// Once started, an attempt runs to completion; ctx is consulted only
// between attempts.
func (r *Reindexer) InsertAt(ctx context.Context, sequenceKey string, index int, it item.Item, opts ...InsertOption) (int64, error) {
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := ctx.Err(); err != nil {
				return 0, fmt.Errorf("reindex insert: %w", err)
			}
		}

		r.metrics.WriteAttempts.Inc()
		key, err := r.writer.InsertAt(context.WithoutCancel(ctx), sequenceKey, index, it, opts...)
		if err == nil {
			return key, nil
		}
		if !IsWriteConflict(err) {
			return 0, fmt.Errorf("reindex insert: %w", err)
		}

		r.metrics.WriteConflicts.Inc()
		r.logger.Warn("write conflict, retrying with fresh snapshot",
			"sequence", sequenceKey,
			"id", it.ID,
			"attempt", attempt,
			"max_attempts", r.maxAttempts,
			"error", err,
		)
		lastErr = err
	}

	return 0, fmt.Errorf("reindex insert: %w after %d attempts: %w", ErrRetriesExhausted, r.maxAttempts, lastErr)
}
