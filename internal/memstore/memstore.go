// Package memstore is an in-memory sequence store that stands in for the
// cloud mirror in tests and scenario runs. It can also back a Sequence as
// its local writer when SQLite is not wanted.
//
// Rows are held in the cloud row shape (item.RemoteRecord) and converted at
// the boundary, the same way a real remote client would. Every write emits a
// realtime change to subscribers, and reads and writes can be made to fail
// on demand.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/hybridseq/internal/fetch"
	"github.com/roach88/hybridseq/internal/item"
	"github.com/roach88/hybridseq/internal/reindex"
)

// Store is safe for concurrent use.
type Store struct {
	mu        sync.Mutex
	rows      map[string]item.RemoteRecord
	stride    int64
	failReads error
	failWrite []error
	subs      map[int]func(fetch.Change)
	nextSub   int
}

// Option configures a Store.
type Option func(*Store)

// WithStride sets the order-key spacing used by InsertAt and Move.
func WithStride(stride int64) Option {
	return func(s *Store) {
		if stride > 0 {
			s.stride = stride
		}
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		rows:   make(map[string]item.RemoteRecord),
		stride: reindex.DefaultStride,
		subs:   make(map[int]func(fetch.Change)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers fn for realtime changes. The returned func removes it.
// fn runs on the writing goroutine after the store lock is released.
func (s *Store) Subscribe(fn func(fetch.Change)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// FailReads makes every query fail with err until called with nil.
func (s *Store) FailReads(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failReads = err
}

// FailNextWrite makes the next write fail with err without changing any row.
// Calls queue up.
func (s *Store) FailNextWrite(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrite = append(s.failWrite, err)
}

// Put writes it with its own order key, replacing any row with the same ID.
func (s *Store) Put(it item.Item) {
	s.mu.Lock()
	_, existed := s.rows[it.ID]
	s.rows[it.ID] = item.ToRemote(it)
	subs := s.subscribers()
	s.mu.Unlock()

	kind := fetch.ChangeInsert
	if existed {
		kind = fetch.ChangeUpdate
	}
	notify(subs, fetch.Change{Kind: kind, Item: it.WithSource(item.SourceRemote)})
}

// Remove deletes a row and reports whether it existed.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	rec, ok := s.rows[id]
	delete(s.rows, id)
	subs := s.subscribers()
	s.mu.Unlock()

	if ok {
		notify(subs, fetch.Change{Kind: fetch.ChangeDelete, Item: item.FromRemote(rec)})
	}
	return ok
}

// Items returns a sequence in order.
func (s *Store) Items(sequenceKey string) []item.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sequence(sequenceKey)
}

// Query returns a page reader over the store. The first query parameter is
// the sequence key.
func (s *Store) Query(pageSize int) fetch.QueryFunc {
	return func(ctx context.Context, params item.Params, cursor int) (item.Page, error) {
		if err := ctx.Err(); err != nil {
			return item.Page{}, err
		}
		if len(params) == 0 {
			return item.Page{}, fmt.Errorf("memstore query: missing sequence key parameter")
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.failReads != nil {
			return item.Page{}, s.failReads
		}

		all := s.sequence(params[0])
		start, end := 0, len(all)
		if pageSize > 0 {
			start = cursor * pageSize
			if start > len(all) {
				start = len(all)
			}
			end = start + pageSize
			if end > len(all) {
				end = len(all)
			}
		}
		batch := append([]item.Item(nil), all[start:end]...)
		return item.NewPage(item.SourceRemote, batch, cursor, pageSize), nil
	}
}

// InsertAt places it at index among the sequence's rows. The same
// placement rules as the SQLite store apply; the whole step happens under
// one lock, so it is atomic.
func (s *Store) InsertAt(ctx context.Context, sequenceKey string, index int, it item.Item, opts ...reindex.InsertOption) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	if err := s.takeWriteFailure(); err != nil {
		s.mu.Unlock()
		return 0, err
	}
	if rec, ok := s.rows[it.ID]; ok {
		s.mu.Unlock()
		return rec.OrderIndex, nil
	}

	current := s.sequence(sequenceKey)
	pref := reindex.ResolveInsertOptions(opts)
	plan := reindex.PlanPreferred(item.OrderKeys(current), index, s.stride, pref.Preferred, pref.HasPreferred)
	changes := s.shift(current, plan)

	it.SequenceKey = sequenceKey
	it.OrderKey = plan.Key
	s.rows[it.ID] = item.ToRemote(it)
	changes = append(changes, fetch.Change{Kind: fetch.ChangeInsert, Item: it.WithSource(item.SourceRemote)})
	subs := s.subscribers()
	s.mu.Unlock()

	notify(subs, changes...)
	return plan.Key, nil
}

// Delete removes an item and returns it.
func (s *Store) Delete(ctx context.Context, id string) (item.Item, error) {
	if err := ctx.Err(); err != nil {
		return item.Item{}, err
	}

	s.mu.Lock()
	if err := s.takeWriteFailure(); err != nil {
		s.mu.Unlock()
		return item.Item{}, err
	}
	rec, ok := s.rows[id]
	if !ok {
		s.mu.Unlock()
		return item.Item{}, item.ErrNotFound
	}
	delete(s.rows, id)
	subs := s.subscribers()
	s.mu.Unlock()

	removed := item.FromRemote(rec)
	notify(subs, fetch.Change{Kind: fetch.ChangeDelete, Item: removed})
	return removed, nil
}

// Move relocates id to toIndex, counted after it is taken out.
func (s *Store) Move(ctx context.Context, sequenceKey, id string, toIndex int) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	if err := s.takeWriteFailure(); err != nil {
		s.mu.Unlock()
		return 0, err
	}
	rec, ok := s.rows[id]
	if !ok || rec.SequenceKey != sequenceKey {
		s.mu.Unlock()
		return 0, item.ErrNotFound
	}
	delete(s.rows, id)

	current := s.sequence(sequenceKey)
	plan := reindex.PlanInsert(item.OrderKeys(current), toIndex, s.stride)
	changes := s.shift(current, plan)

	rec.OrderIndex = plan.Key
	s.rows[id] = rec
	changes = append(changes, fetch.Change{Kind: fetch.ChangeUpdate, Item: item.FromRemote(rec)})
	subs := s.subscribers()
	s.mu.Unlock()

	notify(subs, changes...)
	return plan.Key, nil
}

// Rename rewrites an item's display name.
func (s *Store) Rename(ctx context.Context, id, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if err := s.takeWriteFailure(); err != nil {
		s.mu.Unlock()
		return err
	}
	rec, ok := s.rows[id]
	if !ok {
		s.mu.Unlock()
		return item.ErrNotFound
	}
	rec.Name = name
	s.rows[id] = rec
	subs := s.subscribers()
	s.mu.Unlock()

	notify(subs, fetch.Change{Kind: fetch.ChangeUpdate, Item: item.FromRemote(rec)})
	return nil
}

// sequence returns the ordered items of one sequence. Caller holds mu.
func (s *Store) sequence(sequenceKey string) []item.Item {
	out := []item.Item{}
	for _, rec := range s.rows {
		if rec.SequenceKey == sequenceKey {
			out = append(out, item.FromRemote(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OrderKey != out[j].OrderKey {
			return out[i].OrderKey < out[j].OrderKey
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// shift applies plan's shift to current and returns the resulting updates.
// Caller holds mu.
func (s *Store) shift(current []item.Item, plan reindex.Plan) []fetch.Change {
	if plan.Shift == nil {
		return nil
	}
	var changes []fetch.Change
	for _, it := range current {
		moved := plan.Apply(it.OrderKey)
		if moved == it.OrderKey {
			continue
		}
		rec := s.rows[it.ID]
		rec.OrderIndex = moved
		s.rows[it.ID] = rec
		changes = append(changes, fetch.Change{Kind: fetch.ChangeUpdate, Item: item.FromRemote(rec)})
	}
	return changes
}

// takeWriteFailure pops the next injected write error. Caller holds mu.
func (s *Store) takeWriteFailure() error {
	if len(s.failWrite) == 0 {
		return nil
	}
	err := s.failWrite[0]
	s.failWrite = s.failWrite[1:]
	return err
}

// subscribers snapshots the subscriber list. Caller holds mu.
func (s *Store) subscribers() []func(fetch.Change) {
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(fetch.Change), len(ids))
	for i, id := range ids {
		out[i] = s.subs[id]
	}
	return out
}

func notify(subs []func(fetch.Change), changes ...fetch.Change) {
	for _, ch := range changes {
		for _, fn := range subs {
			fn(ch)
		}
	}
}
