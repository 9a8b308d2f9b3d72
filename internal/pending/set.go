package pending

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/roach88/hybridseq/internal/item"
	"github.com/roach88/hybridseq/internal/metrics"
	"github.com/roach88/hybridseq/internal/reindex"
)

// Status is the lifecycle state of an Entry.
type Status string

const (
	Recording  Status = "recording"
	Committing Status = "committing"
	Committed  Status = "committed"
	Failed     Status = "failed"
)

// Entry wraps one optimistic item.
type Entry struct {
	// Item is tagged SourceOptimistic and carries TargetOrderKey.
	Item item.Item

	Status Status

	// TargetOrderKey is where the entry renders until it is observed.
	TargetOrderKey int64

	// CommittedOrderKey is the key the store assigned, once known.
	CommittedOrderKey int64

	// Shift is replayed over the rendered view while the entry is pending.
	Shift *reindex.Shift

	// Err is the last write error of a Failed entry.
	Err error

	// Attempts counts BeginCommit calls.
	Attempts int

	seq uint64
}

// Set holds the pending entries of one sequence. Safe for concurrent use.
type Set struct {
	mu      sync.Mutex
	entries map[string]*Entry
	next    uint64
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Set.
type Option func(*Set)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Set) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics counts transitions on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Set) {
		if m != nil {
			s.metrics = m
		}
	}
}

// NewSet creates an empty Set.
func NewSet(opts ...Option) *Set {
	s := &Set{
		entries: make(map[string]*Entry),
		logger:  slog.Default(),
		metrics: metrics.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create adds a Recording entry for it, placed by plan.
func (s *Set) Create(it item.Item, plan reindex.Plan) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := it.Key()
	if key == "" {
		return Entry{}, fmt.Errorf("create pending entry: empty id")
	}
	if _, ok := s.entries[key]; ok {
		return Entry{}, fmt.Errorf("create %s: %w", it.ID, ErrEntryExists)
	}

	it.Source = item.SourceOptimistic
	it.OrderKey = plan.Key
	e := &Entry{
		Item:           it,
		Status:         Recording,
		TargetOrderKey: plan.Key,
		seq:            s.next,
	}
	if plan.Shift != nil {
		sh := *plan.Shift
		e.Shift = &sh
	}
	s.next++
	s.entries[key] = e

	s.metrics.PendingTransitions.WithLabelValues(string(Recording)).Inc()
	s.logger.Debug("pending entry created", "id", it.ID, "target_order_key", plan.Key)
	return *e, nil
}

// SetPayload replaces the payload of a Recording entry.
func (s *Set) SetPayload(id string, p item.Payload) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(id)
	if err != nil {
		return Entry{}, err
	}
	if e.Status != Recording {
		return Entry{}, &TransitionError{ID: id, From: e.Status, To: Recording}
	}
	e.Item.Payload = p
	return *e, nil
}

// BeginCommit moves a Recording entry to Committing.
func (s *Set) BeginCommit(id string) (Entry, error) {
	return s.transition(id, Committing, func(e *Entry) {
		e.Attempts++
	}, Recording)
}

// MarkCommitted records a successful write and the key the store assigned.
// The entry renders at that key from now on; it differs from the target
// only when the store saw neighbours the view had not loaded.
func (s *Set) MarkCommitted(id string, key int64) (Entry, error) {
	return s.transition(id, Committed, func(e *Entry) {
		e.CommittedOrderKey = key
		if key != e.TargetOrderKey {
			s.logger.Info("committed key differs from target",
				"id", e.Item.ID,
				"target_order_key", e.TargetOrderKey,
				"committed_order_key", key,
			)
			e.TargetOrderKey = key
			e.Item.OrderKey = key
		}
	}, Committing)
}

// Fail moves a Recording or Committing entry to Failed.
func (s *Set) Fail(id string, cause error) (Entry, error) {
	return s.transition(id, Failed, func(e *Entry) {
		e.Err = cause
	}, Recording, Committing)
}

// Retry moves a Failed entry back to Recording at the same target.
func (s *Set) Retry(id string) (Entry, error) {
	return s.transition(id, Recording, func(e *Entry) {
		e.Err = nil
	}, Failed)
}

// Discard removes a Recording or Failed entry. A Committing entry has a
// write in flight and cannot be discarded.
func (s *Set) Discard(id string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(id)
	if err != nil {
		return Entry{}, err
	}
	if e.Status != Recording && e.Status != Failed {
		return Entry{}, &TransitionError{ID: id, From: e.Status, To: "discarded"}
	}
	delete(s.entries, e.Item.Key())
	s.metrics.PendingTransitions.WithLabelValues("discarded").Inc()
	s.logger.Debug("pending entry discarded", "id", id, "status", e.Status)
	return *e, nil
}

// Observe retires every entry whose ID appears in durableIDs and returns
// the retired IDs in creation order.
func (s *Set) Observe(durableIDs []string) []string {
	if len(durableIDs) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(durableIDs))
	for _, id := range durableIDs {
		seen[item.NormalizeID(id)] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var retired []*Entry
	for key, e := range s.entries {
		if _, ok := seen[key]; ok {
			retired = append(retired, e)
			delete(s.entries, key)
		}
	}
	sort.Slice(retired, func(i, j int) bool { return retired[i].seq < retired[j].seq })

	ids := make([]string, len(retired))
	for i, e := range retired {
		ids[i] = e.Item.ID
		s.metrics.PendingTransitions.WithLabelValues("retired").Inc()
		s.logger.Debug("pending entry retired", "id", e.Item.ID, "status", e.Status)
	}
	return ids
}

// Get returns a copy of the entry for id.
func (s *Set) Get(id string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[item.NormalizeID(id)]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Entries returns copies of all entries in creation order.
func (s *Set) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted()
}

// Len returns the number of pending entries.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// HasFailed reports whether any entry is Failed.
func (s *Set) HasFailed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.Status == Failed {
			return true
		}
	}
	return false
}

// Visible returns the optimistic items in creation order.
func (s *Set) Visible() []item.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.sorted()
	items := make([]item.Item, len(entries))
	for i, e := range entries {
		items[i] = e.Item
	}
	return items
}

// Overlay renders durable with the pending entries placed on top and
// returns the result sorted by order key. Entries whose ID is already
// present in durable are skipped. No two returned items share a key.
func (s *Set) Overlay(durable []item.Item) []item.Item {
	s.mu.Lock()
	entries := s.sorted()
	s.mu.Unlock()

	view := make([]item.Item, len(durable), len(durable)+len(entries))
	copy(view, durable)

	present := make(map[string]struct{}, len(durable))
	for _, it := range durable {
		present[it.Key()] = struct{}{}
	}

	for _, e := range entries {
		if _, ok := present[e.Item.Key()]; ok {
			continue
		}
		if e.Shift != nil {
			shiftFrom(view, e.Shift.From, e.Shift.Delta)
		}
		if occupied(view, e.TargetOrderKey) {
			// Only reachable when a later write landed on the key of an
			// entry that never committed. Make room in front of it.
			shiftFrom(view, e.TargetOrderKey, 1)
		}
		it := e.Item
		it.OrderKey = e.TargetOrderKey
		view = append(view, it)
	}

	item.SortByOrderKey(view)
	return view
}

func (s *Set) transition(id string, to Status, apply func(*Entry), from ...Status) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(id)
	if err != nil {
		return Entry{}, err
	}
	allowed := false
	for _, f := range from {
		if e.Status == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return Entry{}, &TransitionError{ID: id, From: e.Status, To: to}
	}

	prev := e.Status
	e.Status = to
	if apply != nil {
		apply(e)
	}

	s.metrics.PendingTransitions.WithLabelValues(string(to)).Inc()
	if to == Failed {
		s.logger.Warn("pending entry failed", "id", id, "attempts", e.Attempts, "error", e.Err)
	} else {
		s.logger.Debug("pending transition", "id", id, "from", prev, "to", to)
	}
	return *e, nil
}

func (s *Set) lookup(id string) (*Entry, error) {
	e, ok := s.entries[item.NormalizeID(id)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrUnknownEntry)
	}
	return e, nil
}

func (s *Set) sorted() []Entry {
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

func shiftFrom(view []item.Item, from, delta int64) {
	for i := range view {
		if view[i].OrderKey >= from {
			view[i].OrderKey += delta
		}
	}
}

func occupied(view []item.Item, key int64) bool {
	for _, it := range view {
		if it.OrderKey == key {
			return true
		}
	}
	return false
}
