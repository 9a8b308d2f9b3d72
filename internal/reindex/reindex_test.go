package reindex

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hybridseq/internal/item"
	"github.com/roach88/hybridseq/internal/metrics"
)

func TestPlanInsert(t *testing.T) {
	tests := []struct {
		name      string
		keys      []int64
		index     int
		wantKey   int64
		wantShift *Shift
	}{
		{"empty", nil, 0, 1000, nil},
		{"append", []int64{1000, 2000}, 2, 3000, nil},
		{"append clamped", []int64{1000}, 9, 2000, nil},
		{"prepend", []int64{1000, 2000}, 0, 0, nil},
		{"prepend negative index", []int64{1000}, -3, 0, nil},
		{"midpoint", []int64{10, 20, 30}, 1, 15, nil},
		{"odd gap", []int64{10, 13}, 1, 11, nil},
		{"gap of two", []int64{10, 12}, 1, 11, nil},
		{"no gap shifts", []int64{10, 11, 12}, 1, 11, &Shift{From: 11, Delta: 1000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := PlanInsert(tt.keys, tt.index, 1000)
			assert.Equal(t, tt.wantKey, p.Key)
			assert.Equal(t, tt.wantShift, p.Shift)
		})
	}
}

// Inserting at k into n keys yields n+1 unique keys with the new one at k
// and every other relative order preserved.
func TestPlanInsert_InsertionCorrectness(t *testing.T) {
	keys := []int64{1, 2, 3, 4, 5}
	for n := 0; n < 40; n++ {
		k := (n * 7) % (len(keys) + 1)
		p := PlanInsert(keys, k, 4)

		next := make([]int64, 0, len(keys)+1)
		for i, key := range keys {
			if i == p.Index {
				next = append(next, p.Key)
			}
			next = append(next, p.Apply(key))
		}
		if p.Index == len(keys) {
			next = append(next, p.Key)
		}

		for i := 1; i < len(next); i++ {
			require.Less(t, next[i-1], next[i], "keys must stay strictly ascending after insert %d at %d", n, k)
		}
		assert.Equal(t, p.Key, next[k])
		keys = next
	}
}

func TestPlanPreferred(t *testing.T) {
	tests := []struct {
		name      string
		keys      []int64
		index     int
		preferred int64
		ok        bool
		want      int64
		shifted   bool
	}{
		{"fits between neighbours", []int64{1000, 2000}, 1, 1100, true, 1100, false},
		{"fits at head", []int64{1000}, 0, 400, true, 400, false},
		{"fits at tail", []int64{1000}, 1, 1300, true, 1300, false},
		{"fits empty", nil, 0, 250, true, 250, false},
		{"outside neighbours falls back", []int64{1000, 2000}, 1, 2500, true, 1500, false},
		{"equal to next falls back to shift", []int64{1000, 1001}, 1, 1001, true, 1001, true},
		{"no preference", []int64{1000, 2000}, 1, 1100, false, 1500, false},
		{"zero key kept at head", []int64{1000, 2000}, 0, 0, true, 0, false},
		{"negative key kept at head", []int64{0, 1000}, 0, -1000, true, -1000, false},
		{"index clamped", []int64{1000}, 7, 1200, true, 1200, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := PlanPreferred(tt.keys, tt.index, 1000, tt.preferred, tt.ok)
			assert.Equal(t, tt.want, p.Key)
			assert.Equal(t, tt.shifted, p.Shift != nil)
		})
	}
}

func TestPlanPartial(t *testing.T) {
	tests := []struct {
		name   string
		keys   []int64
		index  int
		stride int64
		want   int64
	}{
		{"tail lands inside the next stride", []int64{49000, 50000}, 2, 1000, 50500},
		{"tail with stride 2", []int64{10}, 1, 2, 11},
		{"tail with stride 1", []int64{10}, 5, 1, 11},
		{"middle unchanged", []int64{1000, 2000}, 1, 1000, 1500},
		{"head unchanged", []int64{1000}, 0, 1000, 0},
		{"empty unchanged", nil, 0, 1000, 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := PlanPartial(tt.keys, tt.index, tt.stride)
			assert.Equal(t, tt.want, p.Key)
			assert.Nil(t, p.Shift)
		})
	}
}

func TestResolveInsertOptions(t *testing.T) {
	assert.Equal(t, InsertOptions{}, ResolveInsertOptions(nil))
	assert.Equal(t, InsertOptions{Preferred: 0, HasPreferred: true}, ResolveInsertOptions([]InsertOption{PreferKey(0)}))
	assert.Equal(t, InsertOptions{Preferred: 7, HasPreferred: true}, ResolveInsertOptions([]InsertOption{PreferKey(3), PreferKey(7)}))
}

func TestPlan_Apply(t *testing.T) {
	p := Plan{Shift: &Shift{From: 20, Delta: 1000}}
	assert.Equal(t, int64(10), p.Apply(10))
	assert.Equal(t, int64(1020), p.Apply(20))

	assert.Equal(t, int64(20), Plan{}.Apply(20))
}

func TestCompact(t *testing.T) {
	assert.Equal(t, []int64{1000, 2000, 3000}, Compact(3, 0))
	assert.Empty(t, Compact(0, 10))
}

type scriptedWriter struct {
	errs  []error
	calls int
}

func (w *scriptedWriter) InsertAt(_ context.Context, seq string, index int, _ item.Item, _ ...InsertOption) (int64, error) {
	w.calls++
	if len(w.errs) > 0 {
		err := w.errs[0]
		w.errs = w.errs[1:]
		if err != nil {
			return 0, err
		}
	}
	return 42, nil
}

func conflict() error {
	return &WriteConflictError{SequenceKey: "q", Index: 0, Err: errors.New("database is locked")}
}

func TestReindexer_RetriesConflicts(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	w := &scriptedWriter{errs: []error{conflict(), conflict()}}
	r := New(w, WithMaxAttempts(3), WithMetrics(m))

	key, err := r.InsertAt(context.Background(), "q", 0, item.Item{ID: "x"})
	require.NoError(t, err)
	assert.Equal(t, int64(42), key)
	assert.Equal(t, 3, w.calls)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.WriteAttempts))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.WriteConflicts))
}

func TestReindexer_BoundedRetries(t *testing.T) {
	w := &scriptedWriter{errs: []error{conflict(), conflict(), conflict(), conflict()}}
	r := New(w, WithMaxAttempts(2))

	_, err := r.InsertAt(context.Background(), "q", 0, item.Item{ID: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.True(t, IsWriteConflict(err))
	assert.Equal(t, 2, w.calls)
}

func TestReindexer_NonConflictNotRetried(t *testing.T) {
	boom := errors.New("disk full")
	w := &scriptedWriter{errs: []error{boom}}
	r := New(w)

	_, err := r.InsertAt(context.Background(), "q", 0, item.Item{ID: "x"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, w.calls)
}

func TestReindexer_CancelledBetweenAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := WriterFunc(func(context.Context, string, int, item.Item) (int64, error) {
		cancel()
		return 0, conflict()
	})
	r := New(w, WithMaxAttempts(5))

	_, err := r.InsertAt(ctx, "q", 0, item.Item{ID: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}
