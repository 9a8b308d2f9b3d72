package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hybridseq/internal/item"
	"github.com/roach88/hybridseq/internal/reindex"
)

func orderKeys(t *testing.T, s *Store, sequenceKey string) []int64 {
	t.Helper()
	items, err := s.ReadSequence(context.Background(), sequenceKey)
	require.NoError(t, err)
	return item.OrderKeys(items)
}

func TestInsertAt_EmptySequence(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	key, err := s.InsertAt(ctx, "q1", 0, createTestItem("a", "q1"))
	require.NoError(t, err)
	assert.Equal(t, int64(1000), key)
	assert.Equal(t, []string{"a"}, sequenceIDs(t, s, "q1"))
}

func TestInsertAt_MidpointLeavesSiblings(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedKeys(t, s, "q1", 10, 20, 30)

	key, err := s.InsertAt(ctx, "q1", 1, createTestItem("new", "q1"))
	require.NoError(t, err)

	assert.Equal(t, int64(15), key)
	assert.Equal(t, []string{"s0", "new", "s1", "s2"}, sequenceIDs(t, s, "q1"))
	assert.Equal(t, []int64{10, 15, 20, 30}, orderKeys(t, s, "q1"))
}

func TestInsertAt_FullGapShiftsSuffix(t *testing.T) {
	s := createTestStore(t, WithStride(10))
	ctx := context.Background()
	seedKeys(t, s, "q1", 10, 11, 12)

	key, err := s.InsertAt(ctx, "q1", 1, createTestItem("new", "q1"))
	require.NoError(t, err)

	assert.Equal(t, int64(11), key)
	assert.Equal(t, []string{"s0", "new", "s1", "s2"}, sequenceIDs(t, s, "q1"))
	assert.Equal(t, []int64{10, 11, 21, 22}, orderKeys(t, s, "q1"))
}

func TestInsertAt_PreferredKey(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedKeys(t, s, "q1", 500, 1500)

	// A zero key is a real key when asked for explicitly.
	key, err := s.InsertAt(ctx, "q1", 0, createTestItem("zero", "q1"), reindex.PreferKey(0))
	require.NoError(t, err)
	assert.Equal(t, int64(0), key)

	// Without PreferKey the item's own key is ignored.
	it := createTestItem("mid", "q1")
	it.OrderKey = 700
	key, err = s.InsertAt(ctx, "q1", 2, it)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), key)

	key, err = s.InsertAt(ctx, "q1", 3, createTestItem("kept", "q1"), reindex.PreferKey(1200))
	require.NoError(t, err)
	assert.Equal(t, int64(1200), key)

	assert.Equal(t, []string{"zero", "s0", "mid", "kept", "s1"}, sequenceIDs(t, s, "q1"))
}

func TestInsertAt_AppendAndPrepend(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedKeys(t, s, "q1", 1000, 2000)

	key, err := s.InsertAt(ctx, "q1", 99, createTestItem("tail", "q1"))
	require.NoError(t, err)
	assert.Equal(t, int64(3000), key)

	key, err = s.InsertAt(ctx, "q1", -5, createTestItem("head", "q1"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), key)

	assert.Equal(t, []string{"head", "s0", "s1", "tail"}, sequenceIDs(t, s, "q1"))
}

func TestInsertAt_ExistingIDIsNoop(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first, err := s.InsertAt(ctx, "q1", 0, createTestItem("a", "q1"))
	require.NoError(t, err)
	second, err := s.InsertAt(ctx, "q1", 0, createTestItem("a", "q1"))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	n, err := s.CountSequence(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestInsertAt_FailureRollsBackShift(t *testing.T) {
	s := createTestStore(t, WithStride(10))
	ctx := context.Background()
	seedKeys(t, s, "q1", 10, 11, 12)

	_, err := s.db.Exec(`
		CREATE TRIGGER fail_boom BEFORE INSERT ON items
		WHEN NEW.id = 'boom'
		BEGIN SELECT RAISE(ABORT, 'injected failure'); END
	`)
	require.NoError(t, err)

	_, err = s.InsertAt(ctx, "q1", 1, createTestItem("boom", "q1"))
	require.Error(t, err)
	assert.False(t, reindex.IsWriteConflict(err))

	// The shift ran before the insert failed; none of it may survive.
	assert.Equal(t, []int64{10, 11, 12}, orderKeys(t, s, "q1"))
	_, err = s.ReadItem(ctx, "boom")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInsertAt_ManyRandomPositionsKeepOrder(t *testing.T) {
	s := createTestStore(t, WithStride(4))
	ctx := context.Background()

	var want []string
	positions := []int{0, 1, 1, 0, 3, 2, 2, 5, 4, 1, 7, 3}
	for i, pos := range positions {
		id := string(rune('a' + i))
		_, err := s.InsertAt(ctx, "q1", pos, createTestItem(id, "q1"))
		require.NoError(t, err)

		if pos > len(want) {
			pos = len(want)
		}
		want = append(want[:pos], append([]string{id}, want[pos:]...)...)
	}

	assert.Equal(t, want, sequenceIDs(t, s, "q1"))
	keys := orderKeys(t, s, "q1")
	for i := 1; i < len(keys); i++ {
		assert.Less(t, keys[i-1], keys[i], "keys must be strictly increasing")
	}
}

func TestInsertAt_ConcurrentWritersSerialize(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.InsertAt(ctx, "q1", 0, createTestItem(string(rune('a'+i)), "q1"))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	keys := orderKeys(t, s, "q1")
	require.Len(t, keys, 8)
	for i := 1; i < len(keys); i++ {
		assert.Less(t, keys[i-1], keys[i])
	}
}

func TestPut_Upserts(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	it := createTestItem("a", "q1")
	it.OrderKey = 500
	require.NoError(t, s.Put(ctx, it))

	it.OrderKey = 700
	it.Payload.Name = "renamed"
	require.NoError(t, s.Put(ctx, it))

	got, err := s.ReadItem(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(700), got.OrderKey)
	assert.Equal(t, "renamed", got.Payload.Name)
	assert.Equal(t, testEpoch, got.CreatedAt)
}

func TestDelete(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedKeys(t, s, "q1", 1000, 2000, 3000)

	removed, err := s.Delete(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", removed.ID)
	assert.Equal(t, int64(2000), removed.OrderKey)
	assert.Equal(t, []string{"s0", "s2"}, sequenceIDs(t, s, "q1"))

	_, err = s.Delete(ctx, "s1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMove(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedKeys(t, s, "q1", 1000, 2000, 3000)

	key, err := s.Move(ctx, "q1", "s0", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(4000), key)
	assert.Equal(t, []string{"s1", "s2", "s0"}, sequenceIDs(t, s, "q1"))

	_, err = s.Move(ctx, "q1", "s2", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"s2", "s1", "s0"}, sequenceIDs(t, s, "q1"))

	_, err = s.Move(ctx, "q1", "missing", 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRename(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedKeys(t, s, "q1", 1000)

	require.NoError(t, s.Rename(ctx, "s0", "Intro"))
	got, err := s.ReadItem(ctx, "s0")
	require.NoError(t, err)
	assert.Equal(t, "Intro", got.Payload.Name)
	assert.Equal(t, item.KindText, got.Payload.Kind)

	assert.ErrorIs(t, s.Rename(ctx, "missing", "x"), ErrNotFound)
}

func TestCompact(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedKeys(t, s, "q1", -500, 3, 4, 5000)

	changed, err := s.Compact(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, 4, changed)
	assert.Equal(t, []int64{1000, 2000, 3000, 4000}, orderKeys(t, s, "q1"))
	assert.Equal(t, []string{"s0", "s1", "s2", "s3"}, sequenceIDs(t, s, "q1"))

	changed, err = s.Compact(ctx, "q1")
	require.NoError(t, err)
	assert.Zero(t, changed)
}

func TestCompact_EmptySequence(t *testing.T) {
	s := createTestStore(t)
	changed, err := s.Compact(context.Background(), "none")
	require.NoError(t, err)
	assert.Zero(t, changed)
}
