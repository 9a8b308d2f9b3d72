package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/hybridseq/internal/item"
)

var testEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// createTestStore creates a new file-backed store in a temp dir.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestItem creates an item with minimal required fields.
func createTestItem(id, sequenceKey string) item.Item {
	return item.Item{
		ID:          id,
		SequenceKey: sequenceKey,
		Payload:     item.Payload{Name: id, Kind: item.KindText},
		CreatedAt:   testEpoch,
	}
}

// seedKeys puts one item per key, named s0, s1, ...
func seedKeys(t *testing.T, s *Store, sequenceKey string, keys ...int64) {
	t.Helper()
	for i, k := range keys {
		it := createTestItem(seedID(i), sequenceKey)
		it.OrderKey = k
		if err := s.Put(context.Background(), it); err != nil {
			t.Fatalf("Put(%s) failed: %v", it.ID, err)
		}
	}
}

func seedID(i int) string {
	return "s" + string(rune('0'+i))
}

// sequenceIDs returns the IDs of a sequence in order.
func sequenceIDs(t *testing.T, s *Store, sequenceKey string) []string {
	t.Helper()
	items, err := s.ReadSequence(context.Background(), sequenceKey)
	if err != nil {
		t.Fatalf("ReadSequence() failed: %v", err)
	}
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}
