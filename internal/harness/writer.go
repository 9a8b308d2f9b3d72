package harness

import (
	"context"
	"sync"

	"github.com/roach88/hybridseq/internal/item"
	"github.com/roach88/hybridseq/internal/reindex"
	"github.com/roach88/hybridseq/internal/sequence"
)

// faultyWriter wraps a sequence.Writer and fails queued writes on demand,
// before they reach the store.
type faultyWriter struct {
	sequence.Writer

	mu    sync.Mutex
	fails []error
}

func newFaultyWriter(w sequence.Writer) *faultyWriter {
	return &faultyWriter{Writer: w}
}

// failNext queues err for the next write.
func (w *faultyWriter) failNext(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fails = append(w.fails, err)
}

func (w *faultyWriter) take() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.fails) == 0 {
		return nil
	}
	err := w.fails[0]
	w.fails = w.fails[1:]
	return err
}

func (w *faultyWriter) InsertAt(ctx context.Context, sequenceKey string, index int, it item.Item, opts ...reindex.InsertOption) (int64, error) {
	if err := w.take(); err != nil {
		return 0, err
	}
	return w.Writer.InsertAt(ctx, sequenceKey, index, it, opts...)
}

func (w *faultyWriter) Delete(ctx context.Context, id string) (item.Item, error) {
	if err := w.take(); err != nil {
		return item.Item{}, err
	}
	return w.Writer.Delete(ctx, id)
}

func (w *faultyWriter) Move(ctx context.Context, sequenceKey, id string, toIndex int) (int64, error) {
	if err := w.take(); err != nil {
		return 0, err
	}
	return w.Writer.Move(ctx, sequenceKey, id, toIndex)
}

func (w *faultyWriter) Rename(ctx context.Context, id, name string) error {
	if err := w.take(); err != nil {
		return err
	}
	return w.Writer.Rename(ctx, id, name)
}
