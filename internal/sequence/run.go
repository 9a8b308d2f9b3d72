package sequence

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/hybridseq/internal/item"
	"github.com/roach88/hybridseq/internal/pending"
	"github.com/roach88/hybridseq/internal/reindex"
)

// Run starts the single-writer mutation loop.
// Blocks until ctx is cancelled or Stop is called.
//
// CRITICAL: Must be called from exactly ONE goroutine, at most once.
//
// A failed mutation is logged, reported on its Ticket and the loop moves on.
// An insert that has started is never cancelled midway; its write runs to
// completion or fails atomically.
func (s *Sequence) Run(ctx context.Context) error {
	s.logger.Info("sequence writer starting")

	for {
		if m, ok := s.queue.TryDequeue(); ok {
			s.process(ctx, m)
			continue
		}

		select {
		case <-ctx.Done():
			s.logger.Info("sequence writer stopping: context cancelled")
			s.abandon(s.queue.Close())
			return ctx.Err()

		case <-s.queue.Wait():
			// The signal channel closes with the queue, so a closed and
			// drained queue ends the loop here.
			if s.queue.Closed() && s.queue.Len() == 0 {
				s.logger.Info("sequence writer stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue. Mutations still queued fail with ErrStopped and
// Run returns.
func (s *Sequence) Stop() {
	s.abandon(s.queue.Close())
}

func (s *Sequence) abandon(rest []mutation) {
	for _, m := range rest {
		if m.kind == mutationInsert {
			if _, err := s.pending.Fail(m.id, ErrStopped); err != nil {
				s.logger.Debug("fail queued insert", "id", m.id, "error", err)
			}
		}
		m.ticket.resolve(item.Item{}, ErrStopped)
	}
}

// process applies one mutation.
// CRITICAL: Called only from the Run goroutine.
func (s *Sequence) process(ctx context.Context, m mutation) {
	var (
		it  item.Item
		err error
	)
	switch m.kind {
	case mutationInsert:
		it, err = s.commitInsert(ctx, m.id)
	case mutationDelete:
		it, err = s.applyDelete(ctx, m.id)
	case mutationMove:
		it, err = s.applyMove(ctx, m.id, m.index)
	case mutationRename:
		err = s.applyRename(ctx, m.id, m.name)
	default:
		err = fmt.Errorf("unknown mutation kind %q", m.kind)
	}

	if err != nil {
		s.logger.Error("mutation failed",
			"kind", m.kind,
			"id", m.id,
			"error", err,
		)
	} else {
		s.logger.Info("mutation applied",
			"kind", m.kind,
			"id", m.id,
			"order_key", it.OrderKey,
		)
	}
	m.ticket.resolve(it, err)
}

func (s *Sequence) commitInsert(ctx context.Context, id string) (item.Item, error) {
	e, err := s.pending.BeginCommit(id)
	if err != nil {
		return item.Item{}, fmt.Errorf("commit %s: %w", id, err)
	}

	view := s.Items()
	pos := item.IndexOf(view, id)
	if pos < 0 {
		pos = len(view)
	}
	index := s.durableIndex(view, pos)

	row := e.Item
	row.Source = item.SourceLocal
	key, err := s.reindexer.InsertAt(ctx, s.key, index, row, reindex.PreferKey(e.TargetOrderKey))
	if err != nil {
		if _, ferr := s.pending.Fail(id, err); ferr != nil {
			s.logger.Debug("fail after write error", "id", id, "error", ferr)
		}
		return item.Item{}, fmt.Errorf("commit %s: %w", id, err)
	}

	if _, err := s.pending.MarkCommitted(id, key); err != nil && !errors.Is(err, pending.ErrUnknownEntry) {
		s.logger.Warn("mark committed", "id", id, "error", err)
	}
	s.invalidate(ctx)

	row.OrderKey = key
	return row, nil
}

func (s *Sequence) applyDelete(ctx context.Context, id string) (item.Item, error) {
	pos := item.IndexOf(s.Items(), id)

	removed, err := s.writer.Delete(ctx, id)
	if err != nil {
		return item.Item{}, fmt.Errorf("delete %s: %w", id, err)
	}
	if pos >= 0 {
		s.cursor.OnRemove(pos)
	}
	s.invalidate(ctx)
	return removed, nil
}

func (s *Sequence) applyMove(ctx context.Context, id string, index int) (item.Item, error) {
	view := s.Items()
	pos := item.IndexOf(view, id)
	if pos < 0 {
		return item.Item{}, fmt.Errorf("move %s: %w", id, item.ErrNotFound)
	}
	moved := view[pos]

	rest := append(append([]item.Item(nil), view[:pos]...), view[pos+1:]...)
	if index < 0 {
		index = 0
	}
	if index > len(rest) {
		index = len(rest)
	}

	key, err := s.writer.Move(ctx, s.key, id, s.durableIndex(rest, index))
	if err != nil {
		return item.Item{}, fmt.Errorf("move %s: %w", id, err)
	}
	s.invalidate(ctx)

	moved.OrderKey = key
	moved.Source = item.SourceLocal
	return moved, nil
}

func (s *Sequence) applyRename(ctx context.Context, id, name string) error {
	if err := s.writer.Rename(ctx, id, name); err != nil {
		return fmt.Errorf("rename %s: %w", id, err)
	}
	s.invalidate(ctx)
	return nil
}
