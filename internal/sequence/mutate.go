package sequence

import (
	"context"
	"fmt"

	"github.com/roach88/hybridseq/internal/item"
	"github.com/roach88/hybridseq/internal/pending"
	"github.com/roach88/hybridseq/internal/reindex"
)

// InsertAt shows a new item at index immediately and queues its durable
// write. The returned Ticket resolves with the committed item.
func (s *Sequence) InsertAt(ctx context.Context, index int, payload item.Payload) (*Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, err := s.place(index, payload)
	if err != nil {
		return nil, err
	}
	return s.submitInsert(e.Item.ID)
}

// Insert inserts at the cursor.
func (s *Sequence) Insert(ctx context.Context, payload item.Payload) (*Ticket, error) {
	return s.InsertAt(ctx, s.Cursor(), payload)
}

// StartRecording shows a pending card at index and returns its ID. Nothing
// is written until StopRecording.
func (s *Sequence) StartRecording(index int) (string, error) {
	e, err := s.place(index, item.Payload{Kind: item.KindAudio})
	if err != nil {
		return "", err
	}
	s.logger.Info("recording started", "id", e.Item.ID, "target_order_key", e.TargetOrderKey)
	return e.Item.ID, nil
}

// StopRecording attaches the captured payload to a recording and queues its
// durable write.
func (s *Sequence) StopRecording(ctx context.Context, id string, payload item.Payload) (*Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := s.pending.SetPayload(id, payload); err != nil {
		return nil, fmt.Errorf("stop recording: %w", err)
	}
	return s.submitInsert(id)
}

// Retry re-queues the write of a Failed entry at its original target.
func (s *Sequence) Retry(ctx context.Context, id string) (*Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := s.pending.Retry(id); err != nil {
		return nil, fmt.Errorf("retry: %w", err)
	}
	return s.submitInsert(id)
}

// Discard drops a Recording or Failed entry from the view.
func (s *Sequence) Discard(id string) error {
	pos := item.IndexOf(s.Items(), id)
	if _, err := s.pending.Discard(id); err != nil {
		return fmt.Errorf("discard: %w", err)
	}
	if pos >= 0 {
		s.cursor.OnRemove(pos)
	}
	return nil
}

// Delete removes an item. A pending entry that has not started writing is
// discarded; anything else is deleted durably by the writer loop.
func (s *Sequence) Delete(ctx context.Context, id string) error {
	if e, ok := s.pending.Get(id); ok && (e.Status == pending.Recording || e.Status == pending.Failed) {
		return s.Discard(id)
	}
	return s.submitAndWait(ctx, mutation{kind: mutationDelete, id: id})
}

// Move relocates an item to index in the rendered view, counted after the
// item is taken out.
func (s *Sequence) Move(ctx context.Context, id string, index int) error {
	return s.submitAndWait(ctx, mutation{kind: mutationMove, id: id, index: index})
}

// Rename changes an item's display name. A Recording entry is renamed in
// place; durable items are renamed by the writer loop.
func (s *Sequence) Rename(ctx context.Context, id, name string) error {
	if e, ok := s.pending.Get(id); ok && e.Status == pending.Recording {
		p := e.Item.Payload
		p.Name = name
		if _, err := s.pending.SetPayload(id, p); err != nil {
			return fmt.Errorf("rename: %w", err)
		}
		return nil
	}
	return s.submitAndWait(ctx, mutation{kind: mutationRename, id: id, name: name})
}

// place plans a new item against the rendered view and records it as a
// Recording entry. The cursor moves past it unless an earlier write failed
// and is still waiting for a retry or discard.
func (s *Sequence) place(index int, payload item.Payload) (pending.Entry, error) {
	s.planMu.Lock()
	defer s.planMu.Unlock()

	view := s.Items()
	keys := item.OrderKeys(view)
	var plan reindex.Plan
	if s.fetcher.Partial(item.SourceLocal) {
		plan = reindex.PlanPartial(keys, index, s.stride)
	} else {
		plan = reindex.PlanInsert(keys, index, s.stride)
	}

	it := item.Item{
		ID:          s.ids.Generate(),
		SequenceKey: s.key,
		Payload:     payload,
		CreatedAt:   s.clock.Now(),
	}
	e, err := s.pending.Create(it, plan)
	if err != nil {
		return pending.Entry{}, fmt.Errorf("insert at %d: %w", index, err)
	}

	s.cursor.ClampTo(len(view))
	if s.pending.HasFailed() {
		s.logger.Debug("cursor held: failed entry pending", "id", e.Item.ID)
	} else {
		s.cursor.Advance(plan.Index)
	}
	return e, nil
}

func (s *Sequence) submitInsert(id string) (*Ticket, error) {
	t := newTicket(id)
	if !s.queue.Enqueue(mutation{kind: mutationInsert, id: id, ticket: t}) {
		if _, err := s.pending.Fail(id, ErrStopped); err != nil {
			s.logger.Debug("fail after stop", "id", id, "error", err)
		}
		return nil, ErrStopped
	}
	return t, nil
}

func (s *Sequence) submitAndWait(ctx context.Context, m mutation) error {
	m.ticket = newTicket(m.id)
	if !s.queue.Enqueue(m) {
		return ErrStopped
	}
	_, err := m.ticket.Wait(ctx)
	return err
}
