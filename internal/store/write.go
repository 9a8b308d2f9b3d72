package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/hybridseq/internal/item"
	"github.com/roach88/hybridseq/internal/reindex"
)

// InsertAt places it at index among the sequence's current items and returns
// the order key it received. The read of sibling keys, any shift, and the
// insert run in one IMMEDIATE transaction, so either all of them land or
// none do.
//
// With reindex.PreferKey the given key is kept when it still sorts strictly
// between the neighbours at index; see reindex.PlanPreferred.
//
// Inserting an ID that already exists is a no-op that returns the existing
// key. This makes a retried write that actually committed harmless.
//
// Lock contention and order-key uniqueness violations are reported as
// *reindex.WriteConflictError.
func (s *Store) InsertAt(ctx context.Context, sequenceKey string, index int, it item.Item, opts ...reindex.InsertOption) (int64, error) {
	pref := reindex.ResolveInsertOptions(opts)
	payloadJSON, err := marshalPayload(it.Payload)
	if err != nil {
		return 0, fmt.Errorf("insert at: %w", err)
	}

	var key int64
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		existing, found, err := orderKeyTx(ctx, tx, it.ID)
		if err != nil {
			return err
		}
		if found {
			key = existing
			return nil
		}

		_, keys, err := readKeysTx(ctx, tx, sequenceKey)
		if err != nil {
			return err
		}

		plan := reindex.PlanPreferred(keys, index, s.stride, pref.Preferred, pref.HasPreferred)
		if plan.Shift != nil {
			if err := shiftTx(ctx, tx, sequenceKey, keys, *plan.Shift); err != nil {
				return err
			}
		}

		if err := insertTx(ctx, tx, sequenceKey, plan.Key, it, payloadJSON); err != nil {
			return err
		}
		key = plan.Key
		return nil
	})
	if err != nil {
		if isConflict(err) {
			return 0, &reindex.WriteConflictError{SequenceKey: sequenceKey, Index: index, Err: err}
		}
		return 0, fmt.Errorf("insert at: %w", err)
	}
	return key, nil
}

// Put writes it with its own order key, replacing any row with the same ID.
// Used to mirror items whose key was already decided elsewhere.
func (s *Store) Put(ctx context.Context, it item.Item) error {
	payloadJSON, err := marshalPayload(it.Payload)
	if err != nil {
		return fmt.Errorf("put: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO items (id, sequence_key, order_key, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			sequence_key = excluded.sequence_key,
			order_key = excluded.order_key,
			payload = excluded.payload
	`,
		it.ID,
		it.SequenceKey,
		it.OrderKey,
		payloadJSON,
		formatTime(it.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("put %s: %w", it.ID, err)
	}
	return nil
}

// Delete removes an item and returns what was removed.
// Returns ErrNotFound if it does not exist. Remaining keys are left as-is;
// gaps are harmless and Compact reclaims them.
func (s *Store) Delete(ctx context.Context, id string) (item.Item, error) {
	var removed item.Item
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		it, err := scanItem(tx.QueryRowContext(ctx, `
			SELECT `+itemColumns+`
			FROM items
			WHERE id = ?
		`, id), item.SourceLocal)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete row: %w", err)
		}
		removed = it
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return item.Item{}, err
		}
		return item.Item{}, fmt.Errorf("delete %s: %w", id, err)
	}
	return removed, nil
}

// Move relocates an existing item to toIndex within its sequence, counted
// after the item is taken out. Returns the item's new order key.
func (s *Store) Move(ctx context.Context, sequenceKey, id string, toIndex int) (int64, error) {
	var key int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		it, err := scanItem(tx.QueryRowContext(ctx, `
			SELECT `+itemColumns+`
			FROM items
			WHERE id = ? AND sequence_key = ?
		`, id, sequenceKey), item.SourceLocal)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id); err != nil {
			return fmt.Errorf("detach row: %w", err)
		}

		_, keys, err := readKeysTx(ctx, tx, sequenceKey)
		if err != nil {
			return err
		}
		plan := reindex.PlanInsert(keys, toIndex, s.stride)
		if plan.Shift != nil {
			if err := shiftTx(ctx, tx, sequenceKey, keys, *plan.Shift); err != nil {
				return err
			}
		}

		payloadJSON, err := marshalPayload(it.Payload)
		if err != nil {
			return err
		}
		if err := insertTx(ctx, tx, sequenceKey, plan.Key, it, payloadJSON); err != nil {
			return err
		}
		key = plan.Key
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, err
		}
		if isConflict(err) {
			return 0, &reindex.WriteConflictError{SequenceKey: sequenceKey, Index: toIndex, Err: err}
		}
		return 0, fmt.Errorf("move %s: %w", id, err)
	}
	return key, nil
}

// Rename rewrites an item's display name. Returns ErrNotFound if it does not
// exist.
func (s *Store) Rename(ctx context.Context, id, name string) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var payloadJSON string
		err := tx.QueryRowContext(ctx, `SELECT payload FROM items WHERE id = ?`, id).Scan(&payloadJSON)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("read payload: %w", err)
		}

		payload, err := unmarshalPayload(payloadJSON)
		if err != nil {
			return err
		}
		payload.Name = name
		updated, err := marshalPayload(payload)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `UPDATE items SET payload = ? WHERE id = ?`, updated, id); err != nil {
			return fmt.Errorf("update payload: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("rename %s: %w", id, err)
	}
	return nil
}

// Compact rewrites a sequence's keys to stride, 2*stride, ... preserving
// order. Returns how many rows changed key.
//
// Rows are first parked on temporary keys above both the current maximum
// and the largest target, then moved to their targets, so no intermediate
// state collides on (sequence_key, order_key).
func (s *Store) Compact(ctx context.Context, sequenceKey string) (int, error) {
	var changed int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		ids, keys, err := readKeysTx(ctx, tx, sequenceKey)
		if err != nil {
			return err
		}
		targets := reindex.Compact(len(keys), s.stride)

		for i := range keys {
			if keys[i] != targets[i] {
				changed++
			}
		}
		if changed == 0 {
			return nil
		}

		base := targets[len(targets)-1]
		if last := keys[len(keys)-1]; last > base {
			base = last
		}
		for i, id := range ids {
			if _, err := tx.ExecContext(ctx, `UPDATE items SET order_key = ? WHERE id = ?`, base+int64(i)+1, id); err != nil {
				return fmt.Errorf("park %s: %w", id, err)
			}
		}
		for i, id := range ids {
			if _, err := tx.ExecContext(ctx, `UPDATE items SET order_key = ? WHERE id = ?`, targets[i], id); err != nil {
				return fmt.Errorf("place %s: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		if isConflict(err) {
			return 0, &reindex.WriteConflictError{SequenceKey: sequenceKey, Index: -1, Err: err}
		}
		return 0, fmt.Errorf("compact %s: %w", sequenceKey, err)
	}
	return changed, nil
}

// orderKeyTx looks up the order key of id.
func orderKeyTx(ctx context.Context, tx *sql.Tx, id string) (int64, bool, error) {
	var key int64
	err := tx.QueryRowContext(ctx, `SELECT order_key FROM items WHERE id = ?`, id).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lookup %s: %w", id, err)
	}
	return key, true, nil
}

// shiftTx applies sh to keys (ascending) one row at a time from the highest
// key down. Each moved row lands on a key its successor has already vacated,
// so UNIQUE(sequence_key, order_key) holds after every statement.
func shiftTx(ctx context.Context, tx *sql.Tx, sequenceKey string, keys []int64, sh reindex.Shift) error {
	for i := len(keys) - 1; i >= 0 && keys[i] >= sh.From; i-- {
		_, err := tx.ExecContext(ctx, `
			UPDATE items SET order_key = ?
			WHERE sequence_key = ? AND order_key = ?
		`, keys[i]+sh.Delta, sequenceKey, keys[i])
		if err != nil {
			return fmt.Errorf("shift key %d: %w", keys[i], err)
		}
	}
	return nil
}

func insertTx(ctx context.Context, tx *sql.Tx, sequenceKey string, key int64, it item.Item, payloadJSON string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO items (id, sequence_key, order_key, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		it.ID,
		sequenceKey,
		key,
		payloadJSON,
		formatTime(it.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert row: %w", err)
	}
	return nil
}
