package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/hybridseq/internal/item"
	"github.com/roach88/hybridseq/internal/querysql"
)

const itemColumns = "id, sequence_key, order_key, payload, created_at"

// ReadPage returns one page of a sequence, tagged with source.
// cursor is a zero-based page number. Results are ordered by
// order_key ASC, id ASC COLLATE BINARY.
func (s *Store) ReadPage(ctx context.Context, source item.Source, sequenceKey string, cursor, pageSize int) (item.Page, error) {
	query, params, err := s.compiler.Compile(querysql.Select{
		Table:   "items",
		Columns: []string{"id", "sequence_key", "order_key", "payload", "created_at"},
		Filter:  querysql.Equals{Field: "sequence_key", Value: sequenceKey},
		Limit:   pageSize,
		Offset:  querysql.PageOffset(cursor, pageSize),
	})
	if err != nil {
		return item.Page{}, fmt.Errorf("read page: %w", err)
	}

	items, err := s.queryItems(ctx, s.db, source, query, params...)
	if err != nil {
		return item.Page{}, fmt.Errorf("read page: %w", err)
	}
	return item.NewPage(source, items, cursor, pageSize), nil
}

// PageQuery adapts ReadPage to the fetcher's query function shape. The first
// query parameter is the sequence key.
func (s *Store) PageQuery(source item.Source, pageSize int) func(context.Context, item.Params, int) (item.Page, error) {
	return func(ctx context.Context, params item.Params, cursor int) (item.Page, error) {
		if len(params) == 0 {
			return item.Page{}, fmt.Errorf("page query: missing sequence key parameter")
		}
		return s.ReadPage(ctx, source, params[0], cursor, pageSize)
	}
}

// ReadSequence returns every item of a sequence in order.
// Returns an empty slice (not nil) if the sequence is empty.
func (s *Store) ReadSequence(ctx context.Context, sequenceKey string) ([]item.Item, error) {
	items, err := s.queryItems(ctx, s.db, item.SourceLocal, `
		SELECT `+itemColumns+`
		FROM items
		WHERE sequence_key = ?
		ORDER BY order_key ASC, id ASC COLLATE BINARY
	`, sequenceKey)
	if err != nil {
		return nil, fmt.Errorf("read sequence: %w", err)
	}
	return items, nil
}

// ReadItem retrieves a single item by ID.
// Returns ErrNotFound if it does not exist.
func (s *Store) ReadItem(ctx context.Context, id string) (item.Item, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE id = ?
	`, id)
	return scanItem(row, item.SourceLocal)
}

// CountSequence returns the number of items in a sequence.
func (s *Store) CountSequence(ctx context.Context, sequenceKey string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items WHERE sequence_key = ?`, sequenceKey).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sequence: %w", err)
	}
	return n, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) queryItems(ctx context.Context, q querier, source item.Source, query string, args ...any) ([]item.Item, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	items := []item.Item{}
	for rows.Next() {
		it, err := scanItem(rows, source)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

// readKeysTx returns the ordered (id, order_key) pairs of a sequence inside tx.
func readKeysTx(ctx context.Context, tx *sql.Tx, sequenceKey string) ([]string, []int64, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, order_key
		FROM items
		WHERE sequence_key = ?
		ORDER BY order_key ASC, id ASC COLLATE BINARY
	`, sequenceKey)
	if err != nil {
		return nil, nil, fmt.Errorf("read keys: %w", err)
	}
	defer rows.Close()

	var ids []string
	var keys []int64
	for rows.Next() {
		var id string
		var key int64
		if err := rows.Scan(&id, &key); err != nil {
			return nil, nil, fmt.Errorf("scan key: %w", err)
		}
		ids = append(ids, id)
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate keys: %w", err)
	}
	return ids, keys, nil
}
