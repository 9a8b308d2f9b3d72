package store

import (
	"database/sql"
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	"github.com/roach88/hybridseq/internal/item"
)

const timeLayout = time.RFC3339Nano

// marshalPayload converts a Payload to JSON TEXT for storage.
func marshalPayload(p item.Payload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return string(data), nil
}

// unmarshalPayload parses JSON TEXT into a Payload.
func unmarshalPayload(data string) (item.Payload, error) {
	var p item.Payload
	if data == "" || data == "{}" {
		return p, nil
	}
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return p, fmt.Errorf("unmarshal payload: %w", err)
	}
	return p, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse created_at %q: %w", s, err)
	}
	return t, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanItem reads id, sequence_key, order_key, payload, created_at.
func scanItem(row scanner, source item.Source) (item.Item, error) {
	var it item.Item
	var payloadJSON, created string

	if err := row.Scan(&it.ID, &it.SequenceKey, &it.OrderKey, &payloadJSON, &created); err != nil {
		if err == sql.ErrNoRows {
			return it, ErrNotFound
		}
		return it, fmt.Errorf("scan item: %w", err)
	}

	payload, err := unmarshalPayload(payloadJSON)
	if err != nil {
		return it, err
	}
	createdAt, err := parseTime(created)
	if err != nil {
		return it, err
	}

	it.Payload = payload
	it.CreatedAt = createdAt
	it.Source = source
	return it, nil
}
