package testutil

import (
	"github.com/roach88/hybridseq/internal/item"
)

// Item builds a local item with the given id and order key.
func Item(sequenceKey, id string, orderKey int64) item.Item {
	return item.Item{
		ID:          id,
		SequenceKey: sequenceKey,
		OrderKey:    orderKey,
		Payload:     item.Payload{Name: id, Kind: item.KindText},
		Source:      item.SourceLocal,
		CreatedAt:   Epoch,
	}
}

// IDs returns the IDs of items in order.
func IDs(items []item.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

// CountID returns how many items carry id, compared in normalized form.
func CountID(items []item.Item, id string) int {
	n := 0
	for _, it := range items {
		if item.SameID(it.ID, id) {
			n++
		}
	}
	return n
}

// UniqueOrderKeys reports whether no two items share an order key.
func UniqueOrderKeys(items []item.Item) bool {
	seen := make(map[int64]struct{}, len(items))
	for _, it := range items {
		if _, dup := seen[it.OrderKey]; dup {
			return false
		}
		seen[it.OrderKey] = struct{}{}
	}
	return true
}
