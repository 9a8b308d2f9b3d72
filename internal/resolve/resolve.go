// Package resolve merges local and remote pages into one de-duplicated
// collection and reconciles optimistic entries against durable data.
//
// Both functions are pure and synchronous. Output order is insertion-stable:
// local items first, then remote-only items, each in input order. Sorting by
// order key is the consumer's job (see item.SortByOrderKey).
package resolve

import (
	"fmt"

	"github.com/roach88/hybridseq/internal/item"
)

// DuplicateIDError reports that one source returned the same ID twice.
// The first-seen copy is kept; the error is informational.
type DuplicateIDError struct {
	Source item.Source
	ID     string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("duplicate id %q in %s pages", e.ID, e.Source)
}

// Result is the output of Resolve.
type Result struct {
	// Items is the merged, de-duplicated collection.
	Items []item.Item

	// Dropped counts items filtered for a missing ID.
	Dropped int

	// Duplicates lists same-source duplicates that were collapsed.
	Duplicates []*DuplicateIDError
}

// Resolve merges local and remote pages. For an ID present in both, the
// local copy wins and the remote copy is discarded. Items whose ID
// normalizes to nothing, such as "" or "-", are dropped and counted; the
// caller decides how to log them.
//
// Either input may be empty, in which case the result equals the other side.
func Resolve(local, remote []item.Page) Result {
	res := Result{Items: []item.Item{}}
	seen := make(map[string]struct{})

	add := func(pages []item.Page, src item.Source) {
		// Tracks IDs contributed by this source, to tell a same-source
		// duplicate apart from the expected local/remote overlap.
		own := make(map[string]struct{})
		for _, page := range pages {
			for _, it := range page.Items {
				key := it.Key()
				if key == "" {
					res.Dropped++
					continue
				}
				if _, dup := own[key]; dup {
					res.Duplicates = append(res.Duplicates, &DuplicateIDError{Source: src, ID: it.ID})
					continue
				}
				own[key] = struct{}{}
				if _, taken := seen[key]; taken {
					continue
				}
				seen[key] = struct{}{}
				res.Items = append(res.Items, it.WithSource(src))
			}
		}
	}

	add(local, item.SourceLocal)
	add(remote, item.SourceRemote)

	return res
}

// Reconcile drops optimistic items whose ID appears in durable and returns
// the IDs it retired. Non-optimistic items in current pass through untouched.
// Duplicates must never render together, so this runs on every page arrival.
func Reconcile(current []item.Item, durable []item.Item) (items []item.Item, retired []string) {
	durableIDs := make(map[string]struct{}, len(durable))
	for _, d := range durable {
		if d.Source.Durable() {
			durableIDs[d.Key()] = struct{}{}
		}
	}

	items = make([]item.Item, 0, len(current))
	for _, it := range current {
		if it.Source == item.SourceOptimistic {
			if _, ok := durableIDs[it.Key()]; ok {
				retired = append(retired, it.ID)
				continue
			}
		}
		items = append(items, it)
	}
	return items, retired
}
