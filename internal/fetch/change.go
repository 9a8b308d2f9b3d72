package fetch

import (
	"github.com/roach88/hybridseq/internal/item"
)

// ChangeKind is the type of a realtime remote change.
type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// Change is one row event pushed by the cloud mirror.
type Change struct {
	Kind ChangeKind
	Item item.Item
}

// patchPages applies ch to remote pages and reports whether anything
// changed. Inserts de-duplicate by ID and land on the last page; updates
// replace in place; deletes remove every copy.
func patchPages(pages []item.Page, ch Change) ([]item.Page, bool) {
	it := ch.Item.WithSource(item.SourceRemote)
	want := it.Key()
	if want == "" {
		return pages, false
	}

	pos := func() (int, int) {
		for p := range pages {
			for i := range pages[p].Items {
				if pages[p].Items[i].Key() == want {
					return p, i
				}
			}
		}
		return -1, -1
	}

	switch ch.Kind {
	case ChangeInsert:
		if p, _ := pos(); p >= 0 {
			return pages, false
		}
		if len(pages) == 0 {
			return []item.Page{{Source: item.SourceRemote, Items: []item.Item{it}}}, true
		}
		last := len(pages) - 1
		pages[last].Items = append(pages[last].Items, it)
		return pages, true

	case ChangeUpdate:
		p, i := pos()
		if p < 0 {
			return pages, false
		}
		pages[p].Items[i] = it
		return pages, true

	case ChangeDelete:
		changed := false
		for p := range pages {
			kept := pages[p].Items[:0]
			for _, existing := range pages[p].Items {
				if existing.Key() == want {
					changed = true
					continue
				}
				kept = append(kept, existing)
			}
			pages[p].Items = kept
		}
		return pages, changed
	}
	return pages, false
}
