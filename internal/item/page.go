package item

import (
	"strings"
	"time"
)

// Params is the ordered tuple of query parameters identifying a Sequence
// query (e.g. a quest ID). It participates in cache keys.
type Params []string

// String joins the parameters for use in log lines and cache keys.
func (p Params) String() string {
	return strings.Join(p, "/")
}

// HasPrefix reports whether p begins with prefix.
func (p Params) HasPrefix(prefix Params) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i := range prefix {
		if p[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Page is a bounded batch of Items from one source for one query.
//
// Cursor is the page number that produced it. NextCursor is only
// meaningful when HasMore is true.
type Page struct {
	Source     Source
	Items      []Item
	Cursor     int
	NextCursor int
	HasMore    bool
}

// NewPage builds a page for cursor, deriving HasMore from whether the batch
// filled pageSize.
func NewPage(source Source, items []Item, cursor, pageSize int) Page {
	if items == nil {
		items = []Item{}
	}
	full := pageSize > 0 && len(items) == pageSize
	p := Page{
		Source:  source,
		Items:   items,
		Cursor:  cursor,
		HasMore: full,
	}
	if full {
		p.NextCursor = cursor + 1
	}
	return p
}

// Flatten concatenates the items of pages in order.
func Flatten(pages []Page) []Item {
	var n int
	for _, p := range pages {
		n += len(p.Items)
	}
	out := make([]Item, 0, n)
	for _, p := range pages {
		out = append(out, p.Items...)
	}
	return out
}

// RemoteRecord is the row shape returned by the cloud mirror. Column names
// differ from the local store, and timestamps arrive as RFC 3339 strings.
type RemoteRecord struct {
	ID          string `json:"id"`
	SequenceKey string `json:"quest_id"`
	OrderIndex  int64  `json:"order_index"`
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	Text        string `json:"text"`
	AudioID     string `json:"audio_id"`
	DurationMS  int64  `json:"duration_ms"`
	CreatedAt   string `json:"created_at"`
}

// FromRemote converts a cloud row into an Item tagged SourceRemote.
// An unparsable timestamp yields the zero time rather than an error.
func FromRemote(r RemoteRecord) Item {
	created, _ := time.Parse(time.RFC3339Nano, r.CreatedAt)
	return Item{
		ID:          r.ID,
		SequenceKey: r.SequenceKey,
		OrderKey:    r.OrderIndex,
		Payload: Payload{
			Name:           r.Name,
			Kind:           Kind(r.Kind),
			Text:           r.Text,
			AudioRef:       r.AudioID,
			DurationMillis: r.DurationMS,
		},
		Source:    SourceRemote,
		CreatedAt: created,
	}
}

// ToRemote converts an Item into the cloud row shape.
func ToRemote(it Item) RemoteRecord {
	var created string
	if !it.CreatedAt.IsZero() {
		created = it.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	return RemoteRecord{
		ID:          it.ID,
		SequenceKey: it.SequenceKey,
		OrderIndex:  it.OrderKey,
		Name:        it.Payload.Name,
		Kind:        string(it.Payload.Kind),
		Text:        it.Payload.Text,
		AudioID:     it.Payload.AudioRef,
		DurationMS:  it.Payload.DurationMillis,
		CreatedAt:   created,
	}
}
