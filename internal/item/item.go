package item

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// ErrNotFound is returned by stores for an item that does not exist.
var ErrNotFound = errors.New("item not found")

// Source tags where a copy of an Item came from.
type Source string

const (
	// SourceLocal is the on-device store. It is the primary source of truth.
	SourceLocal Source = "local"
	// SourceRemote is the cloud mirror.
	SourceRemote Source = "remote"
	// SourceOptimistic marks an entry shown before its durable write lands.
	SourceOptimistic Source = "optimistic"
)

// String implements fmt.Stringer.
func (s Source) String() string { return string(s) }

// Durable reports whether the source is backed by a store.
func (s Source) Durable() bool {
	return s == SourceLocal || s == SourceRemote
}

// Kind distinguishes the user-created segment types.
type Kind string

const (
	KindAudio Kind = "audio"
	KindText  Kind = "text"
)

// Payload is the content carried by an Item. The engine never branches on
// it apart from Rename, which rewrites Name.
type Payload struct {
	Name           string `json:"name"`
	Kind           Kind   `json:"kind,omitempty"`
	Text           string `json:"text,omitempty"`
	AudioRef       string `json:"audio_ref,omitempty"`
	DurationMillis int64  `json:"duration_ms,omitempty"`
}

// Item is one logical record in a Sequence.
type Item struct {
	ID          string    `json:"id"`
	SequenceKey string    `json:"sequence_key"`
	OrderKey    int64     `json:"order_key"`
	Payload     Payload   `json:"payload"`
	Source      Source    `json:"source"`
	CreatedAt   time.Time `json:"created_at"`
}

// Key returns the normalized identity used for de-duplication.
func (it Item) Key() string {
	return NormalizeID(it.ID)
}

// WithSource returns a copy of the item tagged with s.
func (it Item) WithSource(s Source) Item {
	it.Source = s
	return it
}

// String implements fmt.Stringer.
func (it Item) String() string {
	return fmt.Sprintf("%s@%d(%s)", it.ID, it.OrderKey, it.Source)
}

// NormalizeID folds an identifier into its comparison form: NFC normalized,
// lower-cased, with dashes removed. "A1B2-..." and "a1b2..." compare equal.
func NormalizeID(id string) string {
	id = norm.NFC.String(strings.TrimSpace(id))
	id = strings.ToLower(id)
	return strings.ReplaceAll(id, "-", "")
}

// SameID reports whether a and b name the same logical record.
func SameID(a, b string) bool {
	return NormalizeID(a) == NormalizeID(b)
}

// SortByOrderKey sorts items in place by ascending OrderKey, then ID.
func SortByOrderKey(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].OrderKey != items[j].OrderKey {
			return items[i].OrderKey < items[j].OrderKey
		}
		return items[i].Key() < items[j].Key()
	})
}

// IndexOf returns the position of the item with the given id, or -1.
func IndexOf(items []Item, id string) int {
	want := NormalizeID(id)
	for i, it := range items {
		if it.Key() == want {
			return i
		}
	}
	return -1
}

// OrderKeys extracts the order keys of items in their current order.
func OrderKeys(items []Item) []int64 {
	keys := make([]int64, len(items))
	for i, it := range items {
		keys[i] = it.OrderKey
	}
	return keys
}
