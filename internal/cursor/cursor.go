// Package cursor tracks the insertion boundary of a Sequence view.
//
// The cursor is a single index in [0, len(sequence)]. Index k means "insert
// before the item currently at position k"; len means "append". Every
// successful insert at k moves the cursor to k+1 so consecutive recordings
// land one after another. An explicit Set from the UI overrides that.
package cursor

import "sync"

// Cursor is safe for concurrent use.
type Cursor struct {
	mu  sync.Mutex
	pos int
	n   int
}

// New creates a cursor at position 0 over an empty sequence.
func New() *Cursor {
	return &Cursor{}
}

// Get returns the current position.
func (c *Cursor) Get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pos
}

// Len returns the sequence length the cursor was last clamped to.
func (c *Cursor) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// Set moves the cursor, clamped to the known length.
func (c *Cursor) Set(i int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pos = clamp(i, c.n)
}

// ClampTo records a new sequence length and pulls the cursor into
// [0, n]. Must run after every mutation before the cursor is read.
func (c *Cursor) ClampTo(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n < 0 {
		n = 0
	}
	c.n = n
	c.pos = clamp(c.pos, n)
}

// Advance records a successful insert at index k: the sequence grew by one
// and the cursor moves just past the new item.
func (c *Cursor) Advance(k int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	c.pos = clamp(k+1, c.n)
}

// OnRemove records removal of the item at idx. If it sat before the cursor
// the cursor shifts left so it keeps pointing at the same boundary.
func (c *Cursor) OnRemove(idx int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.n > 0 {
		c.n--
	}
	if idx < c.pos {
		c.pos--
	}
	c.pos = clamp(c.pos, c.n)
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}
