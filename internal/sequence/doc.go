// Package sequence is the engine behind one ordered list view.
//
// A Sequence combines the dual-source Fetcher, the pending entry Set, the
// insertion Cursor and a Reindexer-wrapped Writer. Reads are served from
// the fetcher's resolved view with optimistic entries overlaid; they run
// concurrently with everything else.
//
// # Single writer
//
// Every durable mutation (insert, delete, move, rename) is enqueued and
// applied by Run, one at a time, in FIFO order. After each mutation the
// cache partition is invalidated and both sources are refetched before the
// next mutation starts, so the writer always plans against the store's
// current state.
//
// Run must be called from exactly one goroutine. Mutating methods that
// wait for their result block until Run processes them.
//
// # Optimistic inserts
//
// InsertAt places a pending entry immediately, planned against the rendered
// view, and returns a Ticket. The entry renders at its target key until a
// fetch observes the durable row with the same ID. A failed write leaves the
// entry visible in the Failed state for Retry or Discard.
package sequence
