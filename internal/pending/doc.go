// Package pending tracks optimistic entries: items shown in a sequence
// before their durable write has landed.
//
// Each entry moves through a small state machine:
//
//	Recording ──BeginCommit──▶ Committing ──MarkCommitted──▶ Committed
//	    ▲                          │
//	    └────────Retry──── Failed ◀┘ Fail
//
// Recording and Failed entries may be discarded. Any entry whose ID is
// observed in a durable fetch is retired by Observe, whatever its status;
// this covers the race where a fetch outruns the write bookkeeping. A
// Committed entry stays visible until it is observed, so the item never
// disappears between the write acknowledging and the next page arriving.
//
// Overlay renders durable items with the visible entries on top. Each
// entry's planned shift is replayed in creation order, so an entry inserted
// into a full gap pushes its successors exactly as the store will.
package pending
