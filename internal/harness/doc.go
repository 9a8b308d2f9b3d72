// Package harness runs scripted sequence sessions and checks their outcome.
//
// A scenario seeds a local SQLite store and an in-memory cloud mirror, then
// drives a sequence through inserts, recordings, deletes, moves, renames,
// remote changes, injected write failures and connectivity changes. After
// every step the rendered view is recorded; the final state is checked
// against the scenario's assertions and, in tests, a golden snapshot.
//
// # Scenario Format
//
//	name: insert_between
//	description: "Insert lands between its neighbours"
//	stride: 10
//	local:
//	  - { id: a, key: 10 }
//	  - { id: b, key: 20 }
//	steps:
//	  - op: insert
//	    index: 1
//	    name: middle
//	assertions:
//	  - type: order
//	    ids: [a, seg-0001, b]
//
// Generated IDs are seg-0001, seg-0002, ... in creation order, and the clock
// starts at 2024-01-01T00:00:00Z, so runs are reproducible.
//
// With hold_writes set, inserts stay optimistic until a commit step starts
// the writer loop. Deletes, moves and renames of durable items need the
// loop and fail while it is held.
//
// # View Notation
//
// Trace views list items as id@order_key(source). Optimistic entries add
// their pending status, for example seg-0001@15(optimistic:recording).
package harness
