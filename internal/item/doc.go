// Package item defines the records shared by every layer of the engine.
//
// An Item is one logical record in a Sequence: a stable ID, an integer
// OrderKey giving its position, an opaque Payload and a Source tag saying
// where the copy came from (local store, remote mirror, or an optimistic
// entry not yet durably committed).
//
// # Identity
//
// IDs are compared through NormalizeID. The local store may hold undashed
// UUIDs while the cloud mirror returns dashed ones, so two spellings of the
// same UUID must collapse to one key.
//
// # Ordering
//
// Within a Sequence, OrderKey values are unique and form a total order.
// Gaps are permitted, ties are not. Rendering order is ascending OrderKey;
// SortByOrderKey breaks ties by ID so output stays deterministic even if a
// misbehaving store returns duplicates.
package item
