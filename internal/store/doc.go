// Package store provides SQLite-backed durable storage for ordered
// sequences.
//
// The store keeps one row per item with a (sequence_key, order_key) UNIQUE
// constraint: within a sequence no two items may share an order key. Every
// read orders by order_key ASC, id ASC COLLATE BINARY so page boundaries are
// stable.
//
// # Transactional reindexing
//
// InsertAt, Move and Compact run read-modify-write inside one transaction.
// Shifts are applied row by row in descending key order so the UNIQUE
// constraint never trips midway. Either the shift and the write both commit
// or neither does; readers never see a half-shifted sequence.
//
// Lock contention (SQLITE_BUSY / SQLITE_LOCKED) and order-key constraint
// violations are reported as *reindex.WriteConflictError so callers can
// retry against a fresh snapshot.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - _txlock=immediate: Transactions take the write lock at BEGIN
package store
