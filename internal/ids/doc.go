// Package ids supplies item identifiers and wall-clock time to the sequence
// engine behind small interfaces, so tests and scenario runs can replace both
// with deterministic versions.
package ids
