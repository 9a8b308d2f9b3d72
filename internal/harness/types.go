package harness

import (
	"fmt"

	"github.com/roach88/hybridseq/internal/item"
	"github.com/roach88/hybridseq/internal/pending"
)

// TraceEvent records one step and the rendered view right after it.
type TraceEvent struct {
	Step   int      `json:"step"`
	Op     string   `json:"op"`
	ID     string   `json:"id,omitempty"`
	Failed bool     `json:"failed,omitempty"`
	Cursor int      `json:"cursor"`
	View   []string `json:"view"`

	err error
}

// Err returns the step's error, if it failed.
func (e TraceEvent) Err() error {
	return e.err
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true when no step failed unexpectedly and every assertion held.
	Pass bool `json:"pass"`

	// Trace holds one event per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Items is the final rendered view.
	Items []item.Item `json:"-"`

	// Stored is the final content of the local store.
	Stored []item.Item `json:"-"`

	// Pending is the final pending status per ID.
	Pending map[string]pending.Status `json:"-"`

	// Cursor is the final insertion cursor.
	Cursor int `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Trace:   []TraceEvent{},
		Errors:  []string{},
		Pending: make(map[string]pending.Status),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// describe renders items as id@key(source), with the pending status of
// optimistic entries appended.
func describe(items []item.Item, status map[string]pending.Status) []string {
	out := make([]string, len(items))
	for i, it := range items {
		if st, ok := status[it.ID]; ok && it.Source == item.SourceOptimistic {
			out[i] = fmt.Sprintf("%s@%d(%s:%s)", it.ID, it.OrderKey, it.Source, st)
			continue
		}
		out[i] = it.String()
	}
	return out
}
