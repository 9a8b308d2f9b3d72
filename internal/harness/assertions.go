package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/hybridseq/internal/item"
	"github.com/roach88/hybridseq/internal/testutil"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s -> %v\n", event.Step, event.Op, event.ID, event.View)
		}
	}

	return buf.String()
}

// EvaluateAssertions checks every assertion against result and returns the
// failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %v", i+1, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertOrder:
		return assertOrder(a.Type, testutil.IDs(result.Items), a.IDs, result.Trace)
	case AssertStoreOrder:
		return assertOrder(a.Type, testutil.IDs(result.Stored), a.IDs, result.Trace)
	case AssertCount:
		return assertCount(result, a)
	case AssertSource:
		return assertSource(result, a)
	case AssertStatus:
		return assertStatus(result, a)
	case AssertUniqueKeys:
		return assertUniqueKeys(result)
	case AssertCursor:
		if result.Cursor != *a.Cursor {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("cursor %d", *a.Cursor),
				Actual:   fmt.Sprintf("cursor %d", result.Cursor),
				Trace:    result.Trace,
			}
		}
		return nil
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

func assertOrder(typ string, actual, expected []string, trace []TraceEvent) error {
	if slices.Equal(actual, expected) {
		return nil
	}
	return &AssertionError{
		Type:     typ,
		Expected: fmt.Sprintf("%v", expected),
		Actual:   fmt.Sprintf("%v", actual),
		Trace:    trace,
	}
}

// assertCount checks how many rendered copies of an ID exist. A correct
// engine never renders one twice.
func assertCount(result *Result, a Assertion) error {
	n := testutil.CountID(result.Items, a.ID)
	if n != *a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d rendered copies of %s", *a.Count, a.ID),
			Actual:   fmt.Sprintf("%d copies", n),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertSource(result *Result, a Assertion) error {
	pos := item.IndexOf(result.Items, a.ID)
	if pos < 0 {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s rendered with source %s", a.ID, a.Source),
			Actual:   "not rendered",
			Trace:    result.Trace,
		}
	}
	if got := result.Items[pos].Source; string(got) != a.Source {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s rendered with source %s", a.ID, a.Source),
			Actual:   fmt.Sprintf("source %s", got),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertStatus(result *Result, a Assertion) error {
	got := "none"
	if st, ok := result.Pending[a.ID]; ok {
		got = string(st)
	}
	if got != a.Status {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s pending status %s", a.ID, a.Status),
			Actual:   fmt.Sprintf("status %s", got),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertUniqueKeys checks both the store and the rendered view.
func assertUniqueKeys(result *Result) error {
	for _, set := range []struct {
		name  string
		items []item.Item
	}{
		{"store", result.Stored},
		{"view", result.Items},
	} {
		if !testutil.UniqueOrderKeys(set.items) {
			return &AssertionError{
				Type:     AssertUniqueKeys,
				Expected: fmt.Sprintf("unique order keys in %s", set.name),
				Actual:   fmt.Sprintf("%v", set.items),
				Trace:    result.Trace,
			}
		}
	}
	return nil
}
