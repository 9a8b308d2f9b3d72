package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted session against one sequence: seed data, a list of
// steps, and assertions on the final state.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Sequence is the sequence key. Defaults to "quest".
	Sequence string `yaml:"sequence,omitempty"`

	// Stride is the order-key spacing. Defaults to 1000.
	Stride int64 `yaml:"stride,omitempty"`

	// PageSize bounds each fetched page. Defaults to 50.
	PageSize int `yaml:"page_size,omitempty"`

	// HoldWrites keeps the writer loop stopped until a commit step, so
	// optimistic state can be observed.
	HoldWrites bool `yaml:"hold_writes,omitempty"`

	// Local and Remote seed the two stores before the first load.
	Local  []SeedItem `yaml:"local,omitempty"`
	Remote []SeedItem `yaml:"remote,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the state after the last step.
	Assertions []Assertion `yaml:"assertions"`
}

// SeedItem is one pre-existing row.
type SeedItem struct {
	ID   string `yaml:"id"`
	Key  int64  `yaml:"key"`
	Name string `yaml:"name,omitempty"`
}

// Step is one user or environment action.
type Step struct {
	// Op selects the action; see the Op constants.
	Op string `yaml:"op"`

	// ID targets an existing item. Unused by insert and record.
	ID string `yaml:"id,omitempty"`

	// Index is the rendered position for insert, record, move and
	// set_cursor. Insert and record use the cursor when it is omitted.
	Index *int `yaml:"index,omitempty"`

	// Key is the order key of a remote_put.
	Key int64 `yaml:"key,omitempty"`

	// Name is the payload name for insert, stop, rename and remote_put.
	Name string `yaml:"name,omitempty"`

	// Error is the message of a fail_next_write.
	Error string `yaml:"error,omitempty"`

	// Conflict makes a fail_next_write report a write conflict.
	Conflict bool `yaml:"conflict,omitempty"`

	// Enabled is the offline flag of an offline step. Defaults to true.
	Enabled *bool `yaml:"enabled,omitempty"`

	// ExpectError marks a step that must fail.
	ExpectError bool `yaml:"expect_error,omitempty"`
}

// Step ops.
const (
	OpInsert        = "insert"
	OpRecord        = "record"
	OpStop          = "stop"
	OpRetry         = "retry"
	OpDiscard       = "discard"
	OpDelete        = "delete"
	OpMove          = "move"
	OpRename        = "rename"
	OpCommit        = "commit"
	OpCompact       = "compact"
	OpRemotePut     = "remote_put"
	OpRemoteDelete  = "remote_delete"
	OpFailNextWrite = "fail_next_write"
	OpRefresh       = "refresh"
	OpNextPage      = "next_page"
	OpSetCursor     = "set_cursor"
	OpOffline       = "offline"
)

// Assertion validates final state.
type Assertion struct {
	// Type is one of the Assert constants.
	Type string `yaml:"type"`

	// IDs is the expected order (order, store_order).
	IDs []string `yaml:"ids,omitempty"`

	// ID is the item checked by count, source and status.
	ID string `yaml:"id,omitempty"`

	// Count is the expected number of rendered copies (count).
	Count *int `yaml:"count,omitempty"`

	// Source is the expected source tag (source).
	Source string `yaml:"source,omitempty"`

	// Status is the expected pending status, or "none" (status).
	Status string `yaml:"status,omitempty"`

	// Cursor is the expected cursor (cursor).
	Cursor *int `yaml:"cursor,omitempty"`
}

// Assertion types.
const (
	AssertOrder      = "order"
	AssertStoreOrder = "store_order"
	AssertCount      = "count"
	AssertSource     = "source"
	AssertStatus     = "status"
	AssertUniqueKeys = "unique_keys"
	AssertCursor     = "cursor"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	applyDefaults(&scenario)
	return &scenario, nil
}

func applyDefaults(s *Scenario) {
	if s.Sequence == "" {
		s.Sequence = "quest"
	}
	if s.Stride == 0 {
		s.Stride = 1000
	}
	if s.PageSize == 0 {
		s.PageSize = 50
	}
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Stride < 0 || s.Stride == 1 {
		return fmt.Errorf("stride must be at least 2")
	}
	if s.PageSize < 0 {
		return fmt.Errorf("page_size must be positive")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, seed := range append(append([]SeedItem(nil), s.Local...), s.Remote...) {
		if seed.ID == "" {
			return fmt.Errorf("seed[%d]: id is required", i)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step Step) error {
	switch step.Op {
	case OpInsert, OpRecord, OpCommit, OpCompact, OpRefresh, OpNextPage, OpOffline, OpFailNextWrite:
	case OpStop, OpRetry, OpDiscard, OpDelete, OpRemoteDelete:
		if step.ID == "" {
			return fmt.Errorf("steps[%d]: id is required for %s", i, step.Op)
		}
	case OpMove, OpSetCursor:
		if step.Op == OpMove && step.ID == "" {
			return fmt.Errorf("steps[%d]: id is required for move", i)
		}
		if step.Index == nil {
			return fmt.Errorf("steps[%d]: index is required for %s", i, step.Op)
		}
	case OpRename:
		if step.ID == "" || step.Name == "" {
			return fmt.Errorf("steps[%d]: id and name are required for rename", i)
		}
	case OpRemotePut:
		if step.ID == "" {
			return fmt.Errorf("steps[%d]: id is required for remote_put", i)
		}
	case "":
		return fmt.Errorf("steps[%d]: op is required", i)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertOrder, AssertStoreOrder:
		if a.IDs == nil {
			return fmt.Errorf("assertions[%d]: ids is required for %s (use [] for empty)", index, a.Type)
		}
	case AssertCount:
		if a.ID == "" || a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: id and a non-negative count are required for count", index)
		}
	case AssertSource:
		if a.ID == "" || a.Source == "" {
			return fmt.Errorf("assertions[%d]: id and source are required for source", index)
		}
	case AssertStatus:
		if a.ID == "" || a.Status == "" {
			return fmt.Errorf("assertions[%d]: id and status are required for status", index)
		}
	case AssertCursor:
		if a.Cursor == nil {
			return fmt.Errorf("assertions[%d]: cursor is required for cursor", index)
		}
	case AssertUniqueKeys:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
