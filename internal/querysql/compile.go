// Package querysql compiles sequence page queries into parameterized SQLite
// statements.
//
// Every compiled query ends in ORDER BY order_key ASC, id ASC COLLATE BINARY
// so pages are deterministic and non-overlapping for a stable table. Values
// are always bound through ? placeholders, never interpolated. Column names
// are checked against an allow-list because they are the only identifiers
// spliced into the statement text.
package querysql

import (
	"fmt"
	"strings"
)

// Predicate is a WHERE clause fragment.
type Predicate interface {
	predicate()
}

// Equals matches field = value.
type Equals struct {
	Field string
	Value any
}

// And is the conjunction of its predicates. An empty And is always true.
type And struct {
	Predicates []Predicate
}

// Between matches low <= field <= high.
type Between struct {
	Field string
	Low   any
	High  any
}

func (Equals) predicate()  {}
func (And) predicate()     {}
func (Between) predicate() {}

// Select is a paginated read of one table.
type Select struct {
	Table   string
	Columns []string
	Filter  Predicate

	// Limit <= 0 means no limit. Offset applies only with a limit.
	Limit  int
	Offset int
}

// Compiler turns Select values into SQL.
type Compiler struct {
	tables  map[string]bool
	columns map[string]bool
}

// NewCompiler creates a compiler that accepts only the listed tables and
// columns.
func NewCompiler(tables, columns []string) *Compiler {
	c := &Compiler{
		tables:  make(map[string]bool, len(tables)),
		columns: make(map[string]bool, len(columns)),
	}
	for _, t := range tables {
		c.tables[t] = true
	}
	for _, col := range columns {
		c.columns[col] = true
	}
	return c
}

// Compile returns the SQL text and its bound parameters.
func (c *Compiler) Compile(q Select) (string, []any, error) {
	if !c.tables[q.Table] {
		return "", nil, fmt.Errorf("unknown table %q", q.Table)
	}

	cols := "*"
	if len(q.Columns) > 0 {
		for _, col := range q.Columns {
			if !c.columns[col] {
				return "", nil, fmt.Errorf("unknown column %q", col)
			}
		}
		cols = strings.Join(q.Columns, ", ")
	}

	var b strings.Builder
	var params []any
	fmt.Fprintf(&b, "SELECT %s FROM %s", cols, q.Table)

	if q.Filter != nil {
		where, whereParams, err := c.compilePredicate(q.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		b.WriteString(" WHERE ")
		b.WriteString(where)
		params = append(params, whereParams...)
	}

	b.WriteString(" ORDER BY order_key ASC, id ASC COLLATE BINARY")

	if q.Limit > 0 {
		b.WriteString(" LIMIT ? OFFSET ?")
		offset := q.Offset
		if offset < 0 {
			offset = 0
		}
		params = append(params, q.Limit, offset)
	}

	return b.String(), params, nil
}

func (c *Compiler) compilePredicate(p Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case Equals:
		if !c.columns[pred.Field] {
			return "", nil, fmt.Errorf("unknown column %q", pred.Field)
		}
		return pred.Field + " = ?", []any{pred.Value}, nil
	case Between:
		if !c.columns[pred.Field] {
			return "", nil, fmt.Errorf("unknown column %q", pred.Field)
		}
		return pred.Field + " BETWEEN ? AND ?", []any{pred.Low, pred.High}, nil
	case And:
		if len(pred.Predicates) == 0 {
			return "1 = 1", nil, nil
		}
		parts := make([]string, 0, len(pred.Predicates))
		var params []any
		for _, sub := range pred.Predicates {
			sql, subParams, err := c.compilePredicate(sub)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, sql)
			params = append(params, subParams...)
		}
		return strings.Join(parts, " AND "), params, nil
	case nil:
		return "1 = 1", nil, nil
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// PageOffset converts a zero-based page cursor into a row offset.
func PageOffset(cursor, pageSize int) int {
	if cursor < 0 || pageSize <= 0 {
		return 0
	}
	return cursor * pageSize
}
