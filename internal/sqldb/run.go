package sqldb

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Statement types the executor accepts. Anything else is rejected before it
// reaches the engine.
var acceptedVerbs = []string{"SELECT", "INSERT", "UPDATE", "DELETE"}

// HasAcceptedVerb reports whether the query starts with one of the accepted
// statement types, case-insensitively.
func HasAcceptedVerb(query string) bool {
	upper := strings.ToUpper(strings.TrimSpace(query))
	for _, verb := range acceptedVerbs {
		if strings.HasPrefix(upper, verb) {
			return true
		}
	}
	return false
}

// Result is the outcome of one executed query: a row set for SELECT, a
// rows-affected count rendered as a one-cell row set for DML.
type Result struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

func (r *Result) Empty() bool {
	return len(r.Rows) == 0
}

// String renders the result as plain text for the synthesis prompt and the
// attempt log.
func (r *Result) String() string {
	if r.Empty() {
		return "(no rows)"
	}
	var b strings.Builder
	b.WriteString(strings.Join(r.Columns, " | "))
	for _, row := range r.Rows {
		b.WriteString("\n")
		b.WriteString(strings.Join(row, " | "))
	}
	return b.String()
}

// Run executes an accepted query and returns its result. Engine rejections
// come back as *ExecError carrying the engine's message.
func (c *Conn) Run(ctx context.Context, query string) (*Result, error) {
	trimmed := strings.TrimSpace(query)
	if !HasAcceptedVerb(trimmed) {
		return nil, &ExecError{Query: query, Err: fmt.Errorf("statement type not allowed, expected one of %s", strings.Join(acceptedVerbs, ", "))}
	}

	if strings.HasPrefix(strings.ToUpper(trimmed), "SELECT") {
		return c.runQuery(ctx, trimmed)
	}
	return c.runExec(ctx, trimmed)
}

func (c *Conn) runQuery(ctx context.Context, query string) (*Result, error) {
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &ExecError{Query: query, Err: err}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, &ExecError{Query: query, Err: err}
	}

	result := &Result{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, &ExecError{Query: query, Err: err}
		}

		row := make([]string, len(cols))
		for i, v := range values {
			row[i] = formatValue(v)
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &ExecError{Query: query, Err: err}
	}
	return result, nil
}

func (c *Conn) runExec(ctx context.Context, query string) (*Result, error) {
	res, err := c.db.ExecContext(ctx, query)
	if err != nil {
		return nil, &ExecError{Query: query, Err: err}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		// Not every driver reports this; treat as zero rather than failing
		// an otherwise successful statement.
		affected = 0
	}
	return &Result{
		Columns: []string{"rows_affected"},
		Rows:    [][]string{{strconv.FormatInt(affected, 10)}},
	}, nil
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", val)
	}
}
