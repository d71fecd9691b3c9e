// Package table holds the tabular structure query results come back in,
// plus the post-processing applied before results reach callers.
package table

import (
	"database/sql"
	"fmt"
)

// Table is a column-ordered set of rows, shaped like the query result it
// was collected from.
type Table struct {
	Columns []string
	Rows    [][]any
}

// Collect drains rows into a Table and closes them. Column order follows
// the query; []byte cells are converted to string so callers see text
// rather than driver buffers.
func Collect(rows *sql.Rows) (Table, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return Table{}, fmt.Errorf("read column names: %w", err)
	}

	t := Table{Columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Table{}, fmt.Errorf("scan row: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		t.Rows = append(t.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return Table{}, fmt.Errorf("iterate rows: %w", err)
	}
	return t, nil
}

// ColumnIndex returns the position of name in the column list, or -1 when
// absent.
func (t Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}
