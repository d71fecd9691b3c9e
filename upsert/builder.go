// Package upsert renders the batched insert-or-update statements used to
// ingest emissions rows. The conflict clause only fires an update when a
// tracked column really changed, so re-running an ingest over identical
// source data does not advance modified_date on untouched rows.
package upsert

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Strategy selects how a stored value is compared against an incoming one.
type Strategy int

const (
	// CompareEquality compares the stored and incoming values directly.
	CompareEquality Strategy = iota
	// CompareGeometryText compares geometries by their canonical text form,
	// since equal shapes can differ byte-for-byte.
	CompareGeometryText
	// CompareNullCoalesced treats NULL quantities as zero on both sides.
	CompareNullCoalesced
)

// Column pairs a destination column with the comparison used to decide
// whether a stored row differs from an incoming one.
type Column struct {
	Name    string
	Compare Strategy
}

// Audit columns the builder manages itself. They may not appear in the
// caller's column list: created_date is appended to every value tuple and
// preserved on conflict, modified_date is stamped by the update clause.
const (
	createdDateColumn  = "created_date"
	modifiedDateColumn = "modified_date"
)

// Builder renders one multi-row INSERT ... ON CONFLICT statement against a
// named uniqueness constraint on Table.
type Builder struct {
	Table      string
	Constraint string
	Columns    []Column
}

// Statement renders the SQL for a batch of rowCount value tuples. The
// rendering is deterministic: given the same builder and row count, the
// same text comes out.
func (b Builder) Statement(rowCount int) (string, error) {
	if rowCount <= 0 {
		return "", errors.New("at least one row is required")
	}
	if len(b.Columns) == 0 {
		return "", errors.New("at least one column is required")
	}

	tableIdent, err := quoteIdentifier(b.Table)
	if err != nil {
		return "", fmt.Errorf("table: %w", err)
	}
	constraintIdent, err := quoteIdentifier(b.Constraint)
	if err != nil {
		return "", fmt.Errorf("constraint: %w", err)
	}

	quoted := make([]string, len(b.Columns))
	for i, col := range b.Columns {
		if col.Name == createdDateColumn || col.Name == modifiedDateColumn {
			return "", fmt.Errorf("column %q is managed by the builder", col.Name)
		}
		q, err := quoteIdentifier(col.Name)
		if err != nil {
			return "", fmt.Errorf("column[%d]: %w", i, err)
		}
		quoted[i] = q
	}

	match := b.matchClause(tableIdent, quoted)
	if match == "" {
		return "", errors.New("at least one identity column is required")
	}

	quotedCreated, err := quoteIdentifier(createdDateColumn)
	if err != nil {
		return "", fmt.Errorf("created date column: %w", err)
	}
	quotedModified, err := quoteIdentifier(modifiedDateColumn)
	if err != nil {
		return "", fmt.Errorf("modified date column: %w", err)
	}

	width := len(b.Columns) + 1 // created_date rides along as the last tuple value
	placeholders := make([]string, rowCount)
	argIdx := 1
	for i := range placeholders {
		tuple := make([]string, width)
		for j := range tuple {
			tuple[j] = fmt.Sprintf("$%d", argIdx)
			argIdx++
		}
		placeholders[i] = fmt.Sprintf("(%s)", strings.Join(tuple, ", "))
	}

	setClauses := make([]string, 0, len(b.Columns)+1)
	for i := range b.Columns {
		// created_date is never in this list, so the stored stamp survives.
		setClauses = append(setClauses, fmt.Sprintf("%s = EXCLUDED.%s", quoted[i], quoted[i]))
	}
	setClauses = append(setClauses, fmt.Sprintf("%s = now()", quotedModified))

	insertColumns := append(append(make([]string, 0, width), quoted...), quotedCreated)

	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES %s ON CONFLICT ON CONSTRAINT %s DO UPDATE SET %s WHERE %s AND (%s)",
		tableIdent,
		strings.Join(insertColumns, ", "),
		strings.Join(placeholders, ", "),
		constraintIdent,
		strings.Join(setClauses, ", "),
		match,
		b.changedClause(tableIdent, quoted),
	), nil
}

// matchClause requires every non-quantity column of the stored row to match
// the incoming one before the update may fire.
func (b Builder) matchClause(tableIdent string, quoted []string) string {
	parts := make([]string, 0, len(b.Columns))
	for i, col := range b.Columns {
		switch col.Compare {
		case CompareNullCoalesced:
			// Quantity changes alone must still reach the update path.
			continue
		case CompareGeometryText:
			parts = append(parts, fmt.Sprintf("ST_AsText(%s.%s) = ST_AsText(EXCLUDED.%s)", tableIdent, quoted[i], quoted[i]))
		default:
			parts = append(parts, fmt.Sprintf("%s.%s = EXCLUDED.%s", tableIdent, quoted[i], quoted[i]))
		}
	}
	return strings.Join(parts, " AND ")
}

// changedClause requires at least one tracked column to actually differ, so
// an identical batch is a no-op instead of a modified_date bump.
func (b Builder) changedClause(tableIdent string, quoted []string) string {
	parts := make([]string, 0, len(b.Columns))
	for i, col := range b.Columns {
		switch col.Compare {
		case CompareNullCoalesced:
			parts = append(parts, fmt.Sprintf("COALESCE(%s.%s, 0) <> COALESCE(EXCLUDED.%s, 0)", tableIdent, quoted[i], quoted[i]))
		case CompareGeometryText:
			parts = append(parts, fmt.Sprintf("ST_AsText(%s.%s) <> ST_AsText(EXCLUDED.%s)", tableIdent, quoted[i], quoted[i]))
		default:
			parts = append(parts, fmt.Sprintf("%s.%s <> EXCLUDED.%s", tableIdent, quoted[i], quoted[i]))
		}
	}
	return strings.Join(parts, " OR ")
}

// Args flattens rows into the argument list matching Statement(len(rows)),
// stamping every tuple with the shared createdDate.
func (b Builder) Args(rows [][]any, createdDate time.Time) ([]any, error) {
	args := make([]any, 0, len(rows)*(len(b.Columns)+1))
	for i, row := range rows {
		if len(row) != len(b.Columns) {
			return nil, fmt.Errorf("row %d: columns (%d) and values (%d) length mismatch", i, len(b.Columns), len(row))
		}
		args = append(args, row...)
		args = append(args, createdDate)
	}
	return args, nil
}
