package datahandler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/WattTime/climate-trace-metamodeling/table"
	"github.com/WattTime/climate-trace-metamodeling/upsert"
)

// RowsType selects the destination column mapping for WriteData.
type RowsType string

const (
	RowsClimateTrace RowsType = "climate-trace"
	RowsEdgar        RowsType = "edgar"
)

// EmissionRecord is one entity-level row headed for ermin. Of the two
// method-reference fields, only the one belonging to the chosen row type
// is written.
type EmissionRecord struct {
	OriginalInventorySector   string
	ProducingEntityName       string
	ProducingEntityID         int64
	ReportingEntity           string
	EmittedProductFormula     string
	EmissionQuantity          float64
	EmissionQuantityUnits     string
	CarbonEquivalencyMethod   sql.NullString
	MeasurementMethodDOIOrURL sql.NullString
	StartTime                 time.Time
	EndTime                   time.Time
}

// insertSpec is the immutable statement/binding pair for one row type.
// Binding through struct fields keeps columns and values aligned at
// compile time; nothing is shared or mutated between calls.
type insertSpec struct {
	statement      string
	bind           func(EmissionRecord) []any
	skipDuplicates bool
}

var insertSpecs = map[RowsType]insertSpec{
	RowsClimateTrace: {
		statement: "INSERT INTO ermin (original_inventory_sector, producing_entity_name, producing_entity_id, " +
			"reporting_entity, emitted_product_formula, emission_quantity, emission_quantity_units, " +
			"carbon_equivalency_method, start_time, end_time) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)",
		bind: func(r EmissionRecord) []any {
			return []any{r.OriginalInventorySector, r.ProducingEntityName, r.ProducingEntityID,
				r.ReportingEntity, r.EmittedProductFormula, r.EmissionQuantity, r.EmissionQuantityUnits,
				r.CarbonEquivalencyMethod, r.StartTime, r.EndTime}
		},
	},
	RowsEdgar: {
		statement: "INSERT INTO ermin (original_inventory_sector, producing_entity_name, producing_entity_id, " +
			"reporting_entity, emitted_product_formula, emission_quantity, emission_quantity_units, " +
			"measurement_method_doi_or_url, start_time, end_time) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)",
		bind: func(r EmissionRecord) []any {
			return []any{r.OriginalInventorySector, r.ProducingEntityName, r.ProducingEntityID,
				r.ReportingEntity, r.EmittedProductFormula, r.EmissionQuantity, r.EmissionQuantityUnits,
				r.MeasurementMethodDOIOrURL, r.StartTime, r.EndTime}
		},
		skipDuplicates: true,
	},
}

// WriteData inserts rows one statement at a time, each committed before
// the next, so a mid-loop failure leaves the earlier rows in place. The
// two row types fail differently, and deliberately so: climate-trace
// stops on the first error of any kind, while edgar skips duplicate-key
// violations and keeps going, propagating anything else.
func (h *DataHandler) WriteData(ctx context.Context, data []EmissionRecord, rowsType RowsType) error {
	db, err := h.conn()
	if err != nil {
		return err
	}
	spec, ok := insertSpecs[rowsType]
	if !ok {
		return fmt.Errorf("unknown rows type %q", rowsType)
	}

	for i, record := range data {
		if _, err := db.ExecContext(ctx, spec.statement, spec.bind(record)...); err != nil {
			if spec.skipDuplicates && isDuplicateKey(err) {
				h.log.Debug().Int("row", i).Str("entity", record.ProducingEntityName).
					Msg("skipping duplicate row")
				continue
			}
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}
	return nil
}

// isDuplicateKey reports whether err is a unique-constraint violation. The
// message check keeps parity with drivers that do not surface a *pq.Error,
// such as connection proxies and test doubles.
func isDuplicateKey(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "duplicate")
}

// upsertBatchSize caps the rows rendered into one upsert statement.
const upsertBatchSize = 1000

// InsertWithUpdate ingests data into targetTable in batches, resolving
// conflicts against the table's named uniqueness constraint. A conflicting
// row is updated in place only when a tracked column really changed, so
// re-running an ingest over identical data neither rewrites rows nor
// advances modified_date. Every row of every batch shares one created_date
// stamp taken at the start of the call; rows already stored keep theirs.
// A failed batch propagates immediately; earlier batches stay committed.
func (h *DataHandler) InsertWithUpdate(ctx context.Context, data table.Table, targetTable string) error {
	db, err := h.conn()
	if err != nil {
		return err
	}
	if len(data.Rows) == 0 {
		return nil
	}

	builder := upsert.Builder{
		Table:      targetTable,
		Constraint: targetTable + "_unique_constraint",
		Columns:    columnStrategies(data.Columns),
	}

	createdDate := h.now().UTC()
	for start := 0; start < len(data.Rows); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(data.Rows))
		batch := data.Rows[start:end]

		stmt, err := builder.Statement(len(batch))
		if err != nil {
			return err
		}
		args, err := builder.Args(batch, createdDate)
		if err != nil {
			return err
		}

		if _, err := db.ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("upsert rows %d-%d into %s: %w", start, end, targetTable, err)
		}
		h.log.Debug().Str("table", targetTable).Int("rows", len(batch)).Msg("upserted batch")
	}
	return nil
}

// columnStrategies classifies the table's columns for the conflict
// builder: quantity columns compare with NULL coalesced to zero, geometry
// columns compare by canonical text, everything else by equality.
func columnStrategies(columns []string) []upsert.Column {
	cols := make([]upsert.Column, len(columns))
	for i, name := range columns {
		switch {
		case name == "emission_quantity" || name == "emissions_quantity":
			cols[i] = upsert.Column{Name: name, Compare: upsert.CompareNullCoalesced}
		case name == "geom" || name == "geometry" || strings.HasSuffix(name, "_geom"):
			cols[i] = upsert.Column{Name: name, Compare: upsert.CompareGeometryText}
		default:
			cols[i] = upsert.Column{Name: name, Compare: upsert.CompareEquality}
		}
	}
	return cols
}
