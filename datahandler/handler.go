// Package datahandler is the data-access layer between the emissions
// pipeline and the climatetrace database. One handler owns one connection
// for its lifetime; reads come back as table.Table values, writes go out
// as per-row inserts or batched upserts.
package datahandler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/WattTime/climate-trace-metamodeling/config"
	"github.com/WattTime/climate-trace-metamodeling/table"
)

// ErrNoConnection reports an operation attempted before a database
// connection was established.
var ErrNoConnection = errors.New("no database connection has been established")

// DefaultStartDate is the earliest start_time loaded when the caller does
// not narrow the range.
var DefaultStartDate = time.Date(2013, time.January, 1, 0, 0, 0, 0, time.UTC)

// Source tables the loader understands.
const (
	TableErmin            = "ermin"
	TableCountryEmissions = "country_emissions"
)

type DataHandler struct {
	db  *sql.DB
	log zerolog.Logger
	now func() time.Time
}

// New wraps an existing database handle. The handle remains owned by the
// caller and is never closed by the handler.
func New(db *sql.DB) *DataHandler {
	return &DataHandler{db: db, log: zerolog.Nop(), now: time.Now}
}

// Connect loads credentials from paramsFile and opens the one connection
// the handler uses for its lifetime. There is no retry: an unreadable
// params file or an unreachable database fails the construction and the
// handler does not exist afterward.
func Connect(ctx context.Context, paramsFile string) (*DataHandler, error) {
	params, err := config.LoadParams(paramsFile)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", params.DSN())
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("connect to %s/%s: %w", config.Host, config.Database, err)
	}
	return New(db), nil
}

// WithLogger returns a shallow copy emitting lifecycle logs through log.
func (h *DataHandler) WithLogger(log zerolog.Logger) *DataHandler {
	clone := *h
	clone.log = log
	return &clone
}

// conn is the guard every operation passes through, mirroring the cursor
// check of the handler's predecessors.
func (h *DataHandler) conn() (*sql.DB, error) {
	if h == nil || h.db == nil {
		return nil, ErrNoConnection
	}
	return h.db, nil
}

// LoadOptions narrow and shape a LoadData query. The zero value loads all
// gases from ermin since DefaultStartDate and renames columns to the
// caller vocabulary.
type LoadOptions struct {
	// Table selects the source schema; TableErmin when empty.
	Table string
	// Gas filters on the emitted gas formula; empty loads every gas.
	Gas string
	// IsCO2e marks Gas as a CO2e aggregate. Aggregate rows are expected to
	// carry an equivalency method, so the usual exclusion is dropped.
	IsCO2e bool
	// StartDate is the minimum start_time; DefaultStartDate when zero.
	StartDate time.Time
	// YearsToColumns pivots the year dimension into one column per year.
	YearsToColumns bool
	// RawColumnNames leaves database column names untouched instead of
	// renaming them to the caller vocabulary.
	RawColumnNames bool
}

const erminSelect = "SELECT original_inventory_sector, producing_entity_name, producing_entity_id, reporting_entity, " +
	"emitted_product_formula, emission_quantity, emission_quantity_units, start_time FROM ermin " +
	"WHERE reporting_entity = $1 AND start_time >= $2"

const countrySelect = "SELECT iso3_country, original_inventory_sector, reporting_entity, gas, " +
	"emissions_quantity, emissions_quantity_units, start_time FROM country_emissions " +
	"WHERE reporting_entity = $1 AND start_time >= $2"

// LoadData loads emission rows reported by source and returns them after
// post-processing. One of three query shapes is issued depending on
// whether a gas filter is given and whether it names a CO2e aggregate; any
// query failure propagates to the caller.
func (h *DataHandler) LoadData(ctx context.Context, source string, opts LoadOptions) (table.Table, error) {
	db, err := h.conn()
	if err != nil {
		return table.Table{}, err
	}

	query, args, err := buildLoadQuery(source, opts)
	if err != nil {
		return table.Table{}, err
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return table.Table{}, fmt.Errorf("load data for %s: %w", source, err)
	}
	t, err := table.Collect(rows)
	if err != nil {
		return table.Table{}, err
	}
	return table.ParseAndFormatQueryData(t, opts.YearsToColumns, !opts.RawColumnNames)
}

// buildLoadQuery picks the query shape for opts. Without a gas filter, and
// with a non-aggregate gas filter, rows representing CO2e aggregates are
// excluded: by carbon_equivalency_method on ermin, by the aggregate gas
// names on country_emissions.
func buildLoadQuery(source string, opts LoadOptions) (string, []any, error) {
	tbl := opts.Table
	if tbl == "" {
		tbl = TableErmin
	}

	var base, gasFilter, exclusion string
	switch tbl {
	case TableErmin:
		base = erminSelect
		gasFilter = " AND emitted_product_formula = $3"
		exclusion = " AND carbon_equivalency_method IS NULL"
	case TableCountryEmissions:
		base = countrySelect
		gasFilter = " AND gas = $3"
		exclusion = " AND gas NOT IN ('co2e_20yr', 'co2e_100yr')"
	default:
		return "", nil, fmt.Errorf("unknown source table %q", tbl)
	}

	startDate := opts.StartDate
	if startDate.IsZero() {
		startDate = DefaultStartDate
	}

	args := []any{source, startDate}
	switch {
	case opts.Gas == "":
		return base + exclusion, args, nil
	case !opts.IsCO2e:
		return base + gasFilter + exclusion, append(args, opts.Gas), nil
	default:
		return base + gasFilter, append(args, opts.Gas), nil
	}
}

// GHGAll is the sentinel selecting every gas that carries an f-gas
// category.
const GHGAll = "all"

// GetGHGs loads the greenhouse-gas reference table. An empty filter
// returns the gas/co2e_20/co2e_100 lookup projection, GHGAll returns full
// rows for every categorized f-gas, and any other value returns full rows
// for that category.
func (h *DataHandler) GetGHGs(ctx context.Context, fGas string) (table.Table, error) {
	db, err := h.conn()
	if err != nil {
		return table.Table{}, err
	}

	var rows *sql.Rows
	switch {
	case fGas == GHGAll:
		// The sentinel is checked ahead of the category branch; a plain
		// non-empty test would swallow it and make this arm unreachable.
		rows, err = db.QueryContext(ctx, "SELECT * FROM ghgs WHERE f_gas_category IS NOT NULL")
	case fGas != "":
		rows, err = db.QueryContext(ctx, "SELECT * FROM ghgs WHERE f_gas_category = $1", fGas)
	default:
		rows, err = db.QueryContext(ctx, "SELECT lower_designation AS gas, gwp_20yr AS co2e_20, gwp_100yr AS co2e_100 FROM ghgs")
	}
	if err != nil {
		return table.Table{}, fmt.Errorf("load ghgs: %w", err)
	}
	return table.Collect(rows)
}
