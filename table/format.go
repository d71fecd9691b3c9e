package table

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// callerColumnNames maps database column names onto the vocabulary the
// calling application works in. Columns without an entry pass through
// unchanged.
var callerColumnNames = map[string]string{
	"original_inventory_sector": "Sector",
	"producing_entity_name":     "Name",
	"producing_entity_id":       "ID",
	"reporting_entity":          "Data source",
	"emitted_product_formula":   "Gas",
	"emission_quantity":         "Quantity",
	"emission_quantity_units":   "Units",
	"emissions_quantity":        "Quantity",
	"emissions_quantity_units":  "Units",
	"iso3_country":              "Country",
	"gas":                       "Gas",
	"start_time":                "Start",
	"end_time":                  "End",
}

// ParseAndFormatQueryData normalizes a raw query result before it is handed
// back to callers: with yearsToColumns the start_time dimension is pivoted
// into one column per year (cell value = emission quantity), and with
// renameColumns the database column names are swapped for the caller
// vocabulary.
func ParseAndFormatQueryData(t Table, yearsToColumns, renameColumns bool) (Table, error) {
	out := t
	if yearsToColumns {
		var err error
		out, err = pivotYears(out)
		if err != nil {
			return Table{}, err
		}
	}
	if renameColumns {
		renamed := make([]string, len(out.Columns))
		for i, c := range out.Columns {
			if caller, ok := callerColumnNames[c]; ok {
				renamed[i] = caller
			} else {
				renamed[i] = c
			}
		}
		out = Table{Columns: renamed, Rows: out.Rows}
	}
	return out, nil
}

// pivotYears regroups rows keyed by everything except the time and quantity
// columns, then spreads the quantity over one column per observed year.
// Year columns come out sorted ascending; a group with no observation for a
// year gets a nil cell.
func pivotYears(t Table) (Table, error) {
	timeIdx := t.ColumnIndex("start_time")
	if timeIdx < 0 {
		return Table{}, fmt.Errorf("pivot requires a start_time column, have %v", t.Columns)
	}
	qtyIdx := t.ColumnIndex("emission_quantity")
	if qtyIdx < 0 {
		qtyIdx = t.ColumnIndex("emissions_quantity")
	}
	if qtyIdx < 0 {
		return Table{}, fmt.Errorf("pivot requires an emission quantity column, have %v", t.Columns)
	}
	endIdx := t.ColumnIndex("end_time")

	keep := make([]int, 0, len(t.Columns))
	for i := range t.Columns {
		if i != timeIdx && i != qtyIdx && i != endIdx {
			keep = append(keep, i)
		}
	}

	type group struct {
		key    []any
		byYear map[string]any
	}
	groups := make(map[string]*group)
	var order []string
	yearSet := make(map[string]struct{})

	for _, row := range t.Rows {
		year, err := cellYear(row[timeIdx])
		if err != nil {
			return Table{}, err
		}
		yearSet[year] = struct{}{}

		var kb strings.Builder
		for _, i := range keep {
			fmt.Fprintf(&kb, "%v\x00", row[i])
		}
		k := kb.String()

		g, ok := groups[k]
		if !ok {
			key := make([]any, len(keep))
			for j, i := range keep {
				key[j] = row[i]
			}
			g = &group{key: key, byYear: make(map[string]any)}
			groups[k] = g
			order = append(order, k)
		}
		g.byYear[year] = row[qtyIdx]
	}

	years := make([]string, 0, len(yearSet))
	for y := range yearSet {
		years = append(years, y)
	}
	sort.Strings(years)

	columns := make([]string, 0, len(keep)+len(years))
	for _, i := range keep {
		columns = append(columns, t.Columns[i])
	}
	columns = append(columns, years...)

	out := Table{Columns: columns}
	for _, k := range order {
		g := groups[k]
		row := make([]any, len(keep)+len(years))
		copy(row, g.key)
		for i, y := range years {
			if v, ok := g.byYear[y]; ok {
				row[len(keep)+i] = v
			}
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

// cellYear derives the four-digit year from a start_time cell, which is a
// time.Time from the driver or an ISO-8601 string after text conversion.
func cellYear(v any) (string, error) {
	switch x := v.(type) {
	case time.Time:
		return strconv.Itoa(x.Year()), nil
	case string:
		if len(x) >= 4 {
			if _, err := strconv.Atoi(x[:4]); err == nil {
				return x[:4], nil
			}
		}
	}
	return "", fmt.Errorf("cannot derive a year from start_time value %v", v)
}
