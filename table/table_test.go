package table

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestCollect(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT .*").WillReturnRows(
		sqlmock.NewRows([]string{"gas", "co2e_20", "co2e_100"}).
			AddRow([]byte("ch4"), 81.2, 27.9).
			AddRow("n2o", 273.0, 273.0))

	rows, err := db.Query("SELECT gas, co2e_20, co2e_100 FROM ghgs")
	if err != nil {
		t.Fatalf("query: %v", err)
	}

	got, err := Collect(rows)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	wantColumns := []string{"gas", "co2e_20", "co2e_100"}
	for i, c := range wantColumns {
		if got.Columns[i] != c {
			t.Fatalf("columns = %v, want %v", got.Columns, wantColumns)
		}
	}
	if len(got.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(got.Rows))
	}
	if got.Rows[0][0] != "ch4" {
		t.Fatalf("[]byte cell not converted to string: %#v", got.Rows[0][0])
	}
	if got.Rows[1][1] != 273.0 {
		t.Fatalf("unexpected cell value: %#v", got.Rows[1][1])
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCollect_Empty(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT .*").WillReturnRows(sqlmock.NewRows([]string{"gas"}))

	rows, err := db.Query("SELECT gas FROM ghgs")
	if err != nil {
		t.Fatalf("query: %v", err)
	}

	got, err := Collect(rows)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(got.Rows) != 0 {
		t.Fatalf("rows = %d, want 0", len(got.Rows))
	}
	if len(got.Columns) != 1 || got.Columns[0] != "gas" {
		t.Fatalf("columns = %v, want [gas]", got.Columns)
	}
}

func TestColumnIndex(t *testing.T) {
	tbl := Table{Columns: []string{"gas", "co2e_20"}}
	if got := tbl.ColumnIndex("co2e_20"); got != 1 {
		t.Fatalf("ColumnIndex(co2e_20) = %d, want 1", got)
	}
	if got := tbl.ColumnIndex("co2e_100"); got != -1 {
		t.Fatalf("ColumnIndex(co2e_100) = %d, want -1", got)
	}
}
