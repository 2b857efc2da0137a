package schema

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kestrelrow/rowkeep/internal/bind"
	"github.com/kestrelrow/rowkeep/internal/sqlitegw"
)

type widgetV1 struct {
	ID     int64  `db:"id,pk,autoincrement"`
	Name   string `db:"name"`
	Weight float64
}

type compositeKeyRow struct {
	TenantID int64  `db:"tenant_id,pk"`
	SKU      string `db:"sku,pk"`
	Label    string
}

func TestRegisterBuildsColumnsInDeclaredOrder(t *testing.T) {
	table, err := Register[widgetV1]("widgets")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if table.Name != "widgets" {
		t.Errorf("Name = %q, want widgets", table.Name)
	}
	if len(table.Columns) != 3 {
		t.Fatalf("len(Columns) = %d, want 3", len(table.Columns))
	}

	if table.Columns[0].Name != "id" || table.Columns[0].PKOrdinal != 1 || !table.Columns[0].AutoIncrement {
		t.Errorf("Columns[0] = %+v", table.Columns[0])
	}
	if table.Columns[0].Affinity != bind.Integer {
		t.Errorf("Columns[0].Affinity = %v, want Integer", table.Columns[0].Affinity)
	}
	if table.Columns[1].Name != "name" || table.Columns[1].Affinity != bind.Text {
		t.Errorf("Columns[1] = %+v", table.Columns[1])
	}
	if table.Columns[2].Name != "Weight" || table.Columns[2].Affinity != bind.Real {
		t.Errorf("Columns[2] = %+v", table.Columns[2])
	}
}

func TestRegisterIsCachedPerType(t *testing.T) {
	first, err := Register[widgetV1]("widgets")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	second, err := Register[widgetV1]("ignored_second_name")
	if err != nil {
		t.Fatalf("Register (second call): %v", err)
	}
	if first != second {
		t.Error("Register should return the cached descriptor on a second call")
	}
	if second.Name != "widgets" {
		t.Errorf("second.Name = %q, want widgets (first registration wins)", second.Name)
	}
}

func TestCompositePrimaryKey(t *testing.T) {
	table, err := Register[compositeKeyRow]("rows")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	pk := table.PKColumns()
	if len(pk) != 2 {
		t.Fatalf("len(PKColumns()) = %d, want 2", len(pk))
	}
	if pk[0].Name != "tenant_id" || pk[0].PKOrdinal != 1 {
		t.Errorf("pk[0] = %+v", pk[0])
	}
	if pk[1].Name != "sku" || pk[1].PKOrdinal != 2 {
		t.Errorf("pk[1] = %+v", pk[1])
	}
}

type badAutoIncrementNotPK struct {
	ID   int64 `db:"id,autoincrement"`
	Name string
}

func TestAutoIncrementMustBePrimaryKey(t *testing.T) {
	if _, err := Register[badAutoIncrementNotPK]("bad"); err == nil {
		t.Fatal("expected an error for an autoincrement column that is not a primary key")
	}
}

type badAutoIncrementNotInteger struct {
	ID   string `db:"id,pk,autoincrement"`
	Name string
}

func TestAutoIncrementMustBeInteger(t *testing.T) {
	if _, err := Register[badAutoIncrementNotInteger]("bad2"); err == nil {
		t.Fatal("expected an error for a non-integer autoincrement column")
	}
}

func TestHasColumnCaseInsensitive(t *testing.T) {
	table, err := Register[widgetV1]("widgets_lookup")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !table.HasColumn("NAME") {
		t.Error("HasColumn(NAME) should match case-insensitively")
	}
	if table.HasColumn("nonexistent") {
		t.Error("HasColumn(nonexistent) should be false")
	}
}

func TestSynchronizeCreatesAndIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync_test.db")
	db, err := sqlitegw.Open(path, sqlitegw.DefaultOptions())
	if err != nil {
		t.Fatalf("sqlitegw.Open: %v", err)
	}
	defer db.Close()

	table, err := Register[syncWidget]("sync_widgets")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	ctx := context.Background()
	if err := Synchronize(ctx, db, table); err != nil {
		t.Fatalf("Synchronize (create): %v", err)
	}

	cols, err := liveColumns(ctx, db, table.Name)
	if err != nil {
		t.Fatalf("liveColumns: %v", err)
	}
	if len(cols) != len(table.Columns) {
		t.Fatalf("live column count = %d, want %d", len(cols), len(table.Columns))
	}

	// Second call against a reconciled schema must issue no DDL and
	// return no error.
	if err := Synchronize(ctx, db, table); err != nil {
		t.Fatalf("Synchronize (idempotent): %v", err)
	}
}

type syncWidget struct {
	ID   int64  `db:"id,pk,autoincrement"`
	Name string `db:"name"`
}

func TestSynchronizeAddsRequiredColumnAgainstExistingRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync_add_column.db")
	db, err := sqlitegw.Open(path, sqlitegw.DefaultOptions())
	if err != nil {
		t.Fatalf("sqlitegw.Open: %v", err)
	}
	defer db.Close()

	ctx := context.Background()

	v1, err := Register[syncWidgetAddV1]("sync_add_widgets")
	if err != nil {
		t.Fatalf("Register v1: %v", err)
	}
	if err := Synchronize(ctx, db, v1); err != nil {
		t.Fatalf("Synchronize (create): %v", err)
	}

	if _, err := db.ExecContext(ctx, `INSERT INTO sync_add_widgets (name) VALUES ('existing')`); err != nil {
		t.Fatalf("seed insert: %v", err)
	}

	// v2 adds a required (non-nullable, no default) column. Since the
	// table already has rows, ALTER TABLE ... ADD COLUMN ... NOT NULL
	// with no DEFAULT would fail; Synchronize must add it nullable
	// instead so existing rows can retain NULL in the new column.
	v2, err := Register[syncWidgetAddV2]("sync_add_widgets_v2")
	if err != nil {
		t.Fatalf("Register v2: %v", err)
	}
	v2.Name = v1.Name // same live table, second descriptor for the evolved shape

	if err := Synchronize(ctx, db, v2); err != nil {
		t.Fatalf("Synchronize (add required column against existing rows): %v", err)
	}

	cols, err := liveColumns(ctx, db, v1.Name)
	if err != nil {
		t.Fatalf("liveColumns: %v", err)
	}
	var weight *pragmaColumn
	for i := range cols {
		if strings.EqualFold(cols[i].name, "weight") {
			weight = &cols[i]
		}
	}
	if weight == nil {
		t.Fatal("expected a weight column to have been added")
	}
	if weight.notnull != 0 {
		t.Error("weight column should not be NOT NULL: it has no DEFAULT and the table already has rows")
	}

	row := db.QueryRowContext(ctx, `SELECT weight FROM sync_add_widgets WHERE name = 'existing'`)
	var weightValue sql.NullFloat64
	if err := row.Scan(&weightValue); err != nil {
		t.Fatalf("scanning existing row's new column: %v", err)
	}
	if weightValue.Valid {
		t.Errorf("existing row's weight = %v, want NULL", weightValue.Float64)
	}
}

type syncWidgetAddV1 struct {
	ID   int64  `db:"id,pk,autoincrement"`
	Name string `db:"name"`
}

type syncWidgetAddV2 struct {
	ID     int64   `db:"id,pk,autoincrement"`
	Name   string  `db:"name"`
	Weight float64 `db:"weight"`
}
