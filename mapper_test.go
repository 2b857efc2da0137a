package rowkeep

import (
	"context"
	"path/filepath"
	"testing"
)

// compositeRow has a composite, non-autoincrement primary key: Save
// must take the plain-INSERT path whenever every PK field holds its
// zero value, never silently falling through to upsert's
// ON CONFLICT DO UPDATE, which would mask a genuine duplicate-key
// collision between two zero-valued rows.
type compositeRow struct {
	TenantID int64  `db:"tenant_id,pk"`
	SKU      string `db:"sku,pk"`
	Label    string `db:"label"`
}

func openCompositeTestConn(t *testing.T) *Conn {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rowkeep_composite_test.db")
	c, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	if err := c.SynchronizeSchema(context.Background(), compositeRow{}); err != nil {
		t.Fatalf("SynchronizeSchema: %v", err)
	}
	return c
}

func TestSaveZeroValuedCompositeKeyInsertsPlain(t *testing.T) {
	c := openCompositeTestConn(t)
	ctx := context.Background()

	row := &compositeRow{Label: "first"}
	if err := c.Save(ctx, row); err != nil {
		t.Fatalf("Save: %v", err)
	}

	var all []compositeRow
	if err := c.LoadAll(ctx, &all); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(all) != 1 || all[0].Label != "first" {
		t.Fatalf("all = %+v, want one row labeled first", all)
	}
}

// TestSaveZeroValuedCompositeKeyCollisionFails locks in that a second
// zero-valued-PK Save is a genuine INSERT, not an upsert: it must
// collide on the primary key and fail, rather than silently
// overwriting the first row's Label.
func TestSaveZeroValuedCompositeKeyCollisionFails(t *testing.T) {
	c := openCompositeTestConn(t)
	ctx := context.Background()

	first := &compositeRow{Label: "first"}
	if err := c.Save(ctx, first); err != nil {
		t.Fatalf("Save (first): %v", err)
	}

	second := &compositeRow{Label: "second"}
	if err := c.Save(ctx, second); err == nil {
		t.Fatal("expected a primary key collision error for a second zero-valued-PK Save")
	}

	var all []compositeRow
	if err := c.LoadAll(ctx, &all); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(all) != 1 || all[0].Label != "first" {
		t.Fatalf("all = %+v, want the original row untouched", all)
	}
}

func TestSaveCompositeKeyUpsertsWhenKeyIsSet(t *testing.T) {
	c := openCompositeTestConn(t)
	ctx := context.Background()

	row := &compositeRow{TenantID: 1, SKU: "widget-1", Label: "first"}
	if err := c.Save(ctx, row); err != nil {
		t.Fatalf("Save (insert): %v", err)
	}

	row.Label = "renamed"
	if err := c.Save(ctx, row); err != nil {
		t.Fatalf("Save (upsert): %v", err)
	}

	var all []compositeRow
	if err := c.LoadAll(ctx, &all); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(all) != 1 || all[0].Label != "renamed" {
		t.Fatalf("all = %+v, want one row renamed", all)
	}
}
