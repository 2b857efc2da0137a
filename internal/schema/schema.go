// Package schema is the type descriptor registry and schema
// synchronizer: one-time reflection from a Go struct type to a table
// descriptor, and a PRAGMA table_info-driven additive synchronizer
// that brings a live SQLite table in line with that descriptor.
package schema

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/kestrelrow/rowkeep/internal/bind"
	"github.com/kestrelrow/rowkeep/internal/identifier"
	"github.com/kestrelrow/rowkeep/internal/logging"
	"github.com/kestrelrow/rowkeep/internal/rkerrors"
)

// Column describes one table column and the struct field it is bound
// to.
type Column struct {
	Name          string // escaped SQL identifier, unquoted form
	FieldIndex    []int  // reflect.Value.FieldByIndex path
	Affinity      bind.Affinity
	Nullable      bool
	PKOrdinal     int // 1-based ordinal within a composite PK, 0 = not a PK column
	AutoIncrement bool
	Default       string // literal DDL default, empty if unspecified
	Collate       string // collation name, empty if unspecified
}

// Table describes one record type's mapping onto a SQLite table.
type Table struct {
	Name    string // escaped identifier, unquoted form
	Type    reflect.Type
	Columns []Column

	mu     sync.Mutex
	synced bool
}

// PKColumns returns the table's primary-key columns in ordinal order.
func (t *Table) PKColumns() []Column {
	var pk []Column
	for _, c := range t.Columns {
		if c.PKOrdinal > 0 {
			pk = append(pk, c)
		}
	}
	return pk
}

// AutoIncrementColumn returns the table's auto-increment column, if
// any. At most one is permitted (enforced at build time).
func (t *Table) AutoIncrementColumn() (Column, bool) {
	for _, c := range t.Columns {
		if c.AutoIncrement {
			return c, true
		}
	}
	return Column{}, false
}

// HasColumn reports whether name matches a column, case-insensitively.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.GetColumn(name)
	return ok
}

// GetColumn looks up a column by name, case-insensitively.
func (t *Table) GetColumn(name string) (Column, bool) {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Column{}, false
}

// registry is process-wide: written once per type, read many. A
// sync.Map gives the read-mostly fast path; buildMu serializes the
// (rare) concurrent-first-use race so a type is only ever reflected
// once.
var (
	registry sync.Map // reflect.Type -> *Table
	buildMu  sync.Mutex
)

// Register builds and caches the descriptor for T under tableName,
// returning it. Calling Register again for the same type returns the
// previously built descriptor; tableName is ignored on that path.
func Register[T any](tableName string) (*Table, error) {
	var zero T
	t := reflect.TypeOf(zero)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return describe(t, tableName)
}

// Describe returns the descriptor for t, building it from struct tags
// with a derived table name if it has not been registered yet.
func Describe(t reflect.Type) (*Table, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return describe(t, "")
}

func describe(t reflect.Type, tableName string) (*Table, error) {
	if v, ok := registry.Load(t); ok {
		return v.(*Table), nil
	}

	buildMu.Lock()
	defer buildMu.Unlock()
	if v, ok := registry.Load(t); ok {
		return v.(*Table), nil
	}

	if tableName == "" {
		tableName = identifier.Sanitize(t.Name())
	}

	table, err := build(t, tableName)
	if err != nil {
		return nil, err
	}
	registry.Store(t, table)
	return table, nil
}

// build performs the one-time reflection pass described in spec.md
// §4.E: column order follows declared field order, names are
// sanitized and collision-suffixed against the type name, and
// affinity is resolved by delegating to the same bind.Registry used
// for value conversion, rather than re-deriving a parallel affinity
// switch.
func build(t reflect.Type, tableName string) (*Table, error) {
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("schema: %s is not a struct", t)
	}

	bindRegistry := bind.Default()
	table := &Table{Name: identifier.Sanitize(tableName), Type: t}

	pkOrdinal := 0
	autoIncSeen := false

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}

		tag := f.Tag.Get("db")
		if tag == "-" {
			continue
		}

		name, flags := parseTag(tag)
		if name == "" {
			name = identifier.Sanitize(f.Name)
		}
		name = identifier.ResolveCollision(name, t.Name())

		col := Column{
			Name:       name,
			FieldIndex: f.Index,
		}

		fieldType := f.Type
		nullableByType := fieldType.Kind() == reflect.Pointer
		if nullableByType {
			fieldType = fieldType.Elem()
		}

		if bt, ok := bindRegistry.Lookup(fieldType); ok {
			col.Affinity = bt.Affinity
		} else {
			col.Affinity = bind.Text
		}
		col.Nullable = nullableByType

		for _, flag := range flags {
			switch {
			case flag == "pk":
				pkOrdinal++
				col.PKOrdinal = pkOrdinal
			case flag == "autoincrement":
				if autoIncSeen {
					return nil, fmt.Errorf("schema: %s: at most one autoincrement column is permitted", t)
				}
				autoIncSeen = true
				col.AutoIncrement = true
			case flag == "nullable":
				col.Nullable = true
			case strings.HasPrefix(flag, "default="):
				col.Default = strings.TrimPrefix(flag, "default=")
			case strings.HasPrefix(flag, "collate="):
				col.Collate = strings.TrimPrefix(flag, "collate=")
			}
		}

		if col.AutoIncrement && col.PKOrdinal == 0 {
			return nil, fmt.Errorf("schema: %s: autoincrement column %q must be a primary key", t, col.Name)
		}
		if col.AutoIncrement && col.Affinity != bind.Integer {
			return nil, fmt.Errorf("schema: %s: autoincrement column %q must have integer affinity", t, col.Name)
		}

		table.Columns = append(table.Columns, col)
	}

	return table, nil
}

func parseTag(tag string) (name string, flags []string) {
	if tag == "" {
		return "", nil
	}
	parts := strings.Split(tag, ",")
	name = parts[0]
	if len(parts) > 1 {
		flags = parts[1:]
	}
	return name, flags
}

// pragmaColumn mirrors one row of `PRAGMA table_info(name)`.
type pragmaColumn struct {
	cid       int
	name      string
	ctype     string
	notnull   int
	dfltValue sql.NullString
	pk        int
}

// liveColumns reads the live schema of table via PRAGMA table_info. An
// empty result (no rows, no error) means the table does not exist.
func liveColumns(ctx context.Context, db *sql.DB, tableName string) ([]pragmaColumn, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", identifier.Quote(tableName)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []pragmaColumn
	for rows.Next() {
		var c pragmaColumn
		if err := rows.Scan(&c.cid, &c.name, &c.ctype, &c.notnull, &c.dfltValue, &c.pk); err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// Synchronize brings the live SQLite schema for table in line with
// its descriptor: CREATE TABLE if absent, additive ALTER TABLE ADD
// COLUMN for anything declared but missing. It never drops or
// retypes a column; a type mismatch is reported as
// *rkerrors.SchemaIncompatibleError rather than acted on. Running
// Synchronize twice against a reconciled schema issues no DDL.
func Synchronize(ctx context.Context, db *sql.DB, table *Table) error {
	table.mu.Lock()
	defer table.mu.Unlock()

	live, err := liveColumns(ctx, db, table.Name)
	if err != nil {
		return fmt.Errorf("schema: reading live columns for %q: %w", table.Name, err)
	}

	if len(live) == 0 {
		if err := createTable(ctx, db, table); err != nil {
			return err
		}
		table.synced = true
		logging.SchemaSynchronized(table.Name, 1)
		return nil
	}

	liveByName := make(map[string]pragmaColumn, len(live))
	for _, c := range live {
		liveByName[strings.ToLower(c.name)] = c
	}

	ddlCount := 0
	for _, col := range table.Columns {
		lc, ok := liveByName[strings.ToLower(col.Name)]
		if !ok {
			if err := addColumn(ctx, db, table.Name, col); err != nil {
				return err
			}
			ddlCount++
			continue
		}
		if !affinityCompatible(col.Affinity, lc.ctype) {
			return &rkerrors.SchemaIncompatibleError{
				Table:  table.Name,
				Reason: fmt.Sprintf("column %q has live type %q incompatible with declared affinity %s", col.Name, lc.ctype, col.Affinity),
			}
		}
	}

	table.synced = true
	if ddlCount > 0 {
		logging.SchemaSynchronized(table.Name, ddlCount)
	}
	return nil
}

func createTable(ctx context.Context, db *sql.DB, table *Table) error {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (", identifier.Quote(table.Name))

	for i, col := range table.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		writeColumnDDL(&b, col, len(table.PKColumns()) == 1, false)
	}

	if pk := table.PKColumns(); len(pk) > 1 {
		b.WriteString(", PRIMARY KEY (")
		for i, col := range pk {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(identifier.Quote(col.Name))
		}
		b.WriteString(")")
	}

	b.WriteString(")")

	_, err := db.ExecContext(ctx, b.String())
	return err
}

func addColumn(ctx context.Context, db *sql.DB, tableName string, col Column) error {
	var b strings.Builder
	fmt.Fprintf(&b, "ALTER TABLE %s ADD COLUMN ", identifier.Quote(tableName))
	writeColumnDDL(&b, col, false, true)
	_, err := db.ExecContext(ctx, b.String())
	return err
}

// writeColumnDDL writes col's DDL fragment. forAlter must be true when
// called from an ADD COLUMN statement: SQLite rejects ADD COLUMN ...
// NOT NULL without a DEFAULT on a table that already has rows, so a
// NOT NULL clause is only safe there when a DEFAULT accompanies it —
// a new required column with no default is added nullable instead.
func writeColumnDDL(b *strings.Builder, col Column, singlePK, forAlter bool) {
	b.WriteString(identifier.Quote(col.Name))
	b.WriteString(" ")
	b.WriteString(col.Affinity.String())

	if singlePK && col.PKOrdinal == 1 {
		b.WriteString(" PRIMARY KEY")
		if col.AutoIncrement {
			b.WriteString(" AUTOINCREMENT")
		}
	}
	notNull := !col.Nullable && col.PKOrdinal == 0
	if forAlter && col.Default == "" {
		notNull = false
	}
	if notNull {
		b.WriteString(" NOT NULL")
	}
	if col.Default != "" {
		fmt.Fprintf(b, " DEFAULT %s", col.Default)
	}
	if col.Collate != "" {
		fmt.Fprintf(b, " COLLATE %s", col.Collate)
	}
}

// affinityCompatible reports whether a live SQLite declared type
// string is compatible with the descriptor's declared affinity,
// using SQLite's own type-affinity rules (substring matching on the
// declared type name).
func affinityCompatible(want bind.Affinity, liveType string) bool {
	lt := strings.ToUpper(liveType)
	switch {
	case strings.Contains(lt, "INT"):
		return want == bind.Integer
	case strings.Contains(lt, "CHAR"), strings.Contains(lt, "CLOB"), strings.Contains(lt, "TEXT"):
		return want == bind.Text
	case strings.Contains(lt, "BLOB"), lt == "":
		return want == bind.Blob || want == bind.Text
	case strings.Contains(lt, "REAL"), strings.Contains(lt, "FLOA"), strings.Contains(lt, "DOUB"):
		return want == bind.Real
	default:
		return want == bind.Text
	}
}
