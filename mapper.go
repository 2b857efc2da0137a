package rowkeep

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/kestrelrow/rowkeep/internal/identifier"
	"github.com/kestrelrow/rowkeep/internal/query"
	"github.com/kestrelrow/rowkeep/internal/rkerrors"
	"github.com/kestrelrow/rowkeep/internal/schema"
)

// SynchronizeSchema registers sample's type (if not already
// registered) and brings the live table in line with its descriptor.
func (c *Conn) SynchronizeSchema(ctx context.Context, sample any) error {
	t, err := structType(sample)
	if err != nil {
		return err
	}
	table, err := schema.Describe(t)
	if err != nil {
		return err
	}
	return schema.Synchronize(ctx, c.db, table)
}

// Save inserts obj if every primary-key field holds its zero value —
// writing an assigned auto-increment value back into obj — or upserts
// it by primary key otherwise. obj must be a pointer to a registered
// struct type.
func (c *Conn) Save(ctx context.Context, obj any) error {
	v := reflect.ValueOf(obj)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return fmt.Errorf("rowkeep: Save requires a non-nil pointer, got %T", obj)
	}
	v = v.Elem()

	table, err := schema.Describe(v.Type())
	if err != nil {
		return err
	}

	pk := table.PKColumns()
	allPKZero := true
	for _, col := range pk {
		if !v.FieldByIndex(col.FieldIndex).IsZero() {
			allPKZero = false
			break
		}
	}

	aiCol, hasAutoInc := table.AutoIncrementColumn()

	if allPKZero {
		if hasAutoInc {
			return c.insertWithAutoIncrement(ctx, v, table, aiCol)
		}
		return c.insertPlain(ctx, v, table)
	}
	return c.upsert(ctx, v, table)
}

// insertPlain handles the zero-valued-PK, no-autoincrement case: a
// plain INSERT, with no writeback since there is no assigned value to
// read back. Used for composite keys and for single, non-autoincrement
// keys the caller assigns itself (e.g. a UUID generated before Save).
func (c *Conn) insertPlain(ctx context.Context, v reflect.Value, table *schema.Table) error {
	sqlText, args := buildInsert(table.Name, table.Columns, v)
	_, err := c.ExecContext(ctx, sqlText, args...)
	return err
}

func (c *Conn) insertWithAutoIncrement(ctx context.Context, v reflect.Value, table *schema.Table, aiCol schema.Column) error {
	var cols []schema.Column
	for _, col := range table.Columns {
		if col.Name == aiCol.Name {
			continue
		}
		cols = append(cols, col)
	}

	sqlText, args := buildInsert(table.Name, cols, v)
	if _, err := c.ExecContext(ctx, sqlText, args...); err != nil {
		return err
	}

	id := c.LastInsertRowID()
	fv := v.FieldByIndex(aiCol.FieldIndex)
	switch fv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		fv.SetInt(id)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		fv.SetUint(uint64(id))
	}
	return nil
}

// upsert writes every column, including the primary key, using
// SQLite's ON CONFLICT clause: insert if the primary key is new,
// overwrite the non-key columns if it already exists.
func (c *Conn) upsert(ctx context.Context, v reflect.Value, table *schema.Table) error {
	sqlText, args := buildInsert(table.Name, table.Columns, v)

	pk := table.PKColumns()
	if len(pk) > 0 {
		var conflictCols, setCols []string
		for _, col := range pk {
			conflictCols = append(conflictCols, identifier.Quote(col.Name))
		}
		for _, col := range table.Columns {
			if col.PKOrdinal > 0 {
				continue
			}
			setCols = append(setCols, fmt.Sprintf("%s = excluded.%s", identifier.Quote(col.Name), identifier.Quote(col.Name)))
		}
		if len(setCols) > 0 {
			sqlText += fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s", strings.Join(conflictCols, ", "), strings.Join(setCols, ", "))
		} else {
			sqlText += fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", strings.Join(conflictCols, ", "))
		}
	}

	_, err := c.ExecContext(ctx, sqlText, args...)
	return err
}

func buildInsert(tableName string, cols []schema.Column, v reflect.Value) (string, []any) {
	var names []string
	var placeholders []string
	args := make([]any, 0, len(cols))
	for _, col := range cols {
		names = append(names, identifier.Quote(col.Name))
		placeholders = append(placeholders, "?")
		args = append(args, fieldBindValue(v.FieldByIndex(col.FieldIndex)))
	}
	sqlText := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		identifier.Quote(tableName), strings.Join(names, ", "), strings.Join(placeholders, ", "))
	return sqlText, args
}

// fieldBindValue reads fv for binding, collapsing a nil pointer field
// to an untyped nil rather than a typed nil interface — database/sql
// treats the latter as a non-nil value of a type it cannot convert.
func fieldBindValue(fv reflect.Value) any {
	if fv.Kind() == reflect.Pointer {
		if fv.IsNil() {
			return nil
		}
		return fv.Elem().Interface()
	}
	return fv.Interface()
}

// Delete removes obj's row by primary key, returning how many rows
// were affected (0 if it was already gone).
func (c *Conn) Delete(ctx context.Context, obj any) (int64, error) {
	v := reflect.ValueOf(obj)
	for v.Kind() == reflect.Pointer {
		v = v.Elem()
	}

	table, err := schema.Describe(v.Type())
	if err != nil {
		return 0, err
	}
	pk := table.PKColumns()
	if len(pk) == 0 {
		return 0, fmt.Errorf("rowkeep: %s has no primary key columns to delete by", table.Name)
	}

	args := make([]any, len(pk))
	for i, col := range pk {
		args[i] = fieldBindValue(v.FieldByIndex(col.FieldIndex))
	}

	sqlText := fmt.Sprintf("DELETE FROM %s WHERE %s", identifier.Quote(table.Name), pkWhereClause(pk))
	res, err := c.ExecContext(ctx, sqlText, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func pkWhereClause(pk []schema.Column) string {
	var clauses []string
	for _, col := range pk {
		clauses = append(clauses, fmt.Sprintf("%s = ?", identifier.Quote(col.Name)))
	}
	return strings.Join(clauses, " AND ")
}

// Load fetches the row identified by pk into dst, which must be a
// pointer to a registered struct type. It fails *rkerrors.NotFoundError
// if no row matches.
func (c *Conn) Load(ctx context.Context, dst any, pk ...any) error {
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return fmt.Errorf("rowkeep: Load requires a non-nil pointer, got %T", dst)
	}
	v = v.Elem()

	table, err := schema.Describe(v.Type())
	if err != nil {
		return err
	}
	pkCols := table.PKColumns()
	if len(pk) != len(pkCols) {
		return fmt.Errorf("rowkeep: Load: %d primary key value(s) given, table %q has %d", len(pk), table.Name, len(pkCols))
	}

	sqlText := fmt.Sprintf("SELECT * FROM %s WHERE %s", identifier.Quote(table.Name), pkWhereClause(pkCols))
	it, err := c.Query(ctx, sqlText, pk...)
	if err != nil {
		return err
	}
	defer it.Close()

	if !it.Next() {
		if err := it.Err(); err != nil {
			return err
		}
		return &rkerrors.NotFoundError{Table: table.Name, PK: pk}
	}
	return materializeRow(it, c.binder, v, table)
}

// LoadAll replaces *dstSlicePtr with every row of the registered type
// it points to, fetched lazily row by row.
func (c *Conn) LoadAll(ctx context.Context, dstSlicePtr any) error {
	return c.loadWhere(ctx, dstSlicePtr, "", nil)
}

// Find replaces *dstSlicePtr with every row matching pred.
func (c *Conn) Find(ctx context.Context, dstSlicePtr any, pred *query.Expr) error {
	whereSQL, args, err := query.Translate(pred)
	if err != nil {
		return err
	}
	return c.loadWhere(ctx, dstSlicePtr, "WHERE "+whereSQL, args)
}

func (c *Conn) loadWhere(ctx context.Context, dstSlicePtr any, whereClause string, args []any) error {
	slicePtr := reflect.ValueOf(dstSlicePtr)
	if slicePtr.Kind() != reflect.Pointer || slicePtr.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("rowkeep: expected a pointer to a slice, got %T", dstSlicePtr)
	}
	sliceVal := slicePtr.Elem()
	elemType := sliceVal.Type().Elem()
	structType := elemType
	elemIsPtr := structType.Kind() == reflect.Pointer
	if elemIsPtr {
		structType = structType.Elem()
	}

	table, err := schema.Describe(structType)
	if err != nil {
		return err
	}

	sqlText := fmt.Sprintf("SELECT * FROM %s", identifier.Quote(table.Name))
	if whereClause != "" {
		sqlText += " " + whereClause
	}

	it, err := c.Query(ctx, sqlText, args...)
	if err != nil {
		return err
	}
	defer it.Close()

	result := reflect.MakeSlice(sliceVal.Type(), 0, 0)
	for it.Next() {
		elem := reflect.New(structType).Elem()
		if err := materializeRow(it, c.binder, elem, table); err != nil {
			return err
		}
		if elemIsPtr {
			ptr := reflect.New(structType)
			ptr.Elem().Set(elem)
			result = reflect.Append(result, ptr)
		} else {
			result = reflect.Append(result, elem)
		}
	}
	if err := it.Err(); err != nil {
		return err
	}

	sliceVal.Set(result)
	return nil
}

func structType(sample any) (reflect.Type, error) {
	t := reflect.TypeOf(sample)
	if t == nil {
		return nil, fmt.Errorf("rowkeep: sample must not be nil")
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("rowkeep: sample must be a struct or struct pointer, got %s", t.Kind())
	}
	return t, nil
}
