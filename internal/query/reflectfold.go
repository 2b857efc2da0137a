package query

import (
	"fmt"
	"reflect"

	"github.com/kestrelrow/rowkeep/internal/schema"
)

// FromStruct folds a "query by example" pattern struct into an Expr:
// every exported field holding a non-zero value becomes one
// field-equality comparison, ANDed together. Column names are taken
// from the same descriptor Conn uses to map the type onto a table, so
// the predicate always agrees with the schema's own column naming.
//
// The result can be passed to Conn.Find like any other Expr; it stands
// in for a closure-capture analysis: Go has no way to walk a closure's
// captured environment, so FromStruct instead diffs the caller's
// pattern struct against its zero value and treats every field that
// differs as an explicit equality term.
func FromStruct(pattern any) (*Expr, error) {
	v := reflect.ValueOf(pattern)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, fmt.Errorf("query: FromStruct called with a nil pointer")
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, fmt.Errorf("query: FromStruct requires a struct or struct pointer, got %s", v.Kind())
	}

	table, err := schema.Describe(v.Type())
	if err != nil {
		return nil, fmt.Errorf("query: FromStruct: %w", err)
	}

	zero := reflect.New(v.Type()).Elem()

	var expr *Expr
	for _, col := range table.Columns {
		fv := v.FieldByIndex(col.FieldIndex)
		zv := zero.FieldByIndex(col.FieldIndex)
		if reflect.DeepEqual(fv.Interface(), zv.Interface()) {
			continue
		}

		term := Field(col.Name).EQ(Val(fv.Interface()))
		if expr == nil {
			expr = term
		} else {
			expr = expr.And(term)
		}
	}

	if expr == nil {
		return nil, fmt.Errorf("query: FromStruct: pattern has no non-zero fields to compare")
	}
	return expr, nil
}
