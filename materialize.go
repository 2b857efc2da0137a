package rowkeep

import (
	"reflect"

	"github.com/kestrelrow/rowkeep/internal/bind"
	"github.com/kestrelrow/rowkeep/internal/rkerrors"
	"github.com/kestrelrow/rowkeep/internal/schema"
)

// materializeRow copies the iterator's current row onto dest (an
// addressable struct value) by matching each result column against
// dest's descriptor case-insensitively. A result column with no
// matching field is left untouched rather than treated as an error,
// since a free-form SELECT may return columns the type doesn't map.
func materializeRow(it *RowIterator, binder *bind.Registry, dest reflect.Value, table *schema.Table) error {
	columns := it.Columns()
	for i, name := range columns {
		col, ok := table.GetColumn(name)
		if !ok {
			continue
		}
		raw, err := it.ColumnValue(i)
		if err != nil {
			return err
		}
		if err := setField(binder, dest, col, raw); err != nil {
			return err
		}
	}
	return nil
}

func setField(binder *bind.Registry, dest reflect.Value, col schema.Column, raw any) error {
	fv := dest.FieldByIndex(col.FieldIndex)

	if raw == nil {
		if fv.Kind() == reflect.Pointer {
			fv.Set(reflect.Zero(fv.Type()))
		}
		return nil
	}

	targetType := fv.Type()
	isPtr := targetType.Kind() == reflect.Pointer
	elemType := targetType
	if isPtr {
		elemType = targetType.Elem()
	}

	converted, ok, err := binder.Extract(raw, elemType)
	if err != nil {
		return err
	}
	if !ok {
		return &rkerrors.BindNotSupportedError{Type: elemType}
	}

	cv := reflect.ValueOf(converted)
	if !cv.Type().AssignableTo(elemType) && cv.Type().ConvertibleTo(elemType) {
		cv = cv.Convert(elemType)
	}

	if isPtr {
		ptr := reflect.New(elemType)
		ptr.Elem().Set(cv)
		fv.Set(ptr)
	} else {
		fv.Set(cv)
	}
	return nil
}
