package rkerrors

import (
	"errors"
	"reflect"
	"testing"
)

func TestNotFoundError(t *testing.T) {
	err := &NotFoundError{Table: "users", PK: []any{"k@x"}}
	wantMsg := `not found: users["k@x"]`
	if got := err.Error(); got != wantMsg {
		t.Errorf("Error() = %q, want %q", got, wantMsg)
	}
	if !errors.Is(err, ErrNotFound) {
		t.Error("NotFoundError should unwrap to ErrNotFound")
	}
}

func TestBusyError(t *testing.T) {
	err := &BusyError{Retries: 3}
	if !errors.Is(err, ErrBusy) {
		t.Error("BusyError should unwrap to ErrBusy")
	}
	if err.Error() != "busy after 3 retries" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestPrepareStepBindColumnErrors(t *testing.T) {
	p := &PrepareError{Code: 1, Message: "syntax error", SQL: "SELEC 1"}
	if p.Error() == "" {
		t.Error("PrepareError.Error() should not be empty")
	}

	s := &StepError{Code: 5, Message: "database is locked", SQL: "INSERT INTO t VALUES (?)"}
	if s.Error() == "" {
		t.Error("StepError.Error() should not be empty")
	}

	b := &BindError{Code: 1, Message: "bad parameter", SQL: "SELECT ?1", Param: 1}
	if b.Error() == "" {
		t.Error("BindError.Error() should not be empty")
	}

	c := &ColumnError{Code: 1, Message: "bad column", Column: "name"}
	if c.Error() == "" {
		t.Error("ColumnError.Error() should not be empty")
	}
}

func TestBindNotSupportedError(t *testing.T) {
	err := &BindNotSupportedError{Type: reflect.TypeOf(complex128(0))}
	if err.Error() != "bind not supported for type complex128" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestUntranslatableExpressionError(t *testing.T) {
	err := &UntranslatableExpressionError{Kind: "Lambda"}
	if err.Error() != "untranslatable expression: Lambda" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestSchemaIncompatibleError(t *testing.T) {
	err := &SchemaIncompatibleError{Table: "orders", Reason: "column price changed type"}
	want := `schema incompatible for table "orders": column price changed type`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestUnknownParameterAndColumn(t *testing.T) {
	if (&UnknownParameterError{Name: "foo"}).Error() != `unknown parameter "foo"` {
		t.Error("unexpected UnknownParameterError message")
	}
	if (&UnknownColumnError{Name: "bar"}).Error() != `unknown column "bar"` {
		t.Error("unexpected UnknownColumnError message")
	}
}

func TestIsAs(t *testing.T) {
	err := &NotFoundError{Table: "t"}
	if !Is(err, ErrNotFound) {
		t.Error("Is() failed to match NotFoundError to ErrNotFound")
	}
	var nfErr *NotFoundError
	if !As(err, &nfErr) {
		t.Error("As() failed to match NotFoundError")
	}
}
