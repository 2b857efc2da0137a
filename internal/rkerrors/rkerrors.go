// Package rkerrors provides rowkeep's flat error taxonomy: native-boundary
// failures (Prepare/Step/Bind/Column), mapper-level failures (NotFound,
// Disposed, Cancelled, Busy), and translation failures (UnknownParameter,
// UnknownColumn, BindNotSupported, UntranslatableExpression,
// SchemaIncompatible). Driver errors are not inspected by result code:
// internal/stmt wraps prepare and step failures into PrepareError and
// StepError carrying the driver's message, with Code left zero, while
// schema synchronization and transaction control return the driver's
// error wrapped with fmt.Errorf.
package rkerrors

import (
	"errors"
	"fmt"
	"reflect"
)

// Sentinel errors for errors.Is checks against the flat taxonomy.
var (
	ErrNotFound  = errors.New("rowkeep: not found")
	ErrDisposed  = errors.New("rowkeep: handle disposed")
	ErrCancelled = errors.New("rowkeep: cancelled")
	ErrBusy      = errors.New("rowkeep: busy")
)

// PrepareError wraps a native failure to prepare a statement.
type PrepareError struct {
	Code    int    // native result code
	Message string // native error message
	SQL     string
}

func (e *PrepareError) Error() string {
	return fmt.Sprintf("prepare %q: [%d] %s", e.SQL, e.Code, e.Message)
}

// StepError wraps a native failure while stepping a statement.
type StepError struct {
	Code    int
	Message string
	SQL     string
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q: [%d] %s", e.SQL, e.Code, e.Message)
}

// BindError wraps a native failure to bind a parameter.
type BindError struct {
	Code    int
	Message string
	SQL     string
	Param   any // parameter name or 1-based index
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %v in %q: [%d] %s", e.Param, e.SQL, e.Code, e.Message)
}

// ColumnError wraps a native failure to read a column value.
type ColumnError struct {
	Code    int
	Message string
	Column  string
}

func (e *ColumnError) Error() string {
	return fmt.Sprintf("column %q: [%d] %s", e.Column, e.Code, e.Message)
}

// UnknownParameterError reports a bind name with no matching placeholder.
type UnknownParameterError struct {
	Name string
}

func (e *UnknownParameterError) Error() string {
	return fmt.Sprintf("unknown parameter %q", e.Name)
}

// UnknownColumnError reports a materialization target with no matching column.
type UnknownColumnError struct {
	Name string
}

func (e *UnknownColumnError) Error() string {
	return fmt.Sprintf("unknown column %q", e.Name)
}

// BindNotSupportedError reports a host type with no registered converter.
type BindNotSupportedError struct {
	Type reflect.Type
}

func (e *BindNotSupportedError) Error() string {
	return fmt.Sprintf("bind not supported for type %s", e.Type)
}

// UntranslatableExpressionError reports a predicate node the translator
// does not handle.
type UntranslatableExpressionError struct {
	Kind string
}

func (e *UntranslatableExpressionError) Error() string {
	return fmt.Sprintf("untranslatable expression: %s", e.Kind)
}

// SchemaIncompatibleError reports a schema the synchronizer cannot
// reconcile additively (a type change or a dropped column).
type SchemaIncompatibleError struct {
	Table  string
	Reason string
}

func (e *SchemaIncompatibleError) Error() string {
	return fmt.Sprintf("schema incompatible for table %q: %s", e.Table, e.Reason)
}

// NotFoundError reports a primary-key load with no matching row.
type NotFoundError struct {
	Table string
	PK    []any
}

func (e *NotFoundError) Error() string {
	pk := ""
	for i, v := range e.PK {
		if i > 0 {
			pk += " "
		}
		if s, ok := v.(string); ok {
			pk += fmt.Sprintf("%q", s)
		} else {
			pk += fmt.Sprint(v)
		}
	}
	return fmt.Sprintf("not found: %s[%s]", e.Table, pk)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// BusyError reports that the busy-timeout expired while waiting on a
// file lock, after the given number of retries the driver performed
// internally.
type BusyError struct {
	Retries int
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("busy after %d retries", e.Retries)
}

func (e *BusyError) Unwrap() error { return ErrBusy }

// Is wraps errors.Is for convenience, consistent with the rest of the
// module's error-handling idiom.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience.
func As(err error, target any) bool {
	return errors.As(err, target)
}
