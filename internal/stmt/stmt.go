// Package stmt wraps a single prepared statement: bind parameters
// through internal/bind, step through the native database/sql cursor,
// and read column values back out. It mirrors the native
// prepare/bind/step/reset/finalize lifecycle spec.md describes,
// expressed over *sql.Stmt/*sql.Rows instead of a hand-rolled cgo ABI.
package stmt

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kestrelrow/rowkeep/internal/bind"
	"github.com/kestrelrow/rowkeep/internal/rkerrors"
)

// State is a position in the statement lifecycle:
// Prepared --bind*--> Bound --step--> {Row, Done}; Reset returns to
// Bound (bindings retained) or Prepared (after ClearBindings).
// Finalized is terminal.
type State int

const (
	Prepared State = iota
	Bound
	Stepping
	Row
	Done
	Finalized
)

func (s State) String() string {
	switch s {
	case Prepared:
		return "Prepared"
	case Bound:
		return "Bound"
	case Stepping:
		return "Stepping"
	case Row:
		return "Row"
	case Done:
		return "Done"
	case Finalized:
		return "Finalized"
	default:
		return "Unknown"
	}
}

// OpenCount is the number of live (non-Finalized) Statements. Tests
// use it to detect leaked handles: it must return to zero once every
// Conn using it has been closed.
var OpenCount atomic.Int64

var namedParamPattern = regexp.MustCompile(`[:@$]([A-Za-z_][A-Za-z0-9_]*)`)
var positionalParamPattern = regexp.MustCompile(`\?[0-9]*`)

// Statement wraps one *sql.Stmt plus the bind/extract state needed to
// drive it the way spec.md's Statement type describes.
type Statement struct {
	mu sync.Mutex

	sqlText  string
	native   *sql.Stmt
	rows     *sql.Rows
	state    State
	disposed bool

	registry *bind.Registry
	options  bind.Options

	paramNames map[string]bool // set of named placeholders found in sqlText
	numParams  int             // total placeholder count (named + positional), for cache keying

	byPosition map[int]any
	byName     map[string]any

	columns     []string
	columnIndex map[string]int // lower(name) -> 0-based index
	rawValues   []any          // current row, aligned with columns
}

// Prepare prepares sqlText against db and returns a Statement ready
// for binding. Failure is reported as *rkerrors.PrepareError.
func Prepare(ctx context.Context, db *sql.DB, sqlText string, registry *bind.Registry, options bind.Options) (*Statement, error) {
	native, err := db.PrepareContext(ctx, sqlText)
	if err != nil {
		return nil, &rkerrors.PrepareError{Message: err.Error(), SQL: sqlText}
	}

	names := map[string]bool{}
	for _, m := range namedParamPattern.FindAllStringSubmatch(sqlText, -1) {
		names[m[1]] = true
	}
	numParams := len(names) + len(positionalParamPattern.FindAllString(sqlText, -1))

	s := &Statement{
		sqlText:    sqlText,
		native:     native,
		state:      Prepared,
		registry:   registry,
		options:    options,
		paramNames: names,
		numParams:  numParams,
		byPosition: make(map[int]any),
		byName:     make(map[string]any),
	}
	OpenCount.Add(1)
	return s, nil
}

// ParamCount returns the placeholder count found while preparing
// (distinct named placeholders plus every positional occurrence), used
// as part of the (sql, paramCount) statement-cache key.
func (s *Statement) ParamCount() int { return s.numParams }

// SQL returns the statement's source text.
func (s *Statement) SQL() string { return s.sqlText }

// BindByIndex binds value to the 1-based positional parameter i,
// converting it through internal/bind.
func (s *Statement) BindByIndex(i int, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return rkerrors.ErrDisposed
	}

	converted, err := s.convert(value)
	if err != nil {
		return err
	}
	s.byPosition[i] = converted
	if s.state == Prepared {
		s.state = Bound
	}
	return nil
}

// BindByName binds value to the named parameter name (without its
// sigil). Fails *rkerrors.UnknownParameterError if name was not found
// in the statement's SQL text at Prepare time.
func (s *Statement) BindByName(name string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return rkerrors.ErrDisposed
	}
	if !s.paramNames[name] {
		return &rkerrors.UnknownParameterError{Name: name}
	}

	converted, err := s.convert(value)
	if err != nil {
		return err
	}
	s.byName[name] = converted
	if s.state == Prepared {
		s.state = Bound
	}
	return nil
}

func (s *Statement) convert(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	v, ok, err := s.registry.Bind(bind.Context{Value: value, Options: s.options})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &rkerrors.BindNotSupportedError{Type: reflect.TypeOf(value)}
	}
	switch v.(type) {
	case nil, int64, float64, bool, []byte, string, time.Time:
		return v, nil
	default:
		return nil, &rkerrors.BindNotSupportedError{Type: reflect.TypeOf(value)}
	}
}

// args assembles the final positional argument slice database/sql
// expects, from whichever of byPosition/byName were used.
func (s *Statement) args() []any {
	if len(s.byName) > 0 {
		out := make([]any, 0, len(s.byName))
		for name, v := range s.byName {
			out = append(out, sql.Named(name, v))
		}
		return out
	}
	if len(s.byPosition) == 0 {
		return nil
	}
	maxIdx := 0
	for i := range s.byPosition {
		if i > maxIdx {
			maxIdx = i
		}
	}
	out := make([]any, maxIdx)
	for i, v := range s.byPosition {
		out[i-1] = v
	}
	return out
}

// Step runs the query, invoking pred(s, rowIndex) after loading each
// row; it stops when pred returns false or the cursor is exhausted.
// Statements with no result rows (INSERT/UPDATE/DELETE) run to Done
// without ever entering Row.
func (s *Statement) Step(ctx context.Context, pred func(*Statement, int) bool) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return rkerrors.ErrDisposed
	}
	if s.rows == nil {
		rows, err := s.native.QueryContext(ctx, s.args()...)
		if err != nil {
			s.mu.Unlock()
			return &rkerrors.StepError{Message: err.Error(), SQL: s.sqlText}
		}
		s.rows = rows
		cols, err := rows.Columns()
		if err == nil {
			s.setColumns(cols)
		}
	}
	s.state = Stepping
	s.mu.Unlock()

	rowIndex := 0
	for s.rows.Next() {
		if err := s.scanCurrentRow(); err != nil {
			return &rkerrors.StepError{Message: err.Error(), SQL: s.sqlText}
		}
		s.mu.Lock()
		s.state = Row
		s.mu.Unlock()

		keepGoing := true
		if pred != nil {
			keepGoing = pred(s, rowIndex)
		}
		rowIndex++
		if !keepGoing {
			return nil
		}
	}
	if err := s.rows.Err(); err != nil {
		return &rkerrors.StepError{Message: err.Error(), SQL: s.sqlText}
	}

	s.mu.Lock()
	s.state = Done
	s.mu.Unlock()
	return nil
}

// Exec runs an INSERT/UPDATE/DELETE directly and returns the
// database/sql Result, bypassing the row cursor entirely.
func (s *Statement) Exec(ctx context.Context) (sql.Result, error) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil, rkerrors.ErrDisposed
	}
	args := s.args()
	s.state = Stepping
	s.mu.Unlock()

	res, err := s.native.ExecContext(ctx, args...)
	if err != nil {
		return nil, &rkerrors.StepError{Message: err.Error(), SQL: s.sqlText}
	}

	s.mu.Lock()
	s.state = Done
	s.mu.Unlock()
	return res, nil
}

func (s *Statement) setColumns(cols []string) {
	s.columns = cols
	s.columnIndex = make(map[string]int, len(cols))
	for i, c := range cols {
		s.columnIndex[strings.ToLower(c)] = i
	}
}

func (s *Statement) scanCurrentRow() error {
	dest := make([]any, len(s.columns))
	ptrs := make([]any, len(s.columns))
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	if err := s.rows.Scan(ptrs...); err != nil {
		return err
	}
	s.mu.Lock()
	s.rawValues = dest
	s.mu.Unlock()
	return nil
}

// ColumnValue returns the typed value of the 0-based column i for the
// current row: TEXT -> string, REAL -> float64, INTEGER -> int32 if
// it fits else int64, BLOB -> a copied []byte, NULL -> nil.
func (s *Statement) ColumnValue(i int) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.rawValues) {
		return nil, &rkerrors.ColumnError{Message: "index out of range", Column: fmt.Sprintf("%d", i)}
	}
	return narrowColumnValue(s.rawValues[i]), nil
}

// ColumnByName resolves name case-insensitively against the current
// result set's column list, then behaves like ColumnValue.
func (s *Statement) ColumnByName(name string) (any, error) {
	s.mu.Lock()
	idx, ok := s.columnIndex[strings.ToLower(name)]
	s.mu.Unlock()
	if !ok {
		return nil, &rkerrors.UnknownColumnError{Name: name}
	}
	return s.ColumnValue(idx)
}

// Columns returns the current result set's column names in order.
func (s *Statement) Columns() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.columns
}

func narrowColumnValue(v any) any {
	i64, ok := v.(int64)
	if !ok {
		if b, ok := v.([]byte); ok {
			cp := make([]byte, len(b))
			copy(cp, b)
			return cp
		}
		return v
	}
	if i64 >= -(1<<31) && i64 <= (1<<31)-1 {
		return int32(i64)
	}
	return i64
}

// Reset returns the statement to Bound (bindings retained), closing
// any open row cursor. It does not clear bound parameter values.
func (s *Statement) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return rkerrors.ErrDisposed
	}
	if s.rows != nil {
		_ = s.rows.Close()
		s.rows = nil
	}
	s.rawValues = nil
	if len(s.byPosition) > 0 || len(s.byName) > 0 {
		s.state = Bound
	} else {
		s.state = Prepared
	}
	return nil
}

// ClearBindings discards all bound parameter values and returns the
// statement to Prepared, after first performing the equivalent of
// Reset.
func (s *Statement) ClearBindings() error {
	if err := s.Reset(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byPosition = make(map[int]any)
	s.byName = make(map[string]any)
	s.state = Prepared
	return nil
}

// State returns the statement's current lifecycle state.
func (s *Statement) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dispose finalizes the statement exactly once; it is safe to call
// more than once, including from a runtime.SetFinalizer path.
func (s *Statement) Dispose() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return nil
	}
	s.disposed = true
	s.state = Finalized
	if s.rows != nil {
		_ = s.rows.Close()
		s.rows = nil
	}
	OpenCount.Add(-1)
	return s.native.Close()
}
