package rowkeep

import (
	"context"

	"github.com/kestrelrow/rowkeep/internal/stmt"
)

// RowIterator is a lazy, forward-only cursor over a query's result
// set: each call to Next fetches exactly one more row from the native
// driver rather than materializing the whole result set up front.
type RowIterator struct {
	ctx  context.Context
	stmt *stmt.Statement
	err  error
	done bool
}

func newRowIterator(ctx context.Context, s *stmt.Statement) *RowIterator {
	return &RowIterator{ctx: ctx, stmt: s}
}

// Next advances to the next row, returning false once the result set
// is exhausted or an error occurred; check Err afterward to tell the
// two apart.
func (it *RowIterator) Next() bool {
	if it.done || it.err != nil {
		return false
	}

	sawRow := false
	err := it.stmt.Step(it.ctx, func(s *stmt.Statement, rowIndex int) bool {
		sawRow = true
		return false
	})
	if err != nil {
		it.err = wrapCancellation(it.ctx, err)
		it.done = true
		return false
	}
	if !sawRow {
		it.done = true
		return false
	}
	return true
}

// Err returns the first error Next encountered, if any.
func (it *RowIterator) Err() error { return it.err }

// Columns returns the current result set's column names, in order.
func (it *RowIterator) Columns() []string { return it.stmt.Columns() }

// ColumnValue returns the 0-based column's value for the current row.
func (it *RowIterator) ColumnValue(i int) (any, error) { return it.stmt.ColumnValue(i) }

// ColumnByName returns the named column's value for the current row,
// matched case-insensitively.
func (it *RowIterator) ColumnByName(name string) (any, error) { return it.stmt.ColumnByName(name) }

// Close releases the iterator's row cursor back to the statement so it
// can be reused for the next call; it does not finalize the statement.
func (it *RowIterator) Close() error {
	return it.stmt.Reset()
}
