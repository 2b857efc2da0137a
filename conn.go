// Package rowkeep is an embedded object-persistence layer over SQLite:
// register a Go struct type once, then Save/Load/Delete/Find values of
// that type without hand-writing SQL for the common cases, while still
// exposing Query for anything the mapper doesn't cover.
package rowkeep

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/kestrelrow/rowkeep/internal/bind"
	"github.com/kestrelrow/rowkeep/internal/cache"
	"github.com/kestrelrow/rowkeep/internal/logging"
	"github.com/kestrelrow/rowkeep/internal/rkerrors"
	"github.com/kestrelrow/rowkeep/internal/sqlitegw"
	"github.com/kestrelrow/rowkeep/internal/stmt"
)

// Conn is a single logical connection to a SQLite database: one
// *sql.DB, one statement cache, one conversion registry. It is not
// safe for concurrent use by multiple goroutines (§5's single-threaded
// cooperative model) — open one Conn per goroutine, or serialize
// access to a shared Conn yourself.
type Conn struct {
	mu sync.Mutex

	path    string
	db      *sql.DB
	options ConnOptions
	binder  *bind.Registry
	cache   cache.Cache[stmtKey, *stmt.Statement]

	// paramCounts remembers each SQL text's placeholder count, learned
	// the first time it is prepared, so a cache lookup can rebuild the
	// (sql, paramCount) key without re-preparing.
	paramCounts map[string]int

	lastInsertRowID int64
	lastChanges     int64

	// txDepth is the current BEGIN/SAVEPOINT nesting depth: 0 means no
	// transaction is open, 1 means the outermost BEGIN is open, and
	// each level beyond that is one nested SAVEPOINT.
	txDepth int
}

// stmtKey identifies a cached prepared statement by its SQL text and
// placeholder count, matching the teacher's cache-key convention of
// keying on the cheapest thing that distinguishes two entries.
type stmtKey struct {
	sql        string
	paramCount int
}

// Open opens (creating if necessary) the SQLite database at path and
// returns a ready Conn. It forces SetMaxOpenConns(1) on the underlying
// pool so database/sql's own connection multiplexing cannot violate
// the single-writer ordering guarantee this package promises.
func Open(path string, opts ...Option) (*Conn, error) {
	options := DefaultConnOptions()
	for _, opt := range opts {
		opt(&options)
	}

	db, err := sqlitegw.Open(path, options.gatewayOptions())
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	cacheSize := options.StatementCacheSize
	if cacheSize <= 0 {
		cacheSize = DefaultStatementCacheSize
	}

	c := &Conn{
		path:        path,
		db:          db,
		options:     options,
		binder:      bind.Default(),
		paramCounts: make(map[string]int),
		cache: cache.NewLRUCache[stmtKey, *stmt.Statement](cache.Config{
			MaxSize: cacheSize,
			OnEvict: func(key, value any) {
				if options.Verbose {
					if k, ok := key.(stmtKey); ok {
						logging.StatementEvicted(k.sql)
					}
				}
				if s, ok := value.(*stmt.Statement); ok {
					_ = s.Dispose()
				}
			},
		}),
	}
	return c, nil
}

// Close finalizes every cached statement before closing the database
// handle, so internal/stmt.OpenCount returns to the value it held
// before this Conn was opened.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Clear()
	return c.db.Close()
}

// Path returns the filesystem path this Conn was opened against.
func (c *Conn) Path() string { return c.path }

// prepare looks up or prepares+caches the statement for sqlText.
func (c *Conn) prepare(ctx context.Context, sqlText string) (*stmt.Statement, error) {
	if cnt, ok := c.paramCounts[sqlText]; ok {
		if s, ok := c.cache.Get(stmtKey{sql: sqlText, paramCount: cnt}); ok {
			return s, nil
		}
	}

	s, err := stmt.Prepare(ctx, c.db, sqlText, c.binder, c.options.Bind)
	if err != nil {
		return nil, err
	}
	c.paramCounts[sqlText] = s.ParamCount()
	c.cache.Put(stmtKey{sql: sqlText, paramCount: s.ParamCount()}, s)
	return s, nil
}

func bindPositional(s *stmt.Statement, args []any) error {
	if err := s.ClearBindings(); err != nil {
		return err
	}
	for i, a := range args {
		if err := s.BindByIndex(i+1, a); err != nil {
			return fmt.Errorf("rowkeep: binding argument %d: %w", i+1, err)
		}
	}
	return nil
}

// wrapCancellation replaces a native driver error with ErrCancelled
// when the caller's own context is what actually stopped the call,
// the idiomatic substitute for spec's explicit Interrupt() call.
func wrapCancellation(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return rkerrors.ErrCancelled
	}
	return err
}

// ExecContext runs sqlText (INSERT/UPDATE/DELETE/DDL) with positional
// arguments, using the statement cache. LastInsertRowID and Changes
// reflect this call once it returns successfully.
func (c *Conn) ExecContext(ctx context.Context, sqlText string, args ...any) (sql.Result, error) {
	s, err := c.prepare(ctx, sqlText)
	if err != nil {
		return nil, err
	}
	if err := bindPositional(s, args); err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := s.Exec(ctx)
	if err != nil {
		return nil, wrapCancellation(ctx, err)
	}
	elapsed := time.Since(start)

	if id, err := res.LastInsertId(); err == nil {
		c.lastInsertRowID = id
	}
	if n, err := res.RowsAffected(); err == nil {
		c.lastChanges = n
	}
	if c.options.Verbose {
		logging.StatementExecuted(sqlText, "", elapsed)
	}
	return res, nil
}

// Query runs sqlText with positional arguments and returns a lazy
// RowIterator: rows are fetched one at a time as Next is called,
// rather than materialized up front.
func (c *Conn) Query(ctx context.Context, sqlText string, args ...any) (*RowIterator, error) {
	s, err := c.prepare(ctx, sqlText)
	if err != nil {
		return nil, err
	}
	if err := bindPositional(s, args); err != nil {
		return nil, err
	}
	return newRowIterator(ctx, s), nil
}

// LastInsertRowID returns the rowid SQLite assigned to the most recent
// successful ExecContext/Save call on this Conn.
func (c *Conn) LastInsertRowID() int64 { return c.lastInsertRowID }

// Changes returns the number of rows affected by the most recent
// successful ExecContext/Save/Delete call on this Conn.
func (c *Conn) Changes() int64 { return c.lastChanges }
