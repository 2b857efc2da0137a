// Package sqlitegw is the native gateway: the thin call surface over the
// SQLite engine that every other rowkeep package ultimately routes
// through. It supports two interchangeable drivers behind the same
// database/sql DSN-shaped API:
//
//   - Default (CGO_ENABLED=0): pure Go modernc.org/sqlite
//   - CGO mode (CGO_ENABLED=1 -tags cgo_sqlite): mattn/go-sqlite3, wired
//     in from contrib/sqlite-cgo to keep the optional external
//     dependency out of the default build graph.
//
// database/sql's own prepare/step/finalize lifecycle over *sql.Stmt and
// *sql.Rows stands in for the bind_*/column_*/step/finalize C ABI calls
// the original design enumerates; sqlitegw only adds what database/sql
// does not surface on its own: busy-timeout, WAL mode, and a DSN
// builder that speaks both drivers' query-string dialects.
package sqlitegw

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DefaultBusyTimeout matches spec's default busy-timeout of 30s.
const DefaultBusyTimeout = 30 * time.Second

// DriverName returns the database/sql driver name selected at build time:
// "sqlite" for the pure Go driver, "sqlite3" for the CGO driver.
func DriverName() string {
	return driverName
}

// DriverType identifies the underlying implementation: "purego" or "cgo".
func DriverType() string {
	return driverType
}

// IsCGO reports whether the CGO driver (mattn/go-sqlite3) is active.
func IsCGO() bool {
	return driverType == "cgo"
}

// Options configures how Open builds the connection DSN. These map onto
// spec's ConnectionOptions that affect the native connection itself
// (as opposed to internal/bind.Options, which affects value conversion).
type Options struct {
	// ReadOnly opens the database in read-only mode.
	ReadOnly bool
	// WAL sets journal_mode=WAL, the recommended (not enforced) mode.
	WAL bool
	// ForeignKeys turns on foreign_keys enforcement.
	ForeignKeys bool
	// BusyTimeout is how long a blocked step() waits on a file lock
	// before surfacing Busy. Zero uses DefaultBusyTimeout.
	BusyTimeout time.Duration
}

// DefaultOptions returns the recommended defaults: WAL on, foreign keys
// on, 30s busy-timeout.
func DefaultOptions() Options {
	return Options{
		WAL:         true,
		ForeignKeys: true,
		BusyTimeout: DefaultBusyTimeout,
	}
}

// Open opens a SQLite database using the build-selected driver and the
// given options, and pings it to surface connection errors immediately
// rather than lazily on first use.
func Open(path string, opts Options) (*sql.DB, error) {
	dsn := buildDSN(path, opts)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlitegw: open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitegw: ping %s: %w", path, err)
	}
	return db, nil
}

// OpenReadOnly opens a SQLite database in read-only mode with otherwise
// default options.
func OpenReadOnly(path string) (*sql.DB, error) {
	opts := DefaultOptions()
	opts.ReadOnly = true
	return Open(path, opts)
}

// Interrupt aborts any statement currently stepping on the given
// connection by cancelling its context; both drivers translate a
// cancelled context into an interrupted native step. Callers pass the
// context.CancelFunc returned alongside the context they used for the
// blocking call.
func Interrupt(cancel context.CancelFunc) {
	cancel()
}

func buildDSN(path string, opts Options) string {
	if IsCGO() {
		return buildMattnDSN(path, opts)
	}
	return buildModerncDSN(path, opts)
}

// buildMattnDSN builds a mattn/go-sqlite3 DSN: plain "key=value" query
// parameters.
func buildMattnDSN(path string, opts Options) string {
	dsn := path
	sep := "?"
	add := func(kv string) {
		dsn += sep + kv
		sep = "&"
	}
	if opts.ReadOnly {
		add("mode=ro")
	}
	if opts.WAL {
		add("_journal_mode=WAL")
	}
	if opts.ForeignKeys {
		add("_foreign_keys=ON")
	}
	timeout := opts.BusyTimeout
	if timeout == 0 {
		timeout = DefaultBusyTimeout
	}
	add(fmt.Sprintf("_busy_timeout=%d", timeout.Milliseconds()))
	return dsn
}

// buildModerncDSN builds a modernc.org/sqlite DSN: one or more
// "_pragma=name(value)" query parameters.
func buildModerncDSN(path string, opts Options) string {
	dsn := path
	sep := "?"
	add := func(kv string) {
		dsn += sep + kv
		sep = "&"
	}
	if opts.ReadOnly {
		add("mode=ro")
	}
	if opts.WAL {
		add("_pragma=journal_mode(WAL)")
	}
	if opts.ForeignKeys {
		add("_pragma=foreign_keys(1)")
	}
	timeout := opts.BusyTimeout
	if timeout == 0 {
		timeout = DefaultBusyTimeout
	}
	add(fmt.Sprintf("_pragma=busy_timeout(%d)", timeout.Milliseconds()))
	return dsn
}

// Info describes the driver configuration in effect for this build.
type Info struct {
	DriverName string
	DriverType string
	IsCGO      bool
	Package    string
}

// GetInfo returns the driver configuration in effect for this build.
func GetInfo() Info {
	return Info{
		DriverName: driverName,
		DriverType: driverType,
		IsCGO:      IsCGO(),
		Package:    driverPackage,
	}
}
