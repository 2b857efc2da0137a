package rowkeep

import (
	"time"

	"github.com/kestrelrow/rowkeep/internal/bind"
	"github.com/kestrelrow/rowkeep/internal/sqlitegw"
)

// ConnOptions carries every policy knob Open accepts: the native
// connection settings sqlitegw needs to build its DSN, the value
// conversion policy internal/bind applies to every bound parameter
// and extracted column, and the statement-cache size.
type ConnOptions struct {
	ReadOnly    bool
	WAL         bool
	ForeignKeys bool
	BusyTimeout time.Duration

	Bind bind.Options

	// StatementCacheSize bounds the LRU cache of prepared statements
	// kept warm between calls. Zero uses DefaultStatementCacheSize.
	StatementCacheSize int

	// Verbose gates internal/logging's per-statement debug output,
	// which is silent by default so production use stays quiet.
	Verbose bool
}

// DefaultStatementCacheSize is the number of distinct (sql, paramCount)
// statements Conn keeps prepared at once.
const DefaultStatementCacheSize = 128

// DefaultConnOptions returns the recommended defaults: WAL on, foreign
// keys on, 30s busy-timeout, ISO-8601-with-milliseconds timestamps.
func DefaultConnOptions() ConnOptions {
	return ConnOptions{
		WAL:                true,
		ForeignKeys:        true,
		BusyTimeout:        sqlitegw.DefaultBusyTimeout,
		Bind:               bind.DefaultOptions(),
		StatementCacheSize: DefaultStatementCacheSize,
	}
}

// Option mutates a ConnOptions value being built up by Open.
type Option func(*ConnOptions)

func WithReadOnly() Option { return func(o *ConnOptions) { o.ReadOnly = true } }

func WithWAL(enabled bool) Option { return func(o *ConnOptions) { o.WAL = enabled } }

func WithForeignKeys(enabled bool) Option { return func(o *ConnOptions) { o.ForeignKeys = enabled } }

func WithBusyTimeout(d time.Duration) Option { return func(o *ConnOptions) { o.BusyTimeout = d } }

func WithBindOptions(b bind.Options) Option { return func(o *ConnOptions) { o.Bind = b } }

func WithStatementCacheSize(n int) Option { return func(o *ConnOptions) { o.StatementCacheSize = n } }

func WithVerbose(v bool) Option { return func(o *ConnOptions) { o.Verbose = v } }

func (o ConnOptions) gatewayOptions() sqlitegw.Options {
	return sqlitegw.Options{
		ReadOnly:    o.ReadOnly,
		WAL:         o.WAL,
		ForeignKeys: o.ForeignKeys,
		BusyTimeout: o.BusyTimeout,
	}
}
