package rowkeep

import (
	"context"
	"fmt"

	"github.com/kestrelrow/rowkeep/internal/logging"
)

// Tx is a Conn scoped to an open transaction or savepoint. It embeds
// *Conn, so Save/Load/Query/Find/etc. all work the same inside a
// transaction as outside one — they simply run against the same
// single physical connection the enclosing BEGIN/SAVEPOINT opened.
type Tx struct {
	*Conn
}

// WithTransaction runs fn inside a transaction. The outermost call
// issues BEGIN/COMMIT/ROLLBACK; a call made from within an
// already-running WithTransaction (directly, or from a function it
// calls) nests as SAVEPOINT spN / RELEASE spN / ROLLBACK TO spN
// instead, so re-entrant callers compose correctly.
func (c *Conn) WithTransaction(ctx context.Context, fn func(*Tx) error) error {
	depth := c.txDepth
	c.txDepth++
	defer func() { c.txDepth-- }()

	spName := fmt.Sprintf("sp%d", depth)
	beginSQL := "SAVEPOINT " + spName
	if depth == 0 {
		beginSQL = "BEGIN"
	}
	if _, err := c.db.ExecContext(ctx, beginSQL); err != nil {
		return fmt.Errorf("rowkeep: %s: %w", beginSQL, err)
	}
	if c.options.Verbose {
		logging.TransactionBoundary(beginSQL, depth, nil)
	}

	err := fn(&Tx{Conn: c})

	if err != nil {
		rollbackSQL := "ROLLBACK TO " + spName
		if depth == 0 {
			rollbackSQL = "ROLLBACK"
		}
		if _, rerr := c.db.ExecContext(ctx, rollbackSQL); rerr != nil {
			return fmt.Errorf("rowkeep: rollback after %w failed: %v", err, rerr)
		}
		if c.options.Verbose {
			logging.TransactionBoundary(rollbackSQL, depth, err)
		}
		return err
	}

	commitSQL := "RELEASE " + spName
	if depth == 0 {
		commitSQL = "COMMIT"
	}
	if _, err := c.db.ExecContext(ctx, commitSQL); err != nil {
		return fmt.Errorf("rowkeep: %s: %w", commitSQL, err)
	}
	if c.options.Verbose {
		logging.TransactionBoundary(commitSQL, depth, nil)
	}
	return nil
}
