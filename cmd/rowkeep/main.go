// Command rowkeep is a small CLI demo for the rowkeep library: it
// opens a database, synchronizes a demo schema, and lets you poke at
// rows from a terminal without writing Go.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/dustin/go-humanize"

	"github.com/kestrelrow/rowkeep"
	"github.com/kestrelrow/rowkeep/internal/query"
	"github.com/kestrelrow/rowkeep/internal/rkerrors"
)

const version = "0.1.0"

// note is the demo row type every subcommand operates on.
type note struct {
	ID     int64  `db:"id,pk,autoincrement"`
	Title  string `db:"title"`
	Body   string `db:"body"`
	Pinned bool   `db:"pinned"`
}

// CLI defines the command-line interface for rowkeep.
var CLI struct {
	DB string `name:"db" short:"d" default:"rowkeep.db" help:"Path to the SQLite database file" type:"path"`

	Note     NoteGroup  `cmd:"" help:"Note row operations (add, list, show, rm)"`
	Database DBGroup    `cmd:"db" help:"Database maintenance"`
	Version  VersionCmd `cmd:"" help:"Print version information"`
}

// NoteGroup contains note row lifecycle operations.
type NoteGroup struct {
	Add  NoteAddCmd  `cmd:"" help:"Add a note"`
	List NoteListCmd `cmd:"" help:"List all notes, or only pinned ones"`
	Show NoteShowCmd `cmd:"" help:"Show a single note by ID"`
	Rm   NoteRmCmd   `cmd:"" help:"Remove a note by ID"`
}

// DBGroup contains database-level maintenance operations.
type DBGroup struct {
	Stats DBStatsCmd `cmd:"" help:"Print database file size and connection stats"`
}

// NoteAddCmd adds a note.
type NoteAddCmd struct {
	Title  string `arg:"" help:"Note title"`
	Body   string `arg:"" optional:"" help:"Note body"`
	Pinned bool   `help:"Pin the note"`
}

func (c *NoteAddCmd) Run(conn *rowkeep.Conn) error {
	n := &note{Title: c.Title, Body: c.Body, Pinned: c.Pinned}
	if err := conn.Save(context.Background(), n); err != nil {
		return err
	}
	fmt.Printf("Added note #%d: %s\n", n.ID, n.Title)
	return nil
}

// NoteListCmd lists notes.
type NoteListCmd struct {
	PinnedOnly bool `name:"pinned" help:"Only list pinned notes"`
}

func (c *NoteListCmd) Run(conn *rowkeep.Conn) error {
	ctx := context.Background()
	var notes []note
	if c.PinnedOnly {
		pred := query.Field("Pinned").EQ(query.Val(true))
		if err := conn.Find(ctx, &notes, pred); err != nil {
			return err
		}
	} else if err := conn.LoadAll(ctx, &notes); err != nil {
		return err
	}

	if len(notes) == 0 {
		fmt.Println("No notes.")
		return nil
	}
	for _, n := range notes {
		mark := " "
		if n.Pinned {
			mark = "*"
		}
		fmt.Printf("%s #%d  %s\n", mark, n.ID, n.Title)
	}
	return nil
}

// NoteShowCmd shows a single note.
type NoteShowCmd struct {
	ID int64 `arg:"" help:"Note ID"`
}

func (c *NoteShowCmd) Run(conn *rowkeep.Conn) error {
	var n note
	if err := conn.Load(context.Background(), &n, c.ID); err != nil {
		return err
	}
	fmt.Printf("#%d  %s\n", n.ID, n.Title)
	if n.Body != "" {
		fmt.Printf("\n%s\n", n.Body)
	}
	if n.Pinned {
		fmt.Println("\n(pinned)")
	}
	return nil
}

// NoteRmCmd removes a note.
type NoteRmCmd struct {
	ID int64 `arg:"" help:"Note ID"`
}

func (c *NoteRmCmd) Run(conn *rowkeep.Conn) error {
	n := &note{ID: c.ID}
	affected, err := conn.Delete(context.Background(), n)
	if err != nil {
		return err
	}
	if affected == 0 {
		return &rkerrors.NotFoundError{Table: "note", PK: []any{c.ID}}
	}
	fmt.Printf("Removed note #%d\n", c.ID)
	return nil
}

// DBStatsCmd prints database file size and connection stats.
type DBStatsCmd struct{}

func (c *DBStatsCmd) Run(conn *rowkeep.Conn) error {
	start := time.Now()
	var all []note
	if err := conn.LoadAll(context.Background(), &all); err != nil {
		return err
	}
	elapsed := time.Since(start)

	info, err := os.Stat(conn.Path())
	if err != nil {
		return fmt.Errorf("stat database file: %w", err)
	}

	fmt.Printf("Database: %s\n", conn.Path())
	fmt.Printf("  Size:  %s\n", humanize.Bytes(uint64(info.Size())))
	fmt.Printf("  Rows:  %s notes\n", humanize.Comma(int64(len(all))))
	fmt.Printf("  Scan:  %s\n", elapsed)
	return nil
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("rowkeep %s\n", version)
	return nil
}

// exitCode maps an error returned by a command to the process exit
// code: 0 success, 1 user error, 2 database error, 3 cancelled.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, rkerrors.ErrCancelled):
		return 3
	case errors.Is(err, rkerrors.ErrNotFound), errors.Is(err, rkerrors.ErrDisposed):
		return 2
	default:
		var (
			prepareErr *rkerrors.PrepareError
			stepErr    *rkerrors.StepError
			bindErr    *rkerrors.BindError
			columnErr  *rkerrors.ColumnError
			busyErr    *rkerrors.BusyError
		)
		if errors.As(err, &prepareErr) || errors.As(err, &stepErr) ||
			errors.As(err, &bindErr) || errors.As(err, &columnErr) ||
			errors.As(err, &busyErr) {
			return 2
		}
		return 1
	}
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("rowkeep"),
		kong.Description("rowkeep — an embedded object-persistence layer over SQLite"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)

	conn, err := rowkeep.Open(CLI.DB)
	if err != nil {
		fmt.Fprintln(os.Stderr, "rowkeep:", err)
		os.Exit(2)
	}
	defer conn.Close()

	if err := conn.SynchronizeSchema(context.Background(), note{}); err != nil {
		fmt.Fprintln(os.Stderr, "rowkeep:", err)
		os.Exit(2)
	}

	runErr := ctx.Run(conn)
	if runErr != nil {
		fmt.Fprintln(os.Stderr, "rowkeep:", runErr)
	}
	os.Exit(exitCode(runErr))
}
