package cli

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"

	"github.com/odyssey-erp/odyssey-stock/internal/platform/migrate"
)

// MigrateOptions defines the arguments of the migrate command.
type MigrateOptions struct {
	Command string
	Args    []string
	Stdout  io.Writer
	Stderr  io.Writer
}

var migrateCommands = map[string]int{
	"up":       0,
	"down":     0,
	"status":   0,
	"redo":     0,
	"version":  0,
	"reset":    0,
	"up-to":    1,
	"down-to":  1,
	"to":       1,
	"validate": 0,
}

// MigrateCommand runs a goose command against db and returns the process
// exit code.
func MigrateCommand(ctx context.Context, db *sql.DB, opts MigrateOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Command == "" {
		opts.Command = "up"
	}
	want, ok := migrateCommands[opts.Command]
	if !ok {
		_, _ = fmt.Fprintf(opts.Stderr, "migrate: unknown command %q\n", opts.Command)
		return 2
	}
	if len(opts.Args) != want {
		_, _ = fmt.Fprintf(opts.Stderr, "migrate %s: expected %d argument(s), got %d\n", opts.Command, want, len(opts.Args))
		return 2
	}
	if db == nil {
		_, _ = fmt.Fprintln(opts.Stderr, "migrate: database not configured")
		return 1
	}
	var err error
	if opts.Command == "to" {
		err = migrate.MigrateToVersion(ctx, db, opts.Args[0])
	} else {
		err = migrate.Run(ctx, db, opts.Command, opts.Args...)
	}
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "migrate %s: %v\n", opts.Command, err)
		return 1
	}
	_, _ = fmt.Fprintf(opts.Stdout, "migrate %s: ok\n", opts.Command)
	return 0
}
