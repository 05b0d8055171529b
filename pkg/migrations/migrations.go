// Package migrations embeds the SQL schema and applies it with goose.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed sql/*.sql
var FS embed.FS

// Dir is the directory inside FS holding the migration files.
const Dir = "sql"

// Commands lists the goose commands exposed by cmd/migrate.
var Commands = []string{"up", "up-by-one", "up-to", "down", "down-to", "redo", "reset", "status", "version"}

var runFunc = goose.RunContext // mockable

// Run executes a goose command against db using the embedded migrations.
func Run(ctx context.Context, db *sql.DB, command string, args ...string) error {
	goose.SetBaseFS(FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := runFunc(ctx, command, db, Dir, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}
