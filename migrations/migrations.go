// Package migrations embeds SQL migration files for every supported database
// and applies them with goose.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite3"
)

//go:embed postgres/*.sql sqlite/*.sql
var embedded embed.FS

// FS returns the migration files for the given goose dialect.
func FS(dialect string) (fs.FS, error) {
	dir, err := dirFor(dialect)
	if err != nil {
		return nil, err
	}
	return fs.Sub(embedded, dir)
}

// Setup points goose at the embedded files for dialect.
func Setup(dialect string) error {
	sub, err := FS(dialect)
	if err != nil {
		return err
	}
	goose.SetBaseFS(sub)

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	return nil
}

// Run applies all pending migrations to db.
func Run(db *sql.DB, dialect string) error {
	if err := Setup(dialect); err != nil {
		return err
	}

	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func dirFor(dialect string) (string, error) {
	switch dialect {
	case DialectPostgres:
		return "postgres", nil
	case DialectSQLite:
		return "sqlite", nil
	default:
		return "", fmt.Errorf("unsupported dialect %q", dialect)
	}
}
