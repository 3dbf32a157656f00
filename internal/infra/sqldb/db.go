// Package sqldb is the relational store built on bun. It runs on Postgres
// in production and on SQLite for local use and tests.
package sqldb

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"

	"github.com/juju/errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"

	// Pure Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open connects to the database and verifies the connection.
func Open(ctx context.Context, driver, dsn string) (*bun.DB, error) {
	switch driver {
	case DriverPostgres:
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
		db := bun.NewDB(sqldb, pgdialect.New())
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, errors.Annotate(err, "ping postgres")
		}
		return db, nil
	case DriverSQLite, "":
		if err := ensureDir(dsn); err != nil {
			return nil, errors.Annotate(err, "create sqlite directory")
		}
		sqldb, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, errors.Annotate(err, "open sqlite")
		}
		// one writer at a time; also keeps ":memory:" databases on a single connection
		sqldb.SetMaxOpenConns(1)
		if err := applyPragmas(ctx, sqldb); err != nil {
			sqldb.Close()
			return nil, errors.Annotate(err, "apply pragmas")
		}
		return bun.NewDB(sqldb, sqlitedialect.New()), nil
	default:
		return nil, errors.NotSupportedf("database driver %q", driver)
	}
}

// ensureDir creates the parent directory of a file-backed SQLite DSN.
func ensureDir(dsn string) error {
	path, _, _ := strings.Cut(strings.TrimPrefix(dsn, "file:"), "?")
	if path == "" || path == ":memory:" || strings.HasPrefix(path, ":") {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return errors.Annotate(err, p)
		}
	}
	return nil
}
