// Package db opens the DuckDB database that backs the geocode cache.
package db

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Config holds database configuration.
type Config struct {
	DataDir string
	DBName  string
}

// Path returns the database file path, or "" for an in-memory database.
func (c Config) Path() string {
	if c.DataDir == "" {
		return ""
	}
	name := c.DBName
	if name == "" {
		name = "mapview"
	}
	return filepath.Join(c.DataDir, "duckdb", name+".duckdb")
}

// Open opens the database, creating its directory. An empty DataDir opens an
// in-memory database.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	path := cfg.Path()
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, eris.Wrap(err, "db: create duckdb directory")
		}
	}

	conn, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, eris.Wrap(err, "db: open duckdb")
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, eris.Wrapf(err, "db: ping %s", path)
	}
	zap.L().Info("db: opened", zap.String("path", path))
	return conn, nil
}

// Tables lists the tables in the main schema.
func Tables(ctx context.Context, conn *sql.DB) ([]string, error) {
	rows, err := conn.QueryContext(ctx, "SHOW TABLES")
	if err != nil {
		return nil, eris.Wrap(err, "db: list tables")
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "db: scan table name")
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}
