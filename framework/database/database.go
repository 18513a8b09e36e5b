// Package database opens the SQL connection and runs versioned SQL
// migrations and seeders against it.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/km-arc/go-foundation/framework/config"
)

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// DSN builds a lib/pq connection string.
func DSN(cfg config.DBConfig) string {
	ssl := cfg.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	parts := []string{
		kv("host", cfg.Host),
		kv("port", cfg.Port),
		kv("user", cfg.Username),
		kv("password", cfg.Password),
		kv("dbname", cfg.Database),
		kv("sslmode", ssl),
	}
	return strings.Join(parts, " ")
}

// kv quotes a connection string value when it is empty or holds spaces,
// quotes or backslashes.
func kv(k, v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return k + "=" + v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return k + "='" + v + "'"
}

// Open opens a connection pool for cfg. The connection is established
// lazily; call PingContext to check it.
func Open(cfg config.DBConfig) (*sql.DB, error) {
	switch cfg.Driver {
	case "postgres", "pgsql", "":
	default:
		return nil, fmt.Errorf("database: driver [%s] is not supported", cfg.Driver)
	}
	db, err := sql.Open("postgres", DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("database: open: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLife > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLife)
	}
	return db, nil
}

// DropAllTables drops every table in the current schema and returns their
// names.
func DropAllTables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT tablename FROM pg_tables WHERE schemaname = current_schema() ORDER BY tablename`)
	if err != nil {
		return nil, fmt.Errorf("database: list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(tables) == 0 {
		return nil, nil
	}

	quoted := make([]string, len(tables))
	for i, t := range tables {
		quoted[i] = pq.QuoteIdentifier(t)
	}
	if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+strings.Join(quoted, ", ")+" CASCADE"); err != nil {
		return nil, fmt.Errorf("database: drop tables: %w", err)
	}
	return tables, nil
}
