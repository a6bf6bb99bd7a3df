package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Migrations returns the schema migrations shipped with the binary.
func Migrations() fs.FS {
	sub, err := fs.Sub(embeddedMigrations, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// DB is the PostgreSQL handle holding persisted Salesforce credentials.
type DB struct {
	*sql.DB
}

// New opens and pings conn. When the server refuses TLS and conn does not
// choose an sslmode, it retries once with sslmode=disable.
func New(ctx context.Context, conn string) (*DB, error) {
	if conn == "" {
		return nil, fmt.Errorf("database connection string is required")
	}

	sqlDB, err := open(ctx, conn)
	if err != nil && !strings.Contains(strings.ToLower(conn), "sslmode") {
		slog.Info("retrying database connection with SSL disabled", "error", err)
		sqlDB, err = open(ctx, withSSLDisabled(conn))
	}
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(2)
	return &DB{DB: sqlDB}, nil
}

func open(ctx context.Context, conn string) (*sql.DB, error) {
	sqlDB, err := sql.Open("postgres", conn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return sqlDB, nil
}

func withSSLDisabled(conn string) string {
	if strings.Contains(conn, "?") {
		return conn + "&sslmode=disable"
	}
	return conn + "?sslmode=disable"
}

func (db *DB) HealthCheck(ctx context.Context) error {
	return db.PingContext(ctx)
}

func (db *DB) Close() error {
	return db.DB.Close()
}

// RunMigrations applies, in order, every numbered .sql file in fsys whose
// version is not yet recorded in schema_migrations. Each file runs in its own
// transaction together with its bookkeeping row.
func (db *DB) RunMigrations(ctx context.Context, fsys fs.FS) error {
	migrations, err := readMigrations(fsys)
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	if len(migrations) == 0 {
		slog.Info("no migrations found")
		return nil
	}

	if _, err := db.ExecContext(ctx, schemaMigrationsDDL); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	applied, err := db.appliedVersions(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.Number] {
			continue
		}
		slog.Info("applying migration", "version", m.Number, "name", m.Name)
		if err := db.apply(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

const schemaMigrationsDDL = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		name       TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`

func (db *DB) appliedVersions(ctx context.Context) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func (db *DB) apply(ctx context.Context, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migration %d: begin: %w", m.Number, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("migration %d (%s): %w", m.Number, m.Name, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.Number, m.Name,
	); err != nil {
		return fmt.Errorf("migration %d: record: %w", m.Number, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migration %d: commit: %w", m.Number, err)
	}
	return nil
}

// Migration is one numbered schema change, e.g. 001_salesforce_tokens.sql.
type Migration struct {
	Number int
	Name   string
	SQL    string
}

// readMigrations collects NNN_name.sql files anywhere under fsys, sorted by
// number. Files without a numeric prefix are ignored.
func readMigrations(fsys fs.FS) ([]Migration, error) {
	var out []Migration
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || path.Ext(p) != ".sql" {
			return err
		}
		prefix, name, ok := strings.Cut(strings.TrimSuffix(path.Base(p), ".sql"), "_")
		if !ok {
			return nil
		}
		number, convErr := strconv.Atoi(prefix)
		if convErr != nil {
			return nil
		}
		body, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}
		out = append(out, Migration{Number: number, Name: name, SQL: string(body)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}
