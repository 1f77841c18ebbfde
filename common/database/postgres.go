package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"

	"github.com/laraveldev/tg-bot/common/config"

	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

// NewPostgresDB opens and pings a Postgres connection pool
func NewPostgresDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MaxIdle > 0 {
		db.SetMaxIdleConns(cfg.MaxIdle)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Close closes db if non-nil
func Close(db *sql.DB) error {
	if db != nil {
		return db.Close()
	}
	return nil
}

// Schema returns the embedded DDL for shifts, persons, schedules and breaks
func Schema() string {
	return schemaSQL
}

// SplitStatements splits a SQL script on ";" and drops empty and comment-only chunks
func SplitStatements(script string) []string {
	var out []string
	for _, stmt := range strings.Split(script, ";") {
		stmt = stripComments(stmt)
		if stmt == "" {
			continue
		}
		out = append(out, stmt)
	}
	return out
}

func stripComments(stmt string) string {
	lines := strings.Split(stmt, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// ApplyScript executes every statement of script in order, stopping at the first failure
func ApplyScript(ctx context.Context, db *sql.DB, script string) (int, error) {
	stmts := SplitStatements(script)
	for i, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return i, fmt.Errorf("statement %d: %w", i+1, err)
		}
	}
	return len(stmts), nil
}

// EnsureSchema applies the embedded schema; every statement is IF NOT EXISTS
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := ApplyScript(ctx, db, schemaSQL)
	return err
}
