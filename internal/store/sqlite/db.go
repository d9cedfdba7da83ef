// Package sqlite implements the domain store interfaces on an embedded
// SQLite database (modernc.org/sqlite, no cgo). Timestamps are stored as
// unix milliseconds.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

//go:embed schema.sql
var schema string

// DB owns the database handle and hands out the stores built on it.
type DB struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string) (*DB, error) {
	if dir := filepath.Dir(path); path != ":memory:" && dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create dir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: pragmas: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	return &DB{db: db, now: time.Now}, nil
}

// Close closes the database.
func (d *DB) Close() error { return d.db.Close() }

// Ping checks the handle is usable.
func (d *DB) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: ping: %w", err)
	}
	return nil
}

// Opportunities returns the opportunity store.
func (d *DB) Opportunities() *OpportunityStore { return &OpportunityStore{db: d.db} }

// Trades returns the trade store.
func (d *DB) Trades() *TradeStore { return &TradeStore{db: d.db, now: d.now} }

// Audit returns the audit log store.
func (d *DB) Audit() *AuditStore { return &AuditStore{db: d.db, now: d.now} }

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// listQuery appends ListOpts filters, ordering and paging to a base SELECT.
func listQuery(base, tsCol string, opts domain.ListOpts) (string, []any) {
	var (
		b     strings.Builder
		args  []any
		where []string
	)
	b.WriteString(base)

	if opts.Symbol != "" {
		where = append(where, "symbol = ?")
		args = append(args, opts.Symbol)
	}
	if opts.Since != nil {
		where = append(where, tsCol+" >= ?")
		args = append(args, toMillis(*opts.Since))
	}
	if opts.Until != nil {
		where = append(where, tsCol+" <= ?")
		args = append(args, toMillis(*opts.Until))
	}
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY " + tsCol + " DESC, id DESC")

	// SQLite only accepts OFFSET after LIMIT; -1 means unbounded.
	if opts.Limit > 0 || opts.Offset > 0 {
		limit := opts.Limit
		if limit <= 0 {
			limit = -1
		}
		b.WriteString(" LIMIT ?")
		args = append(args, limit)
		if opts.Offset > 0 {
			b.WriteString(" OFFSET ?")
			args = append(args, opts.Offset)
		}
	}
	return b.String(), args
}
