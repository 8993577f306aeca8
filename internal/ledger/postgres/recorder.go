// Package postgres records publish decisions in a Postgres table.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/census-pipeline/internal/ledger"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "publish_ledger"

// Config controls the Postgres connection pool used for ledger rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// Recorder writes ledger rows into Postgres.
type Recorder struct {
	pool  execCloser
	table string
}

// New creates a Postgres-backed Recorder using the provided config.
func New(ctx context.Context, cfg Config) (*Recorder, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("ledger.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Recorder{pool: pool, table: table}, nil
}

// NewWithPool constructs a Recorder from an existing pool (primarily for testing).
func NewWithPool(pool execCloser, table string) (*Recorder, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &Recorder{pool: pool, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (r *Recorder) Close() {
	if r == nil || r.pool == nil {
		return
	}
	r.pool.Close()
}

// Record inserts one ledger row.
func (r *Recorder) Record(ctx context.Context, e ledger.Entry) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("ledger is not configured")
	}
	if e.Key == "" {
		return fmt.Errorf("entry key is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	dataset,
	object_key,
	content_md5,
	action,
	uri,
	recorded_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7
)`, r.table)

	args := []any{
		e.RunID,
		e.Dataset,
		e.Key,
		e.MD5,
		e.Action,
		e.URI,
		e.RecordedAt,
	}
	if _, err := r.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}
