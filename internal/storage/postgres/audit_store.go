// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zhidu-qidian/Spiders/internal/store"
)

const (
	defaultTable     = "stage_failures"
	defaultListLimit = 50
	maxListLimit     = 500
	failureColumns   = 7
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// AuditStoreConfig controls the Postgres connection pool used for failure rows.
type AuditStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Ping(context.Context) error
	Close()
}

// AuditStore implements store.AuditRepository on a single append-only table.
type AuditStore struct {
	pool  pool
	table string
}

var _ store.AuditRepository = (*AuditStore)(nil)

// NewAuditStore connects to Postgres using cfg.
func NewAuditStore(ctx context.Context, cfg AuditStoreConfig) (*AuditStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres.dsn is required")
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
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &AuditStore{pool: p, table: table}, nil
}

// NewAuditStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewAuditStoreWithPool(p pool, table string) (*AuditStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &AuditStore{pool: p, table: name}, nil
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
func (s *AuditStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks the pool can reach the server.
func (s *AuditStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// EnsureSchema creates the failure table and its lookup index when missing.
func (s *AuditStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	id          BIGSERIAL PRIMARY KEY,
	run_id      UUID NOT NULL,
	stage       TEXT NOT NULL,
	record_id   TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	procedure   INTEGER NOT NULL DEFAULT 0,
	message     TEXT NOT NULL DEFAULT '',
	occurred_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS %[1]s_stage_occurred_idx ON %[1]s (stage, occurred_at DESC)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// RecordFailures inserts all failures with one multi-row statement.
func (s *AuditStore) RecordFailures(ctx context.Context, failures []store.Failure) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("audit store is not configured")
	}
	if len(failures) == 0 {
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (run_id, stage, record_id, outcome, procedure, message, occurred_at) VALUES ", s.table)
	args := make([]any, 0, len(failures)*failureColumns)
	for i, f := range failures {
		if i > 0 {
			b.WriteString(", ")
		}
		base := i * failureColumns
		fmt.Fprintf(&b, "($%d,$%d,$%d,$%d,$%d,$%d,$%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7)
		args = append(args, f.RunID, f.Stage, f.RecordID, f.Outcome, f.Procedure, f.Message, f.OccurredAt)
	}
	if _, err := s.pool.Exec(ctx, b.String(), args...); err != nil {
		return fmt.Errorf("insert failures: %w", err)
	}
	return nil
}

// ListFailures returns failures newest first, filtered by stage and run.
func (s *AuditStore) ListFailures(ctx context.Context, filter store.FailureFilter) ([]store.Failure, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := max(filter.Offset, 0)
	var runID any
	if filter.RunID != nil {
		runID = *filter.RunID
	}
	query := fmt.Sprintf(`
SELECT run_id, stage, record_id, outcome, procedure, message, occurred_at
FROM %s
WHERE ($1 = '' OR stage = $1) AND ($2::uuid IS NULL OR run_id = $2)
ORDER BY occurred_at DESC
LIMIT $3 OFFSET $4`, s.table)
	rows, err := s.pool.Query(ctx, query, filter.Stage, runID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list failures: %w", err)
	}
	defer rows.Close()

	var out []store.Failure
	for rows.Next() {
		var f store.Failure
		if err := rows.Scan(
			&f.RunID,
			&f.Stage,
			&f.RecordID,
			&f.Outcome,
			&f.Procedure,
			&f.Message,
			&f.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("scan failure row: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate failures: %w", err)
	}
	return out, nil
}

// SummarizeFailures counts failures per stage and outcome since the given time.
func (s *AuditStore) SummarizeFailures(ctx context.Context, since time.Time) ([]store.OutcomeCount, error) {
	query := fmt.Sprintf(`
SELECT stage, outcome, count(*), max(occurred_at)
FROM %s
WHERE occurred_at >= $1
GROUP BY stage, outcome
ORDER BY count(*) DESC, stage`, s.table)
	rows, err := s.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("summarize failures: %w", err)
	}
	defer rows.Close()

	var out []store.OutcomeCount
	for rows.Next() {
		var c store.OutcomeCount
		if err := rows.Scan(&c.Stage, &c.Outcome, &c.Count, &c.LastSeen); err != nil {
			return nil, fmt.Errorf("scan summary row: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summary: %w", err)
	}
	return out, nil
}
