// Package journal records an audit trail of workflow runs in SQLite or Postgres.
package journal

import (
	"context"
	stdsql "database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Config holds journal connection settings.
type Config struct {
	DSN             string
	MaxConns        int32
	MaxConnLifetime time.Duration
	DialTimeout     time.Duration
}

// Journal is safe for concurrent use.
type Journal struct {
	db      *stdsql.DB
	pool    *pgxpool.Pool
	dialect string
	logger  *slog.Logger
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		started_at BIGINT NOT NULL,
		finished_at BIGINT,
		status TEXT NOT NULL,
		submitted INTEGER NOT NULL DEFAULT 0,
		resolved INTEGER NOT NULL DEFAULT 0,
		unresolved INTEGER NOT NULL DEFAULT 0,
		malformed INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS submissions (
		run_id TEXT NOT NULL,
		row_num INTEGER NOT NULL,
		external_id TEXT NOT NULL,
		protocol BIGINT NOT NULL,
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS resolutions (
		run_id TEXT NOT NULL,
		row_num INTEGER NOT NULL,
		protocol BIGINT NOT NULL,
		shipment_id BIGINT,
		failure TEXT NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS submissions_protocol_idx ON submissions (protocol)`,
}

// Open connects to the journal and creates its tables. A postgres:// or postgresql://
// DSN selects Postgres through a pgx pool; anything else is a SQLite path.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	j := &Journal{logger: logger}
	if isPostgres(cfg.DSN) {
		pc, err := pgxpool.ParseConfig(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("parse journal dsn: %w", err)
		}
		if cfg.MaxConns > 0 {
			pc.MaxConns = cfg.MaxConns
		}
		if cfg.MaxConnLifetime > 0 {
			pc.MaxConnLifetime = cfg.MaxConnLifetime
		}
		pc.ConnConfig.RuntimeParams["application_name"] = "embarques"

		dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
		pool, err := pgxpool.NewWithConfig(dialCtx, pc)
		if err != nil {
			return nil, fmt.Errorf("connect journal: %w", err)
		}
		j.pool = pool
		j.db = stdlib.OpenDBFromPool(pool)
		j.dialect = dialect.Postgres
	} else {
		db, err := stdsql.Open("sqlite", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		// one writer at a time keeps SQLite from returning SQLITE_BUSY
		db.SetMaxOpenConns(1)
		j.db = db
		j.dialect = dialect.SQLite
	}

	if err := j.migrate(ctx); err != nil {
		j.Close()
		return nil, err
	}
	logger.Info("journal.open.ok", "dialect", j.dialect)
	return j, nil
}

func isPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

func (j *Journal) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := j.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate journal: %w", err)
		}
	}
	return nil
}

// Ping checks the connection.
func (j *Journal) Ping(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

// Close releases the connection and, for Postgres, the pool.
func (j *Journal) Close() {
	if err := j.db.Close(); err != nil {
		j.logger.Error("journal.close.failed", "error", err)
	}
	if j.pool != nil {
		j.pool.Close()
	}
}

func (j *Journal) builder() *sql.DialectBuilder {
	return sql.Dialect(j.dialect)
}

func (j *Journal) exec(ctx context.Context, query string, args []any) error {
	_, err := j.db.ExecContext(ctx, query, args...)
	return err
}

func (j *Journal) StartRun(ctx context.Context, run Run) error {
	query, args := j.builder().Insert("runs").
		Columns("id", "source", "started_at", "status").
		Values(run.ID.String(), run.Source, run.StartedAt.UnixMilli(), run.Status).
		Query()
	if err := j.exec(ctx, query, args); err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

func (j *Journal) RecordSubmission(ctx context.Context, sub Submission) error {
	query, args := j.builder().Insert("submissions").
		Columns("run_id", "row_num", "external_id", "protocol", "created_at").
		Values(sub.RunID.String(), sub.Row, sub.ExternalID, sub.Protocol, sub.CreatedAt.UnixMilli()).
		Query()
	if err := j.exec(ctx, query, args); err != nil {
		return fmt.Errorf("insert submission row %d: %w", sub.Row, err)
	}
	return nil
}

func (j *Journal) RecordResolution(ctx context.Context, runID uuid.UUID, row int, protocol int64, shipmentID *int64, failure string) error {
	var sid any
	if shipmentID != nil {
		sid = *shipmentID
	}
	query, args := j.builder().Insert("resolutions").
		Columns("run_id", "row_num", "protocol", "shipment_id", "failure", "created_at").
		Values(runID.String(), row, protocol, sid, failure, time.Now().UnixMilli()).
		Query()
	if err := j.exec(ctx, query, args); err != nil {
		return fmt.Errorf("insert resolution row %d: %w", row, err)
	}
	return nil
}

func (j *Journal) FinishRun(ctx context.Context, run Run) error {
	u := j.builder().Update("runs").
		Set("status", run.Status).
		Set("submitted", run.Submitted).
		Set("resolved", run.Resolved).
		Set("unresolved", run.Unresolved).
		Set("malformed", run.Malformed).
		Set("error", run.Error).
		Where(sql.EQ("id", run.ID.String()))
	if run.FinishedAt != nil {
		u.Set("finished_at", run.FinishedAt.UnixMilli())
	}
	query, args := u.Query()
	if err := j.exec(ctx, query, args); err != nil {
		return fmt.Errorf("finish run %s: %w", run.ID, err)
	}
	return nil
}

// ListRuns returns the most recent runs first.
func (j *Journal) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query, args := j.builder().
		Select("id", "source", "started_at", "finished_at", "status",
			"submitted", "resolved", "unresolved", "malformed", "error").
		From(sql.Table("runs")).
		OrderBy(sql.Desc("started_at")).
		Limit(limit).
		Query()

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r        Run
			id       string
			started  int64
			finished stdsql.NullInt64
		)
		if err := rows.Scan(&id, &r.Source, &started, &finished, &r.Status,
			&r.Submitted, &r.Resolved, &r.Unresolved, &r.Malformed, &r.Error); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if r.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("scan run id %q: %w", id, err)
		}
		r.StartedAt = time.UnixMilli(started)
		if finished.Valid {
			t := time.UnixMilli(finished.Int64)
			r.FinishedAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ErrNoSubmission is returned by FindSubmission when the protocol was never journaled.
var ErrNoSubmission = errors.New("submission not found")

// FindSubmission looks up which run and row produced a protocol.
func (j *Journal) FindSubmission(ctx context.Context, protocol int64) (Submission, error) {
	query, args := j.builder().
		Select("run_id", "row_num", "external_id", "protocol", "created_at").
		From(sql.Table("submissions")).
		Where(sql.EQ("protocol", protocol)).
		OrderBy(sql.Desc("created_at")).
		Limit(1).
		Query()

	var (
		s       Submission
		runID   string
		created int64
	)
	err := j.db.QueryRowContext(ctx, query, args...).Scan(&runID, &s.Row, &s.ExternalID, &s.Protocol, &created)
	if errors.Is(err, stdsql.ErrNoRows) {
		return Submission{}, ErrNoSubmission
	}
	if err != nil {
		return Submission{}, fmt.Errorf("find submission %d: %w", protocol, err)
	}
	if s.RunID, err = uuid.Parse(runID); err != nil {
		return Submission{}, fmt.Errorf("scan submission run id %q: %w", runID, err)
	}
	s.CreatedAt = time.UnixMilli(created)
	return s, nil
}
