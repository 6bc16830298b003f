/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doverlof/jira-bi.zone/internal/config"
	"github.com/doverlof/jira-bi.zone/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// RunLockKey is the advisory lock id shared by every digest process.
const RunLockKey int64 = 424242

type DB struct {
	Pool *pgxpool.Pool
	log  zerolog.Logger
}

// Open connects and pings the database named by cfg.DBDSN.
func Open(ctx context.Context, cfg config.Config, log zerolog.Logger) (*DB, error) {
	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	ctx2, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(ctx2); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return &DB{Pool: pool, log: log.With().Str("component", "db").Logger()}, nil
}

func (d *DB) Close() { d.Pool.Close() }

type Repository struct {
	db  *DB
	log zerolog.Logger
}

func NewRepository(d *DB, log zerolog.Logger) *Repository {
	return &Repository{db: d, log: log.With().Str("component", "repo").Logger()}
}

const schema = `
CREATE TABLE IF NOT EXISTS job_runs (
	id           BIGSERIAL PRIMARY KEY,
	kind         TEXT        NOT NULL,
	window_start TIMESTAMPTZ NOT NULL,
	window_end   TIMESTAMPTZ NOT NULL,
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at  TIMESTAMPTZ,
	fetched      INTEGER     NOT NULL DEFAULT 0,
	included     INTEGER     NOT NULL DEFAULT 0,
	success      BOOLEAN     NOT NULL DEFAULT false,
	status       TEXT        NOT NULL DEFAULT '',
	error        TEXT        NOT NULL DEFAULT ''
)`

func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Job runs

// RunOutcome is what a finished run reports back to history.
type RunOutcome struct {
	Fetched  int
	Included int
	Success  bool
	Status   string
	Error    string
}

func (r *Repository) StartJobRun(ctx context.Context, kind string, w domain.ReportWindow) (int64, error) {
	const q = `INSERT INTO job_runs(kind, window_start, window_end, started_at, success) VALUES($1, $2, $3, now(), false) RETURNING id`
	var id int64
	if err := r.db.Pool.QueryRow(ctx, q, kind, w.Start, w.End).Scan(&id); err != nil {
		return 0, fmt.Errorf("start job run: %w", err)
	}
	return id, nil
}

func (r *Repository) FinishJobRun(ctx context.Context, id int64, o RunOutcome) error {
	const q = `UPDATE job_runs SET finished_at=now(), fetched=$2, included=$3, success=$4, status=$5, error=$6 WHERE id=$1`
	if _, err := r.db.Pool.Exec(ctx, q, id, o.Fetched, o.Included, o.Success, o.Status, o.Error); err != nil {
		return fmt.Errorf("finish job run %d: %w", id, err)
	}
	return nil
}

type LastRun struct {
	Kind        string     `json:"kind"`
	WindowStart time.Time  `json:"window_start"`
	WindowEnd   time.Time  `json:"window_end"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at"`
	Fetched     int        `json:"fetched"`
	Included    int        `json:"included"`
	Success     bool       `json:"success"`
	Status      string     `json:"status"`
	Error       string     `json:"error"`
}

// GetLastRun returns the newest job run, or nil when none was recorded.
func (r *Repository) GetLastRun(ctx context.Context) (*LastRun, error) {
	const q = `SELECT kind, window_start, window_end, started_at, finished_at,
		fetched, included, success, status, error
		FROM job_runs ORDER BY id DESC LIMIT 1`
	lr := &LastRun{}
	err := r.db.Pool.QueryRow(ctx, q).Scan(&lr.Kind, &lr.WindowStart, &lr.WindowEnd, &lr.StartedAt, &lr.FinishedAt,
		&lr.Fetched, &lr.Included, &lr.Success, &lr.Status, &lr.Error)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last job run: %w", err)
	}
	return lr, nil
}

// TryLock takes the session-level advisory lock on a dedicated connection so
// that the unlock runs on the same session.
func (r *Repository) TryLock(ctx context.Context) (bool, func(), error) {
	conn, err := r.db.Pool.Acquire(ctx)
	if err != nil {
		return false, nil, fmt.Errorf("advisory lock: acquire conn: %w", err)
	}
	var ok bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", RunLockKey).Scan(&ok); err != nil {
		conn.Release()
		return false, nil, fmt.Errorf("advisory lock: %w", err)
	}
	if !ok {
		conn.Release()
		return false, nil, nil
	}
	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		var unlocked bool
		if err := conn.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", RunLockKey).Scan(&unlocked); err != nil || !unlocked {
			r.log.Error().Err(err).Bool("unlocked", unlocked).Msg("advisory unlock failed")
		}
		conn.Release()
	}
	return true, release, nil
}
