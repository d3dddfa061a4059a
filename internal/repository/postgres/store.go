// Package postgres provides PostgreSQL-backed implementations of repository interfaces.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/nadmax/pipepulse/internal/repository"
)

type Store struct {
	db *sql.DB
}

var _ repository.Store = (*Store)(nil)

func NewStore(connectionString string) (*Store, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Store{db: db}, nil
}

// NewStoreFromDB wraps an existing handle.
func NewStoreFromDB(db *sql.DB) *Store {
	return &Store{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS deployments (
	id           TEXT PRIMARY KEY,
	project_id   BIGINT NOT NULL,
	project_name TEXT NOT NULL,
	pipeline_id  BIGINT NOT NULL,
	environment  TEXT NOT NULL,
	status       TEXT NOT NULL,
	started_at   TIMESTAMPTZ NOT NULL,
	finished_at  TIMESTAMPTZ,
	duration     INTEGER,
	commit_sha   TEXT NOT NULL DEFAULT '',
	ref          TEXT NOT NULL DEFAULT '',
	triggered_by TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_deployments_project_env ON deployments (project_id, environment, started_at);

CREATE TABLE IF NOT EXISTS incidents (
	id           TEXT PRIMARY KEY,
	project_id   BIGINT NOT NULL,
	project_name TEXT NOT NULL,
	title        TEXT NOT NULL,
	severity     TEXT NOT NULL,
	status       TEXT NOT NULL,
	detected_at  TIMESTAMPTZ NOT NULL,
	resolved_at  TIMESTAMPTZ,
	duration     INTEGER,
	root_cause   TEXT,
	affected_env TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_incidents_project_env ON incidents (project_id, affected_env, detected_at);

CREATE TABLE IF NOT EXISTS dora_metrics (
	project_id              BIGINT NOT NULL,
	project_name            TEXT NOT NULL,
	period                  TEXT NOT NULL,
	period_start            TIMESTAMPTZ NOT NULL,
	period_end              TIMESTAMPTZ NOT NULL,
	deployment_count        INTEGER NOT NULL,
	deployment_frequency    DOUBLE PRECISION NOT NULL,
	avg_lead_time           DOUBLE PRECISION NOT NULL,
	median_lead_time        DOUBLE PRECISION NOT NULL,
	incident_count          INTEGER NOT NULL,
	avg_mttr                DOUBLE PRECISION NOT NULL,
	failed_deployment_count INTEGER NOT NULL,
	change_failure_rate     DOUBLE PRECISION NOT NULL,
	calculated_at           TIMESTAMPTZ NOT NULL,
	UNIQUE (project_id, period, period_start)
);

CREATE TABLE IF NOT EXISTS trend_data (
	id          TEXT PRIMARY KEY,
	metric_name TEXT NOT NULL,
	project_id  BIGINT,
	value       DOUBLE PRECISION NOT NULL,
	timestamp   TIMESTAMPTZ NOT NULL,
	metadata    JSONB
);
CREATE INDEX IF NOT EXISTS idx_trend_data_metric ON trend_data (metric_name, project_id, timestamp);
`

// Migrate creates the engine's own tables when they are missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}

	return *v
}

func nullableTime(v *time.Time) any {
	if v == nil {
		return nil
	}

	return *v
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}

	return v
}
