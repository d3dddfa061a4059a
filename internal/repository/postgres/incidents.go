package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/nadmax/pipepulse/internal/repository"
	"github.com/nadmax/pipepulse/internal/repository/models"
)

const incidentColumns = `
	id, project_id, project_name, title, severity, status,
	detected_at, resolved_at, duration, COALESCE(root_cause, ''), affected_env, created_at
`

func (s *Store) SaveIncident(ctx context.Context, i *models.Incident) error {
	query := `
		INSERT INTO incidents (
			id, project_id, project_name, title, severity, status,
			detected_at, resolved_at, duration, root_cause, affected_env, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		i.ID,
		i.ProjectID,
		i.ProjectName,
		i.Title,
		i.Severity,
		i.Status,
		i.DetectedAt,
		nullableTime(i.ResolvedAt),
		nullableInt(i.Duration),
		nullableString(i.RootCause),
		i.AffectedEnv,
		i.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert incident: %w", err)
	}

	return nil
}

func (s *Store) GetIncident(ctx context.Context, id string) (*models.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1`

	i, err := scanIncident(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", repository.ErrIncidentNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	return i, nil
}

func (s *Store) ResolveIncident(ctx context.Context, id string, resolvedAt time.Time, duration int, rootCause string) error {
	query := `
		UPDATE incidents
		SET status = $1,
		    resolved_at = $2,
		    duration = $3,
		    root_cause = COALESCE($4, root_cause)
		WHERE id = $5
	`

	res, err := s.db.ExecContext(ctx, query, models.IncidentResolved, resolvedAt, duration, nullableString(rootCause), id)
	if err != nil {
		return fmt.Errorf("failed to resolve incident: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to resolve incident: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", repository.ErrIncidentNotFound, id)
	}

	return nil
}

func (s *Store) ListIncidents(ctx context.Context, f repository.IncidentFilter) ([]models.Incident, error) {
	query := `SELECT ` + incidentColumns + `
		FROM incidents
		WHERE project_id = $1
		  AND ($2 = '' OR affected_env = $2)
		  AND detected_at >= $3
		  AND detected_at <= $4
		ORDER BY detected_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, f.ProjectID, f.Environment, f.Start, f.End)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := rows.Close(); err != nil {
			log.Printf("failed to close rows: %v", err)
		}
	}()

	var incidents []models.Incident
	for rows.Next() {
		i, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}

		incidents = append(incidents, *i)
	}

	return incidents, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIncident(row rowScanner) (*models.Incident, error) {
	var i models.Incident
	var resolvedAt sql.NullTime
	var duration sql.NullInt64

	if err := row.Scan(
		&i.ID,
		&i.ProjectID,
		&i.ProjectName,
		&i.Title,
		&i.Severity,
		&i.Status,
		&i.DetectedAt,
		&resolvedAt,
		&duration,
		&i.RootCause,
		&i.AffectedEnv,
		&i.CreatedAt,
	); err != nil {
		return nil, err
	}

	if resolvedAt.Valid {
		i.ResolvedAt = &resolvedAt.Time
	}
	if duration.Valid {
		v := int(duration.Int64)
		i.Duration = &v
	}

	return &i, nil
}
