package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/nadmax/pipepulse/internal/repository"
	"github.com/nadmax/pipepulse/internal/repository/models"
)

func (s *Store) SaveDeployment(ctx context.Context, d *models.Deployment) error {
	query := `
		INSERT INTO deployments (
			id, project_id, project_name, pipeline_id, environment, status,
			started_at, finished_at, duration, commit_sha, ref, triggered_by, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		d.ID,
		d.ProjectID,
		d.ProjectName,
		d.PipelineID,
		d.Environment,
		d.Status,
		d.StartedAt,
		nullableTime(d.FinishedAt),
		nullableInt(d.Duration),
		d.CommitSHA,
		d.Ref,
		nullableString(d.TriggeredBy),
		d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert deployment: %w", err)
	}

	return nil
}

func (s *Store) ListDeployments(ctx context.Context, f repository.DeploymentFilter) ([]models.Deployment, error) {
	query := `
		SELECT
			id, project_id, project_name, pipeline_id, environment, status,
			started_at, finished_at, duration, commit_sha, ref,
			COALESCE(triggered_by, ''), created_at
		FROM deployments
		WHERE project_id = $1
		  AND ($2 = '' OR environment = $2)
		  AND started_at >= $3
		  AND started_at <= $4
		ORDER BY started_at ASC
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

	var deployments []models.Deployment
	for rows.Next() {
		var d models.Deployment
		var finishedAt sql.NullTime
		var duration sql.NullInt64

		if err := rows.Scan(
			&d.ID,
			&d.ProjectID,
			&d.ProjectName,
			&d.PipelineID,
			&d.Environment,
			&d.Status,
			&d.StartedAt,
			&finishedAt,
			&duration,
			&d.CommitSHA,
			&d.Ref,
			&d.TriggeredBy,
			&d.CreatedAt,
		); err != nil {
			return nil, err
		}

		if finishedAt.Valid {
			d.FinishedAt = &finishedAt.Time
		}
		if duration.Valid {
			v := int(duration.Int64)
			d.Duration = &v
		}

		deployments = append(deployments, d)
	}

	return deployments, rows.Err()
}
