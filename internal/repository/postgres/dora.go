package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nadmax/pipepulse/internal/repository"
	"github.com/nadmax/pipepulse/internal/repository/models"
)

// UpsertDoraSnapshot relies on the (project_id, period, period_start) unique
// constraint so concurrent recalculations never produce duplicate rows.
func (s *Store) UpsertDoraSnapshot(ctx context.Context, m *models.DoraSnapshot) error {
	query := `
		INSERT INTO dora_metrics (
			project_id, project_name, period, period_start, period_end,
			deployment_count, deployment_frequency, avg_lead_time, median_lead_time,
			incident_count, avg_mttr, failed_deployment_count, change_failure_rate,
			calculated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (project_id, period, period_start) DO UPDATE SET
			project_name = EXCLUDED.project_name,
			period_end = EXCLUDED.period_end,
			deployment_count = EXCLUDED.deployment_count,
			deployment_frequency = EXCLUDED.deployment_frequency,
			avg_lead_time = EXCLUDED.avg_lead_time,
			median_lead_time = EXCLUDED.median_lead_time,
			incident_count = EXCLUDED.incident_count,
			avg_mttr = EXCLUDED.avg_mttr,
			failed_deployment_count = EXCLUDED.failed_deployment_count,
			change_failure_rate = EXCLUDED.change_failure_rate,
			calculated_at = EXCLUDED.calculated_at
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		m.ProjectID,
		m.ProjectName,
		m.Period,
		m.PeriodStart,
		m.PeriodEnd,
		m.DeploymentCount,
		m.DeploymentFrequency,
		m.AvgLeadTime,
		m.MedianLeadTime,
		m.IncidentCount,
		m.AvgMTTR,
		m.FailedDeploymentCount,
		m.ChangeFailureRate,
		m.CalculatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert dora snapshot: %w", err)
	}

	return nil
}

func (s *Store) LatestDoraSnapshot(ctx context.Context, projectID int64, period string) (*models.DoraSnapshot, error) {
	query := `
		SELECT
			project_id, project_name, period, period_start, period_end,
			deployment_count, deployment_frequency, avg_lead_time, median_lead_time,
			incident_count, avg_mttr, failed_deployment_count, change_failure_rate,
			calculated_at
		FROM dora_metrics
		WHERE project_id = $1 AND period = $2
		ORDER BY period_start DESC
		LIMIT 1
	`

	var m models.DoraSnapshot
	err := s.db.QueryRowContext(ctx, query, projectID, period).Scan(
		&m.ProjectID,
		&m.ProjectName,
		&m.Period,
		&m.PeriodStart,
		&m.PeriodEnd,
		&m.DeploymentCount,
		&m.DeploymentFrequency,
		&m.AvgLeadTime,
		&m.MedianLeadTime,
		&m.IncidentCount,
		&m.AvgMTTR,
		&m.FailedDeploymentCount,
		&m.ChangeFailureRate,
		&m.CalculatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, err
	}

	return &m, nil
}
