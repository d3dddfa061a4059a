package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	"github.com/nadmax/pipepulse/internal/repository"
	"github.com/nadmax/pipepulse/internal/repository/models"
)

func (s *Store) SaveTrendPoint(ctx context.Context, p *models.TrendPoint) error {
	var metadata any
	if len(p.Metadata) > 0 {
		b, err := json.Marshal(p.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadata = b
	}

	var projectID any
	if p.ProjectID != nil {
		projectID = *p.ProjectID
	}

	query := `
		INSERT INTO trend_data (id, metric_name, project_id, value, timestamp, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, query, p.ID, p.MetricName, projectID, p.Value, p.Timestamp, metadata)
	if err != nil {
		return fmt.Errorf("failed to insert trend point: %w", err)
	}

	return nil
}

func (s *Store) ListTrendPoints(ctx context.Context, f repository.TrendFilter) ([]models.TrendPoint, error) {
	var projectID any
	if f.ProjectID != nil {
		projectID = *f.ProjectID
	}

	query := `
		SELECT id, metric_name, project_id, value, timestamp, metadata
		FROM trend_data
		WHERE metric_name = $1
		  AND ($2::bigint IS NULL OR project_id = $2)
		  AND timestamp >= $3
		ORDER BY timestamp ASC
	`
	rows, err := s.db.QueryContext(ctx, query, f.Metric, projectID, f.Since)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := rows.Close(); err != nil {
			log.Printf("failed to close rows: %v", err)
		}
	}()

	var points []models.TrendPoint
	for rows.Next() {
		var p models.TrendPoint
		var pid sql.NullInt64
		var metadata []byte

		if err := rows.Scan(&p.ID, &p.MetricName, &pid, &p.Value, &p.Timestamp, &metadata); err != nil {
			return nil, err
		}

		if pid.Valid {
			v := pid.Int64
			p.ProjectID = &v
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &p.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}

		points = append(points, p)
	}

	return points, rows.Err()
}
