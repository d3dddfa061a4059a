package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/nadmax/pipepulse/internal/repository"
	"github.com/nadmax/pipepulse/internal/repository/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *Store) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	return db, mock, NewStoreFromDB(db)
}

func intPtr(v int) *int { return &v }

func TestNewStore(t *testing.T) {
	t.Run("successful connection", func(t *testing.T) {
		t.Skip("Integration test - requires real database")
	})

	t.Run("connection failure", func(t *testing.T) {
		_, err := NewStore("invalid connection string")
		assert.Error(t, err)
	})
}

func TestMigrate(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS deployments").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveDeployment(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	started := time.Now().Add(-10 * time.Minute)
	finished := started.Add(5 * time.Minute)

	t.Run("finished deployment", func(t *testing.T) {
		d := &models.Deployment{
			ID:          "dep-1",
			ProjectID:   7,
			ProjectName: "api",
			PipelineID:  100,
			Environment: models.EnvProduction,
			Status:      models.DeploymentSuccess,
			StartedAt:   started,
			FinishedAt:  &finished,
			Duration:    intPtr(300),
			CommitSHA:   "abc123",
			Ref:         "main",
			TriggeredBy: "alice",
			CreatedAt:   finished,
		}

		mock.ExpectExec("INSERT INTO deployments").
			WithArgs(
				d.ID, d.ProjectID, d.ProjectName, d.PipelineID, d.Environment, "success",
				d.StartedAt, finished, 300, d.CommitSHA, d.Ref, "alice", d.CreatedAt,
			).
			WillReturnResult(sqlmock.NewResult(1, 1))

		require.NoError(t, store.SaveDeployment(ctx, d))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unfinished deployment stores nulls", func(t *testing.T) {
		d := &models.Deployment{
			ID:          "dep-2",
			ProjectID:   7,
			ProjectName: "api",
			PipelineID:  101,
			Environment: models.EnvStaging,
			Status:      models.DeploymentFailed,
			StartedAt:   started,
			CreatedAt:   started,
		}

		mock.ExpectExec("INSERT INTO deployments").
			WithArgs(
				d.ID, d.ProjectID, d.ProjectName, d.PipelineID, d.Environment, "failed",
				d.StartedAt, nil, nil, "", "", nil, d.CreatedAt,
			).
			WillReturnResult(sqlmock.NewResult(1, 1))

		require.NoError(t, store.SaveDeployment(ctx, d))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insert failure is surfaced", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO deployments").
			WillReturnError(errors.New("connection reset"))

		err := store.SaveDeployment(ctx, &models.Deployment{ID: "dep-3"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to insert deployment")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestListDeployments(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	start := time.Now().Add(-7 * 24 * time.Hour)
	end := time.Now()
	deployedAt := start.Add(time.Hour)

	rows := sqlmock.NewRows([]string{
		"id", "project_id", "project_name", "pipeline_id", "environment", "status",
		"started_at", "finished_at", "duration", "commit_sha", "ref", "triggered_by", "created_at",
	}).
		AddRow("dep-1", 7, "api", 100, "production", "success", deployedAt, deployedAt.Add(time.Minute), 60, "abc", "main", "alice", deployedAt).
		AddRow("dep-2", 7, "api", 101, "production", "failed", deployedAt, nil, nil, "def", "main", "", deployedAt)

	mock.ExpectQuery("SELECT .* FROM deployments WHERE project_id = \\$1").
		WithArgs(int64(7), "production", start, end).
		WillReturnRows(rows)

	deployments, err := store.ListDeployments(ctx, repository.DeploymentFilter{
		ProjectID:   7,
		Environment: models.EnvProduction,
		Start:       start,
		End:         end,
	})
	require.NoError(t, err)
	require.Len(t, deployments, 2)
	assert.Equal(t, models.DeploymentSuccess, deployments[0].Status)
	require.NotNil(t, deployments[0].Duration)
	assert.Equal(t, 60, *deployments[0].Duration)
	assert.NotNil(t, deployments[0].FinishedAt)
	assert.Nil(t, deployments[1].Duration)
	assert.Nil(t, deployments[1].FinishedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetIncident(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	detected := time.Now().Add(-time.Hour)

	t.Run("found", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{
			"id", "project_id", "project_name", "title", "severity", "status",
			"detected_at", "resolved_at", "duration", "root_cause", "affected_env", "created_at",
		}).AddRow("inc-1", 7, "api", "5xx spike", "high", "open", detected, nil, nil, "", "production", detected)

		mock.ExpectQuery("SELECT .* FROM incidents WHERE id = \\$1").
			WithArgs("inc-1").
			WillReturnRows(rows)

		inc, err := store.GetIncident(ctx, "inc-1")
		require.NoError(t, err)
		assert.Equal(t, models.IncidentOpen, inc.Status)
		assert.Equal(t, models.SeverityHigh, inc.Severity)
		assert.Nil(t, inc.ResolvedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT .* FROM incidents WHERE id = \\$1").
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		_, err := store.GetIncident(ctx, "missing")
		assert.ErrorIs(t, err, repository.ErrIncidentNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestResolveIncident(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	resolved := time.Now()

	t.Run("updates row", func(t *testing.T) {
		mock.ExpectExec("UPDATE incidents SET status = \\$1").
			WithArgs("resolved", resolved, 1800, "bad config", "inc-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.ResolveIncident(ctx, "inc-1", resolved, 1800, "bad config"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing row is not found", func(t *testing.T) {
		mock.ExpectExec("UPDATE incidents SET status = \\$1").
			WithArgs("resolved", resolved, 60, nil, "missing").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := store.ResolveIncident(ctx, "missing", resolved, 60, "")
		assert.ErrorIs(t, err, repository.ErrIncidentNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUpsertDoraSnapshot(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	snapshot := &models.DoraSnapshot{
		ProjectID:           7,
		ProjectName:         "api",
		Period:              "monthly",
		PeriodStart:         start,
		PeriodEnd:           start.AddDate(0, 1, 0),
		DeploymentCount:     10,
		DeploymentFrequency: 0.33,
		CalculatedAt:        time.Now(),
	}

	mock.ExpectExec("INSERT INTO dora_metrics .* ON CONFLICT \\(project_id, period, period_start\\) DO UPDATE SET").
		WithArgs(
			snapshot.ProjectID, snapshot.ProjectName, snapshot.Period, snapshot.PeriodStart, snapshot.PeriodEnd,
			snapshot.DeploymentCount, snapshot.DeploymentFrequency, 0.0, 0.0,
			0, 0.0, 0, 0.0, snapshot.CalculatedAt,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.UpsertDoraSnapshot(ctx, snapshot))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestDoraSnapshot_NotFound(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT .* FROM dora_metrics WHERE project_id = \\$1 AND period = \\$2").
		WithArgs(int64(7), "weekly").
		WillReturnError(sql.ErrNoRows)

	_, err := store.LatestDoraSnapshot(context.Background(), 7, "weekly")
	assert.ErrorIs(t, err, repository.ErrSnapshotNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTrendPoints(t *testing.T) {
	db, mock, store := setupMockDB(t)
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	projectID := int64(7)
	ts := time.Now()

	t.Run("save with metadata", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO trend_data").
			WithArgs("pt-1", "pipeline_duration", projectID, 120.0, ts, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := store.SaveTrendPoint(ctx, &models.TrendPoint{
			ID:         "pt-1",
			MetricName: "pipeline_duration",
			ProjectID:  &projectID,
			Value:      120,
			Timestamp:  ts,
			Metadata:   map[string]any{"pipelineId": 5, "status": "success"},
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("list decodes metadata", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "metric_name", "project_id", "value", "timestamp", "metadata"}).
			AddRow("pt-1", "pipeline_duration", projectID, 120.0, ts, []byte(`{"status":"success"}`)).
			AddRow("pt-2", "pipeline_duration", nil, 90.0, ts.Add(time.Minute), nil)

		mock.ExpectQuery("SELECT .* FROM trend_data WHERE metric_name = \\$1").
			WithArgs("pipeline_duration", nil, sqlmock.AnyArg()).
			WillReturnRows(rows)

		points, err := store.ListTrendPoints(ctx, repository.TrendFilter{Metric: "pipeline_duration", Since: ts.Add(-time.Hour)})
		require.NoError(t, err)
		require.Len(t, points, 2)
		require.NotNil(t, points[0].ProjectID)
		assert.Equal(t, projectID, *points[0].ProjectID)
		assert.Equal(t, "success", points[0].Metadata["status"])
		assert.Nil(t, points[1].ProjectID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
