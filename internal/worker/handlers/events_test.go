package handlers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadmax/pipepulse/internal/bus"
	"github.com/nadmax/pipepulse/internal/ledger"
	"github.com/nadmax/pipepulse/internal/repository"
	"github.com/nadmax/pipepulse/internal/repository/mocks"
	"github.com/nadmax/pipepulse/internal/repository/models"
	"github.com/nadmax/pipepulse/internal/telemetry"
	"github.com/nadmax/pipepulse/internal/trend"
)

func setupTestIngestor(t *testing.T) (*Ingestor, *mocks.MockPostgresRepository) {
	t.Helper()

	repo := mocks.NewMockPostgresRepository()
	return NewIngestor(trend.NewRecorder(repo), ledger.New(repo)), repo
}

func completedPipeline() *telemetry.Pipeline {
	started := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	finished := started.Add(10 * time.Minute)
	return &telemetry.Pipeline{
		ID:         5,
		ProjectID:  3,
		Status:     telemetry.StatusSuccess,
		Ref:        "main",
		CreatedAt:  started,
		StartedAt:  &started,
		FinishedAt: &finished,
		Duration:   600,
	}
}

func TestPipelineCompletedHandler_DeployPipeline(t *testing.T) {
	in, repo := setupTestIngestor(t)

	err := in.PipelineCompletedHandler(context.Background(), bus.Event{
		Type:        bus.PipelineCompleted,
		ProjectName: "api",
		Pipeline:    completedPipeline(),
		Jobs:        []telemetry.Job{{Name: "deploy-prod", Stage: "deploy"}},
	})
	require.NoError(t, err)

	assert.Len(t, repo.TrendPoints, 3)
	require.Equal(t, 1, repo.DeploymentCount())
	assert.Equal(t, int64(3), repo.Deployments[0].ProjectID)
	assert.Equal(t, "api", repo.Deployments[0].ProjectName)
	assert.Equal(t, models.EnvProduction, repo.Deployments[0].Environment)
}

func TestPipelineCompletedHandler_NonDeployPipeline(t *testing.T) {
	in, repo := setupTestIngestor(t)

	err := in.PipelineCompletedHandler(context.Background(), bus.Event{
		Type:      bus.PipelineCompleted,
		ProjectID: 3,
		Pipeline:  completedPipeline(),
		Jobs:      []telemetry.Job{{Name: "unit", Stage: "test"}},
	})
	require.NoError(t, err)

	assert.Len(t, repo.TrendPoints, 3)
	assert.Equal(t, 0, repo.DeploymentCount())
}

func TestPipelineCompletedHandler_Errors(t *testing.T) {
	in, repo := setupTestIngestor(t)

	err := in.PipelineCompletedHandler(context.Background(), bus.Event{Type: bus.PipelineCompleted})
	assert.ErrorIs(t, err, ErrMissingPayload)

	repo.SaveDeploymentError = errors.New("db down")
	err = in.PipelineCompletedHandler(context.Background(), bus.Event{
		Pipeline: completedPipeline(),
		Jobs:     []telemetry.Job{{Name: "deploy", Stage: "deploy"}},
	})
	assert.ErrorIs(t, err, repo.SaveDeploymentError)
}

func TestIncidentHandlers(t *testing.T) {
	in, repo := setupTestIngestor(t)

	err := in.IncidentDetectedHandler(context.Background(), bus.Event{
		Type:        bus.IncidentDetected,
		ProjectID:   3,
		ProjectName: "api",
		Incident:    &ledger.IncidentInput{Title: "API down", Severity: models.SeverityHigh},
	})
	require.NoError(t, err)
	require.Len(t, repo.Incidents, 1)

	var id string
	for k, i := range repo.Incidents {
		id = k
		assert.Equal(t, int64(3), i.ProjectID)
		assert.Equal(t, "api", i.ProjectName)
		assert.Equal(t, models.IncidentOpen, i.Status)
	}

	err = in.IncidentResolvedHandler(context.Background(), bus.Event{Type: bus.IncidentResolved, IncidentID: id, RootCause: "bad deploy"})
	require.NoError(t, err)
	assert.Equal(t, models.IncidentResolved, repo.Incidents[id].Status)
	assert.Equal(t, "bad deploy", repo.Incidents[id].RootCause)
}

func TestIncidentHandlers_Errors(t *testing.T) {
	in, _ := setupTestIngestor(t)

	assert.ErrorIs(t, in.IncidentDetectedHandler(context.Background(), bus.Event{}), ErrMissingPayload)
	assert.ErrorIs(t, in.IncidentResolvedHandler(context.Background(), bus.Event{}), ErrMissingPayload)
	assert.ErrorIs(t, in.IncidentResolvedHandler(context.Background(), bus.Event{IncidentID: "missing"}), repository.ErrIncidentNotFound)
}
