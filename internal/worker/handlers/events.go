// Package handlers provides event handlers for the worker.
// Each handler implements the ingestion logic for one event type
// and can be registered with the worker to process events from the bus.
package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/nadmax/pipepulse/internal/bus"
	"github.com/nadmax/pipepulse/internal/ledger"
	"github.com/nadmax/pipepulse/internal/repository/models"
	"github.com/nadmax/pipepulse/internal/telemetry"
)

var ErrMissingPayload = errors.New("event payload missing")

type PipelineRecorder interface {
	RecordPipeline(ctx context.Context, projectID int64, p telemetry.Pipeline) error
}

type Ledger interface {
	RecordPipeline(ctx context.Context, project telemetry.Project, pipeline telemetry.Pipeline, jobs []telemetry.Job) (*models.Deployment, error)
	RecordIncident(ctx context.Context, in ledger.IncidentInput) (*models.Incident, error)
	ResolveIncident(ctx context.Context, id, rootCause string) (*models.Incident, error)
}

type Ingestor struct {
	trends PipelineRecorder
	ledger Ledger
}

func NewIngestor(trends PipelineRecorder, l Ledger) *Ingestor {
	return &Ingestor{trends: trends, ledger: l}
}

// PipelineCompletedHandler records the pipeline trend points, then the
// deployment when the pipeline is deploy-shaped.
func (in *Ingestor) PipelineCompletedHandler(ctx context.Context, evt bus.Event) error {
	if evt.Pipeline == nil {
		return fmt.Errorf("%w: pipeline", ErrMissingPayload)
	}

	projectID := evt.ProjectID
	if projectID == 0 {
		projectID = evt.Pipeline.ProjectID
	}

	if err := in.trends.RecordPipeline(ctx, projectID, *evt.Pipeline); err != nil {
		return fmt.Errorf("failed to record pipeline trends: %w", err)
	}

	project := telemetry.Project{ID: projectID, Name: evt.ProjectName}
	if _, err := in.ledger.RecordPipeline(ctx, project, *evt.Pipeline, evt.Jobs); err != nil {
		return err
	}

	return nil
}

func (in *Ingestor) IncidentDetectedHandler(ctx context.Context, evt bus.Event) error {
	if evt.Incident == nil {
		return fmt.Errorf("%w: incident", ErrMissingPayload)
	}

	incident := *evt.Incident
	if incident.ProjectID == 0 {
		incident.ProjectID = evt.ProjectID
	}
	if incident.ProjectName == "" {
		incident.ProjectName = evt.ProjectName
	}

	_, err := in.ledger.RecordIncident(ctx, incident)
	return err
}

func (in *Ingestor) IncidentResolvedHandler(ctx context.Context, evt bus.Event) error {
	if evt.IncidentID == "" {
		return fmt.Errorf("%w: incident_id", ErrMissingPayload)
	}

	_, err := in.ledger.ResolveIncident(ctx, evt.IncidentID, evt.RootCause)
	return err
}
