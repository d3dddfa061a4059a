// Package ledger records deployment and incident facts. It is the only
// writer of mutable shared state in the system, so every store failure is
// returned to the caller instead of being logged and dropped.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nadmax/pipepulse/internal/metrics"
	"github.com/nadmax/pipepulse/internal/repository"
	"github.com/nadmax/pipepulse/internal/repository/models"
	"github.com/nadmax/pipepulse/internal/telemetry"
)

const deployKeyword = "deploy"

var ErrInvalidIncident = errors.New("invalid incident")

type DeploymentInput struct {
	ProjectID   int64                   `json:"project_id"`
	ProjectName string                  `json:"project_name"`
	PipelineID  int64                   `json:"pipeline_id"`
	Environment string                  `json:"environment"`
	Status      models.DeploymentStatus `json:"status"`
	StartedAt   time.Time               `json:"started_at"`
	FinishedAt  *time.Time              `json:"finished_at,omitempty"`
	CommitSHA   string                  `json:"commit_sha"`
	Ref         string                  `json:"ref"`
	TriggeredBy string                  `json:"triggered_by,omitempty"`
}

type IncidentInput struct {
	ProjectID   int64                   `json:"project_id"`
	ProjectName string                  `json:"project_name"`
	Title       string                  `json:"title"`
	Severity    models.IncidentSeverity `json:"severity"`
	DetectedAt  time.Time               `json:"detected_at"`
	AffectedEnv string                  `json:"affected_env"`
}

type Ledger struct {
	store repository.LedgerStore
	now   func() time.Time
}

func New(store repository.LedgerStore) *Ledger {
	return &Ledger{
		store: store,
		now:   time.Now,
	}
}

// deployJob returns the first job whose stage or name mentions deploy.
func deployJob(jobs []telemetry.Job) (telemetry.Job, bool) {
	for _, j := range jobs {
		if strings.Contains(strings.ToLower(j.Stage), deployKeyword) || strings.Contains(strings.ToLower(j.Name), deployKeyword) {
			return j, true
		}
	}

	return telemetry.Job{}, false
}

func IsDeployPipeline(jobs []telemetry.Job) bool {
	_, ok := deployJob(jobs)
	return ok
}

// Environment derives the target environment from the deploy job name,
// falling back to the ref.
func Environment(jobName, ref string) string {
	name := strings.ToLower(jobName)
	switch {
	case strings.Contains(name, "prod"):
		return models.EnvProduction
	case strings.Contains(name, "staging"):
		return models.EnvStaging
	case strings.Contains(name, "review"), strings.Contains(name, "dev"):
		return models.EnvDevelopment
	}

	if ref == "main" || ref == "master" {
		return models.EnvProduction
	}

	return models.EnvStaging
}

func deploymentStatus(s telemetry.Status) models.DeploymentStatus {
	switch s {
	case telemetry.StatusSuccess:
		return models.DeploymentSuccess
	case telemetry.StatusFailed:
		return models.DeploymentFailed
	default:
		return models.DeploymentCanceled
	}
}

func wholeSeconds(d time.Duration) int {
	return int(d / time.Second)
}

// RecordPipeline stores a deployment for a finished deploy-shaped pipeline.
// Any other pipeline is ignored and (nil, nil) is returned.
func (l *Ledger) RecordPipeline(ctx context.Context, project telemetry.Project, pipeline telemetry.Pipeline, jobs []telemetry.Job) (*models.Deployment, error) {
	job, ok := deployJob(jobs)
	if !ok || !pipeline.Finished() {
		return nil, nil
	}

	startedAt := pipeline.CreatedAt
	if pipeline.StartedAt != nil {
		startedAt = *pipeline.StartedAt
	}

	return l.RecordDeployment(ctx, DeploymentInput{
		ProjectID:   project.ID,
		ProjectName: project.Name,
		PipelineID:  pipeline.ID,
		Environment: Environment(job.Name, pipeline.Ref),
		Status:      deploymentStatus(pipeline.Status),
		StartedAt:   startedAt,
		FinishedAt:  pipeline.FinishedAt,
		CommitSHA:   pipeline.SHA,
		Ref:         pipeline.Ref,
		TriggeredBy: pipeline.User,
	})
}

func (l *Ledger) RecordDeployment(ctx context.Context, in DeploymentInput) (*models.Deployment, error) {
	d := &models.Deployment{
		ID:          uuid.New().String(),
		ProjectID:   in.ProjectID,
		ProjectName: in.ProjectName,
		PipelineID:  in.PipelineID,
		Environment: in.Environment,
		Status:      in.Status,
		StartedAt:   in.StartedAt,
		FinishedAt:  in.FinishedAt,
		CommitSHA:   in.CommitSHA,
		Ref:         in.Ref,
		TriggeredBy: in.TriggeredBy,
		CreatedAt:   l.now(),
	}
	if d.Environment == "" {
		d.Environment = Environment("", in.Ref)
	}
	if in.FinishedAt != nil {
		duration := wholeSeconds(in.FinishedAt.Sub(in.StartedAt))
		d.Duration = &duration
	}

	err := l.store.SaveDeployment(ctx, d)
	metrics.RecordLedgerWrite("deployment", err)
	if err != nil {
		return nil, fmt.Errorf("failed to record deployment for pipeline %d: %w", in.PipelineID, err)
	}

	return d, nil
}

func (l *Ledger) RecordIncident(ctx context.Context, in IncidentInput) (*models.Incident, error) {
	if in.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidIncident)
	}

	now := l.now()
	i := &models.Incident{
		ID:          uuid.New().String(),
		ProjectID:   in.ProjectID,
		ProjectName: in.ProjectName,
		Title:       in.Title,
		Severity:    in.Severity,
		Status:      models.IncidentOpen,
		DetectedAt:  in.DetectedAt,
		AffectedEnv: in.AffectedEnv,
		CreatedAt:   now,
	}
	if i.Severity == "" {
		i.Severity = models.SeverityMedium
	}
	if i.AffectedEnv == "" {
		i.AffectedEnv = models.EnvProduction
	}
	if i.DetectedAt.IsZero() {
		i.DetectedAt = now
	}

	err := l.store.SaveIncident(ctx, i)
	metrics.RecordLedgerWrite("incident", err)
	if err != nil {
		return nil, fmt.Errorf("failed to record incident: %w", err)
	}

	return i, nil
}

// ResolveIncident marks the incident resolved now and stores the recovery
// duration in whole seconds. An unknown id yields repository.ErrIncidentNotFound.
func (l *Ledger) ResolveIncident(ctx context.Context, id, rootCause string) (*models.Incident, error) {
	incident, err := l.store.GetIncident(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load incident %s: %w", id, err)
	}

	resolvedAt := l.now()
	duration := wholeSeconds(resolvedAt.Sub(incident.DetectedAt))

	err = l.store.ResolveIncident(ctx, id, resolvedAt, duration, rootCause)
	metrics.RecordLedgerWrite("incident_resolution", err)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve incident %s: %w", id, err)
	}

	incident.Status = models.IncidentResolved
	incident.ResolvedAt = &resolvedAt
	incident.Duration = &duration
	if rootCause != "" {
		incident.RootCause = rootCause
	}

	return incident, nil
}
