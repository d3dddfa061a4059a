// Package models contains the records persisted by the repository layer.
package models

import "time"

type (
	DeploymentStatus string
	IncidentStatus   string
	IncidentSeverity string
)

const (
	DeploymentSuccess  DeploymentStatus = "success"
	DeploymentFailed   DeploymentStatus = "failed"
	DeploymentCanceled DeploymentStatus = "canceled"
)

const (
	IncidentOpen     IncidentStatus = "open"
	IncidentResolved IncidentStatus = "resolved"
	IncidentClosed   IncidentStatus = "closed"
)

const (
	SeverityCritical IncidentSeverity = "critical"
	SeverityHigh     IncidentSeverity = "high"
	SeverityMedium   IncidentSeverity = "medium"
	SeverityLow      IncidentSeverity = "low"
)

const (
	EnvProduction  = "production"
	EnvStaging     = "staging"
	EnvDevelopment = "development"
)

// Deployment is an immutable audit fact for one deployment attempt.
type Deployment struct {
	ID          string           `json:"id"`
	ProjectID   int64            `json:"project_id"`
	ProjectName string           `json:"project_name"`
	PipelineID  int64            `json:"pipeline_id"`
	Environment string           `json:"environment"`
	Status      DeploymentStatus `json:"status"`
	StartedAt   time.Time        `json:"started_at"`
	FinishedAt  *time.Time       `json:"finished_at,omitempty"`
	Duration    *int             `json:"duration,omitempty"`
	CommitSHA   string           `json:"commit_sha"`
	Ref         string           `json:"ref"`
	TriggeredBy string           `json:"triggered_by,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Incident is created open and mutated once on resolution.
type Incident struct {
	ID          string           `json:"id"`
	ProjectID   int64            `json:"project_id"`
	ProjectName string           `json:"project_name"`
	Title       string           `json:"title"`
	Severity    IncidentSeverity `json:"severity"`
	Status      IncidentStatus   `json:"status"`
	DetectedAt  time.Time        `json:"detected_at"`
	ResolvedAt  *time.Time       `json:"resolved_at,omitempty"`
	Duration    *int             `json:"duration,omitempty"`
	RootCause   string           `json:"root_cause,omitempty"`
	AffectedEnv string           `json:"affected_env"`
	CreatedAt   time.Time        `json:"created_at"`
}

func (i Incident) Recovered() bool {
	return i.Status == IncidentResolved || i.Status == IncidentClosed
}
