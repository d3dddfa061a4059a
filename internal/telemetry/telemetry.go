// Package telemetry defines the read-only view of the upstream build platform
// (projects, pipelines, jobs, traces, runners) consumed by the analytics engine.
package telemetry

import (
	"context"
	"errors"
	"time"
)

type Status string

const (
	StatusCreated  Status = "created"
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
	StatusSkipped  Status = "skipped"
	StatusManual   Status = "manual"
)

var (
	// ErrUnauthorized is returned when the upstream API rejects the token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRateLimited is returned when the upstream API answers 429.
	ErrRateLimited = errors.New("rate limited")
)

type Project struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	PathWithNamespace string `json:"path_with_namespace"`
	DefaultBranch     string `json:"default_branch"`
	WebURL            string `json:"web_url"`
}

type Pipeline struct {
	ID         int64      `json:"id"`
	ProjectID  int64      `json:"project_id"`
	Status     Status     `json:"status"`
	Ref        string     `json:"ref"`
	SHA        string     `json:"sha"`
	Source     string     `json:"source,omitempty"`
	User       string     `json:"user,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	// Duration in seconds as reported upstream; zero when unknown.
	Duration int `json:"duration"`
}

// Finished reports whether the pipeline reached a terminal state.
func (p Pipeline) Finished() bool {
	switch p.Status {
	case StatusSuccess, StatusFailed, StatusCanceled, StatusSkipped:
		return p.FinishedAt != nil
	default:
		return false
	}
}

type Job struct {
	ID         int64  `json:"id"`
	PipelineID int64  `json:"pipeline_id"`
	Name       string `json:"name"`
	Stage      string `json:"stage"`
	Status     Status `json:"status"`
	Ref        string `json:"ref,omitempty"`
	// Duration in seconds; zero when the job never ran.
	Duration   float64    `json:"duration"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	HasTrace   bool       `json:"has_trace"`
}

type Runner struct {
	ID          int64  `json:"id"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Active      bool   `json:"active"`
	Online      bool   `json:"online"`
	IsShared    bool   `json:"is_shared"`
}

// Source is the port the engine reads build telemetry through. Every call may
// fail; callers treat failures as an empty contribution.
type Source interface {
	ListProjects(ctx context.Context) ([]Project, error)
	ListPipelines(ctx context.Context, projectID int64, page, perPage int) ([]Pipeline, error)
	ListJobs(ctx context.Context, projectID, pipelineID int64) ([]Job, error)
	GetJobTrace(ctx context.Context, projectID, jobID int64) (string, error)
	ListRunners(ctx context.Context) ([]Runner, error)
}
