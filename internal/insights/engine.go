// Package insights derives engineering-health signals from build telemetry:
// failure taxonomy, flaky tests, stage bottlenecks, deployment frequency and
// a cross-project summary. Every pass is request-driven and best-effort: an
// upstream failure for one project is logged and contributes nothing.
package insights

import (
	"context"
	"log"
	"time"

	"github.com/nadmax/pipepulse/internal/metrics"
	"github.com/nadmax/pipepulse/internal/telemetry"
)

const (
	summaryPageSize  = 100
	jobLevelPageSize = 20
	defaultDays      = 7
)

type Limits struct {
	Projects            int
	PipelinesPerProject int
	MaxFailures         int
	MaxBottlenecks      int
	Concurrency         int
}

func DefaultLimits() Limits {
	return Limits{
		Projects:            5,
		PipelinesPerProject: 3,
		MaxFailures:         50,
		MaxBottlenecks:      defaultMaxBottlenecks,
		Concurrency:         4,
	}
}

type Engine struct {
	source telemetry.Source
	limits Limits
	now    func() time.Time
}

func NewEngine(source telemetry.Source, limits Limits) *Engine {
	defaults := DefaultLimits()
	if limits.Projects <= 0 {
		limits.Projects = defaults.Projects
	}
	if limits.PipelinesPerProject <= 0 {
		limits.PipelinesPerProject = defaults.PipelinesPerProject
	}
	if limits.MaxFailures <= 0 {
		limits.MaxFailures = defaults.MaxFailures
	}
	if limits.MaxBottlenecks <= 0 {
		limits.MaxBottlenecks = defaults.MaxBottlenecks
	}
	if limits.Concurrency <= 0 {
		limits.Concurrency = defaults.Concurrency
	}

	return &Engine{
		source: source,
		limits: limits,
		now:    time.Now,
	}
}

func normalizeDays(days int) int {
	if days <= 0 {
		return defaultDays
	}

	return days
}

func (e *Engine) windowStart(days int) time.Time {
	return e.now().Add(-time.Duration(days) * 24 * time.Hour)
}

func (e *Engine) listProjects(ctx context.Context) []telemetry.Project {
	projects, err := e.source.ListProjects(ctx)
	if err != nil {
		log.Printf("failed to list projects: %v", err)
		metrics.RecordAdapterError("list_projects")
		return nil
	}

	return projects
}

// recentPipelines returns pipelines created inside the window that satisfy
// keep, in adapter order, up to limit entries.
func (e *Engine) recentPipelines(ctx context.Context, project telemetry.Project, since time.Time, perPage, limit int, keep func(telemetry.Pipeline) bool) []telemetry.Pipeline {
	pipelines, err := e.source.ListPipelines(ctx, project.ID, 1, perPage)
	if err != nil {
		log.Printf("failed to list pipelines for project %d: %v", project.ID, err)
		metrics.RecordAdapterError("list_pipelines")
		return nil
	}

	var out []telemetry.Pipeline
	for _, p := range pipelines {
		if p.CreatedAt.Before(since) {
			continue
		}
		if keep != nil && !keep(p) {
			continue
		}
		out = append(out, p)
		if limit > 0 && len(out) >= limit {
			break
		}
	}

	return out
}

func (e *Engine) listJobs(ctx context.Context, projectID, pipelineID int64) []telemetry.Job {
	jobs, err := e.source.ListJobs(ctx, projectID, pipelineID)
	if err != nil {
		log.Printf("failed to list jobs for pipeline %d in project %d: %v", pipelineID, projectID, err)
		metrics.RecordAdapterError("list_jobs")
		return nil
	}

	return jobs
}

// forEachRecentJob walks the first projects and their first recent pipelines,
// calling fn for every job in fetch order. It stops at the next project
// boundary once ctx is done.
func (e *Engine) forEachRecentJob(ctx context.Context, days int, keep func(telemetry.Pipeline) bool, fn func(telemetry.Project, telemetry.Pipeline, telemetry.Job) bool) error {
	since := e.windowStart(days)

	projects := e.listProjects(ctx)
	if len(projects) > e.limits.Projects {
		projects = projects[:e.limits.Projects]
	}

	for _, project := range projects {
		if err := ctx.Err(); err != nil {
			return err
		}

		for _, pipeline := range e.recentPipelines(ctx, project, since, jobLevelPageSize, e.limits.PipelinesPerProject, keep) {
			for _, job := range e.listJobs(ctx, project.ID, pipeline.ID) {
				if !fn(project, pipeline, job) {
					return nil
				}
			}
		}
	}

	return nil
}

// GetFlakyTests collects test-job outcomes over the window and returns the
// flaky verdicts.
func (e *Engine) GetFlakyTests(ctx context.Context, days int) ([]FlakyTest, error) {
	start := time.Now()
	days = normalizeDays(days)

	var runs []JobRun
	err := e.forEachRecentJob(ctx, days, nil, func(project telemetry.Project, _ telemetry.Pipeline, job telemetry.Job) bool {
		if IsTestJob(job.Name) {
			runs = append(runs, JobRun{
				ProjectName: project.Name,
				JobName:     job.Name,
				Status:      job.Status,
				At:          jobTimestamp(job),
			})
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordAnalysisPass("flaky_tests", time.Since(start))
	return DetectFlaky(runs), nil
}

// GetPerformanceBottlenecks profiles job durations over the window.
func (e *Engine) GetPerformanceBottlenecks(ctx context.Context, days int) ([]Bottleneck, error) {
	start := time.Now()
	days = normalizeDays(days)

	var samples []DurationSample
	err := e.forEachRecentJob(ctx, days, nil, func(project telemetry.Project, _ telemetry.Pipeline, job telemetry.Job) bool {
		if job.Duration > 0 {
			samples = append(samples, DurationSample{
				ProjectName: project.Name,
				Stage:       job.Stage,
				JobName:     job.Name,
				Duration:    job.Duration,
			})
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordAnalysisPass("bottlenecks", time.Since(start))
	return ProfileDurations(samples, e.limits.MaxBottlenecks), nil
}

func jobTimestamp(job telemetry.Job) time.Time {
	if job.FinishedAt != nil {
		return *job.FinishedAt
	}
	if job.StartedAt != nil {
		return *job.StartedAt
	}

	return job.CreatedAt
}
