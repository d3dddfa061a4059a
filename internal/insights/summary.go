package insights

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nadmax/pipepulse/internal/metrics"
	"github.com/nadmax/pipepulse/internal/telemetry"
)

type ProjectInsight struct {
	ProjectID           int64   `json:"project_id"`
	ProjectName         string  `json:"project_name"`
	TotalPipelines      int     `json:"total_pipelines"`
	SuccessfulPipelines int     `json:"successful_pipelines"`
	FailedPipelines     int     `json:"failed_pipelines"`
	SuccessRate         float64 `json:"success_rate"`
	AvgDuration         float64 `json:"avg_duration"`
}

type InsightsSummary struct {
	Days               int              `json:"days"`
	TotalProjects      int              `json:"total_projects"`
	TotalPipelines     int              `json:"total_pipelines"`
	Successful         int              `json:"successful"`
	Failed             int              `json:"failed"`
	SuccessRate        float64          `json:"success_rate"`
	AvgDuration        float64          `json:"avg_duration"`
	MostFailingProject *ProjectInsight  `json:"most_failing_project,omitempty"`
	Projects           []ProjectInsight `json:"projects"`
	GeneratedAt        time.Time        `json:"generated_at"`
}

func summarizeProject(project telemetry.Project, pipelines []telemetry.Pipeline) ProjectInsight {
	insight := ProjectInsight{
		ProjectID:      project.ID,
		ProjectName:    project.Name,
		TotalPipelines: len(pipelines),
	}

	var durations []float64
	for _, p := range pipelines {
		switch p.Status {
		case telemetry.StatusSuccess:
			insight.SuccessfulPipelines++
		case telemetry.StatusFailed:
			insight.FailedPipelines++
		}
		if p.Duration > 0 {
			durations = append(durations, float64(p.Duration))
		}
	}

	if insight.TotalPipelines > 0 {
		insight.SuccessRate = float64(insight.SuccessfulPipelines) / float64(insight.TotalPipelines) * 100
	}
	insight.AvgDuration = average(durations)

	return insight
}

// GetInsightsSummary fans out one pipeline fetch per project with bounded
// concurrency. Results keep the project order returned by the source.
func (e *Engine) GetInsightsSummary(ctx context.Context, days int) (*InsightsSummary, error) {
	start := time.Now()
	days = normalizeDays(days)
	since := e.windowStart(days)

	summary := &InsightsSummary{
		Days:        days,
		Projects:    []ProjectInsight{},
		GeneratedAt: e.now(),
	}

	projects := e.listProjects(ctx)
	if len(projects) == 0 {
		return summary, nil
	}

	results := make([]ProjectInsight, len(projects))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.limits.Concurrency)
	for i, project := range projects {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			pipelines := e.recentPipelines(gctx, project, since, summaryPageSize, 0, nil)
			results[i] = summarizeProject(project, pipelines)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var durationSum float64
	var durationProjects int
	for i := range results {
		r := results[i]
		summary.TotalPipelines += r.TotalPipelines
		summary.Successful += r.SuccessfulPipelines
		summary.Failed += r.FailedPipelines
		if r.AvgDuration > 0 {
			durationSum += r.AvgDuration
			durationProjects++
		}
		if r.FailedPipelines > 0 && (summary.MostFailingProject == nil || r.FailedPipelines > summary.MostFailingProject.FailedPipelines) {
			summary.MostFailingProject = &results[i]
		}
	}

	summary.TotalProjects = len(results)
	summary.Projects = results
	if summary.TotalPipelines > 0 {
		summary.SuccessRate = float64(summary.Successful) / float64(summary.TotalPipelines) * 100
	}
	if durationProjects > 0 {
		summary.AvgDuration = durationSum / float64(durationProjects)
	}

	metrics.RecordAnalysisPass("summary", time.Since(start))
	return summary, nil
}
