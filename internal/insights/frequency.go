package insights

import (
	"context"
	"sort"
	"time"

	"github.com/nadmax/pipepulse/internal/metrics"
	"github.com/nadmax/pipepulse/internal/telemetry"
	"github.com/nadmax/pipepulse/internal/trend"
)

const dateLayout = "2006-01-02"

type DailyDeployments struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type ProjectDeployments struct {
	ProjectID   int64  `json:"project_id"`
	ProjectName string `json:"project_name"`
	Count       int    `json:"count"`
}

type DeploymentFrequency struct {
	Days             int                  `json:"days"`
	TotalDeployments int                  `json:"total_deployments"`
	AveragePerDay    float64              `json:"average_per_day"`
	Daily            []DailyDeployments   `json:"daily"`
	Projects         []ProjectDeployments `json:"projects"`
	Trend            trend.Direction      `json:"trend"`
	ChangePercent    float64              `json:"change_percent"`
}

func isDefaultRef(project telemetry.Project, ref string) bool {
	if project.DefaultBranch != "" {
		return ref == project.DefaultBranch
	}

	return ref == "main" || ref == "master"
}

// GetDeploymentFrequency counts successful default-branch pipelines per day
// over the window. Every calendar day touched by the window is present,
// zero-filled.
func (e *Engine) GetDeploymentFrequency(ctx context.Context, days int) (*DeploymentFrequency, error) {
	start := time.Now()
	days = normalizeDays(days)
	since := e.windowStart(days)

	perDay := make(map[string]int, days)
	freq := &DeploymentFrequency{
		Days:     days,
		Projects: []ProjectDeployments{},
	}

	projects := e.listProjects(ctx)
	if len(projects) > e.limits.Projects {
		projects = projects[:e.limits.Projects]
	}

	for _, project := range projects {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		deployed := func(p telemetry.Pipeline) bool {
			return p.Status == telemetry.StatusSuccess && isDefaultRef(project, p.Ref)
		}
		pipelines := e.recentPipelines(ctx, project, since, summaryPageSize, 0, deployed)
		for _, p := range pipelines {
			perDay[p.CreatedAt.UTC().Format(dateLayout)]++
		}
		if len(pipelines) > 0 {
			freq.Projects = append(freq.Projects, ProjectDeployments{
				ProjectID:   project.ID,
				ProjectName: project.Name,
				Count:       len(pipelines),
			})
		}
		freq.TotalDeployments += len(pipelines)
	}

	var values []float64
	last := e.now().UTC().Truncate(24 * time.Hour)
	for day := since.UTC().Truncate(24 * time.Hour); !day.After(last); day = day.Add(24 * time.Hour) {
		key := day.Format(dateLayout)
		freq.Daily = append(freq.Daily, DailyDeployments{Date: key, Count: perDay[key]})
		values = append(values, float64(perDay[key]))
	}

	sort.SliceStable(freq.Projects, func(i, j int) bool {
		return freq.Projects[i].Count > freq.Projects[j].Count
	})

	freq.AveragePerDay = float64(freq.TotalDeployments) / float64(days)
	freq.Trend, freq.ChangePercent = trend.HalfSplit(values)

	metrics.RecordAnalysisPass("deployment_frequency", time.Since(start))
	return freq, nil
}
