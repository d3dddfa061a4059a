// Package dashboard computes the whole-dashboard aggregate behind the Redis
// aggregate cache and serves it over HTTP.
package dashboard

import (
	"context"
	"log"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nadmax/pipepulse/internal/httputil"
	"github.com/nadmax/pipepulse/internal/metrics"
	"github.com/nadmax/pipepulse/internal/telemetry"
)

const (
	pipelinesPerProject = 100
	dateLayout          = "2006-01-02"
)

// Cache is the best-effort store the snapshot is kept in.
type Cache interface {
	Get(ctx context.Context, dest any) bool
	Set(ctx context.Context, value any) error
	Clear(ctx context.Context) error
}

type Options struct {
	ProjectLimit int
	Concurrency  int
}

type Service struct {
	source telemetry.Source
	cache  Cache
	opts   Options
	now    func() time.Time
}

type DailyPoint struct {
	Date        string  `json:"date"`
	Total       int     `json:"total"`
	Successful  int     `json:"successful"`
	Failed      int     `json:"failed"`
	AvgDuration float64 `json:"avg_duration"`
}

type ProjectActivity struct {
	ProjectID     int64            `json:"project_id"`
	ProjectName   string           `json:"project_name"`
	WebURL        string           `json:"web_url,omitempty"`
	PipelineCount int              `json:"pipeline_count"`
	SuccessRate   float64          `json:"success_rate"`
	LastStatus    telemetry.Status `json:"last_status,omitempty"`
	LastActivity  *time.Time       `json:"last_activity,omitempty"`
}

type RunnerSummary struct {
	Total       int                `json:"total"`
	Online      int                `json:"online"`
	Active      int                `json:"active"`
	Utilization float64            `json:"utilization"`
	Runners     []telemetry.Runner `json:"runners"`
}

type Snapshot struct {
	Days           int               `json:"days"`
	TotalProjects  int               `json:"total_projects"`
	TotalPipelines int               `json:"total_pipelines"`
	Successful     int               `json:"successful"`
	Failed         int               `json:"failed"`
	SuccessRate    float64           `json:"success_rate"`
	AvgDuration    float64           `json:"avg_duration"`
	Daily          []DailyPoint      `json:"daily"`
	Projects       []ProjectActivity `json:"projects"`
	Runners        RunnerSummary     `json:"runners"`
	GeneratedAt    time.Time         `json:"generated_at"`
}

func NewService(source telemetry.Source, cache Cache, opts Options) *Service {
	if opts.ProjectLimit <= 0 {
		opts.ProjectLimit = 20
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}

	return &Service{
		source: source,
		cache:  cache,
		opts:   opts,
		now:    time.Now,
	}
}

// Get serves the cached snapshot when it covers the same window, otherwise
// computes a fresh one and caches it.
func (s *Service) Get(ctx context.Context, days int) (*Snapshot, error) {
	if days <= 0 {
		days = httputil.DefaultDays
	}

	var cached Snapshot
	if s.cache.Get(ctx, &cached) && cached.Days == days {
		return &cached, nil
	}

	return s.Refresh(ctx, days)
}

// Refresh recomputes the snapshot and overwrites the cache entry.
func (s *Service) Refresh(ctx context.Context, days int) (*Snapshot, error) {
	if days <= 0 {
		days = httputil.DefaultDays
	}

	snapshot, err := s.compute(ctx, days)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, snapshot); err != nil {
		log.Printf("Failed to cache dashboard snapshot: %v", err)
	}

	return snapshot, nil
}

func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Clear(ctx)
}

type projectPipelines struct {
	project   telemetry.Project
	pipelines []telemetry.Pipeline
}

func (s *Service) compute(ctx context.Context, days int) (*Snapshot, error) {
	start := time.Now()
	now := s.now()
	since := now.Add(-time.Duration(days) * 24 * time.Hour)

	projects, err := s.source.ListProjects(ctx)
	if err != nil {
		log.Printf("failed to list projects: %v", err)
		metrics.RecordAdapterError("list_projects")
	}
	if len(projects) > s.opts.ProjectLimit {
		projects = projects[:s.opts.ProjectLimit]
	}

	results := make([]projectPipelines, len(projects))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i, project := range projects {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = projectPipelines{project: project, pipelines: s.windowedPipelines(gctx, project, since)}
			return nil
		})
	}

	var runners []telemetry.Runner
	g.Go(func() error {
		list, err := s.source.ListRunners(gctx)
		if err != nil {
			log.Printf("failed to list runners: %v", err)
			metrics.RecordAdapterError("list_runners")
			return nil
		}
		runners = list
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	snapshot := &Snapshot{
		Days:          days,
		TotalProjects: len(projects),
		Projects:      []ProjectActivity{},
		Runners:       summarizeRunners(runners),
		GeneratedAt:   now,
	}

	var all []telemetry.Pipeline
	for _, r := range results {
		snapshot.Projects = append(snapshot.Projects, projectActivity(r.project, r.pipelines))
		all = append(all, r.pipelines...)
	}

	var durationSum float64
	var durationCount int
	for _, p := range all {
		switch p.Status {
		case telemetry.StatusSuccess:
			snapshot.Successful++
		case telemetry.StatusFailed:
			snapshot.Failed++
		}
		if p.Duration > 0 {
			durationSum += float64(p.Duration)
			durationCount++
		}
	}
	snapshot.TotalPipelines = len(all)
	if snapshot.TotalPipelines > 0 {
		snapshot.SuccessRate = float64(snapshot.Successful) / float64(snapshot.TotalPipelines) * 100
	}
	if durationCount > 0 {
		snapshot.AvgDuration = durationSum / float64(durationCount)
	}
	snapshot.Daily = dailySeries(all, since, now)

	metrics.RecordAnalysisPass("dashboard", time.Since(start))
	return snapshot, nil
}

func (s *Service) windowedPipelines(ctx context.Context, project telemetry.Project, since time.Time) []telemetry.Pipeline {
	pipelines, err := s.source.ListPipelines(ctx, project.ID, 1, pipelinesPerProject)
	if err != nil {
		log.Printf("failed to list pipelines for project %d: %v", project.ID, err)
		metrics.RecordAdapterError("list_pipelines")
		return nil
	}

	var out []telemetry.Pipeline
	for _, p := range pipelines {
		if !p.CreatedAt.Before(since) {
			out = append(out, p)
		}
	}

	return out
}

func projectActivity(project telemetry.Project, pipelines []telemetry.Pipeline) ProjectActivity {
	activity := ProjectActivity{
		ProjectID:     project.ID,
		ProjectName:   project.Name,
		WebURL:        project.WebURL,
		PipelineCount: len(pipelines),
	}

	success := 0
	for i := range pipelines {
		p := pipelines[i]
		if p.Status == telemetry.StatusSuccess {
			success++
		}
		if activity.LastActivity == nil || p.CreatedAt.After(*activity.LastActivity) {
			at := p.CreatedAt
			activity.LastActivity = &at
			activity.LastStatus = p.Status
		}
	}
	if len(pipelines) > 0 {
		activity.SuccessRate = float64(success) / float64(len(pipelines)) * 100
	}

	return activity
}

func summarizeRunners(runners []telemetry.Runner) RunnerSummary {
	summary := RunnerSummary{
		Total:   len(runners),
		Runners: runners,
	}
	if summary.Runners == nil {
		summary.Runners = []telemetry.Runner{}
	}

	busy := 0
	for _, r := range runners {
		if r.Online {
			summary.Online++
		}
		if r.Active {
			summary.Active++
		}
		if r.Online && r.Active {
			busy++
		}
	}
	if summary.Total > 0 {
		summary.Utilization = float64(busy) / float64(summary.Total) * 100
	}

	return summary
}

// dailySeries buckets pipelines by UTC creation date. Every calendar day
// touched by [since, now] is present.
func dailySeries(pipelines []telemetry.Pipeline, since, now time.Time) []DailyPoint {
	type bucket struct {
		point       DailyPoint
		durationSum float64
		durations   int
	}

	buckets := make(map[string]*bucket)
	var series []*bucket
	last := now.UTC().Truncate(24 * time.Hour)
	for day := since.UTC().Truncate(24 * time.Hour); !day.After(last); day = day.Add(24 * time.Hour) {
		b := &bucket{point: DailyPoint{Date: day.Format(dateLayout)}}
		buckets[b.point.Date] = b
		series = append(series, b)
	}

	for _, p := range pipelines {
		b, ok := buckets[p.CreatedAt.UTC().Format(dateLayout)]
		if !ok {
			continue
		}
		b.point.Total++
		switch p.Status {
		case telemetry.StatusSuccess:
			b.point.Successful++
		case telemetry.StatusFailed:
			b.point.Failed++
		}
		if p.Duration > 0 {
			b.durationSum += float64(p.Duration)
			b.durations++
		}
	}

	out := make([]DailyPoint, 0, len(series))
	for _, b := range series {
		if b.durations > 0 {
			b.point.AvgDuration = b.durationSum / float64(b.durations)
		}
		out = append(out, b.point)
	}

	return out
}

func (s *Service) GetDashboard(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.Get(r.Context(), httputil.DaysParam(r))
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, snapshot)
}

func (s *Service) RefreshDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snapshot, err := s.Refresh(r.Context(), httputil.DaysParam(r))
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, snapshot)
}

func (s *Service) InvalidateDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.Invalidate(r.Context()); err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
