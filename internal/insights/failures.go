package insights

import (
	"context"
	"log"
	"time"

	"github.com/nadmax/pipepulse/internal/metrics"
	"github.com/nadmax/pipepulse/internal/telemetry"
)

type FailureRecord struct {
	JobID         int64       `json:"job_id"`
	JobName       string      `json:"job_name"`
	Stage         string      `json:"stage"`
	PipelineID    int64       `json:"pipeline_id"`
	ProjectID     int64       `json:"project_id"`
	ProjectName   string      `json:"project_name"`
	FailureType   FailureType `json:"failure_type"`
	ErrorMessage  string      `json:"error_message,omitempty"`
	FailureReason string      `json:"failure_reason"`
	FailedAt      time.Time   `json:"failed_at"`
	Duration      float64     `json:"duration"`
}

type FailureAnalysis struct {
	Days          int                 `json:"days"`
	TotalFailures int                 `json:"total_failures"`
	ByType        map[FailureType]int `json:"by_type"`
	Failures      []FailureRecord     `json:"failures"`
}

// ClassifyJob fetches the job's trace and classifies it. A trace fetch
// error never escapes: the job is reported as unknown with its own status as
// the reason.
func (e *Engine) ClassifyJob(ctx context.Context, project telemetry.Project, job telemetry.Job) FailureRecord {
	record := FailureRecord{
		JobID:         job.ID,
		JobName:       job.Name,
		Stage:         job.Stage,
		PipelineID:    job.PipelineID,
		ProjectID:     project.ID,
		ProjectName:   project.Name,
		FailureType:   Unknown,
		FailureReason: string(job.Status),
		FailedAt:      jobTimestamp(job),
		Duration:      job.Duration,
	}

	trace, err := e.source.GetJobTrace(ctx, project.ID, job.ID)
	if err != nil {
		log.Printf("failed to fetch trace for job %d in project %d: %v", job.ID, project.ID, err)
		metrics.RecordAdapterError("get_job_trace")
		return record
	}

	record.FailureType, record.ErrorMessage = ClassifyTrace(trace)
	if record.ErrorMessage != "" {
		record.FailureReason = record.ErrorMessage
	}

	return record
}

// GetFailureAnalysis classifies failed jobs from the most recent failed
// pipelines of the first projects, keeping at most MaxFailures records.
func (e *Engine) GetFailureAnalysis(ctx context.Context, days int) (*FailureAnalysis, error) {
	start := time.Now()
	days = normalizeDays(days)

	analysis := &FailureAnalysis{
		Days:     days,
		ByType:   make(map[FailureType]int),
		Failures: []FailureRecord{},
	}

	failedOnly := func(p telemetry.Pipeline) bool { return p.Status == telemetry.StatusFailed }
	err := e.forEachRecentJob(ctx, days, failedOnly, func(project telemetry.Project, _ telemetry.Pipeline, job telemetry.Job) bool {
		if job.Status != telemetry.StatusFailed {
			return true
		}

		analysis.Failures = append(analysis.Failures, e.ClassifyJob(ctx, project, job))
		return len(analysis.Failures) < e.limits.MaxFailures
	})
	if err != nil {
		return nil, err
	}

	for _, f := range analysis.Failures {
		analysis.ByType[f.FailureType]++
	}
	analysis.TotalFailures = len(analysis.Failures)

	metrics.RecordAnalysisPass("failure_analysis", time.Since(start))
	return analysis, nil
}
