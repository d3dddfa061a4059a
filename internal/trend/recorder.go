package trend

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/nadmax/pipepulse/internal/metrics"
	"github.com/nadmax/pipepulse/internal/repository"
	"github.com/nadmax/pipepulse/internal/repository/models"
	"github.com/nadmax/pipepulse/internal/telemetry"
)

const (
	MetricPipelineSuccessRate = "pipeline_success_rate"
	MetricPipelineDuration    = "pipeline_duration"
	MetricPipelineCount       = "pipeline_count"
)

type Analysis struct {
	Metric        string              `json:"metric"`
	ProjectID     *int64              `json:"project_id,omitempty"`
	Points        []models.TrendPoint `json:"points"`
	Smoothed      []models.TrendPoint `json:"smoothed"`
	Trend         Direction           `json:"trend"`
	ChangePercent float64             `json:"change_percent"`
	Prediction    float64             `json:"prediction"`
}

// Recorder appends samples to a TrendStore and reads them back for analysis.
type Recorder struct {
	store  repository.TrendStore
	window int
	now    func() time.Time
}

func NewRecorder(store repository.TrendStore) *Recorder {
	return &Recorder{
		store:  store,
		window: DefaultMovingWindow,
		now:    time.Now,
	}
}

func (r *Recorder) SetWindow(window int) {
	r.window = window
}

func (r *Recorder) Record(ctx context.Context, metric string, projectID *int64, value float64, metadata map[string]any) (*models.TrendPoint, error) {
	p := &models.TrendPoint{
		ID:         uuid.New().String(),
		MetricName: metric,
		ProjectID:  projectID,
		Value:      value,
		Timestamp:  r.now(),
		Metadata:   metadata,
	}

	if err := r.store.SaveTrendPoint(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to record %s: %w", metric, err)
	}

	metrics.RecordTrendPoint(metric)
	return p, nil
}

// Analyze reads the last days of samples for metric. A read failure yields an
// empty analysis.
func (r *Recorder) Analyze(ctx context.Context, metric string, projectID *int64, days int) *Analysis {
	if days <= 0 {
		days = DefaultAnalysisDays
	}

	result := &Analysis{
		Metric:    metric,
		ProjectID: projectID,
		Points:    []models.TrendPoint{},
		Smoothed:  []models.TrendPoint{},
		Trend:     Stable,
	}

	points, err := r.store.ListTrendPoints(ctx, repository.TrendFilter{
		Metric:    metric,
		ProjectID: projectID,
		Since:     r.now().AddDate(0, 0, -days),
	})
	if err != nil {
		log.Printf("failed to read trend data for %s: %v", metric, err)
		return result
	}
	if len(points) == 0 {
		return result
	}

	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}

	result.Points = points
	result.Smoothed = MovingAverage(points, r.window)
	result.Trend, result.ChangePercent = HalfSplit(values)
	result.Prediction = PredictNext(values)

	return result
}

// RecordPipeline writes the default per-pipeline samples: success rate
// (100 or 0), duration when positive, and a count of one.
func (r *Recorder) RecordPipeline(ctx context.Context, projectID int64, p telemetry.Pipeline) error {
	metadata := map[string]any{
		"pipelineId": p.ID,
		"status":     string(p.Status),
	}

	success := 0.0
	if p.Status == telemetry.StatusSuccess {
		success = 100
	}

	if _, err := r.Record(ctx, MetricPipelineSuccessRate, &projectID, success, metadata); err != nil {
		return err
	}

	if p.Duration > 0 {
		if _, err := r.Record(ctx, MetricPipelineDuration, &projectID, float64(p.Duration), metadata); err != nil {
			return err
		}
	}

	if _, err := r.Record(ctx, MetricPipelineCount, &projectID, 1, metadata); err != nil {
		return err
	}

	return nil
}
