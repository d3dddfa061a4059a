// Package dora computes the four DORA delivery metrics from the deployment
// and incident ledger and upserts one snapshot per (project, period,
// period start).
package dora

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"github.com/nadmax/pipepulse/internal/metrics"
	"github.com/nadmax/pipepulse/internal/repository"
	"github.com/nadmax/pipepulse/internal/repository/models"
)

const secondsPerHour = 3600.0

var ErrInvalidPeriod = errors.New("invalid period")

type Store interface {
	repository.LedgerStore
	repository.DoraStore
}

type Ratings struct {
	DeploymentFrequency Rating `json:"deployment_frequency"`
	LeadTime            Rating `json:"lead_time"`
	MTTR                Rating `json:"mttr"`
	ChangeFailureRate   Rating `json:"change_failure_rate"`
}

type Report struct {
	Snapshot models.DoraSnapshot `json:"snapshot"`
	Ratings  Ratings             `json:"ratings"`
}

type Averages struct {
	DeploymentFrequency float64 `json:"deployment_frequency"`
	LeadTime            float64 `json:"lead_time"`
	MTTR                float64 `json:"mttr"`
	ChangeFailureRate   float64 `json:"change_failure_rate"`
}

type Summary struct {
	Period   string   `json:"period"`
	Projects []Report `json:"projects"`
	Averages Averages `json:"averages"`
	Ratings  Ratings  `json:"ratings"`
}

type Calculator struct {
	store Store
	now   func() time.Time
}

func NewCalculator(store Store) *Calculator {
	return &Calculator{
		store: store,
		now:   time.Now,
	}
}

// ElapsedDays is the window length in whole days, rounded up, never below one.
func ElapsedDays(start, end time.Time) int {
	days := int(math.Ceil(end.Sub(start).Hours() / hoursPerDay))
	return max(days, 1)
}

// Median uses the sorted midpoint, averaging the two midpoints on even lengths.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}

	return sorted[mid]
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	var sum float64
	for _, v := range values {
		sum += v
	}

	return sum / float64(len(values))
}

func rate(s models.DoraSnapshot) Ratings {
	return Ratings{
		DeploymentFrequency: RateDeploymentFrequency(s.DeploymentFrequency),
		LeadTime:            RateLeadTime(s.AvgLeadTime / secondsPerHour),
		MTTR:                RateMTTR(s.AvgMTTR / secondsPerHour),
		ChangeFailureRate:   RateChangeFailureRate(s.ChangeFailureRate),
	}
}

// Calculate recomputes the production metrics for [start, end] and upserts
// the snapshot. Recalculating the same period overwrites the stored row.
func (c *Calculator) Calculate(ctx context.Context, projectID int64, projectName string, start, end time.Time, period string) (report *Report, err error) {
	defer func() { metrics.RecordDoraCalculation(err) }()

	if end.Before(start) {
		return nil, fmt.Errorf("%w: end %s is before start %s", ErrInvalidPeriod, end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	deployments, err := c.store.ListDeployments(ctx, repository.DeploymentFilter{
		ProjectID:   projectID,
		Environment: models.EnvProduction,
		Start:       start,
		End:         end,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load deployments for project %d: %w", projectID, err)
	}

	incidents, err := c.store.ListIncidents(ctx, repository.IncidentFilter{
		ProjectID:   projectID,
		Environment: models.EnvProduction,
		Start:       start,
		End:         end,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load incidents for project %d: %w", projectID, err)
	}

	snapshot := models.DoraSnapshot{
		ProjectID:       projectID,
		ProjectName:     projectName,
		Period:          period,
		PeriodStart:     start,
		PeriodEnd:       end,
		DeploymentCount: len(deployments),
		IncidentCount:   len(incidents),
		CalculatedAt:    c.now(),
	}

	snapshot.DeploymentFrequency = float64(len(deployments)) / float64(ElapsedDays(start, end))

	var leadTimes []float64
	for _, d := range deployments {
		if d.Status == models.DeploymentFailed {
			snapshot.FailedDeploymentCount++
		}
		if d.Status == models.DeploymentSuccess && d.Duration != nil {
			leadTimes = append(leadTimes, float64(*d.Duration))
		}
	}
	snapshot.AvgLeadTime = mean(leadTimes)
	snapshot.MedianLeadTime = Median(leadTimes)

	var recoveries []float64
	for _, i := range incidents {
		if i.Recovered() && i.Duration != nil {
			recoveries = append(recoveries, float64(*i.Duration))
		}
	}
	snapshot.AvgMTTR = mean(recoveries)

	if snapshot.DeploymentCount > 0 {
		snapshot.ChangeFailureRate = float64(snapshot.FailedDeploymentCount) / float64(snapshot.DeploymentCount) * 100
	}

	if err := c.store.UpsertDoraSnapshot(ctx, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to save dora snapshot for project %d: %w", projectID, err)
	}

	return &Report{Snapshot: snapshot, Ratings: rate(snapshot)}, nil
}

// Summary gathers the latest snapshot for each project and averages them.
// Projects without a snapshot, or whose read fails, are skipped.
func (c *Calculator) Summary(ctx context.Context, projectIDs []int64, period string) (*Summary, error) {
	summary := &Summary{
		Period:   period,
		Projects: []Report{},
	}

	var freq, lead, mttr, cfr []float64
	for _, id := range projectIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		snapshot, err := c.store.LatestDoraSnapshot(ctx, id, period)
		if err != nil {
			if !errors.Is(err, repository.ErrSnapshotNotFound) {
				log.Printf("failed to load dora snapshot for project %d: %v", id, err)
			}
			continue
		}

		summary.Projects = append(summary.Projects, Report{Snapshot: *snapshot, Ratings: rate(*snapshot)})
		freq = append(freq, snapshot.DeploymentFrequency)
		lead = append(lead, snapshot.AvgLeadTime)
		mttr = append(mttr, snapshot.AvgMTTR)
		cfr = append(cfr, snapshot.ChangeFailureRate)
	}

	summary.Averages = Averages{
		DeploymentFrequency: mean(freq),
		LeadTime:            mean(lead),
		MTTR:                mean(mttr),
		ChangeFailureRate:   mean(cfr),
	}
	summary.Ratings = rate(models.DoraSnapshot{
		DeploymentFrequency: summary.Averages.DeploymentFrequency,
		AvgLeadTime:         summary.Averages.LeadTime,
		AvgMTTR:             summary.Averages.MTTR,
		ChangeFailureRate:   summary.Averages.ChangeFailureRate,
	})

	return summary, nil
}
