package insights

import (
	"sort"
	"strings"
	"time"

	"github.com/nadmax/pipepulse/internal/telemetry"
)

type Trend string

const (
	Improving Trend = "improving"
	Worsening Trend = "worsening"
	Steady    Trend = "stable"
)

const (
	flakyMinRuns         = 3
	flakyLowerBound      = 10.0
	flakyUpperBound      = 90.0
	flakyRecentWindow    = 5
	flakyTrendTolerance  = 0.1
	flakyJobNameFragment = "test"
)

// JobRun is one observed outcome of a job, in fetch order.
type JobRun struct {
	ProjectName string
	JobName     string
	Status      telemetry.Status
	At          time.Time
}

type FlakyTest struct {
	ProjectName  string     `json:"project_name"`
	JobName      string     `json:"job_name"`
	TotalRuns    int        `json:"total_runs"`
	FailureCount int        `json:"failure_count"`
	SuccessCount int        `json:"success_count"`
	FailureRate  float64    `json:"failure_rate"`
	LastFailed   *time.Time `json:"last_failed,omitempty"`
	Trend        Trend      `json:"trend"`
}

type flakyKey struct {
	Project string
	Job     string
}

type testRunAggregate struct {
	key          flakyKey
	totalRuns    int
	failureCount int
	successCount int
	lastFailed   *time.Time
	outcomes     []bool // true = failed
}

// IsTestJob reports whether a job name looks like a test job.
func IsTestJob(name string) bool {
	return strings.Contains(strings.ToLower(name), flakyJobNameFragment)
}

// DetectFlaky aggregates runs per (project, job) and returns the pairs whose
// failure rate lies strictly between 10% and 90% over at least three runs,
// sorted by failure rate descending.
func DetectFlaky(runs []JobRun) []FlakyTest {
	index := make(map[flakyKey]*testRunAggregate)
	var order []*testRunAggregate

	for _, run := range runs {
		if !IsTestJob(run.JobName) {
			continue
		}
		if run.Status != telemetry.StatusSuccess && run.Status != telemetry.StatusFailed {
			continue
		}

		key := flakyKey{Project: run.ProjectName, Job: run.JobName}
		agg, ok := index[key]
		if !ok {
			agg = &testRunAggregate{key: key}
			index[key] = agg
			order = append(order, agg)
		}

		agg.totalRuns++
		failed := run.Status == telemetry.StatusFailed
		if failed {
			agg.failureCount++
			if agg.lastFailed == nil || run.At.After(*agg.lastFailed) {
				at := run.At
				agg.lastFailed = &at
			}
		} else {
			agg.successCount++
		}
		agg.outcomes = append(agg.outcomes, failed)
	}

	flaky := []FlakyTest{}
	for _, agg := range order {
		if agg.totalRuns < flakyMinRuns {
			continue
		}

		rate := float64(agg.failureCount) * 100 / float64(agg.totalRuns)
		if rate <= flakyLowerBound || rate >= flakyUpperBound {
			continue
		}

		flaky = append(flaky, FlakyTest{
			ProjectName:  agg.key.Project,
			JobName:      agg.key.Job,
			TotalRuns:    agg.totalRuns,
			FailureCount: agg.failureCount,
			SuccessCount: agg.successCount,
			FailureRate:  rate,
			LastFailed:   agg.lastFailed,
			Trend:        outcomeTrend(agg.outcomes),
		})
	}

	sort.SliceStable(flaky, func(i, j int) bool { return flaky[i].FailureRate > flaky[j].FailureRate })
	return flaky
}

// outcomeTrend compares the failure fraction of the last five outcomes with
// everything before them.
func outcomeTrend(outcomes []bool) Trend {
	if len(outcomes) <= flakyRecentWindow {
		return Steady
	}

	split := len(outcomes) - flakyRecentWindow
	recent := failedFraction(outcomes[split:])
	older := failedFraction(outcomes[:split])

	switch {
	case recent < older-flakyTrendTolerance:
		return Improving
	case recent > older+flakyTrendTolerance:
		return Worsening
	default:
		return Steady
	}
}

func failedFraction(outcomes []bool) float64 {
	if len(outcomes) == 0 {
		return 0
	}

	failed := 0
	for _, f := range outcomes {
		if f {
			failed++
		}
	}

	return float64(failed) / float64(len(outcomes))
}
