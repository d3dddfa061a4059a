package insights

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadmax/pipepulse/internal/telemetry"
)

func runsFor(project, job string, statuses ...telemetry.Status) []JobRun {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	runs := make([]JobRun, 0, len(statuses))
	for i, s := range statuses {
		runs = append(runs, JobRun{
			ProjectName: project,
			JobName:     job,
			Status:      s,
			At:          base.Add(time.Duration(i) * time.Hour),
		})
	}

	return runs
}

func repeat(status telemetry.Status, n int) []telemetry.Status {
	out := make([]telemetry.Status, n)
	for i := range out {
		out[i] = status
	}

	return out
}

func TestIsTestJob(t *testing.T) {
	assert.True(t, IsTestJob("unit-test"))
	assert.True(t, IsTestJob("Integration Tests"))
	assert.False(t, IsTestJob("build"))
}

func TestDetectFlaky_SixtySixPercent(t *testing.T) {
	F, S := telemetry.StatusFailed, telemetry.StatusSuccess
	runs := runsFor("api", "unit-test", F, S, F)

	flaky := DetectFlaky(runs)

	require.Len(t, flaky, 1)
	assert.Equal(t, "api", flaky[0].ProjectName)
	assert.Equal(t, 3, flaky[0].TotalRuns)
	assert.Equal(t, 2, flaky[0].FailureCount)
	assert.Equal(t, 1, flaky[0].SuccessCount)
	assert.InDelta(t, 66.67, flaky[0].FailureRate, 0.01)
	assert.Equal(t, Steady, flaky[0].Trend)
	require.NotNil(t, flaky[0].LastFailed)
	assert.Equal(t, runs[2].At, *flaky[0].LastFailed)
}

func TestDetectFlaky_AlwaysFailingIsNotFlaky(t *testing.T) {
	runs := runsFor("api", "unit-test", repeat(telemetry.StatusFailed, 10)...)

	assert.Empty(t, DetectFlaky(runs))
}

func TestDetectFlaky_Bounds(t *testing.T) {
	one := append([]telemetry.Status{telemetry.StatusFailed}, repeat(telemetry.StatusSuccess, 9)...)
	nine := append(repeat(telemetry.StatusFailed, 9), telemetry.StatusSuccess)

	assert.Empty(t, DetectFlaky(runsFor("api", "test", one...)), "exactly ten percent is not flaky")
	assert.Empty(t, DetectFlaky(runsFor("api", "test", nine...)), "exactly ninety percent is not flaky")
}

func TestDetectFlaky_JustInsideBounds(t *testing.T) {
	low := append([]telemetry.Status{telemetry.StatusFailed}, repeat(telemetry.StatusSuccess, 8)...)
	high := append(repeat(telemetry.StatusFailed, 8), telemetry.StatusSuccess)

	lowFlaky := DetectFlaky(runsFor("api", "test", low...))
	require.Len(t, lowFlaky, 1)
	assert.InDelta(t, 100.0/9, lowFlaky[0].FailureRate, 0.001)

	highFlaky := DetectFlaky(runsFor("api", "test", high...))
	require.Len(t, highFlaky, 1)
	assert.InDelta(t, 800.0/9, highFlaky[0].FailureRate, 0.001)
}

func TestDetectFlaky_TooFewRuns(t *testing.T) {
	runs := runsFor("api", "test", telemetry.StatusFailed, telemetry.StatusSuccess)

	assert.Empty(t, DetectFlaky(runs))
}

func TestDetectFlaky_IgnoresOtherOutcomesAndJobs(t *testing.T) {
	runs := runsFor("api", "test", telemetry.StatusFailed, telemetry.StatusCanceled, telemetry.StatusSkipped, telemetry.StatusSuccess)
	runs = append(runs, runsFor("api", "build", telemetry.StatusFailed, telemetry.StatusSuccess, telemetry.StatusFailed)...)

	assert.Empty(t, DetectFlaky(runs))
}

func TestDetectFlaky_Trends(t *testing.T) {
	F, S := telemetry.StatusFailed, telemetry.StatusSuccess

	worsening := DetectFlaky(runsFor("api", "test", S, S, S, S, S, F, F, F, F, S))
	require.Len(t, worsening, 1)
	assert.Equal(t, Worsening, worsening[0].Trend)

	improving := DetectFlaky(runsFor("api", "test", F, F, F, F, S, S, S, S, S, S))
	require.Len(t, improving, 1)
	assert.Equal(t, Improving, improving[0].Trend)
}

func TestDetectFlaky_SortedByFailureRate(t *testing.T) {
	F, S := telemetry.StatusFailed, telemetry.StatusSuccess
	runs := runsFor("api", "test-low", F, S, S, S)
	runs = append(runs, runsFor("web", "test-high", F, F, S)...)

	flaky := DetectFlaky(runs)

	require.Len(t, flaky, 2)
	assert.Equal(t, "test-high", flaky[0].JobName)
	assert.Equal(t, "test-low", flaky[1].JobName)
}

func TestDetectFlaky_SeparatesProjects(t *testing.T) {
	F, S := telemetry.StatusFailed, telemetry.StatusSuccess
	runs := runsFor("api", "test", F, S)
	runs = append(runs, runsFor("web", "test", F)...)

	assert.Empty(t, DetectFlaky(runs))
}
