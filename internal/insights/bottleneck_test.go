package insights

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplesFor(project, stage, job string, durations ...float64) []DurationSample {
	out := make([]DurationSample, 0, len(durations))
	for _, d := range durations {
		out = append(out, DurationSample{ProjectName: project, Stage: stage, JobName: job, Duration: d})
	}

	return out
}

func TestProfileDurations_Aggregates(t *testing.T) {
	samples := samplesFor("api", "build", "compile", 10, 20, 30)

	result := ProfileDurations(samples, 0)

	require.Len(t, result, 1)
	assert.Equal(t, "build", result[0].Stage)
	assert.Equal(t, 20.0, result[0].AvgDuration)
	assert.Equal(t, 10.0, result[0].MinDuration)
	assert.Equal(t, 30.0, result[0].MaxDuration)
	assert.Equal(t, 3, result[0].TotalRuns)
	assert.Equal(t, Steady, result[0].Trend)
}

func TestProfileDurations_IgnoresZeroDurationsAndSmallSamples(t *testing.T) {
	samples := samplesFor("api", "build", "compile", 10, 0, 20, -1)
	samples = append(samples, samplesFor("api", "test", "unit", 5)...)

	assert.Empty(t, ProfileDurations(samples, 0))
}

func TestProfileDurations_SortedAndLimited(t *testing.T) {
	var samples []DurationSample
	for i := 1; i <= 4; i++ {
		d := float64(i * 100)
		samples = append(samples, samplesFor("api", "stage", fmt.Sprintf("job-%d", i), d, d, d)...)
	}

	result := ProfileDurations(samples, 2)

	require.Len(t, result, 2)
	assert.Equal(t, "job-4", result[0].JobName)
	assert.Equal(t, "job-3", result[1].JobName)
}

func TestProfileDurations_TrendUsesFirstTenAsRecent(t *testing.T) {
	slow := make([]float64, 0, 15)
	for i := 0; i < 10; i++ {
		slow = append(slow, 200)
	}
	for i := 0; i < 5; i++ {
		slow = append(slow, 100)
	}

	result := ProfileDurations(samplesFor("api", "test", "e2e", slow...), 0)
	require.Len(t, result, 1)
	assert.Equal(t, Worsening, result[0].Trend)

	fast := make([]float64, 0, 15)
	for i := 0; i < 10; i++ {
		fast = append(fast, 50)
	}
	for i := 0; i < 5; i++ {
		fast = append(fast, 100)
	}

	result = ProfileDurations(samplesFor("api", "test", "e2e", fast...), 0)
	require.Len(t, result, 1)
	assert.Equal(t, Improving, result[0].Trend)
}
