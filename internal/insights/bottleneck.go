package insights

import "sort"

const (
	bottleneckMinSamples   = 3
	bottleneckRecentSample = 10
	defaultMaxBottlenecks  = 20
)

// DurationSample is one observed job duration in seconds.
type DurationSample struct {
	ProjectName string
	Stage       string
	JobName     string
	Duration    float64
}

type Bottleneck struct {
	ProjectName string  `json:"project_name"`
	Stage       string  `json:"stage"`
	JobName     string  `json:"job_name"`
	AvgDuration float64 `json:"avg_duration"`
	MinDuration float64 `json:"min_duration"`
	MaxDuration float64 `json:"max_duration"`
	TotalRuns   int     `json:"total_runs"`
	Trend       Trend   `json:"trend"`
}

type stageKey struct {
	Project string
	Stage   string
	Job     string
}

type stageDurationAggregate struct {
	key       stageKey
	durations []float64
	recent    []float64
}

// ProfileDurations ranks (project, stage, job) triples by average duration.
// The "recent" sub-sample is the first ten durations in insertion order.
func ProfileDurations(samples []DurationSample, limit int) []Bottleneck {
	if limit <= 0 {
		limit = defaultMaxBottlenecks
	}

	index := make(map[stageKey]*stageDurationAggregate)
	var order []*stageDurationAggregate

	for _, s := range samples {
		if s.Duration <= 0 {
			continue
		}

		key := stageKey{Project: s.ProjectName, Stage: s.Stage, Job: s.JobName}
		agg, ok := index[key]
		if !ok {
			agg = &stageDurationAggregate{key: key}
			index[key] = agg
			order = append(order, agg)
		}

		agg.durations = append(agg.durations, s.Duration)
		if len(agg.recent) < bottleneckRecentSample {
			agg.recent = append(agg.recent, s.Duration)
		}
	}

	bottlenecks := []Bottleneck{}
	for _, agg := range order {
		if len(agg.durations) < bottleneckMinSamples {
			continue
		}

		minD, maxD := agg.durations[0], agg.durations[0]
		for _, d := range agg.durations {
			minD = min(minD, d)
			maxD = max(maxD, d)
		}

		bottlenecks = append(bottlenecks, Bottleneck{
			ProjectName: agg.key.Project,
			Stage:       agg.key.Stage,
			JobName:     agg.key.Job,
			AvgDuration: average(agg.durations),
			MinDuration: minD,
			MaxDuration: maxD,
			TotalRuns:   len(agg.durations),
			Trend:       durationTrend(agg),
		})
	}

	sort.SliceStable(bottlenecks, func(i, j int) bool { return bottlenecks[i].AvgDuration > bottlenecks[j].AvgDuration })
	if len(bottlenecks) > limit {
		bottlenecks = bottlenecks[:limit]
	}

	return bottlenecks
}

func durationTrend(agg *stageDurationAggregate) Trend {
	if len(agg.recent) < bottleneckMinSamples {
		return Steady
	}

	older := agg.durations[len(agg.recent):]
	if len(older) == 0 {
		return Steady
	}

	recentAvg := average(agg.recent)
	olderAvg := average(older)

	switch {
	case recentAvg < olderAvg*0.9:
		return Improving
	case recentAvg > olderAvg*1.1:
		return Worsening
	default:
		return Steady
	}
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	var sum float64
	for _, v := range values {
		sum += v
	}

	return sum / float64(len(values))
}
