// Package mocks provides an in-memory telemetry.Source for tests.
package mocks

import (
	"context"
	"sync"

	"github.com/nadmax/pipepulse/internal/telemetry"
)

type MockSource struct {
	mu             sync.Mutex
	Projects       []telemetry.Project
	Pipelines      map[int64][]telemetry.Pipeline
	Jobs           map[int64][]telemetry.Job
	Traces         map[int64]string
	Runners        []telemetry.Runner
	ProjectsError  error
	PipelinesError map[int64]error
	JobsError      map[int64]error
	TraceError     map[int64]error
	RunnersError   error
	PipelineCalls  int
	JobCalls       int
	TraceCalls     int
}

var _ telemetry.Source = (*MockSource)(nil)

func NewMockSource() *MockSource {
	return &MockSource{
		Pipelines:      make(map[int64][]telemetry.Pipeline),
		Jobs:           make(map[int64][]telemetry.Job),
		Traces:         make(map[int64]string),
		PipelinesError: make(map[int64]error),
		JobsError:      make(map[int64]error),
		TraceError:     make(map[int64]error),
	}
}

func (m *MockSource) AddProject(p telemetry.Project) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Projects = append(m.Projects, p)
}

func (m *MockSource) AddPipeline(p telemetry.Pipeline, jobs ...telemetry.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Pipelines[p.ProjectID] = append(m.Pipelines[p.ProjectID], p)
	for _, j := range jobs {
		j.PipelineID = p.ID
		m.Jobs[p.ID] = append(m.Jobs[p.ID], j)
	}
}

func (m *MockSource) ListProjects(ctx context.Context) ([]telemetry.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ProjectsError != nil {
		return nil, m.ProjectsError
	}

	return append([]telemetry.Project(nil), m.Projects...), nil
}

func (m *MockSource) ListPipelines(ctx context.Context, projectID int64, page, perPage int) ([]telemetry.Pipeline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.PipelineCalls++
	if err := m.PipelinesError[projectID]; err != nil {
		return nil, err
	}

	all := m.Pipelines[projectID]
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		return append([]telemetry.Pipeline(nil), all...), nil
	}
	start := (page - 1) * perPage
	if start >= len(all) {
		return []telemetry.Pipeline{}, nil
	}
	end := min(start+perPage, len(all))

	return append([]telemetry.Pipeline(nil), all[start:end]...), nil
}

func (m *MockSource) ListJobs(ctx context.Context, projectID, pipelineID int64) ([]telemetry.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.JobCalls++
	if err := m.JobsError[pipelineID]; err != nil {
		return nil, err
	}

	return append([]telemetry.Job(nil), m.Jobs[pipelineID]...), nil
}

func (m *MockSource) GetJobTrace(ctx context.Context, projectID, jobID int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TraceCalls++
	if err := m.TraceError[jobID]; err != nil {
		return "", err
	}

	return m.Traces[jobID], nil
}

func (m *MockSource) ListRunners(ctx context.Context) ([]telemetry.Runner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.RunnersError != nil {
		return nil, m.RunnersError
	}

	return append([]telemetry.Runner(nil), m.Runners...), nil
}
