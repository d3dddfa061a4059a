// Package mocks provides an in-memory repository.Store for tests.
package mocks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nadmax/pipepulse/internal/repository"
	"github.com/nadmax/pipepulse/internal/repository/models"
)

type doraKey struct {
	projectID   int64
	period      string
	periodStart int64
}

type MockPostgresRepository struct {
	mu                   sync.Mutex
	Deployments          []models.Deployment
	Incidents            map[string]*models.Incident
	Snapshots            map[doraKey]models.DoraSnapshot
	TrendPoints          []models.TrendPoint
	SaveDeploymentCalls  int
	SaveIncidentCalls    int
	ResolveIncidentCalls int
	UpsertSnapshotCalls  int
	SaveTrendPointCalls  int
	SaveDeploymentError  error
	ListDeploymentsError error
	SaveIncidentError    error
	GetIncidentError     error
	ResolveIncidentError error
	ListIncidentsError   error
	UpsertSnapshotError  error
	LatestSnapshotError  error
	SaveTrendPointError  error
	ListTrendPointsError error
}

var _ repository.Store = (*MockPostgresRepository)(nil)

func NewMockPostgresRepository() *MockPostgresRepository {
	return &MockPostgresRepository{
		Incidents: make(map[string]*models.Incident),
		Snapshots: make(map[doraKey]models.DoraSnapshot),
	}
}

func (m *MockPostgresRepository) SaveDeployment(ctx context.Context, d *models.Deployment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SaveDeploymentCalls++
	if m.SaveDeploymentError != nil {
		return m.SaveDeploymentError
	}

	m.Deployments = append(m.Deployments, *d)
	return nil
}

func (m *MockPostgresRepository) ListDeployments(ctx context.Context, f repository.DeploymentFilter) ([]models.Deployment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ListDeploymentsError != nil {
		return nil, m.ListDeploymentsError
	}

	var out []models.Deployment
	for _, d := range m.Deployments {
		if d.ProjectID != f.ProjectID {
			continue
		}
		if f.Environment != "" && d.Environment != f.Environment {
			continue
		}
		if d.StartedAt.Before(f.Start) || d.StartedAt.After(f.End) {
			continue
		}
		out = append(out, d)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (m *MockPostgresRepository) SaveIncident(ctx context.Context, i *models.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SaveIncidentCalls++
	if m.SaveIncidentError != nil {
		return m.SaveIncidentError
	}

	incidentCopy := *i
	m.Incidents[i.ID] = &incidentCopy
	return nil
}

func (m *MockPostgresRepository) GetIncident(ctx context.Context, id string) (*models.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.GetIncidentError != nil {
		return nil, m.GetIncidentError
	}

	i, exists := m.Incidents[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", repository.ErrIncidentNotFound, id)
	}

	incidentCopy := *i
	return &incidentCopy, nil
}

func (m *MockPostgresRepository) ResolveIncident(ctx context.Context, id string, resolvedAt time.Time, duration int, rootCause string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ResolveIncidentCalls++
	if m.ResolveIncidentError != nil {
		return m.ResolveIncidentError
	}

	i, exists := m.Incidents[id]
	if !exists {
		return fmt.Errorf("%w: %s", repository.ErrIncidentNotFound, id)
	}

	i.Status = models.IncidentResolved
	i.ResolvedAt = &resolvedAt
	i.Duration = &duration
	if rootCause != "" {
		i.RootCause = rootCause
	}

	return nil
}

func (m *MockPostgresRepository) ListIncidents(ctx context.Context, f repository.IncidentFilter) ([]models.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ListIncidentsError != nil {
		return nil, m.ListIncidentsError
	}

	var out []models.Incident
	for _, i := range m.Incidents {
		if i.ProjectID != f.ProjectID {
			continue
		}
		if f.Environment != "" && i.AffectedEnv != f.Environment {
			continue
		}
		if i.DetectedAt.Before(f.Start) || i.DetectedAt.After(f.End) {
			continue
		}
		out = append(out, *i)
	}

	sort.SliceStable(out, func(a, b int) bool { return out[a].DetectedAt.Before(out[b].DetectedAt) })
	return out, nil
}

func (m *MockPostgresRepository) UpsertDoraSnapshot(ctx context.Context, s *models.DoraSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.UpsertSnapshotCalls++
	if m.UpsertSnapshotError != nil {
		return m.UpsertSnapshotError
	}

	m.Snapshots[doraKey{s.ProjectID, s.Period, s.PeriodStart.UnixNano()}] = *s
	return nil
}

func (m *MockPostgresRepository) LatestDoraSnapshot(ctx context.Context, projectID int64, period string) (*models.DoraSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.LatestSnapshotError != nil {
		return nil, m.LatestSnapshotError
	}

	var latest *models.DoraSnapshot
	for k, s := range m.Snapshots {
		if k.projectID != projectID || k.period != period {
			continue
		}
		if latest == nil || s.PeriodStart.After(latest.PeriodStart) {
			snapshot := s
			latest = &snapshot
		}
	}

	if latest == nil {
		return nil, repository.ErrSnapshotNotFound
	}

	return latest, nil
}

func (m *MockPostgresRepository) SaveTrendPoint(ctx context.Context, p *models.TrendPoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SaveTrendPointCalls++
	if m.SaveTrendPointError != nil {
		return m.SaveTrendPointError
	}

	m.TrendPoints = append(m.TrendPoints, *p)
	return nil
}

func (m *MockPostgresRepository) ListTrendPoints(ctx context.Context, f repository.TrendFilter) ([]models.TrendPoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ListTrendPointsError != nil {
		return nil, m.ListTrendPointsError
	}

	var out []models.TrendPoint
	for _, p := range m.TrendPoints {
		if p.MetricName != f.Metric || p.Timestamp.Before(f.Since) {
			continue
		}
		if f.ProjectID != nil && (p.ProjectID == nil || *p.ProjectID != *f.ProjectID) {
			continue
		}
		out = append(out, p)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *MockPostgresRepository) Close() error {
	return nil
}

func (m *MockPostgresRepository) SnapshotCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.Snapshots)
}

func (m *MockPostgresRepository) DeploymentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.Deployments)
}

func (m *MockPostgresRepository) TrendPointsFor(metric string) []models.TrendPoint {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.TrendPoint
	for _, p := range m.TrendPoints {
		if p.MetricName == metric {
			out = append(out, p)
		}
	}

	return out
}
