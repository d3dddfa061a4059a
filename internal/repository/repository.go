// Package repository declares the persistence ports used by the ledger, the
// DORA calculator and the trend recorder.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/nadmax/pipepulse/internal/repository/models"
)

var (
	ErrIncidentNotFound = errors.New("incident not found")
	ErrSnapshotNotFound = errors.New("dora snapshot not found")
)

type DeploymentFilter struct {
	ProjectID   int64
	Environment string
	Start       time.Time
	End         time.Time
}

type IncidentFilter struct {
	ProjectID   int64
	Environment string
	Start       time.Time
	End         time.Time
}

type TrendFilter struct {
	Metric    string
	ProjectID *int64
	Since     time.Time
}

type LedgerStore interface {
	SaveDeployment(ctx context.Context, d *models.Deployment) error
	ListDeployments(ctx context.Context, f DeploymentFilter) ([]models.Deployment, error)
	SaveIncident(ctx context.Context, i *models.Incident) error
	GetIncident(ctx context.Context, id string) (*models.Incident, error)
	ResolveIncident(ctx context.Context, id string, resolvedAt time.Time, duration int, rootCause string) error
	ListIncidents(ctx context.Context, f IncidentFilter) ([]models.Incident, error)
}

type DoraStore interface {
	UpsertDoraSnapshot(ctx context.Context, s *models.DoraSnapshot) error
	LatestDoraSnapshot(ctx context.Context, projectID int64, period string) (*models.DoraSnapshot, error)
}

type TrendStore interface {
	SaveTrendPoint(ctx context.Context, p *models.TrendPoint) error
	ListTrendPoints(ctx context.Context, f TrendFilter) ([]models.TrendPoint, error)
}

// Store is the full set of ports backed by a single relational database.
type Store interface {
	LedgerStore
	DoraStore
	TrendStore
	Close() error
}
