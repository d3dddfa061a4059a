package models

import "time"

// DoraSnapshot is unique per (ProjectID, Period, PeriodStart). Durations are
// in seconds.
type DoraSnapshot struct {
	ProjectID             int64     `json:"project_id"`
	ProjectName           string    `json:"project_name"`
	Period                string    `json:"period"`
	PeriodStart           time.Time `json:"period_start"`
	PeriodEnd             time.Time `json:"period_end"`
	DeploymentCount       int       `json:"deployment_count"`
	DeploymentFrequency   float64   `json:"deployment_frequency"`
	AvgLeadTime           float64   `json:"avg_lead_time"`
	MedianLeadTime        float64   `json:"median_lead_time"`
	IncidentCount         int       `json:"incident_count"`
	AvgMTTR               float64   `json:"avg_mttr"`
	FailedDeploymentCount int       `json:"failed_deployment_count"`
	ChangeFailureRate     float64   `json:"change_failure_rate"`
	CalculatedAt          time.Time `json:"calculated_at"`
}

// TrendPoint is one generic time-series sample.
type TrendPoint struct {
	ID         string         `json:"id"`
	MetricName string         `json:"metric_name"`
	ProjectID  *int64         `json:"project_id,omitempty"`
	Value      float64        `json:"value"`
	Timestamp  time.Time      `json:"timestamp"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}
