// Package gitlab implements telemetry.Source against the GitLab REST v4 API.
package gitlab

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nadmax/pipepulse/internal/telemetry"
)

const defaultBaseURL = "https://gitlab.com"

// Adapter implements telemetry.Source for GitLab CI.
type Adapter struct {
	token   string
	baseURL string
	client  *http.Client
}

var _ telemetry.Source = (*Adapter)(nil)

// NewAdapter creates a GitLab adapter. baseURL can point to a self-hosted
// instance; pass an empty string for gitlab.com.
func NewAdapter(token, baseURL string) *Adapter {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Adapter{
		token:   token,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (a *Adapter) ListProjects(ctx context.Context) ([]telemetry.Project, error) {
	apiURL := fmt.Sprintf("%s/api/v4/projects?membership=true&order_by=last_activity_at&per_page=100", a.baseURL)

	var projects []telemetry.Project
	if err := a.get(ctx, apiURL, &projects); err != nil {
		return nil, err
	}

	return projects, nil
}

func (a *Adapter) ListPipelines(ctx context.Context, projectID int64, page, perPage int) ([]telemetry.Pipeline, error) {
	apiURL := fmt.Sprintf("%s/api/v4/projects/%d/pipelines?page=%d&per_page=%d", a.baseURL, projectID, page, perPage)

	var raw []gitLabPipeline
	if err := a.get(ctx, apiURL, &raw); err != nil {
		return nil, err
	}

	pipelines := make([]telemetry.Pipeline, len(raw))
	for i, r := range raw {
		pipelines[i] = r.toPipeline(projectID)
	}

	return pipelines, nil
}

func (a *Adapter) ListJobs(ctx context.Context, projectID, pipelineID int64) ([]telemetry.Job, error) {
	apiURL := fmt.Sprintf("%s/api/v4/projects/%d/pipelines/%d/jobs?include_retried=true&per_page=100", a.baseURL, projectID, pipelineID)

	var raw []gitLabJob
	if err := a.get(ctx, apiURL, &raw); err != nil {
		return nil, err
	}

	jobs := make([]telemetry.Job, len(raw))
	for i, j := range raw {
		jobs[i] = j.toJob(pipelineID)
	}

	return jobs, nil
}

// GetJobTrace returns the full raw log of a job.
func (a *Adapter) GetJobTrace(ctx context.Context, projectID, jobID int64) (string, error) {
	apiURL := fmt.Sprintf("%s/api/v4/projects/%d/jobs/%d/trace", a.baseURL, projectID, jobID)

	resp, err := a.do(ctx, apiURL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading trace response: %w", err)
	}

	return string(b), nil
}

func (a *Adapter) ListRunners(ctx context.Context) ([]telemetry.Runner, error) {
	apiURL := fmt.Sprintf("%s/api/v4/runners?per_page=100", a.baseURL)

	var runners []telemetry.Runner
	if err := a.get(ctx, apiURL, &runners); err != nil {
		return nil, err
	}

	return runners, nil
}

func (a *Adapter) get(ctx context.Context, apiURL string, target any) error {
	resp, err := a.do(ctx, apiURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	return nil
}

func (a *Adapter) do(ctx context.Context, apiURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.token)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		resp.Body.Close()
		return nil, fmt.Errorf("gitlab API error: %s: %w", resp.Status, telemetry.ErrUnauthorized)
	case resp.StatusCode == http.StatusTooManyRequests:
		resp.Body.Close()
		return nil, fmt.Errorf("gitlab API error: %s: %w", resp.Status, telemetry.ErrRateLimited)
	case resp.StatusCode >= 400:
		resp.Body.Close()
		return nil, fmt.Errorf("gitlab API error: %s", resp.Status)
	}

	return resp, nil
}

type gitLabPipeline struct {
	ID         int64      `json:"id"`
	Ref        string     `json:"ref"`
	SHA        string     `json:"sha"`
	Status     string     `json:"status"`
	Source     string     `json:"source"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	StartedAt  *time.Time `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
	Duration   *int       `json:"duration"`
	User       *struct {
		Username string `json:"username"`
	} `json:"user"`
}

func (r gitLabPipeline) toPipeline(projectID int64) telemetry.Pipeline {
	p := telemetry.Pipeline{
		ID:         r.ID,
		ProjectID:  projectID,
		Status:     telemetry.Status(r.Status),
		Ref:        r.Ref,
		SHA:        r.SHA,
		Source:     r.Source,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}

	// The list endpoint omits duration; fall back to the update stamp.
	switch {
	case r.Duration != nil:
		p.Duration = *r.Duration
	case r.StartedAt != nil && r.FinishedAt != nil:
		p.Duration = int(r.FinishedAt.Sub(*r.StartedAt).Seconds())
	case !r.CreatedAt.IsZero() && !r.UpdatedAt.IsZero():
		p.Duration = int(r.UpdatedAt.Sub(r.CreatedAt).Seconds())
	}

	if r.User != nil {
		p.User = r.User.Username
	}

	return p
}

type gitLabJob struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	Stage      string     `json:"stage"`
	Status     string     `json:"status"`
	Ref        string     `json:"ref"`
	Duration   *float64   `json:"duration"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
}

func (j gitLabJob) toJob(pipelineID int64) telemetry.Job {
	job := telemetry.Job{
		ID:         j.ID,
		PipelineID: pipelineID,
		Name:       j.Name,
		Stage:      j.Stage,
		Status:     telemetry.Status(j.Status),
		Ref:        j.Ref,
		CreatedAt:  j.CreatedAt,
		StartedAt:  j.StartedAt,
		FinishedAt: j.FinishedAt,
		HasTrace:   j.StartedAt != nil,
	}

	if j.Duration != nil {
		job.Duration = *j.Duration
	} else if j.StartedAt != nil && j.FinishedAt != nil {
		job.Duration = j.FinishedAt.Sub(*j.StartedAt).Seconds()
	}

	return job
}
