// Package api exposes the analytics engine over a thin JSON HTTP surface.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nadmax/pipepulse/internal/bus"
	"github.com/nadmax/pipepulse/internal/dashboard"
	"github.com/nadmax/pipepulse/internal/dora"
	"github.com/nadmax/pipepulse/internal/httputil"
	"github.com/nadmax/pipepulse/internal/insights"
	"github.com/nadmax/pipepulse/internal/ledger"
	"github.com/nadmax/pipepulse/internal/repository"
	"github.com/nadmax/pipepulse/internal/trend"
)

const (
	defaultDoraPeriod = "monthly"
	defaultDoraWindow = 30 * 24 * time.Hour
)

// Publisher forwards ingested events to the worker.
type Publisher interface {
	Publish(subject string, evt bus.Event) error
}

type Deps struct {
	Engine    *insights.Engine
	Dora      *dora.Calculator
	Trends    *trend.Recorder
	Ledger    *ledger.Ledger
	Dashboard *dashboard.Service
	Publisher Publisher
	Subject   string
}

type API struct {
	deps Deps
	mux  *http.ServeMux
	now  func() time.Time
}

type CalculateRequest struct {
	ProjectName string     `json:"project_name"`
	Start       *time.Time `json:"start"`
	End         *time.Time `json:"end"`
	Period      string     `json:"period"`
}

type ResolveRequest struct {
	RootCause string `json:"root_cause"`
}

func NewAPI(deps Deps) *API {
	if deps.Subject == "" {
		deps.Subject = bus.DefaultSubject
	}

	api := &API{
		deps: deps,
		mux:  http.NewServeMux(),
		now:  time.Now,
	}

	api.setupRoutes()
	return api
}

func (a *API) setupRoutes() {
	a.mux.HandleFunc("GET /api/insights/summary", a.handleInsightsSummary)
	a.mux.HandleFunc("GET /api/insights/failures", a.handleFailures)
	a.mux.HandleFunc("GET /api/insights/flaky", a.handleFlaky)
	a.mux.HandleFunc("GET /api/insights/bottlenecks", a.handleBottlenecks)
	a.mux.HandleFunc("GET /api/insights/deployments", a.handleDeployments)

	a.mux.HandleFunc("GET /api/dora/summary", a.handleDoraSummary)
	a.mux.HandleFunc("POST /api/dora/{projectID}/calculate", a.handleDoraCalculate)

	a.mux.HandleFunc("GET /api/trends/{metric}", a.handleTrend)

	a.mux.HandleFunc("POST /api/incidents", a.handleCreateIncident)
	a.mux.HandleFunc("POST /api/incidents/{id}/resolve", a.handleResolveIncident)

	a.mux.HandleFunc("POST /api/events", a.handlePublishEvent)

	a.mux.HandleFunc("GET /api/dashboard", a.deps.Dashboard.GetDashboard)
	a.mux.HandleFunc("POST /api/dashboard/refresh", a.deps.Dashboard.RefreshDashboard)
	a.mux.HandleFunc("DELETE /api/dashboard/cache", a.deps.Dashboard.InvalidateDashboard)
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mux.ServeHTTP(w, r)
}

func (a *API) handleInsightsSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := a.deps.Engine.GetInsightsSummary(r.Context(), httputil.DaysParam(r))
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, summary)
}

func (a *API) handleFailures(w http.ResponseWriter, r *http.Request) {
	analysis, err := a.deps.Engine.GetFailureAnalysis(r.Context(), httputil.DaysParam(r))
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, analysis)
}

func (a *API) handleFlaky(w http.ResponseWriter, r *http.Request) {
	flaky, err := a.deps.Engine.GetFlakyTests(r.Context(), httputil.DaysParam(r))
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, flaky)
}

func (a *API) handleBottlenecks(w http.ResponseWriter, r *http.Request) {
	bottlenecks, err := a.deps.Engine.GetPerformanceBottlenecks(r.Context(), httputil.DaysParam(r))
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, bottlenecks)
}

func (a *API) handleDeployments(w http.ResponseWriter, r *http.Request) {
	freq, err := a.deps.Engine.GetDeploymentFrequency(r.Context(), httputil.DaysParam(r))
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, freq)
}

func parseProjectIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, nil
}

func (a *API) handleDoraSummary(w http.ResponseWriter, r *http.Request) {
	ids, err := parseProjectIDs(r.URL.Query().Get("projects"))
	if err != nil {
		httputil.WriteJSONError(w, "Invalid project id", http.StatusBadRequest)
		return
	}

	period := r.URL.Query().Get("period")
	if period == "" {
		period = defaultDoraPeriod
	}

	summary, err := a.deps.Dora.Summary(r.Context(), ids, period)
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, summary)
}

func decodeBody(r *http.Request, dest any) error {
	defer func() {
		if err := r.Body.Close(); err != nil {
			log.Printf("failed to close request body: %v", err)
		}
	}()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}

	return json.Unmarshal(body, dest)
}

func (a *API) handleDoraCalculate(w http.ResponseWriter, r *http.Request) {
	projectID, err := strconv.ParseInt(r.PathValue("projectID"), 10, 64)
	if err != nil {
		httputil.WriteJSONError(w, "Invalid project id", http.StatusBadRequest)
		return
	}

	var req CalculateRequest
	if err := decodeBody(r, &req); err != nil {
		httputil.WriteJSONError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	end := a.now()
	if req.End != nil {
		end = *req.End
	}
	start := end.Add(-defaultDoraWindow)
	if req.Start != nil {
		start = *req.Start
	}
	if req.Period == "" {
		req.Period = defaultDoraPeriod
	}

	report, err := a.deps.Dora.Calculate(r.Context(), projectID, req.ProjectName, start, end, req.Period)
	if errors.Is(err, dora.ErrInvalidPeriod) {
		httputil.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, report)
}

func (a *API) handleTrend(w http.ResponseWriter, r *http.Request) {
	metric := r.PathValue("metric")

	var projectID *int64
	if raw := r.URL.Query().Get("project"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httputil.WriteJSONError(w, "Invalid project id", http.StatusBadRequest)
			return
		}
		projectID = &id
	}

	httputil.WriteJSON(w, http.StatusOK, a.deps.Trends.Analyze(r.Context(), metric, projectID, httputil.DaysParam(r)))
}

func (a *API) handleCreateIncident(w http.ResponseWriter, r *http.Request) {
	var req ledger.IncidentInput
	if err := decodeBody(r, &req); err != nil {
		httputil.WriteJSONError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	incident, err := a.deps.Ledger.RecordIncident(r.Context(), req)
	if errors.Is(err, ledger.ErrInvalidIncident) {
		httputil.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	a.invalidateDashboard(r)
	httputil.WriteJSON(w, http.StatusCreated, incident)
}

func (a *API) handleResolveIncident(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if err := decodeBody(r, &req); err != nil {
		httputil.WriteJSONError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	incident, err := a.deps.Ledger.ResolveIncident(r.Context(), r.PathValue("id"), req.RootCause)
	if errors.Is(err, repository.ErrIncidentNotFound) {
		httputil.WriteJSONError(w, "Incident not found", http.StatusNotFound)
		return
	}
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	a.invalidateDashboard(r)
	httputil.WriteJSON(w, http.StatusOK, incident)
}

// invalidateDashboard drops the cached snapshot after a ledger mutation.
func (a *API) invalidateDashboard(r *http.Request) {
	if err := a.deps.Dashboard.Invalidate(r.Context()); err != nil {
		log.Printf("Failed to invalidate dashboard cache: %v", err)
	}
}

func (a *API) handlePublishEvent(w http.ResponseWriter, r *http.Request) {
	if a.deps.Publisher == nil {
		httputil.WriteJSONError(w, "Event ingestion disabled", http.StatusServiceUnavailable)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteJSONError(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	defer func() {
		if err := r.Body.Close(); err != nil {
			log.Printf("failed to close request body: %v", err)
		}
	}()

	evt, err := bus.Decode(body)
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := a.deps.Publisher.Publish(a.deps.Subject, evt); err != nil {
		log.Printf("Failed to publish %s event: %v", evt.Type, err)
		httputil.WriteJSONError(w, "Failed to publish event", http.StatusBadGateway)
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
