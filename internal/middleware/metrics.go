// Package middleware provides HTTP middleware for metrics collection.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nadmax/pipepulse/internal/metrics"
)

var recordHTTPRequest = metrics.RecordHTTPRequest

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		endpoint := normalizeEndpoint(r.URL.Path)
		status := strconv.Itoa(wrapped.statusCode)

		recordHTTPRequest(r.Method, endpoint, status, duration)
	})
}

// normalizeEndpoint collapses path parameters so the endpoint label stays
// low-cardinality.
func normalizeEndpoint(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/dora/") && strings.HasSuffix(path, "/calculate"):
		return "/api/dora/:projectID/calculate"
	case strings.HasPrefix(path, "/api/incidents/") && strings.HasSuffix(path, "/resolve"):
		return "/api/incidents/:id/resolve"
	case strings.HasPrefix(path, "/api/trends/") && !strings.Contains(path[len("/api/trends/"):], "/"):
		return "/api/trends/:metric"
	default:
		return path
	}
}
