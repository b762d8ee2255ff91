package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush implements http.Flusher for the SSE endpoint.
func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Middleware returns an HTTP middleware that records request count and
// latency per route.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(recorder, r)

		route := normalizeRoute(r.URL.Path)
		status := strconv.Itoa(recorder.statusCode)
		HTTPRequestsTotal.WithLabelValues(route, r.Method, status).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// normalizeRoute collapses path parameters so label cardinality stays
// bounded. Session IDs are caller-chosen strings and must not become
// distinct label values.
func normalizeRoute(path string) string {
	if rest, ok := strings.CutPrefix(path, "/v1/sessions/"); ok && rest != "" {
		return "/v1/sessions/:id"
	}
	switch path {
	case "/v1/solve-context", "/v1/cheatsheet", "/v1/solve", "/v1/sessions",
		"/health/live", "/health/ready", "/metrics":
		return path
	}
	return "other"
}
