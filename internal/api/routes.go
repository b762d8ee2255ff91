package api

import "net/http"

// RegisterRoutes registers all API routes on the given mux. Metrics and
// middleware are layered on by the server assembly.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Health endpoints
	mux.HandleFunc("GET /health/live", h.HealthLive)
	mux.HandleFunc("GET /health/ready", h.HealthReady)

	// Query loop endpoints
	mux.HandleFunc("POST /v1/solve-context", h.PrepareSolveContext)
	mux.HandleFunc("POST /v1/cheatsheet", h.UpdateCheatsheet)
	mux.HandleFunc("POST /v1/solve", h.Solve)

	// Session administration
	mux.HandleFunc("GET /v1/sessions", h.ListSessions)
	mux.HandleFunc("DELETE /v1/sessions/{id}", h.DeleteSession)
}
