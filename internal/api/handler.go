// Package api provides the HTTP JSON surface of the cheatsheet service:
// context preparation, cheatsheet updates, server-side solve, and session
// administration.
package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/OneChainTech/dynamic-cheatsheet/internal/config"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/session"
	svcerrors "github.com/OneChainTech/dynamic-cheatsheet/pkg/errors"
)

// Handler handles HTTP requests for the cheatsheet service.
type Handler struct {
	sessions *session.Manager
	logger   *slog.Logger
	status   func() config.Status
}

// HandlerOption configures optional Handler collaborators.
type HandlerOption func(*Handler)

// WithConfigStatus makes the readiness endpoint report configuration
// provenance.
func WithConfigStatus(fn func() config.Status) HandlerOption {
	return func(h *Handler) { h.status = fn }
}

// NewHandler creates a new API handler.
func NewHandler(sessions *session.Manager, logger *slog.Logger, opts ...HandlerOption) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{sessions: sessions, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type solveContextRequest struct {
	SessionID string `json:"session_id"`
}

// PrepareSolveContext handles POST /v1/solve-context. An empty body or
// session id targets the default session.
func (h *Handler) PrepareSolveContext(w http.ResponseWriter, r *http.Request) {
	var req solveContextRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.sessions.PrepareSolveContext(r.Context(), req.SessionID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

type updateRequest struct {
	SessionID   string `json:"session_id"`
	Question    string `json:"question"`
	ModelOutput string `json:"model_output"`
}

// UpdateCheatsheet handles POST /v1/cheatsheet.
func (h *Handler) UpdateCheatsheet(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		h.writeError(w, svcerrors.NewInvalidRequestError("", "question is required"))
		return
	}
	if strings.TrimSpace(req.ModelOutput) == "" {
		h.writeError(w, svcerrors.NewInvalidRequestError("", "model_output is required"))
		return
	}

	res, err := h.sessions.UpdateCheatsheet(r.Context(), req.SessionID, req.Question, req.ModelOutput)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

type solveRequest struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
}

// Solve handles POST /v1/solve, the full server-side query round.
func (h *Handler) Solve(w http.ResponseWriter, r *http.Request) {
	var req solveRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.sessions.Solve(r.Context(), req.SessionID, req.Question)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

type sessionsResponse struct {
	Sessions []session.Info `json:"sessions"`
	Count    int            `json:"count"`
}

// ListSessions handles GET /v1/sessions.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	infos, err := h.sessions.List(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sessionsResponse{Sessions: infos, Count: len(infos)})
}

// DeleteSession handles DELETE /v1/sessions/{id}.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HealthLive handles GET /health/live.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type readyResponse struct {
	Status string         `json:"status"`
	Error  string         `json:"error,omitempty"`
	Config *config.Status `json:"config,omitempty"`
}

// HealthReady handles GET /health/ready. Readiness requires a reachable
// memory store.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Ping(r.Context()); err != nil {
		h.logger.Warn("readiness probe failed", "error", err)
		h.writeJSON(w, http.StatusServiceUnavailable, readyResponse{
			Status: "unavailable",
			Error:  err.Error(),
		})
		return
	}

	resp := readyResponse{Status: "ok"}
	if h.status != nil {
		status := h.status()
		resp.Config = &status
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// decode reads the JSON request body into v. An empty body leaves v at its
// zero value so optional-field endpoints accept bare POSTs.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, svcerrors.NewInvalidRequestError("", "failed to read request body"))
		return false
	}
	defer r.Body.Close()

	if len(body) == 0 {
		return true
	}
	if err := json.Unmarshal(body, v); err != nil {
		h.writeError(w, svcerrors.NewInvalidRequestError("", "invalid JSON: "+err.Error()))
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("response encode failed", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var se *svcerrors.ServiceError
	if !errors.As(err, &se) {
		se = svcerrors.NewInternalError("internal error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(se.HTTPStatusCode())
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error: ErrorDetail{
			Message: se.Message,
			Type:    se.Type,
		},
	})
}
