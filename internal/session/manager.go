package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/OneChainTech/dynamic-cheatsheet/internal/archive"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/curator"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/generator"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/memory"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/metrics"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/observability"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/template"
	svcerrors "github.com/OneChainTech/dynamic-cheatsheet/pkg/errors"
)

// Pipeline bundles the prompt-dependent collaborators so a config reload
// can swap them atomically without disturbing session state.
type Pipeline struct {
	Templates *template.Set
	Generator *generator.Generator
	Curator   *curator.Curator

	// Provider is the model provider name, used in telemetry labels.
	Provider string
}

// Option configures optional Manager collaborators.
type Option func(*Manager)

// WithOTelMetrics attaches an OTLP metrics provider.
func WithOTelMetrics(p *observability.OTelMetricsProvider) Option {
	return func(m *Manager) { m.otelMetrics = p }
}

// WithOTelLogs attaches an OTLP log provider.
func WithOTelLogs(p *observability.OTelLogsProvider) Option {
	return func(m *Manager) { m.otelLogs = p }
}

// Archiver receives curation outcomes for cold storage.
type Archiver interface {
	Enqueue(rec archive.Record)
}

// WithArchiver attaches a snapshot archiver. Outcomes are enqueued after
// every curation round.
func WithArchiver(a Archiver) Option {
	return func(m *Manager) { m.archiver = a }
}

// Manager owns the session registry and runs the query loop against the
// store through the configured pipeline.
type Manager struct {
	store  memory.Store
	cfg    Config
	logger *slog.Logger
	tracer trace.Tracer

	pipeline atomic.Pointer[Pipeline]

	otelMetrics *observability.OTelMetricsProvider
	otelLogs    *observability.OTelLogsProvider
	archiver    Archiver

	// mu guards registry get-or-create; the registry itself is safe for
	// concurrent reads.
	mu       sync.Mutex
	registry *gocache.Cache
}

// NewManager builds a Manager over the given store and pipeline.
func NewManager(store memory.Store, pipe *Pipeline, cfg Config, logger *slog.Logger, opts ...Option) *Manager {
	if cfg.DefaultSession == "" {
		cfg.DefaultSession = DefaultConfig().DefaultSession
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultConfig().IdleTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		store:    store,
		cfg:      cfg,
		logger:   logger,
		tracer:   otel.Tracer(observability.TracerName),
		registry: gocache.New(cfg.IdleTTL, cfg.IdleTTL*2),
	}
	m.pipeline.Store(pipe)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetPipeline swaps the pipeline. In-flight operations finish on the one
// they started with; only new operations see the swap.
func (m *Manager) SetPipeline(p *Pipeline) {
	m.pipeline.Store(p)
}

func (m *Manager) currentPipeline() *Pipeline {
	return m.pipeline.Load()
}

// normalize maps an absent id onto the default session and validates the
// result.
func (m *Manager) normalize(sessionID string) (string, error) {
	if sessionID == "" {
		return m.cfg.DefaultSession, nil
	}
	if !ValidSessionID(sessionID) {
		return "", svcerrors.NewInvalidRequestError("", fmt.Sprintf("invalid session id %q", sessionID))
	}
	return sessionID, nil
}

// checkout returns the handle for a session id, creating and registering it
// on first use. Each checkout slides the idle TTL. A handle evicted while
// its operation is still running would fork the lock, so the TTL must stay
// far above any operation deadline.
func (m *Manager) checkout(sessionID string) *session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.registry.Get(sessionID); ok {
		s := v.(*session)
		m.registry.Set(sessionID, s, gocache.DefaultExpiration)
		return s
	}
	s := newSession(sessionID)
	m.registry.Set(sessionID, s, gocache.DefaultExpiration)
	metrics.SessionsActive.Set(float64(m.registry.ItemCount()))
	return s
}

// PrepareResult is the generation context handed to a client.
type PrepareResult struct {
	Cheatsheet        string `json:"cheatsheet"`
	GeneratorTemplate string `json:"generator_template"`
}

// PrepareSolveContext returns the session's current cheatsheet and the
// generator template, creating the session on first use. Every entry in the
// returned cheatsheet gets a usage bump. Allowed from Idle or
// AwaitingClientGeneration; a repeat call supersedes the earlier context.
func (m *Manager) PrepareSolveContext(ctx context.Context, sessionID string) (*PrepareResult, error) {
	id, err := m.normalize(sessionID)
	if err != nil {
		return nil, err
	}
	s := m.checkout(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.currentState()
	if prev != StateIdle && prev != StateAwaiting {
		return nil, svcerrors.NewSessionStateError(
			fmt.Sprintf("prepare_solve_context not allowed while session %q is %s", id, prev))
	}
	s.setState(StatePreparing)

	pipe := m.currentPipeline()
	start := time.Now()
	ctx, span := observability.StartSessionSpan(ctx, m.tracer, "prepare_solve_context", id)
	defer span.End()

	entries, err := m.store.List(ctx, id)
	if err != nil {
		s.setState(prev)
		observability.RecordError(span, err)
		m.observe(ctx, "prepare_solve_context", pipe, id, "error", start, 0, err)
		return nil, err
	}

	cheatsheet := memory.Render(entries)
	if len(entries) > 0 {
		sigs := make([]string, len(entries))
		for i, e := range entries {
			sigs[i] = e.Signature
		}
		// Usage tracking is advisory; a failed bump must not fail the call.
		if err := m.store.MarkUsed(ctx, id, sigs); err != nil {
			m.logger.Warn("usage tracking failed", "session_id", id, "error", err)
		}
	}

	s.setState(StateAwaiting)
	m.observe(ctx, "prepare_solve_context", pipe, id, StatusOK, start, len(entries), nil)
	m.logger.Info("prepared solve context",
		"session_id", id,
		"entries", len(entries),
		"cheatsheet_chars", len(cheatsheet))
	return &PrepareResult{
		Cheatsheet:        cheatsheet,
		GeneratorTemplate: pipe.Templates.Generator.Text(),
	}, nil
}

// UpdateResult reports one curation round.
type UpdateResult struct {
	Cheatsheet string               `json:"cheatsheet"`
	Status     string               `json:"status"`
	Warning    string               `json:"warning,omitempty"`
	Merge      *curator.MergeReport `json:"merge,omitempty"`

	// Locator is the store's address for this session, surfaced by the MCP
	// tool response rather than the HTTP one.
	Locator string `json:"-"`
}

// UpdateCheatsheet folds a completed transcript into the session's
// cheatsheet. It requires a prepared context. A curator response without a
// usable cheatsheet section degrades to status parse_error with the
// previous cheatsheet intact; an invocation failure keeps the context
// prepared so the client can retry.
func (m *Manager) UpdateCheatsheet(ctx context.Context, sessionID, question, modelOutput string) (*UpdateResult, error) {
	id, err := m.normalize(sessionID)
	if err != nil {
		return nil, err
	}
	s := m.checkout(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	if st := s.currentState(); st != StateAwaiting {
		return nil, svcerrors.NewSessionStateError(
			fmt.Sprintf("update_cheatsheet requires a prepared context; session %q is %s", id, st))
	}
	s.setState(StateCurating)

	pipe := m.currentPipeline()
	start := time.Now()
	ctx, span := observability.StartSessionSpan(ctx, m.tracer, "update_cheatsheet", id)
	defer span.End()

	queryID := uuid.NewString()
	res, err := pipe.Curator.Curate(ctx, id, queryID, question, modelOutput)
	if err != nil {
		observability.RecordError(span, err)
		if !svcerrors.IsCurationParse(err) {
			s.setState(StateAwaiting)
			m.observe(ctx, "update_cheatsheet", pipe, id, "error", start, 0, err)
			return nil, err
		}
		snapshot, snapErr := m.store.Snapshot(ctx, id)
		if snapErr != nil {
			s.setState(StateAwaiting)
			m.observe(ctx, "update_cheatsheet", pipe, id, "error", start, 0, snapErr)
			return nil, snapErr
		}
		s.setState(StateIdle)
		entryCount := len(memory.SplitBlocks(snapshot))
		m.observe(ctx, "update_cheatsheet", pipe, id, StatusParseError, start, entryCount, err)
		m.archiveOutcome(id, queryID, question, StatusParseError, nil, snapshot)
		return &UpdateResult{
			Cheatsheet: snapshot,
			Status:     StatusParseError,
			Warning:    err.Error(),
			Locator:    m.store.Locator(id),
		}, nil
	}

	s.setState(StateIdle)
	m.observe(ctx, "update_cheatsheet", pipe, id, StatusOK, start, res.Entries, nil)
	m.otelMetrics.RecordCuration(ctx, res.Report.Added, res.Report.Kept, res.Report.Superseded)
	m.archiveOutcome(id, queryID, question, StatusOK, &res.Report, res.Cheatsheet)
	m.logger.Info("cheatsheet updated",
		"session_id", id,
		"added", res.Report.Added,
		"kept", res.Report.Kept,
		"superseded", res.Report.Superseded,
		"entries", res.Entries)
	return &UpdateResult{
		Cheatsheet: res.Cheatsheet,
		Status:     StatusOK,
		Merge:      &res.Report,
		Locator:    m.store.Locator(id),
	}, nil
}

// SolveResult is one full server-side query round.
type SolveResult struct {
	FinalAnswer string               `json:"final_answer"`
	FinalOutput string               `json:"final_output"`
	Cheatsheet  string               `json:"cheatsheet"`
	Status      string               `json:"status"`
	Warning     string               `json:"warning,omitempty"`
	Merge       *curator.MergeReport `json:"merge,omitempty"`
}

// Solve runs the full loop under one session lock: prepare the context,
// generate server-side, curate the transcript. Soft failures, a missing
// answer marker or an unusable curator response, degrade the status instead
// of failing the call; the returned cheatsheet is the post-curation
// snapshot.
func (m *Manager) Solve(ctx context.Context, sessionID, question string) (*SolveResult, error) {
	id, err := m.normalize(sessionID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(question) == "" {
		return nil, svcerrors.NewInvalidRequestError("", "question must not be empty")
	}
	s := m.checkout(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.currentState()
	if prev != StateIdle && prev != StateAwaiting {
		return nil, svcerrors.NewSessionStateError(
			fmt.Sprintf("solve not allowed while session %q is %s", id, prev))
	}
	s.setState(StatePreparing)

	pipe := m.currentPipeline()
	start := time.Now()
	ctx, span := observability.StartSessionSpan(ctx, m.tracer, "solve", id)
	defer span.End()

	out, genErr := pipe.Generator.Generate(ctx, id, question)
	if genErr != nil && !svcerrors.IsAnswerExtraction(genErr) {
		s.setState(prev)
		observability.RecordError(span, genErr)
		m.observe(ctx, "solve", pipe, id, "error", start, 0, genErr)
		return nil, genErr
	}

	status := StatusOK
	var warnings []string
	if genErr != nil {
		status = StatusAnswerMissing
		warnings = append(warnings, genErr.Error())
	}

	s.setState(StateCurating)
	queryID := uuid.NewString()
	cres, curErr := pipe.Curator.Curate(ctx, id, queryID, question, out.FinalOutput)
	if curErr != nil && !svcerrors.IsCurationParse(curErr) {
		s.setState(prev)
		observability.RecordError(span, curErr)
		m.observe(ctx, "solve", pipe, id, "error", start, 0, curErr)
		return nil, curErr
	}

	var sheet string
	var merge *curator.MergeReport
	entryCount := 0
	if curErr != nil {
		observability.RecordError(span, curErr)
		status = StatusParseError
		warnings = append(warnings, curErr.Error())
		snapshot, snapErr := m.store.Snapshot(ctx, id)
		if snapErr != nil {
			s.setState(prev)
			m.observe(ctx, "solve", pipe, id, "error", start, 0, snapErr)
			return nil, snapErr
		}
		sheet = snapshot
		entryCount = len(memory.SplitBlocks(snapshot))
	} else {
		sheet = cres.Cheatsheet
		merge = &cres.Report
		entryCount = cres.Entries
		m.otelMetrics.RecordCuration(ctx, cres.Report.Added, cres.Report.Kept, cres.Report.Superseded)
	}

	s.setState(StateIdle)
	m.archiveOutcome(id, queryID, question, status, merge, sheet)
	softErr := curErr
	if softErr == nil {
		softErr = genErr
	}
	m.observe(ctx, "solve", pipe, id, status, start, entryCount, softErr)
	m.logger.Info("solve completed",
		"session_id", id,
		"status", status,
		"answer_chars", len(out.FinalAnswer),
		"entries", entryCount)
	return &SolveResult{
		FinalAnswer: out.FinalAnswer,
		FinalOutput: out.FinalOutput,
		Cheatsheet:  sheet,
		Status:      status,
		Warning:     strings.Join(warnings, "; "),
		Merge:       merge,
	}, nil
}

// Delete removes a session's stored entries and drops its registry handle.
// Unknown sessions return NotFoundError; deletion is the only terminal data
// removal.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	id, err := m.normalize(sessionID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	_, known := m.registry.Get(id)
	m.mu.Unlock()
	if !known {
		stored, err := m.storeHas(ctx, id)
		if err != nil {
			return err
		}
		if !stored {
			return svcerrors.NewNotFoundError(fmt.Sprintf("session %q not found", id))
		}
	}

	s := m.checkout(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	s.setState(StateIdle)

	m.mu.Lock()
	m.registry.Delete(id)
	metrics.SessionsActive.Set(float64(m.registry.ItemCount()))
	m.mu.Unlock()

	m.logger.Info("session deleted", "session_id", id)
	return nil
}

// Ping checks store connectivity for readiness probes.
func (m *Manager) Ping(ctx context.Context) error {
	return m.store.Ping(ctx)
}

func (m *Manager) storeHas(ctx context.Context, id string) (bool, error) {
	ids, err := m.store.Sessions(ctx)
	if err != nil {
		return false, err
	}
	for _, sid := range ids {
		if sid == id {
			return true, nil
		}
	}
	return false, nil
}

// Info describes one session for the admin surface.
type Info struct {
	ID      string `json:"id"`
	State   State  `json:"state"`
	Entries int    `json:"entries"`
	Locator string `json:"locator,omitempty"`
}

// List merges stored sessions with live registry handles, sorted by id.
// Sessions that were prepared but never curated appear with zero entries.
func (m *Manager) List(ctx context.Context) ([]Info, error) {
	stored, err := m.store.Sessions(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]*Info, len(stored))
	for _, id := range stored {
		seen[id] = &Info{ID: id, State: StateIdle, Locator: m.store.Locator(id)}
	}

	m.mu.Lock()
	for id, item := range m.registry.Items() {
		s, ok := item.Object.(*session)
		if !ok {
			continue
		}
		info, found := seen[id]
		if !found {
			info = &Info{ID: id, Locator: m.store.Locator(id)}
			seen[id] = info
		}
		info.State = s.currentState()
	}
	m.mu.Unlock()

	out := make([]Info, 0, len(seen))
	for _, info := range seen {
		entries, err := m.store.List(ctx, info.ID)
		if err != nil {
			return nil, err
		}
		info.Entries = len(entries)
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// archiveOutcome hands one curation outcome to the archiver, when attached.
func (m *Manager) archiveOutcome(sessionID, queryID, question, status string, report *curator.MergeReport, sheet string) {
	if m.archiver == nil {
		return
	}
	rec := archive.Record{
		SessionID:  sessionID,
		QueryID:    queryID,
		Question:   question,
		Status:     status,
		Length:     len(sheet),
		Cheatsheet: sheet,
	}
	if report != nil {
		rec.Added = report.Added
		rec.Kept = report.Kept
		rec.Superseded = report.Superseded
	}
	m.archiver.Enqueue(rec)
}

// observe records per-operation telemetry across the Prometheus, OTLP
// metric, and OTLP log sinks.
func (m *Manager) observe(ctx context.Context, op string, pipe *Pipeline, sessionID, status string, start time.Time, entries int, opErr error) {
	mode := string(pipe.Generator.Mode())
	elapsed := time.Since(start)
	metrics.QueriesTotal.WithLabelValues(op, mode, status).Inc()
	metrics.QueryLatency.WithLabelValues(op, mode).Observe(elapsed.Seconds())

	errType := ""
	if opErr != nil {
		var se *svcerrors.ServiceError
		if errors.As(opErr, &se) {
			errType = se.Type
		} else {
			errType = svcerrors.TypeInternalError
		}
	}
	m.otelMetrics.RecordOperation(ctx, observability.OperationMetrics{
		Operation: op,
		Mode:      mode,
		Provider:  pipe.Provider,
		Duration:  elapsed,
		Entries:   entries,
		ErrorType: errType,
	})
	m.otelLogs.EmitOperation(ctx, observability.OperationEvent{
		Operation: op,
		SessionID: sessionID,
		RequestID: observability.RequestIDFromContext(ctx),
		Mode:      mode,
		Provider:  pipe.Provider,
		Duration:  elapsed,
		Entries:   entries,
		Err:       opErr,
	})
}
