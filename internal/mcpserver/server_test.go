package mcpserver

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/OneChainTech/dynamic-cheatsheet/internal/curator"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/generator"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/invoker"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/memory"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/memory/inmem"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/selector"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/session"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/template"
)

const goodCuration = "Reviewing the transcript.\n\nNEW CHEATSHEET:\n" +
	"For multiplication, decompose into factor pairs.\nEND OF CHEATSHEET"

type scriptedInvoker struct {
	mu        sync.Mutex
	responses map[string]string
}

func (s *scriptedInvoker) Invoke(_ context.Context, purpose, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.responses[purpose], nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, inv *scriptedInvoker) *Server {
	t.Helper()
	store := inmem.New()
	set, err := template.LoadSet(template.Config{})
	if err != nil {
		t.Fatalf("load templates: %v", err)
	}
	pipe := &session.Pipeline{
		Templates: set,
		Generator: generator.New(store, selector.New(selector.NewLexicalScorer()), inv, set, generator.Config{}, discardLogger()),
		Curator:   curator.New(store, inv, set.Curator, discardLogger()),
		Provider:  "scripted",
	}
	mgr := session.NewManager(store, pipe, session.Config{}, discardLogger())
	return New(mgr, "127.0.0.1", 8000, "test", discardLogger())
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Request: mcp.Request{Method: string(mcp.MethodToolsCall)},
		Params:  mcp.CallToolParams{Name: name, Arguments: args},
	}
}

func textPayload(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil {
		t.Fatal("nil tool result")
	}
	var sb strings.Builder
	for _, content := range res.Content {
		if c, ok := content.(mcp.TextContent); ok {
			sb.WriteString(c.Text)
		}
	}
	return sb.String()
}

func decodePayload(t *testing.T, res *mcp.CallToolResult, v any) {
	t.Helper()
	raw := textPayload(t, res)
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		t.Fatalf("decode payload %q: %v", raw, err)
	}
}

func TestPrepareToolReturnsContext(t *testing.T) {
	srv := newTestServer(t, &scriptedInvoker{})

	res, err := srv.handlePrepare(context.Background(), callRequest("prepare_solve_context", nil))
	if err != nil {
		t.Fatalf("handlePrepare: %v", err)
	}
	if res.IsError {
		t.Fatalf("tool error: %s", textPayload(t, res))
	}

	var payload prepareResponse
	decodePayload(t, res, &payload)
	if payload.Cheatsheet != memory.EmptyCheatsheet {
		t.Errorf("cheatsheet = %q, want empty sentinel", payload.Cheatsheet)
	}
	if !strings.Contains(payload.GeneratorTemplate, template.PlaceholderQuestion) {
		t.Errorf("generator template lacks question placeholder: %q", payload.GeneratorTemplate)
	}
}

func TestUpdateToolRoundTrip(t *testing.T) {
	inv := &scriptedInvoker{responses: map[string]string{invoker.PurposeCurate: goodCuration}}
	srv := newTestServer(t, inv)
	ctx := context.Background()

	if res, err := srv.handlePrepare(ctx, callRequest("prepare_solve_context", map[string]any{"session_id": "s1"})); err != nil || res.IsError {
		t.Fatalf("prepare failed: err=%v body=%s", err, textPayload(t, res))
	}

	res, err := srv.handleUpdate(ctx, callRequest("update_cheatsheet", map[string]any{
		"session_id":   "s1",
		"question":     "What is 6 times 4?",
		"model_output": "Working it out.\nFINAL ANSWER: 24",
	}))
	if err != nil {
		t.Fatalf("handleUpdate: %v", err)
	}
	if res.IsError {
		t.Fatalf("tool error: %s", textPayload(t, res))
	}

	var payload updateResponse
	decodePayload(t, res, &payload)
	if payload.Status != session.StatusOK {
		t.Errorf("status = %q, want ok", payload.Status)
	}
	if payload.CheatsheetPath != "memory://s1" {
		t.Errorf("cheatsheet_path = %q", payload.CheatsheetPath)
	}

	after, err := srv.handlePrepare(ctx, callRequest("prepare_solve_context", map[string]any{"session_id": "s1"}))
	if err != nil {
		t.Fatalf("second prepare: %v", err)
	}
	var ctx2 prepareResponse
	decodePayload(t, after, &ctx2)
	if !strings.Contains(ctx2.Cheatsheet, "factor pairs") {
		t.Errorf("cheatsheet after update = %q", ctx2.Cheatsheet)
	}
	if payload.Length != utf8.RuneCountInString(ctx2.Cheatsheet) {
		t.Errorf("length = %d, want %d", payload.Length, utf8.RuneCountInString(ctx2.Cheatsheet))
	}
}

func TestUpdateToolDefaultsToGlobalSession(t *testing.T) {
	inv := &scriptedInvoker{responses: map[string]string{invoker.PurposeCurate: goodCuration}}
	srv := newTestServer(t, inv)
	ctx := context.Background()

	if res, err := srv.handlePrepare(ctx, callRequest("prepare_solve_context", nil)); err != nil || res.IsError {
		t.Fatalf("prepare failed: err=%v body=%s", err, textPayload(t, res))
	}

	res, err := srv.handleUpdate(ctx, callRequest("update_cheatsheet", map[string]any{
		"question":     "What is 6 times 4?",
		"model_output": "FINAL ANSWER: 24",
	}))
	if err != nil {
		t.Fatalf("handleUpdate: %v", err)
	}

	var payload updateResponse
	decodePayload(t, res, &payload)
	if payload.CheatsheetPath != "memory://global" {
		t.Errorf("cheatsheet_path = %q, want the default session locator", payload.CheatsheetPath)
	}
}

func TestUpdateToolWithoutPreparedContext(t *testing.T) {
	inv := &scriptedInvoker{responses: map[string]string{invoker.PurposeCurate: goodCuration}}
	srv := newTestServer(t, inv)

	res, err := srv.handleUpdate(context.Background(), callRequest("update_cheatsheet", map[string]any{
		"session_id":   "s1",
		"question":     "What is 6 times 4?",
		"model_output": "FINAL ANSWER: 24",
	}))
	if err != nil {
		t.Fatalf("handleUpdate: %v", err)
	}
	if !res.IsError {
		t.Fatal("want tool error for update without prepared context")
	}
	if body := textPayload(t, res); !strings.Contains(body, "requires a prepared context") {
		t.Errorf("error text = %q", body)
	}
}

func TestUpdateToolArgumentValidation(t *testing.T) {
	srv := newTestServer(t, &scriptedInvoker{})
	ctx := context.Background()

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"missing question", map[string]any{"model_output": "FINAL ANSWER: 1"}, "question"},
		{"missing model output", map[string]any{"question": "q"}, "model_output"},
		{"blank question", map[string]any{"question": "   ", "model_output": "x"}, "question is required"},
		{"blank model output", map[string]any{"question": "q", "model_output": "\n"}, "model_output is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := srv.handleUpdate(ctx, callRequest("update_cheatsheet", tt.args))
			if err != nil {
				t.Fatalf("handleUpdate: %v", err)
			}
			if !res.IsError {
				t.Fatal("want tool error")
			}
			if body := textPayload(t, res); !strings.Contains(body, tt.want) {
				t.Errorf("error text = %q, want mention of %q", body, tt.want)
			}
		})
	}
}

func TestUpdateToolParseErrorStatus(t *testing.T) {
	inv := &scriptedInvoker{responses: map[string]string{invoker.PurposeCurate: "no markers here"}}
	srv := newTestServer(t, inv)
	ctx := context.Background()

	if res, err := srv.handlePrepare(ctx, callRequest("prepare_solve_context", map[string]any{"session_id": "s1"})); err != nil || res.IsError {
		t.Fatalf("prepare failed: err=%v body=%s", err, textPayload(t, res))
	}

	res, err := srv.handleUpdate(ctx, callRequest("update_cheatsheet", map[string]any{
		"session_id":   "s1",
		"question":     "What is 6 times 4?",
		"model_output": "FINAL ANSWER: 24",
	}))
	if err != nil {
		t.Fatalf("handleUpdate: %v", err)
	}
	if res.IsError {
		t.Fatalf("parse failures degrade, not error: %s", textPayload(t, res))
	}

	var payload updateResponse
	decodePayload(t, res, &payload)
	if payload.Status != session.StatusParseError {
		t.Errorf("status = %q, want parse_error", payload.Status)
	}
	if payload.Warning == "" {
		t.Error("warning missing for degraded curation")
	}
	if payload.Length != utf8.RuneCountInString(memory.EmptyCheatsheet) {
		t.Errorf("length = %d, want untouched snapshot length", payload.Length)
	}
}

func TestPrepareToolIsolatesSessions(t *testing.T) {
	inv := &scriptedInvoker{responses: map[string]string{invoker.PurposeCurate: goodCuration}}
	srv := newTestServer(t, inv)
	ctx := context.Background()

	srv.handlePrepare(ctx, callRequest("prepare_solve_context", map[string]any{"session_id": "team-a"}))
	srv.handleUpdate(ctx, callRequest("update_cheatsheet", map[string]any{
		"session_id":   "team-a",
		"question":     "What is 6 times 4?",
		"model_output": "FINAL ANSWER: 24",
	}))

	res, err := srv.handlePrepare(ctx, callRequest("prepare_solve_context", map[string]any{"session_id": "team-b"}))
	if err != nil {
		t.Fatalf("handlePrepare: %v", err)
	}
	var payload prepareResponse
	decodePayload(t, res, &payload)
	if payload.Cheatsheet != memory.EmptyCheatsheet {
		t.Errorf("team-b cheatsheet = %q, want empty sentinel", payload.Cheatsheet)
	}
}

func TestToolDefinitions(t *testing.T) {
	prep := prepareToolDef()
	if prep.Name != "prepare_solve_context" {
		t.Errorf("prepare tool name = %q", prep.Name)
	}
	if prep.InputSchema.Type != "object" {
		t.Errorf("prepare schema type = %q", prep.InputSchema.Type)
	}
	if len(prep.InputSchema.Required) != 0 {
		t.Errorf("prepare required = %v, session_id is optional", prep.InputSchema.Required)
	}

	upd := updateToolDef()
	if upd.Name != "update_cheatsheet" {
		t.Errorf("update tool name = %q", upd.Name)
	}
	want := []string{"question", "model_output"}
	if len(upd.InputSchema.Required) != len(want) {
		t.Fatalf("update required = %v", upd.InputSchema.Required)
	}
	for i, field := range want {
		if upd.InputSchema.Required[i] != field {
			t.Errorf("update required[%d] = %q, want %q", i, upd.InputSchema.Required[i], field)
		}
	}
	if _, ok := upd.InputSchema.Properties["session_id"]; !ok {
		t.Error("update tool lacks session_id property")
	}
}

func TestServerAddr(t *testing.T) {
	srv := newTestServer(t, &scriptedInvoker{})
	if srv.Addr() != "127.0.0.1:8000" {
		t.Errorf("addr = %q", srv.Addr())
	}
}
