package mcpserver

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"
)

type prepareResponse struct {
	Cheatsheet        string `json:"cheatsheet"`
	GeneratorTemplate string `json:"generator_template"`
}

type updateResponse struct {
	Status         string `json:"status"`
	CheatsheetPath string `json:"cheatsheet_path"`
	Length         int    `json:"length"`
	Warning        string `json:"warning,omitempty"`
}

func prepareToolDef() mcp.Tool {
	return mcp.Tool{
		Name: "prepare_solve_context",
		Description: "Fetch the session's current cheatsheet and the generator prompt template. " +
			"Substitute [[QUESTION]] and [[CHEATSHEET]] in the template, run it on your model, " +
			"then report the transcript back with update_cheatsheet.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"session_id": map[string]any{
					"type":        "string",
					"description": "Target session; omit for the default session.",
				},
			},
		},
	}
}

func updateToolDef() mcp.Tool {
	return mcp.Tool{
		Name: "update_cheatsheet",
		Description: "Fold a completed question and its model output into the session's " +
			"cheatsheet and persist the result.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"session_id": map[string]any{
					"type":        "string",
					"description": "Target session; omit for the default session.",
				},
				"question": map[string]any{
					"type":        "string",
					"description": "The task the model just answered.",
				},
				"model_output": map[string]any{
					"type":        "string",
					"description": "The raw model output, including any FINAL ANSWER marker.",
				},
			},
			Required: []string{"question", "model_output"},
		},
	}
}

func (s *Server) handlePrepare(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := req.GetString("session_id", "")

	res, err := s.sessions.PrepareSolveContext(ctx, sessionID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(prepareResponse{
		Cheatsheet:        res.Cheatsheet,
		GeneratorTemplate: res.GeneratorTemplate,
	})
}

func (s *Server) handleUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := req.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	modelOutput, err := req.RequireString("model_output")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if strings.TrimSpace(question) == "" {
		return mcp.NewToolResultError("question is required"), nil
	}
	if strings.TrimSpace(modelOutput) == "" {
		return mcp.NewToolResultError("model_output is required"), nil
	}
	sessionID := req.GetString("session_id", "")

	res, err := s.sessions.UpdateCheatsheet(ctx, sessionID, question, modelOutput)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(updateResponse{
		Status:         res.Status,
		CheatsheetPath: res.Locator,
		Length:         utf8.RuneCountInString(res.Cheatsheet),
		Warning:        res.Warning,
	})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
