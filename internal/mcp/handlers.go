package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/clipflow/internal/config"
	"github.com/hpungsan/clipflow/internal/engine"
	"github.com/hpungsan/clipflow/internal/errors"
	"github.com/hpungsan/clipflow/internal/heuristics"
	"github.com/hpungsan/clipflow/internal/ops"
	"github.com/hpungsan/clipflow/internal/pipeline"
	"github.com/hpungsan/clipflow/internal/queue"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db       *sql.DB
	engine   *engine.Engine
	detector *heuristics.Detector
	strip    *heuristics.WhitespaceStrip
	unwrap   *heuristics.SmartUnwrap
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *sql.DB, eng *engine.Engine, cfg *config.Config) *Handlers {
	return &Handlers{
		db:       db,
		engine:   eng,
		detector: pipeline.Detector(cfg),
		strip:    pipeline.Strip(cfg),
		unwrap:   pipeline.Unwrap(cfg),
	}
}

// TextRequest is the argument shape of the text_* tools.
type TextRequest struct {
	Text string `json:"text"`
}

// TextResult is returned by text_strip and text_unwrap.
type TextResult struct {
	Text    string `json:"text"`
	Changed bool   `json:"changed"`
}

// HistoryListRequest represents the arguments for history_list.
type HistoryListRequest struct {
	Outcome string `json:"outcome,omitempty"`
	Trigger string `json:"trigger,omitempty"`
	Limit   int    `json:"limit,omitempty"`
	Offset  int    `json:"offset,omitempty"`
}

// HistoryFetchRequest represents the arguments for history_fetch.
type HistoryFetchRequest struct {
	ID          string `json:"id"`
	IncludeText *bool  `json:"include_text,omitempty"`
}

// Handler implementations

// decodeArgs round-trips the tool arguments through JSON into T. Shape
// errors come back as INVALID_REQUEST naming the tool.
func decodeArgs[T any](req mcp.CallToolRequest) (T, error) {
	var out T
	tool := req.Params.Name
	if tool == "" {
		tool = "tool"
	}
	b, err := json.Marshal(req.GetArguments())
	if err != nil {
		return out, errors.NewInvalidRequest(fmt.Sprintf("decode %s args: %v", tool, err))
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, errors.NewInvalidRequest(fmt.Sprintf("decode %s args: %v", tool, err))
	}
	return out, nil
}

// HandleStrip handles the text_strip tool call.
func (h *Handlers) HandleStrip(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.applyText(req, h.strip.Apply)
}

// HandleUnwrap handles the text_unwrap tool call.
func (h *Handlers) HandleUnwrap(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.applyText(req, h.unwrap.Apply)
}

func (h *Handlers) applyText(req mcp.CallToolRequest, apply func(string) (string, error)) (*mcp.CallToolResult, error) {
	input, err := decodeArgs[TextRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	out, err := apply(input.Text)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(TextResult{Text: out, Changed: out != input.Text})
}

// HandleDetect handles the text_detect tool call.
func (h *Handlers) HandleDetect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decodeArgs[TextRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if strings.TrimSpace(input.Text) == "" {
		return errorResult(errors.NewEmptyInput()), nil
	}

	return successResult(h.detector.Report(input.Text))
}

// HandleTransform handles the text_transform tool call.
func (h *Handlers) HandleTransform(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decodeArgs[TextRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	res, err := h.engine.Submit(ctx, h.engine.NewRequest(queue.TriggerMCP), input.Text)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(res.Summary())
}

// HandleClipboardTransform handles the clipboard_transform tool call.
func (h *Handlers) HandleClipboardTransform(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := h.engine.TransformClipboard(ctx, queue.TriggerMCP)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(res.Summary())
}

// HandleStatus handles the clipboard_status tool call.
func (h *Handlers) HandleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return successResult(h.engine.Status())
}

// HandleHistoryList handles the history_list tool call.
func (h *Handlers) HandleHistoryList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decodeArgs[HistoryListRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.ListRuns(ctx, h.db, ops.ListInput{
		Outcome: input.Outcome,
		Trigger: input.Trigger,
		Limit:   input.Limit,
		Offset:  input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleHistoryFetch handles the history_fetch tool call.
func (h *Handlers) HandleHistoryFetch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decodeArgs[HistoryFetchRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.FetchRun(ctx, h.db, ops.FetchInput{
		ID:          input.ID,
		IncludeText: input.IncludeText,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleHistoryStats handles the history_stats tool call.
func (h *Handlers) HandleHistoryStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.Stats(ctx, h.db)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are not exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if cErr, ok := errors.As(err); ok {
		errorObj := map[string]any{
			"code":      cErr.Code,
			"message":   cErr.Message,
			"status":    cErr.Status,
			"retryable": errors.Retryable(cErr),
		}
		if cErr.Code != errors.ErrInternal && cErr.Details != nil {
			errorObj["details"] = cErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
