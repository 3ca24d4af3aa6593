package tools

import (
	"context"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ebarroso/promptforge/internal/pipeline"
)

// enhanceDescriptions maps each enhancement tool to its MCP description.
var enhanceDescriptions = map[string]string{
	pipeline.ToolCreate: "Enhance a prompt for creating something new. " +
		"Gathers repository facts, documentation, indexed lessons, and code " +
		"snippets, plans the work, and returns an enriched prompt with a " +
		"written enhancement brief under .promptforge/.",
	pipeline.ToolFix: "Enhance a prompt for fixing a bug or failure. " +
		"Focuses on code snippets and past lessons relevant to the failure; " +
		"returns an enriched prompt plus an enhancement brief.",
	pipeline.ToolAnalyze: "Enhance a prompt for analyzing or explaining code. " +
		"Read-only: gathers context and returns an enriched prompt without " +
		"writing enhancement artifacts.",
}

// EnhanceTool handles one of the enhance_create / enhance_fix /
// enhance_analyze MCP tools. The three share parameters and response
// shape; the registered flow differs per tool.
type EnhanceTool struct {
	tool   string
	runner Runner
	budget pipeline.Budget
	scope  pipeline.Scope
}

// NewEnhanceTool creates the handler for the given pipeline tool with
// the configured default budget and scope.
func NewEnhanceTool(tool string, runner Runner, budget pipeline.Budget, scope pipeline.Scope) *EnhanceTool {
	return &EnhanceTool{tool: tool, runner: runner, budget: budget, scope: scope}
}

// Definition returns the MCP tool definition for registration.
func (t *EnhanceTool) Definition() mcp.Tool {
	return mcp.NewTool("enhance_"+t.tool,
		mcp.WithDescription(enhanceDescriptions[t.tool]),
		mcp.WithString("prompt",
			mcp.Required(),
			mcp.Description("The prompt to enhance"),
		),
		mcp.WithString("context",
			mcp.Description("Extra context: constraints, environment, prior attempts"),
		),
		mcp.WithNumber("max_tokens",
			mcp.Description("Token budget override for this run"),
		),
		mcp.WithNumber("max_files",
			mcp.Description("File budget override for this run"),
		),
		mcp.WithString("time_budget",
			mcp.Description("Time budget override, e.g. \"10s\""),
		),
		mcp.WithString("file_types",
			mcp.Description("Comma-separated file extensions to restrict scanning, e.g. \".go,.md\""),
		),
	)
}

// Handle processes the tool call: apply per-call budget overrides,
// run the flow, and render the outcome.
func (t *EnhanceTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prompt := strings.TrimSpace(req.GetString("prompt", ""))
	if prompt == "" {
		return mcp.NewToolResultError("'prompt' is required"), nil
	}

	preq := pipeline.Request{Prompt: prompt}
	if extra := strings.TrimSpace(req.GetString("context", "")); extra != "" {
		preq.Fields = map[string]string{"context": extra}
	}

	budget, scope, err := t.overrides(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	pc := t.runner.Run(ctx, t.tool, preq, budget, scope)
	if !pc.Success {
		return mcp.NewToolResultError(renderFailure(pc)), nil
	}
	return mcp.NewToolResultText(renderResult(pc)), nil
}

// overrides applies the call's optional budget and scope parameters on
// top of the configured defaults.
func (t *EnhanceTool) overrides(req mcp.CallToolRequest) (pipeline.Budget, pipeline.Scope, error) {
	budget := t.budget
	scope := t.scope.Clone()

	if v := req.GetFloat("max_tokens", 0); v > 0 {
		budget.Tokens = int(v)
	}
	if v := req.GetFloat("max_files", 0); v > 0 {
		budget.Files = int(v)
		scope.MaxFiles = int(v)
	}
	if raw := strings.TrimSpace(req.GetString("time_budget", "")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return budget, scope, errInvalidTimeBudget(raw)
		}
		budget.Time = d
	}
	if raw := strings.TrimSpace(req.GetString("file_types", "")); raw != "" {
		var types []string
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				types = append(types, p)
			}
		}
		scope.AllowedFileTypes = types
	}
	return budget, scope, nil
}

type errInvalidTimeBudget string

func (e errInvalidTimeBudget) Error() string {
	return "invalid time_budget " + string(e) + ": use a Go duration like \"10s\""
}
