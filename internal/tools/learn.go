package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ebarroso/promptforge/internal/pipeline"
	"github.com/ebarroso/promptforge/internal/stages"
)

// LearnTool handles the enhance_learn MCP tool: record an insight so
// future enhancement runs can surface it.
type LearnTool struct {
	runner Runner
	budget pipeline.Budget
	scope  pipeline.Scope
}

// NewLearnTool creates the handler.
func NewLearnTool(runner Runner, budget pipeline.Budget, scope pipeline.Scope) *LearnTool {
	return &LearnTool{runner: runner, budget: budget, scope: scope}
}

// Definition returns the MCP tool definition for registration.
func (t *LearnTool) Definition() mcp.Tool {
	return mcp.NewTool("enhance_learn",
		mcp.WithDescription(
			"Record a lesson learned so future enhancement runs can use it. "+
				"The first line becomes the lesson title; the full text is stored "+
				"and indexed for retrieval.",
		),
		mcp.WithString("lesson",
			mcp.Required(),
			mcp.Description("The lesson text; first line is used as the title"),
		),
	)
}

// Handle processes the tool call.
func (t *LearnTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	lesson := strings.TrimSpace(req.GetString("lesson", ""))
	if lesson == "" {
		return mcp.NewToolResultError("'lesson' is required"), nil
	}

	pc := t.runner.Run(ctx, pipeline.ToolLearn, pipeline.Request{Prompt: lesson}, t.budget, t.scope)
	if !pc.Success {
		return mcp.NewToolResultError(renderFailure(pc)), nil
	}

	out, ok := stages.Output[stages.LearnOutput](pc, stages.NameLearn)
	if !ok || out.Recorded == 0 {
		msg := "Nothing was recorded."
		if len(pc.Warnings) > 0 {
			msg += " " + strings.Join(pc.Warnings, "; ")
		}
		return mcp.NewToolResultError(msg), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Recorded %d lesson(s).\n", out.Recorded)
	for _, id := range out.LessonIDs {
		fmt.Fprintf(&sb, "- lesson #%d\n", id)
	}
	return mcp.NewToolResultText(sb.String()), nil
}
