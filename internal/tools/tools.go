// Package tools implements the MCP tool handlers.
//
// Each tool is a struct that receives its dependencies at construction
// and exposes Definition/Handle for registration. Tools depend on the
// Runner interface, not on the orchestrator concretely.
package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ebarroso/promptforge/internal/pipeline"
	"github.com/ebarroso/promptforge/internal/stages"
)

// Runner executes a pipeline flow for a tool. Satisfied by
// pipeline.Orchestrator.
type Runner interface {
	Run(ctx context.Context, tool string, req pipeline.Request, budget pipeline.Budget, scope pipeline.Scope) *pipeline.Context
}

// renderResult formats a finished run as the tool's text response. The
// enhanced prompt leads; run diagnostics follow so the caller can see
// what was skipped or degraded.
func renderResult(pc *pipeline.Context) string {
	var sb strings.Builder

	if doc, ok := stages.Output[stages.DocumentOutput](pc, stages.NameDocument); ok && doc.EnhancedPrompt != "" {
		sb.WriteString(doc.EnhancedPrompt)
	} else {
		sb.WriteString("# Enhanced Prompt\n\n")
		sb.WriteString(strings.TrimSpace(pc.Request.Prompt))
		sb.WriteString("\n")
	}

	sb.WriteString("\n---\n\n")
	fmt.Fprintf(&sb, "Run %s: %d stage(s) in %s.\n",
		pc.RequestID, len(pc.StagesExecuted), pc.ExecutionTime.Round(time.Millisecond))

	rem := pc.Budget.Remaining()
	fmt.Fprintf(&sb, "Budget remaining: %d tokens, %d chunks, %d files.\n",
		rem.Tokens, rem.Chunks, rem.Files)
	if len(pc.Warnings) > 0 {
		sb.WriteString("\nWarnings:\n")
		for _, w := range pc.Warnings {
			fmt.Fprintf(&sb, "- %s\n", w)
		}
	}
	if len(pc.Errors) > 0 {
		fmt.Fprintf(&sb, "\n%d stage error(s) were absorbed; results may be partial.\n", len(pc.Errors))
	}
	return sb.String()
}

// renderFailure formats a halted run as an error message.
func renderFailure(pc *pipeline.Context) string {
	if pc.Err == nil {
		return "run failed"
	}
	if len(pc.Err.Details) > 0 {
		if v, ok := pc.Err.Details["violations"].([]string); ok && len(v) > 0 {
			return fmt.Sprintf("request blocked by policy: %s", strings.Join(v, "; "))
		}
	}
	return fmt.Sprintf("stage %s failed: %s", pc.Err.Stage, pc.Err.Err)
}
