package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ebarroso/promptforge/internal/lessons"
	"github.com/ebarroso/promptforge/internal/pipeline"
	"github.com/ebarroso/promptforge/internal/vector"
)

// StatusTool handles the forge_status MCP tool: a snapshot of the
// server's stores and default budget.
type StatusTool struct {
	store  *lessons.Store
	index  *vector.Index
	budget pipeline.Budget
}

// NewStatusTool creates the handler. The index may be nil.
func NewStatusTool(store *lessons.Store, index *vector.Index, budget pipeline.Budget) *StatusTool {
	return &StatusTool{store: store, index: index, budget: budget}
}

// Definition returns the MCP tool definition for registration.
func (t *StatusTool) Definition() mcp.Tool {
	return mcp.NewTool("forge_status",
		mcp.WithDescription(
			"Show server status: recorded lessons by category and tool, "+
				"indexed document count, and the default run budget.",
		),
	)
}

// Handle processes the tool call.
func (t *StatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := t.store.Stats()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("reading lesson stats: %v", err)), nil
	}

	var sb strings.Builder
	sb.WriteString("# PromptForge Status\n\n")

	fmt.Fprintf(&sb, "Lessons recorded: %d\n", stats.TotalLessons)
	writeCounts(&sb, "By category", stats.ByCategory)
	writeCounts(&sb, "By tool", stats.ByTool)

	if t.index != nil {
		if count, err := t.index.Count(); err == nil {
			fmt.Fprintf(&sb, "\nIndexed documents: %d\n", count)
		}
	}

	fmt.Fprintf(&sb, "\nDefault budget: %s, %d tokens, %d chunks, %d files\n",
		t.budget.Time, t.budget.Tokens, t.budget.Chunks, t.budget.Files)

	return mcp.NewToolResultText(sb.String()), nil
}

func writeCounts(sb *strings.Builder, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(sb, "\n%s:\n", title)
	for _, k := range keys {
		fmt.Fprintf(sb, "- %s: %d\n", k, counts[k])
	}
}
