package pipeline

import "fmt"

// Tool names the engine knows flows for.
const (
	ToolCreate  = "create"
	ToolFix     = "fix"
	ToolAnalyze = "analyze"
	ToolLearn   = "learn"
)

// Entry is one stage in a tool's flow plus its execution policy.
// Optional stages are skipped (with a warning) when unaffordable;
// required stages halt the run instead. FatalOnFailure marks gate-type
// stages whose failure ends the run immediately with success=false.
type Entry struct {
	Stage          Stage
	Optional       bool
	FatalOnFailure bool
}

// Registry maps tool names to ordered stage flows. Order expresses the
// data dependencies: context gathering before planning, planning before
// editing, editing before validation and gating, gating before
// documentation and learning. The registry is configuration — swapping
// a tool's flow never touches the orchestrator.
type Registry struct {
	flows map[string][]Entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{flows: make(map[string][]Entry)}
}

// Register sets the flow for a tool, replacing any previous flow.
func (r *Registry) Register(tool string, entries ...Entry) {
	flow := make([]Entry, len(entries))
	copy(flow, entries)
	r.flows[tool] = flow
}

// Flow returns a copy of the ordered flow for the given tool.
func (r *Registry) Flow(tool string) ([]Entry, error) {
	flow, ok := r.flows[tool]
	if !ok {
		return nil, fmt.Errorf("no pipeline registered for tool %q", tool)
	}
	out := make([]Entry, len(flow))
	copy(out, flow)
	return out, nil
}

// Tools returns the names of all registered tools.
func (r *Registry) Tools() []string {
	names := make([]string, 0, len(r.flows))
	for name := range r.flows {
		names = append(names, name)
	}
	return names
}
