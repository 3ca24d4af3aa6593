package stages

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ebarroso/promptforge/internal/pipeline"
	"github.com/ebarroso/promptforge/internal/tokens"
)

// PlanAction is one concrete step the edit stage will carry out.
type PlanAction struct {
	Kind        string `json:"kind"` // write | append
	Path        string `json:"path"`
	Description string `json:"description"`
}

// Plan is the planning stage's contribution: what to do with the
// gathered context.
type Plan struct {
	Summary        string       `json:"summary"`
	Actions        []PlanAction `json:"actions"`
	TargetFiles    []string     `json:"target_files"`
	ContextSources []string     `json:"context_sources"`
}

// planDir is where enhancement artifacts are written in the workspace.
const planDir = ".promptforge"

// PlanStage folds the gathered context into an ordered action plan.
// Planning is deterministic: same inputs, same plan.
type PlanStage struct {
	est *tokens.Estimator
}

// NewPlanStage creates the stage.
func NewPlanStage(est *tokens.Estimator) *PlanStage {
	return &PlanStage{est: est}
}

func (s *PlanStage) Name() string { return NamePlan }

func (s *PlanStage) Cost() pipeline.Cost { return pipeline.Cost{Tokens: 512} }

// CanRetry: planning is pure computation; a retry would repeat the
// same failure.
func (s *PlanStage) CanRetry(err error) bool { return false }

func (s *PlanStage) Execute(_ context.Context, pc *pipeline.Context) (*pipeline.Delta, error) {
	plan := Plan{}

	// Record which gathering stages actually contributed. Absent keys
	// mean the stage was skipped or failed — that is fine, the plan
	// just has less to work with.
	if _, ok := output[RepoFacts](pc, NameRepoFacts); ok {
		plan.ContextSources = append(plan.ContextSources, NameRepoFacts)
	}
	if d, ok := output[DocsOutput](pc, NameDocs); ok && len(d.Results) > 0 {
		plan.ContextSources = append(plan.ContextSources, NameDocs)
	}
	if v, ok := output[SearchOutput](pc, NameVectorSearch); ok && len(v.Hits) > 0 {
		plan.ContextSources = append(plan.ContextSources, NameVectorSearch)
	}
	if sn, ok := output[SnippetsOutput](pc, NameSnippets); ok && len(sn.Matches) > 0 {
		plan.ContextSources = append(plan.ContextSources, NameSnippets)
	}

	plan.TargetFiles = targetFiles(pc)

	plan.Actions = append(plan.Actions, PlanAction{
		Kind:        "write",
		Path:        planDir + "/plan.md",
		Description: "write the enhancement brief",
	})
	if len(plan.ContextSources) > 0 {
		plan.Actions = append(plan.Actions, PlanAction{
			Kind:        "write",
			Path:        planDir + "/context.md",
			Description: "write the gathered context digest",
		})
	}

	plan.Summary = fmt.Sprintf("%s request grounded in %d context source(s), %d target file(s)",
		pc.Tool, len(plan.ContextSources), len(plan.TargetFiles))

	d := delta(NamePlan, plan)
	d.Metadata = map[string]any{
		"actions":        len(plan.Actions),
		"token_estimate": s.est.Count(pc.Request.Prompt),
		"planned_at":     time.Now().UTC().Format(time.RFC3339),
	}
	return d, nil
}

// targetFiles collects the files the gathered context points at:
// snippet match paths first, then indexed snippet paths, capped by the
// scope's file limit.
func targetFiles(pc *pipeline.Context) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if p == "" || seen[p] {
			return
		}
		if pc.Scope.MaxFiles > 0 && len(out) >= pc.Scope.MaxFiles {
			return
		}
		seen[p] = true
		out = append(out, p)
	}

	if sn, ok := output[SnippetsOutput](pc, NameSnippets); ok {
		for _, m := range sn.Matches {
			add(m.Path)
		}
	}
	if v, ok := output[SearchOutput](pc, NameVectorSearch); ok {
		for _, h := range v.Hits {
			add(h.Path)
		}
	}
	sort.Strings(out)
	return out
}
