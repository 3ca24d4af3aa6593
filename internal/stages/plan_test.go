package stages

import (
	"context"
	"testing"

	"github.com/ebarroso/promptforge/internal/pipeline"
	"github.com/ebarroso/promptforge/internal/tokens"
	"github.com/ebarroso/promptforge/internal/vector"
	"github.com/ebarroso/promptforge/internal/workspace"
)

func TestPlanStage_NoContext(t *testing.T) {
	stage := NewPlanStage(tokens.NewEstimator())

	pc := newCtx(pipeline.ToolCreate, "add a health endpoint")
	d, err := stage.Execute(context.Background(), pc)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	pc.Merge(stage.Name(), d)

	plan, ok := output[Plan](pc, NamePlan)
	if !ok {
		t.Fatal("plan missing from data")
	}
	if len(plan.ContextSources) != 0 {
		t.Errorf("ContextSources = %v, want empty", plan.ContextSources)
	}
	// The brief is always planned; the digest only when context exists.
	if len(plan.Actions) != 1 || plan.Actions[0].Path != planDir+"/plan.md" {
		t.Errorf("Actions = %+v, want single plan.md write", plan.Actions)
	}
}

func TestPlanStage_WithContext(t *testing.T) {
	stage := NewPlanStage(tokens.NewEstimator())

	pc := newCtx(pipeline.ToolFix, "fix the loader")
	pc.Merge(NameRepoFacts, delta(NameRepoFacts, RepoFacts{Name: "demo", FileCount: 3}))
	pc.Merge(NameSnippets, delta(NameSnippets, SnippetsOutput{
		Matches: []workspace.Match{
			{Path: "b.go", Line: 1, Text: "loader"},
			{Path: "a.go", Line: 2, Text: "loader"},
			{Path: "b.go", Line: 9, Text: "loader again"},
		},
	}))
	pc.Merge(NameVectorSearch, delta(NameVectorSearch, SearchOutput{
		Hits: []vector.Hit{{ID: "doc-1", Path: "c.go"}},
	}))

	d, err := stage.Execute(context.Background(), pc)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	pc.Merge(stage.Name(), d)
	plan, _ := output[Plan](pc, NamePlan)

	if len(plan.ContextSources) != 3 {
		t.Errorf("ContextSources = %v, want 3 sources", plan.ContextSources)
	}
	if len(plan.Actions) != 2 {
		t.Errorf("Actions = %+v, want brief and digest", plan.Actions)
	}
	// Deduplicated and sorted.
	want := []string{"a.go", "b.go", "c.go"}
	if len(plan.TargetFiles) != len(want) {
		t.Fatalf("TargetFiles = %v, want %v", plan.TargetFiles, want)
	}
	for i := range want {
		if plan.TargetFiles[i] != want[i] {
			t.Errorf("TargetFiles[%d] = %q, want %q", i, plan.TargetFiles[i], want[i])
		}
	}
}

func TestPlanStage_TargetFilesCappedByScope(t *testing.T) {
	stage := NewPlanStage(tokens.NewEstimator())

	pc := newCtx(pipeline.ToolFix, "fix things")
	pc.Scope.MaxFiles = 2
	pc.Merge(NameSnippets, delta(NameSnippets, SnippetsOutput{
		Matches: []workspace.Match{
			{Path: "a.go"}, {Path: "b.go"}, {Path: "c.go"}, {Path: "d.go"},
		},
	}))

	d, err := stage.Execute(context.Background(), pc)
	if err != nil {
		t.Fatal(err)
	}
	pc.Merge(stage.Name(), d)
	plan, _ := output[Plan](pc, NamePlan)
	if len(plan.TargetFiles) != 2 {
		t.Errorf("TargetFiles = %v, want capped at 2", plan.TargetFiles)
	}
}
