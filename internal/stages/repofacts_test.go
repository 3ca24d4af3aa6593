package stages

import (
	"context"
	"testing"

	"github.com/ebarroso/promptforge/internal/pipeline"
)

func TestRepoFactsStage(t *testing.T) {
	ws := newWorkspace(t, map[string]string{
		"go.mod":              "module example.com/demo",
		"cmd/demo/main.go":    "package main",
		"internal/app/app.go": "package app",
		"README.md":           "# demo",
	})
	stage := NewRepoFactsStage(ws)

	pc := newCtx(pipeline.ToolCreate, "add a health endpoint")
	d, err := stage.Execute(context.Background(), pc)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	pc.Merge(stage.Name(), d)

	facts, ok := output[RepoFacts](pc, NameRepoFacts)
	if !ok {
		t.Fatal("repo_facts missing from data")
	}
	if facts.FileCount != 4 {
		t.Errorf("FileCount = %d, want 4", facts.FileCount)
	}
	if len(facts.Manifests) != 1 || facts.Manifests[0] != "go.mod" {
		t.Errorf("Manifests = %v, want [go.mod]", facts.Manifests)
	}
	if facts.Languages[".go"] != 2 {
		t.Errorf("Languages[.go] = %d, want 2", facts.Languages[".go"])
	}
	if len(facts.TopDirs) != 2 { // cmd, internal
		t.Errorf("TopDirs = %v, want [cmd internal]", facts.TopDirs)
	}
}

func TestRepoFactsStage_IgnoresTypeFilter(t *testing.T) {
	ws := newWorkspace(t, map[string]string{
		"package.json": "{}",
		"index.js":     "console.log(1)",
	})
	stage := NewRepoFactsStage(ws)

	// Scope restricted to .go must still surface the manifest.
	pc := newCtx(pipeline.ToolAnalyze, "describe this repo")
	pc.Scope.AllowedFileTypes = []string{".go"}

	d, err := stage.Execute(context.Background(), pc)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	pc.Merge(stage.Name(), d)

	facts, _ := output[RepoFacts](pc, NameRepoFacts)
	if len(facts.Manifests) != 1 {
		t.Errorf("Manifests = %v, want package.json found despite .go filter", facts.Manifests)
	}
}

func TestRepoFactsStage_Contract(t *testing.T) {
	stage := NewRepoFactsStage(nil)
	if stage.Name() != NameRepoFacts {
		t.Errorf("Name() = %q", stage.Name())
	}
	if stage.Cost().Files == 0 {
		t.Error("Cost() should declare file usage")
	}
}
