package stages

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ebarroso/promptforge/internal/pipeline"
	"github.com/ebarroso/promptforge/internal/workspace"
)

// newCtx builds a run context with a generous budget and scope.
func newCtx(tool, prompt string) *pipeline.Context {
	return pipeline.NewContext(tool, pipeline.Request{Prompt: prompt},
		pipeline.Budget{Time: time.Minute, Tokens: 8192, Chunks: 16, Files: 24},
		pipeline.Scope{MaxFiles: 10, MaxLinesPerFile: 200, AllowedFileTypes: []string{".go", ".md"}},
	)
}

// newWorkspace builds a temp workspace with the given files.
func newWorkspace(t *testing.T, files map[string]string) *workspace.Workspace {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	w, err := workspace.New(root)
	if err != nil {
		t.Fatalf("workspace.New() error = %v", err)
	}
	return w
}

func TestOutputHelper(t *testing.T) {
	pc := newCtx(pipeline.ToolCreate, "p")
	pc.Merge(NamePlan, &pipeline.Delta{Data: map[string]any{NamePlan: Plan{Summary: "s"}}})

	plan, ok := output[Plan](pc, NamePlan)
	if !ok || plan.Summary != "s" {
		t.Errorf("output[Plan] = %+v, %v; want summary s", plan, ok)
	}

	if _, ok := output[Plan](pc, NameEdit); ok {
		t.Error("output on absent key should report false")
	}

	// Wrong type under the key is treated as absent, not a panic.
	pc.Merge("weird", &pipeline.Delta{Data: map[string]any{"weird": 42}})
	if _, ok := output[Plan](pc, "weird"); ok {
		t.Error("output with mismatched type should report false")
	}
}
