package stages

import (
	"context"
	"errors"
	"io/fs"
	"strings"
	"testing"

	"github.com/ebarroso/promptforge/internal/docs"
	"github.com/ebarroso/promptforge/internal/pipeline"
	"github.com/ebarroso/promptforge/internal/tokens"
	"github.com/ebarroso/promptforge/internal/vector"
)

type fakeDocsClient struct {
	results   []docs.Result
	err       error
	calls     int
	lastQuery string
}

func (c *fakeDocsClient) Query(_ context.Context, text string, _ int) ([]docs.Result, error) {
	c.calls++
	c.lastQuery = text
	if c.err != nil {
		return nil, c.err
	}
	return c.results, nil
}

func TestDocsStage(t *testing.T) {
	client := &fakeDocsClient{results: []docs.Result{
		{Topic: "error wrapping", Excerpt: "wrap with %w", Score: 1.5},
	}}
	stage := NewDocsStage(client, tokens.NewEstimator())

	pc := newCtx(pipeline.ToolCreate, "handle errors in the loader")
	d, err := stage.Execute(context.Background(), pc)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	pc.Merge(stage.Name(), d)

	out, ok := output[DocsOutput](pc, NameDocs)
	if !ok || len(out.Results) != 1 {
		t.Fatalf("docs output = %+v, %v; want one result", out, ok)
	}
	if d.Metadata["results"] != 1 {
		t.Errorf("metadata results = %v, want 1", d.Metadata["results"])
	}
}

func TestDocsStage_QueryIncludesCallerContext(t *testing.T) {
	client := &fakeDocsClient{}
	stage := NewDocsStage(client, tokens.NewEstimator())

	pc := newCtx(pipeline.ToolCreate, "add a cache layer")
	pc.Request.Fields = map[string]string{"context": "must use sqlite, not redis"}

	if _, err := stage.Execute(context.Background(), pc); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(client.lastQuery, "add a cache layer") ||
		!strings.Contains(client.lastQuery, "must use sqlite, not redis") {
		t.Errorf("query = %q, want prompt and caller context folded in", client.lastQuery)
	}
}

func TestDocsStage_TransientErrorPropagates(t *testing.T) {
	stage := NewDocsStage(&fakeDocsClient{err: fs.ErrNotExist}, tokens.NewEstimator())

	_, err := stage.Execute(context.Background(), newCtx(pipeline.ToolCreate, "anything"))
	if err == nil {
		t.Fatal("transient lookup error should propagate for retry")
	}
	if !stage.CanRetry(err) {
		t.Error("CanRetry should accept the propagated transient error")
	}
}

func TestDocsStage_OtherErrorDegrades(t *testing.T) {
	stage := NewDocsStage(&fakeDocsClient{err: errors.New("corpus corrupt")}, tokens.NewEstimator())

	pc := newCtx(pipeline.ToolCreate, "anything")
	d, err := stage.Execute(context.Background(), pc)
	if err != nil {
		t.Fatalf("Execute() error = %v, want degraded nil", err)
	}
	if len(d.Errors) != 1 || len(d.Warnings) != 1 {
		t.Errorf("degraded delta errors=%d warnings=%d, want 1 and 1", len(d.Errors), len(d.Warnings))
	}
	pc.Merge(stage.Name(), d)
	if out, ok := output[DocsOutput](pc, NameDocs); !ok || len(out.Results) != 0 {
		t.Errorf("degraded output = %+v, %v; want empty present", out, ok)
	}
}

func TestDocsStage_LimitFollowsRemainingChunks(t *testing.T) {
	client := &fakeDocsClient{}
	stage := NewDocsStage(client, tokens.NewEstimator())

	pc := newCtx(pipeline.ToolCreate, "anything")
	// Leave only 2 chunks in the budget.
	if err := pc.Budget.Debit(pipeline.Cost{Chunks: 14}); err != nil {
		t.Fatal(err)
	}
	if _, err := stage.Execute(context.Background(), pc); err != nil {
		t.Fatal(err)
	}
	if client.calls != 1 {
		t.Fatalf("calls = %d, want 1", client.calls)
	}
}

func TestVectorSearchStage(t *testing.T) {
	idx, err := vector.NewMemory()
	if err != nil {
		t.Fatalf("NewMemory() error = %v", err)
	}
	defer idx.Close()

	seed := []vector.Document{
		{ID: "lesson-1", Kind: "lesson", Text: "retry with backoff on connection refused"},
		{ID: "doc-1", Kind: "doc", Path: "internal/db/db.go", Text: "sqlite connection pooling"},
	}
	for _, doc := range seed {
		if err := idx.Add(doc); err != nil {
			t.Fatal(err)
		}
	}

	stage := NewVectorSearchStage(idx, 0)
	pc := newCtx(pipeline.ToolFix, "connection refused during retry")
	d, err := stage.Execute(context.Background(), pc)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	pc.Merge(stage.Name(), d)

	out, ok := output[SearchOutput](pc, NameVectorSearch)
	if !ok || len(out.Hits) == 0 {
		t.Fatalf("search output = %+v, %v; want hits", out, ok)
	}
	if out.Hits[0].ID != "lesson-1" {
		t.Errorf("top hit = %q, want lesson-1", out.Hits[0].ID)
	}
}

func TestSnippetsStage(t *testing.T) {
	ws := newWorkspace(t, map[string]string{
		"internal/db/db.go": "package db\n\n// Open opens the sqlite database.\nfunc Open() {}\n",
		"README.md":         "# demo\nnothing relevant here\n",
	})
	stage := NewSnippetsStage(ws)

	pc := newCtx(pipeline.ToolFix, "sqlite database open fails")
	d, err := stage.Execute(context.Background(), pc)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	pc.Merge(stage.Name(), d)

	out, ok := output[SnippetsOutput](pc, NameSnippets)
	if !ok || len(out.Matches) == 0 {
		t.Fatalf("snippets output = %+v, %v; want matches", out, ok)
	}
	for _, m := range out.Matches {
		if m.Path != "internal/db/db.go" {
			t.Errorf("unexpected match path %q", m.Path)
		}
	}
}

func TestSnippetsStage_CallerContextWidensTerms(t *testing.T) {
	ws := newWorkspace(t, map[string]string{
		"internal/auth/token.go": "package auth\n\n// Refresh renews the oauth token.\nfunc Refresh() {}\n",
	})
	stage := NewSnippetsStage(ws)

	// The prompt alone never mentions oauth; only the caller context does.
	pc := newCtx(pipeline.ToolFix, "login keeps failing")
	pc.Request.Fields = map[string]string{"context": "prior attempt: the oauth refresh path"}

	d, err := stage.Execute(context.Background(), pc)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	pc.Merge(stage.Name(), d)

	out, _ := output[SnippetsOutput](pc, NameSnippets)
	if len(out.Matches) == 0 {
		t.Fatal("caller context terms should reach the snippet scan")
	}
	if out.Matches[0].Path != "internal/auth/token.go" {
		t.Errorf("match path = %q, want internal/auth/token.go", out.Matches[0].Path)
	}
}

func TestSnippetsStage_NoTerms(t *testing.T) {
	ws := newWorkspace(t, map[string]string{"a.go": "package a"})
	stage := NewSnippetsStage(ws)

	d, err := stage.Execute(context.Background(), newCtx(pipeline.ToolCreate, "do it"))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(d.Warnings) != 1 {
		t.Errorf("warnings = %v, want skip notice", d.Warnings)
	}
}
