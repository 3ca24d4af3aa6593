package lessons

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "lessons.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndRecent(t *testing.T) {
	s := openTestStore(t)

	id, err := s.Record(Lesson{
		RequestID: "req-1",
		Tool:      "create",
		Category:  "retry",
		Title:     "edit stage needed narrowing",
		Content:   "filesystem errors on large scan; succeeded at 8 files",
	})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if id == 0 {
		t.Error("Record() id = 0, want non-zero")
	}

	recent, err := s.Recent(10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(recent) != 1 {
		t.Fatalf("Recent() = %d lessons, want 1", len(recent))
	}
	got := recent[0]
	if got.Tool != "create" || got.Category != "retry" || got.CreatedAt == "" {
		t.Errorf("Recent()[0] = %+v, want tool/category/timestamp set", got)
	}
}

func TestRecord_RequiresTitle(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.Record(Lesson{Content: "body only"}); err == nil {
		t.Error("Record() with empty title: error = nil, want error")
	}
}

func TestRecord_NormalizesCategory(t *testing.T) {
	s := openTestStore(t)

	tests := []struct {
		in   string
		want string
	}{
		{"RETRY", "retry"},
		{" failure ", "failure"},
		{"bogus", "insight"},
		{"", "insight"},
	}
	for _, tt := range tests {
		if _, err := s.Record(Lesson{Title: "t-" + tt.in, Category: tt.in}); err != nil {
			t.Fatalf("Record(%q) error = %v", tt.in, err)
		}
	}

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.ByCategory["retry"] != 1 || stats.ByCategory["failure"] != 1 || stats.ByCategory["insight"] != 2 {
		t.Errorf("ByCategory = %v, want retry=1 failure=1 insight=2", stats.ByCategory)
	}
}

func TestSearch(t *testing.T) {
	s := openTestStore(t)

	seed := []Lesson{
		{Title: "narrowed retry fixed edit", Content: "permission denied on vendor dir", Tool: "fix", Category: "retry"},
		{Title: "plan covered all files", Content: "no mismatch between plan and edits", Tool: "create", Category: "plan"},
		{Title: "gate blocked destructive prompt", Content: "rm -rf detected in request", Tool: "create", Category: "failure"},
	}
	for _, l := range seed {
		l.RequestID = "r"
		if _, err := s.Record(l); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	got, err := s.Search("permission denied", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 1 || got[0].Category != "retry" {
		t.Errorf("Search(permission denied) = %+v, want the retry lesson", got)
	}

	// Operator characters must not break the query.
	if _, err := s.Search(`"rm -rf" OR (weird*`, 10); err != nil {
		t.Errorf("Search() with operators error = %v", err)
	}
}

func TestSearch_EmptyQueryFallsBackToRecent(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 3; i++ {
		if _, err := s.Record(Lesson{Title: "t", Content: "c"}); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	got, err := s.Search("   ", 2)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("Search(empty) = %d results, want 2 (recent fallback)", len(got))
	}
}

func TestStats(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Record(Lesson{Title: "a", Tool: "create", Category: "plan"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Record(Lesson{Title: "b", Tool: "create", Category: "edit"}); err != nil {
		t.Fatal(err)
	}

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalLessons != 2 || stats.ByTool["create"] != 2 {
		t.Errorf("Stats() = %+v, want total=2 create=2", stats)
	}
}
