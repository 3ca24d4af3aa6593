package stages

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ebarroso/promptforge/internal/pipeline"
	"github.com/ebarroso/promptforge/internal/workspace"
)

// RepoFacts summarizes the workspace: manifests, languages by file
// count, and top-level layout. It runs first so every later stage can
// ground itself in what the project actually is.
type RepoFacts struct {
	Name      string         `json:"name"`
	Manifests []string       `json:"manifests"`
	Languages map[string]int `json:"languages"` // extension -> file count
	TopDirs   []string       `json:"top_dirs"`
	FileCount int            `json:"file_count"`
}

// manifestNames are recognized build/package manifests, checked by
// exact base name.
var manifestNames = map[string]bool{
	"go.mod":           true,
	"package.json":     true,
	"pyproject.toml":   true,
	"requirements.txt": true,
	"Cargo.toml":       true,
	"pom.xml":          true,
	"Makefile":         true,
}

// RepoFactsStage scans the workspace within scope.
type RepoFactsStage struct {
	ws *workspace.Workspace
}

// NewRepoFactsStage creates the stage.
func NewRepoFactsStage(ws *workspace.Workspace) *RepoFactsStage {
	return &RepoFactsStage{ws: ws}
}

func (s *RepoFactsStage) Name() string { return NameRepoFacts }

func (s *RepoFactsStage) Cost() pipeline.Cost { return pipeline.Cost{Files: 2} }

// CanRetry: a narrowed rescan can succeed where a broad one hit
// transient filesystem limits.
func (s *RepoFactsStage) CanRetry(err error) bool { return pipeline.Transient(err) }

func (s *RepoFactsStage) Execute(_ context.Context, pc *pipeline.Context) (*pipeline.Delta, error) {
	// Manifests are scanned without type filtering so a scope limited
	// to .go files still sees package.json and friends.
	scanScope := pc.Scope
	scanScope.AllowedFileTypes = nil

	files, err := s.ws.List(scanScope)
	if err != nil {
		return nil, err
	}

	facts := RepoFacts{
		Name:      filepath.Base(s.ws.Root()),
		Languages: make(map[string]int),
		FileCount: len(files),
	}

	dirs := make(map[string]bool)
	for _, f := range files {
		if manifestNames[filepath.Base(f.Path)] {
			facts.Manifests = append(facts.Manifests, f.Path)
		}
		if ext := filepath.Ext(f.Path); ext != "" {
			facts.Languages[ext]++
		}
		if i := strings.IndexByte(f.Path, '/'); i > 0 {
			dirs[f.Path[:i]] = true
		}
	}
	for d := range dirs {
		facts.TopDirs = append(facts.TopDirs, d)
	}
	sort.Strings(facts.TopDirs)
	sort.Strings(facts.Manifests)

	return delta(NameRepoFacts, facts), nil
}
