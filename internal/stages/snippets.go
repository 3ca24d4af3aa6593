package stages

import (
	"context"

	"github.com/ebarroso/promptforge/internal/docs"
	"github.com/ebarroso/promptforge/internal/pipeline"
	"github.com/ebarroso/promptforge/internal/workspace"
)

// SnippetsOutput is the local-snippets stage's contribution.
type SnippetsOutput struct {
	Matches []workspace.Match `json:"matches"`
	Terms   []string          `json:"terms"`
}

// SnippetsStage greps the workspace for lines mentioning the request's
// terms, within the run's scope.
type SnippetsStage struct {
	ws *workspace.Workspace
}

// NewSnippetsStage creates the stage.
func NewSnippetsStage(ws *workspace.Workspace) *SnippetsStage {
	return &SnippetsStage{ws: ws}
}

func (s *SnippetsStage) Name() string { return NameSnippets }

func (s *SnippetsStage) Cost() pipeline.Cost { return pipeline.Cost{Files: 4, Chunks: 2} }

func (s *SnippetsStage) CanRetry(err error) bool { return pipeline.Transient(err) }

func (s *SnippetsStage) Execute(_ context.Context, pc *pipeline.Context) (*pipeline.Delta, error) {
	terms := docs.Terms(requestText(pc))
	if len(terms) == 0 {
		return &pipeline.Delta{
			Data:     map[string]any{NameSnippets: SnippetsOutput{}},
			Warnings: []string{"no significant terms in request; snippet scan skipped"},
		}, nil
	}

	matches, err := s.ws.Grep(terms, pc.Scope)
	if err != nil {
		return nil, err
	}

	d := delta(NameSnippets, SnippetsOutput{Matches: matches, Terms: terms})
	d.Metadata = map[string]any{"matches": len(matches)}
	return d, nil
}
