package stages

import (
	"context"
	"time"

	"github.com/ebarroso/promptforge/internal/docs"
	"github.com/ebarroso/promptforge/internal/pipeline"
	"github.com/ebarroso/promptforge/internal/tokens"
)

// DocsOutput is the documentation stage's contribution.
type DocsOutput struct {
	Results []docs.Result `json:"results"`
}

// DocsStage queries the documentation client for the request's terms.
// Lookup failures degrade: the pipeline continues without docs.
type DocsStage struct {
	client docs.Client
	est    *tokens.Estimator
}

// NewDocsStage creates the stage.
func NewDocsStage(client docs.Client, est *tokens.Estimator) *DocsStage {
	return &DocsStage{client: client, est: est}
}

func (s *DocsStage) Name() string { return NameDocs }

func (s *DocsStage) Cost() pipeline.Cost { return pipeline.Cost{Tokens: 256, Chunks: 2} }

// CanRetry: documentation lookups go over the network; timeouts and
// refused connections are worth a narrowed retry.
func (s *DocsStage) CanRetry(err error) bool { return pipeline.Transient(err) }

func (s *DocsStage) Execute(ctx context.Context, pc *pipeline.Context) (*pipeline.Delta, error) {
	limit := 5
	if remaining := pc.Budget.Remaining().Chunks; remaining > 0 && remaining < limit {
		limit = remaining
	}

	start := time.Now()
	results, err := s.client.Query(ctx, requestText(pc), limit)
	if err != nil {
		if pipeline.Transient(err) {
			return nil, err
		}
		// Anything else degrades: record the error, return empty output.
		return &pipeline.Delta{
			Data: map[string]any{NameDocs: DocsOutput{}},
			Errors: []pipeline.StageError{{
				Stage:     NameDocs,
				Err:       err.Error(),
				Timestamp: time.Now(),
			}},
			Warnings: []string{"documentation lookup failed; continuing without docs"},
		}, nil
	}

	tokenEstimate := 0
	for _, r := range results {
		tokenEstimate += s.est.Count(r.Excerpt)
	}

	d := delta(NameDocs, DocsOutput{Results: results})
	d.Metadata = map[string]any{
		"results":        len(results),
		"token_estimate": tokenEstimate,
		"query_ms":       time.Since(start).Milliseconds(),
	}
	return d, nil
}
