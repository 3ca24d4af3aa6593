package stages

import (
	"context"
	"time"

	"github.com/ebarroso/promptforge/internal/pipeline"
	"github.com/ebarroso/promptforge/internal/vector"
)

// SearchOutput is the vector-search stage's contribution.
type SearchOutput struct {
	Hits []vector.Hit `json:"hits"`
}

// VectorSearchStage retrieves scored matches from the search index.
type VectorSearchStage struct {
	index     *vector.Index
	threshold float64
}

// NewVectorSearchStage creates the stage with a minimum score cutoff.
func NewVectorSearchStage(index *vector.Index, threshold float64) *VectorSearchStage {
	return &VectorSearchStage{index: index, threshold: threshold}
}

func (s *VectorSearchStage) Name() string { return NameVectorSearch }

func (s *VectorSearchStage) Cost() pipeline.Cost { return pipeline.Cost{Chunks: 2, Files: 2} }

func (s *VectorSearchStage) CanRetry(err error) bool { return pipeline.Transient(err) }

func (s *VectorSearchStage) Execute(ctx context.Context, pc *pipeline.Context) (*pipeline.Delta, error) {
	limit := 8
	if remaining := pc.Budget.Remaining().Chunks; remaining > 0 && remaining < limit {
		limit = remaining
	}

	start := time.Now()
	hits, err := s.index.Search(ctx, requestText(pc), limit, s.threshold)
	if err != nil {
		if pipeline.Transient(err) {
			return nil, err
		}
		return &pipeline.Delta{
			Data: map[string]any{NameVectorSearch: SearchOutput{}},
			Errors: []pipeline.StageError{{
				Stage:     NameVectorSearch,
				Err:       err.Error(),
				Timestamp: time.Now(),
			}},
			Warnings: []string{"vector search failed; continuing without index hits"},
		}, nil
	}

	d := delta(NameVectorSearch, SearchOutput{Hits: hits})
	d.Metadata = map[string]any{
		"hits":     len(hits),
		"query_ms": time.Since(start).Milliseconds(),
	}
	return d, nil
}
