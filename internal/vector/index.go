// Package vector provides the search-index collaborator used by the
// vector-search stage. It wraps a Bleve index: BM25-ranked full-text
// retrieval with a score threshold, which stands in for a remote
// vector database behind the same contract.
package vector

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
)

// Document is an indexable unit: a snippet, lesson, or note.
type Document struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Kind      string    `json:"kind"` // snippet | lesson | note
	Path      string    `json:"path,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Hit is one scored search result.
type Hit struct {
	ID       string  `json:"id"`
	Score    float64 `json:"score"`
	Kind     string  `json:"kind"`
	Path     string  `json:"path,omitempty"`
	Fragment string  `json:"fragment"`
}

// Index wraps a Bleve index. Safe for concurrent readers; writes are
// serialized by Bleve internally.
type Index struct {
	idx bleve.Index
}

func buildMapping() mapping.IndexMapping {
	doc := bleve.NewDocumentMapping()

	text := bleve.NewTextFieldMapping()
	text.Store = true
	doc.AddFieldMappingsAt("text", text)

	kind := bleve.NewKeywordFieldMapping()
	kind.Store = true
	doc.AddFieldMappingsAt("kind", kind)

	path := bleve.NewKeywordFieldMapping()
	path.Store = true
	doc.AddFieldMappingsAt("path", path)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	return m
}

// NewMemory creates an ephemeral in-memory index.
func NewMemory() (*Index, error) {
	idx, err := bleve.NewMemOnly(buildMapping())
	if err != nil {
		return nil, fmt.Errorf("creating in-memory index: %w", err)
	}
	return &Index{idx: idx}, nil
}

// Open creates or opens a persistent index at path.
func Open(path string) (*Index, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		idx, err := bleve.New(path, buildMapping())
		if err != nil {
			return nil, fmt.Errorf("creating index: %w", err)
		}
		return &Index{idx: idx}, nil
	}
	idx, err := bleve.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}
	return &Index{idx: idx}, nil
}

// Close releases the index.
func (i *Index) Close() error {
	return i.idx.Close()
}

// Add indexes a document, replacing any existing document with the
// same ID.
func (i *Index) Add(doc Document) error {
	if doc.ID == "" {
		return fmt.Errorf("document id is required")
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	return i.idx.Index(doc.ID, doc)
}

// Count returns the number of indexed documents.
func (i *Index) Count() (uint64, error) {
	return i.idx.DocCount()
}

// Search returns up to limit hits scoring at or above threshold,
// highest score first.
func (i *Index) Search(ctx context.Context, query string, limit int, threshold float64) ([]Hit, error) {
	if limit <= 0 {
		limit = 5
	}

	q := bleve.NewMatchQuery(query)
	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.Fields = []string{"text", "kind", "path"}

	res, err := i.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}

	var out []Hit
	for _, h := range res.Hits {
		if h.Score < threshold {
			continue
		}
		hit := Hit{ID: h.ID, Score: h.Score}
		if v, ok := h.Fields["text"].(string); ok {
			hit.Fragment = fragment(v, 200)
		}
		if v, ok := h.Fields["kind"].(string); ok {
			hit.Kind = v
		}
		if v, ok := h.Fields["path"].(string); ok {
			hit.Path = v
		}
		out = append(out, hit)
	}
	return out, nil
}

func fragment(text string, n int) string {
	if len(text) <= n {
		return text
	}
	return text[:n] + "..."
}
