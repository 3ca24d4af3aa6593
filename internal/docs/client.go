// Package docs provides the documentation-lookup collaborator: a
// ranked query client plus a SQLite-backed result cache.
package docs

import (
	"context"
	"regexp"
	"sort"
	"strings"
)

// Result is one ranked documentation hit.
type Result struct {
	Topic   string  `json:"topic"`
	Excerpt string  `json:"excerpt"`
	Score   float64 `json:"score"`
	Source  string  `json:"source"` // "corpus" or "cache"
}

// Client answers free-text documentation queries with ranked results.
type Client interface {
	Query(ctx context.Context, text string, limit int) ([]Result, error)
}

// entry is one document in the static corpus.
type entry struct {
	Topic string
	Body  string
	Tags  []string
}

// StaticClient ranks an embedded corpus by term overlap. It stands in
// for a remote documentation service and keeps queries deterministic.
type StaticClient struct {
	corpus []entry
}

// NewStaticClient returns a client over the built-in corpus.
func NewStaticClient() *StaticClient {
	return &StaticClient{corpus: builtinCorpus()}
}

// Query ranks corpus entries against the query terms and returns up to
// limit results with a positive score.
func (c *StaticClient) Query(_ context.Context, text string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 5
	}
	terms := Terms(text)
	if len(terms) == 0 {
		return nil, nil
	}

	var out []Result
	for _, e := range c.corpus {
		score := overlapScore(terms, e)
		if score <= 0 {
			continue
		}
		out = append(out, Result{
			Topic:   e.Topic,
			Excerpt: excerpt(e.Body, 240),
			Score:   score,
			Source:  "corpus",
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var termSplit = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// stopwords are ignored when extracting query terms.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "to": true, "of": true, "in": true,
	"and": true, "or": true, "for": true, "with": true, "on": true, "is": true,
	"it": true, "this": true, "that": true, "be": true, "my": true, "our": true,
	"please": true, "add": true, "make": true, "use": true,
}

// Terms extracts lowercase significant terms from free text.
func Terms(text string) []string {
	raw := termSplit.Split(strings.ToLower(text), -1)
	seen := make(map[string]bool)
	var out []string
	for _, t := range raw {
		if len(t) < 2 || stopwords[t] || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func overlapScore(terms []string, e entry) float64 {
	body := strings.ToLower(e.Body)
	topic := strings.ToLower(e.Topic)
	score := 0.0
	for _, t := range terms {
		switch {
		case strings.Contains(topic, t):
			score += 3
		case tagged(e.Tags, t):
			score += 2
		case strings.Contains(body, t):
			score += 1
		}
	}
	return score / float64(len(terms))
}

func tagged(tags []string, term string) bool {
	for _, tag := range tags {
		if tag == term {
			return true
		}
	}
	return false
}

func excerpt(body string, n int) string {
	body = strings.TrimSpace(body)
	if len(body) <= n {
		return body
	}
	cut := body[:n]
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return cut + "..."
}

func builtinCorpus() []entry {
	return []entry{
		{
			Topic: "error wrapping",
			Tags:  []string{"errors", "wrap", "unwrap"},
			Body: "Wrap errors with fmt.Errorf and the %w verb so callers can match " +
				"sentinels with errors.Is and extract types with errors.As. Wrap at the " +
				"point where you can add context the caller does not have.",
		},
		{
			Topic: "context cancellation",
			Tags:  []string{"context", "cancel", "timeout", "deadline"},
			Body: "Pass context.Context as the first parameter of blocking operations. " +
				"Check ctx.Err() at loop boundaries and honor deadlines cooperatively; " +
				"never store a context in a struct field.",
		},
		{
			Topic: "table-driven tests",
			Tags:  []string{"testing", "tests", "table"},
			Body: "Express related cases as a slice of structs and loop with t.Run for " +
				"named subtests. Keep fixtures in t.TempDir so cleanup is automatic.",
		},
		{
			Topic: "caching strategies",
			Tags:  []string{"cache", "caching", "ttl", "invalidation"},
			Body: "Cache entries need an expiry policy: TTL for freshness-tolerant data, " +
				"explicit invalidation for correctness-critical data. Last-writer-wins is " +
				"acceptable when concurrent writers produce equivalent entries.",
		},
		{
			Topic: "retry with backoff",
			Tags:  []string{"retry", "backoff", "transient", "timeout"},
			Body: "Retry only transient failures, bound the attempt count, and shrink the " +
				"work per attempt so retries cannot exceed the original cost. Classify " +
				"errors once and treat the classification as immutable.",
		},
		{
			Topic: "sqlite in Go",
			Tags:  []string{"sqlite", "sql", "database", "fts5"},
			Body: "database/sql with a pure-Go sqlite driver avoids cgo. Use FTS5 virtual " +
				"tables for full-text search and keep schema migration idempotent with " +
				"CREATE TABLE IF NOT EXISTS.",
		},
		{
			Topic: "structured logging",
			Tags:  []string{"logging", "slog", "observability"},
			Body: "log/slog attaches typed key-value attrs to every record. Derive a " +
				"request-scoped logger with Logger.With so request IDs appear on every " +
				"line without threading them by hand.",
		},
		{
			Topic: "filesystem walking",
			Tags:  []string{"filesystem", "walk", "glob", "scan"},
			Body: "filepath.WalkDir visits entries lazily; return fs.SkipDir to prune " +
				"directories like .git and node_modules early. Match file types with glob " +
				"patterns rather than ad hoc suffix checks.",
		},
		{
			Topic: "api design",
			Tags:  []string{"api", "interface", "design"},
			Body: "Accept interfaces, return structs. Keep interfaces small and defined " +
				"on the consumer side, and avoid exporting types the caller never names.",
		},
		{
			Topic: "concurrency patterns",
			Tags:  []string{"concurrency", "goroutine", "channel", "mutex"},
			Body: "Share memory by communicating. Give each concurrent unit exclusive " +
				"ownership of its state; when sharing is unavoidable, guard with the " +
				"smallest possible mutex and document the invariant.",
		},
		{
			Topic: "prompt engineering",
			Tags:  []string{"prompt", "llm", "enhancement"},
			Body: "Effective prompts state the goal, the constraints, and the form of the " +
				"answer. Supplying repository facts and relevant snippets grounds the " +
				"model and reduces hallucinated APIs.",
		},
		{
			Topic: "validation and gating",
			Tags:  []string{"validation", "gate", "policy", "safety"},
			Body: "Validate at trust boundaries and fail closed for destructive actions. " +
				"A gate that blocks must say which rule fired so the caller can rephrase " +
				"instead of guessing.",
		},
	}
}
