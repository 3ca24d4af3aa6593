// Package stages implements the concrete pipeline stages: context
// gathering (repo facts, documentation, vector search, snippets),
// planning, editing, validation, gating, documentation, and learning.
//
// Stages follow the graceful-degradation contract: recoverable internal
// problems become a degraded Delta (with errors/warnings attached),
// and only conditions the stage cannot absorb — transient I/O worth a
// narrowed retry, or a policy block — are returned as errors for the
// orchestrator to classify.
package stages

import (
	"github.com/ebarroso/promptforge/internal/pipeline"
)

// Stage names double as Data keys in the pipeline context.
const (
	NameRepoFacts    = "repo_facts"
	NameDocs         = "docs"
	NameVectorSearch = "vector_search"
	NameSnippets     = "snippets"
	NamePlan         = "plan"
	NameEdit         = "edit"
	NameValidate     = "validate"
	NameGate         = "gate"
	NameDocument     = "document"
	NameLearn        = "learn"
)

// Output fetches a typed stage output from the context, reporting
// absence. Consumers must treat absence as "stage skipped".
func Output[T any](pc *pipeline.Context, stage string) (T, bool) {
	var zero T
	v, ok := pc.Value(stage)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

// output is the package-internal alias used by the stages themselves.
func output[T any](pc *pipeline.Context, stage string) (T, bool) {
	return Output[T](pc, stage)
}

// requestText joins the prompt with any caller-supplied extra context
// so the gathering and gating stages consider both.
func requestText(pc *pipeline.Context) string {
	if extra := pc.Request.Field("context"); extra != "" {
		return pc.Request.Prompt + "\n" + extra
	}
	return pc.Request.Prompt
}

// delta builds a single-key Delta for the common success path.
func delta(stage string, out any) *pipeline.Delta {
	return &pipeline.Delta{Data: map[string]any{stage: out}}
}
