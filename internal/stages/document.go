package stages

import (
	"context"
	"fmt"
	"strings"

	"github.com/ebarroso/promptforge/internal/pipeline"
	"github.com/ebarroso/promptforge/internal/tokens"
)

// DocumentOutput is the documentation-of-results stage's contribution:
// the enhanced prompt handed back to the caller.
type DocumentOutput struct {
	EnhancedPrompt string `json:"enhanced_prompt"`
	Sections       int    `json:"sections"`
}

// DocumentStage renders the enhanced prompt from whatever the earlier
// stages accumulated. Every lookup is defensive: a skipped stage means
// a missing section, never a failure.
type DocumentStage struct {
	est *tokens.Estimator
}

// NewDocumentStage creates the stage.
func NewDocumentStage(est *tokens.Estimator) *DocumentStage {
	return &DocumentStage{est: est}
}

func (s *DocumentStage) Name() string { return NameDocument }

func (s *DocumentStage) Cost() pipeline.Cost { return pipeline.Cost{Tokens: 256} }

func (s *DocumentStage) CanRetry(err error) bool { return false }

func (s *DocumentStage) Execute(_ context.Context, pc *pipeline.Context) (*pipeline.Delta, error) {
	var sb strings.Builder
	sections := 0

	sb.WriteString("# Enhanced Prompt\n\n")
	sb.WriteString(strings.TrimSpace(pc.Request.Prompt))
	sb.WriteString("\n")

	if extra := strings.TrimSpace(pc.Request.Field("context")); extra != "" {
		sections++
		sb.WriteString("\n## Caller context\n\n")
		sb.WriteString(extra)
		sb.WriteString("\n")
	}

	if facts, ok := output[RepoFacts](pc, NameRepoFacts); ok {
		sections++
		sb.WriteString("\n## Project context\n\n")
		fmt.Fprintf(&sb, "Project %q, %d files", facts.Name, facts.FileCount)
		if len(facts.Manifests) > 0 {
			fmt.Fprintf(&sb, ", manifests: %s", strings.Join(facts.Manifests, ", "))
		}
		if len(facts.TopDirs) > 0 {
			fmt.Fprintf(&sb, ", layout: %s", strings.Join(facts.TopDirs, ", "))
		}
		sb.WriteString(".\n")
	}

	if d, ok := output[DocsOutput](pc, NameDocs); ok && len(d.Results) > 0 {
		sections++
		sb.WriteString("\n## Relevant guidance\n\n")
		for _, r := range d.Results {
			fmt.Fprintf(&sb, "- %s: %s\n", r.Topic, r.Excerpt)
		}
	}

	if v, ok := output[SearchOutput](pc, NameVectorSearch); ok && len(v.Hits) > 0 {
		sections++
		sb.WriteString("\n## Related material\n\n")
		for _, h := range v.Hits {
			fmt.Fprintf(&sb, "- %s: %s\n", h.ID, h.Fragment)
		}
	}

	if sn, ok := output[SnippetsOutput](pc, NameSnippets); ok && len(sn.Matches) > 0 {
		sections++
		sb.WriteString("\n## Code references\n\n")
		for _, m := range sn.Matches {
			fmt.Fprintf(&sb, "- %s:%d `%s`\n", m.Path, m.Line, m.Text)
		}
	}

	if plan, ok := output[Plan](pc, NamePlan); ok {
		sections++
		sb.WriteString("\n## Plan\n\n")
		fmt.Fprintf(&sb, "%s\n", plan.Summary)
		for _, a := range plan.Actions {
			fmt.Fprintf(&sb, "1. %s (%s)\n", a.Description, a.Path)
		}
	}

	if report, ok := output[ValidationReport](pc, NameValidate); ok && len(report.Problems) > 0 {
		sections++
		sb.WriteString("\n## Validation notes\n\n")
		for _, p := range report.Problems {
			fmt.Fprintf(&sb, "- %s\n", p)
		}
	}

	if gate, ok := output[GateOutput](pc, NameGate); ok && len(gate.Recommendations) > 0 {
		sections++
		sb.WriteString("\n## Recommendations\n\n")
		for _, r := range gate.Recommendations {
			fmt.Fprintf(&sb, "- %s\n", r)
		}
	}

	enhanced := sb.String()
	d := delta(NameDocument, DocumentOutput{EnhancedPrompt: enhanced, Sections: sections})
	d.Metadata = map[string]any{
		"sections":       sections,
		"token_estimate": s.est.Count(enhanced),
	}
	return d, nil
}
