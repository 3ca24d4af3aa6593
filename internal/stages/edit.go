package stages

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ebarroso/promptforge/internal/pipeline"
	"github.com/ebarroso/promptforge/internal/workspace"
)

// EditOutput is the edit stage's contribution.
type EditOutput struct {
	Results []workspace.ApplyResult `json:"results"`
	Skipped []string                `json:"skipped,omitempty"`
}

// EditStage materializes the plan's actions as workspace writes. The
// enhancement artifacts live under .promptforge/ so the stage never
// rewrites user code directly.
type EditStage struct {
	ws *workspace.Workspace
}

// NewEditStage creates the stage.
func NewEditStage(ws *workspace.Workspace) *EditStage {
	return &EditStage{ws: ws}
}

func (s *EditStage) Name() string { return NameEdit }

func (s *EditStage) Cost() pipeline.Cost { return pipeline.Cost{Files: 4} }

// CanRetry: writes hit the same transient filesystem conditions reads
// do; a narrowed retry writes fewer files.
func (s *EditStage) CanRetry(err error) bool { return pipeline.Transient(err) }

func (s *EditStage) Execute(_ context.Context, pc *pipeline.Context) (*pipeline.Delta, error) {
	plan, ok := output[Plan](pc, NamePlan)
	if !ok || len(plan.Actions) == 0 {
		return &pipeline.Delta{
			Data:     map[string]any{NameEdit: EditOutput{}},
			Warnings: []string{"no plan available; nothing to edit"},
		}, nil
	}

	var edits []workspace.Edit
	var skipped []string
	for _, a := range plan.Actions {
		content, renderable := s.render(a, pc)
		if !renderable {
			skipped = append(skipped, a.Path)
			continue
		}
		edits = append(edits, workspace.Edit{
			Path:    a.Path,
			Content: content,
			Append:  a.Kind == "append",
		})
	}

	// Artifact files are markdown; make sure the scope admits them even
	// when the caller restricted types to source files.
	applyScope := pc.Scope.Clone()
	if !workspace.Allowed(planDir+"/plan.md", applyScope.AllowedFileTypes) {
		applyScope.AllowedFileTypes = append(applyScope.AllowedFileTypes, ".md")
	}

	results, err := s.ws.Apply(edits, applyScope)
	if err != nil {
		return nil, err
	}

	d := delta(NameEdit, EditOutput{Results: results, Skipped: skipped})
	d.Metadata = map[string]any{
		"written": len(results),
		"skipped": len(skipped),
	}
	return d, nil
}

// render produces the file content for a planned action.
func (s *EditStage) render(a PlanAction, pc *pipeline.Context) (string, bool) {
	switch a.Path {
	case planDir + "/plan.md":
		return renderPlanBrief(pc), true
	case planDir + "/context.md":
		return renderContextDigest(pc), true
	default:
		return "", false
	}
}

func renderPlanBrief(pc *pipeline.Context) string {
	plan, _ := output[Plan](pc, NamePlan)

	var sb strings.Builder
	sb.WriteString("# Enhancement Brief\n\n")
	fmt.Fprintf(&sb, "- Request: %s\n", strings.TrimSpace(pc.Request.Prompt))
	fmt.Fprintf(&sb, "- Tool: %s\n", pc.Tool)
	fmt.Fprintf(&sb, "- Generated: %s\n\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&sb, "%s\n", plan.Summary)

	if len(plan.TargetFiles) > 0 {
		sb.WriteString("\n## Target files\n\n")
		for _, f := range plan.TargetFiles {
			fmt.Fprintf(&sb, "- %s\n", f)
		}
	}
	return sb.String()
}

func renderContextDigest(pc *pipeline.Context) string {
	var sb strings.Builder
	sb.WriteString("# Gathered Context\n")

	if facts, ok := output[RepoFacts](pc, NameRepoFacts); ok {
		fmt.Fprintf(&sb, "\n## Repository\n\n%s: %d files", facts.Name, facts.FileCount)
		if len(facts.Manifests) > 0 {
			fmt.Fprintf(&sb, "; manifests: %s", strings.Join(facts.Manifests, ", "))
		}
		sb.WriteString("\n")
	}
	if d, ok := output[DocsOutput](pc, NameDocs); ok && len(d.Results) > 0 {
		sb.WriteString("\n## Documentation\n\n")
		for _, r := range d.Results {
			fmt.Fprintf(&sb, "- **%s**: %s\n", r.Topic, r.Excerpt)
		}
	}
	if v, ok := output[SearchOutput](pc, NameVectorSearch); ok && len(v.Hits) > 0 {
		sb.WriteString("\n## Index hits\n\n")
		for _, h := range v.Hits {
			fmt.Fprintf(&sb, "- %s (%.2f): %s\n", h.ID, h.Score, h.Fragment)
		}
	}
	if sn, ok := output[SnippetsOutput](pc, NameSnippets); ok && len(sn.Matches) > 0 {
		sb.WriteString("\n## Snippets\n\n")
		for _, m := range sn.Matches {
			fmt.Fprintf(&sb, "- %s:%d: %s\n", m.Path, m.Line, m.Text)
		}
	}
	return sb.String()
}
