package stages

import (
	"context"
	"fmt"
	"strings"

	"github.com/ebarroso/promptforge/internal/pipeline"
)

// ValidationReport is the validation stage's contribution.
type ValidationReport struct {
	Valid    bool     `json:"valid"`
	Checked  int      `json:"checked"`
	Problems []string `json:"problems,omitempty"`
}

// ValidateStage checks the edit results against the plan: every
// planned write must have landed, inside the artifact directory, and
// nothing outside the plan may have been written.
type ValidateStage struct{}

// NewValidateStage creates the stage.
func NewValidateStage() *ValidateStage {
	return &ValidateStage{}
}

func (s *ValidateStage) Name() string { return NameValidate }

func (s *ValidateStage) Cost() pipeline.Cost { return pipeline.Cost{Files: 1} }

// CanRetry: validation is deterministic over already-merged data.
func (s *ValidateStage) CanRetry(err error) bool { return false }

func (s *ValidateStage) Execute(_ context.Context, pc *pipeline.Context) (*pipeline.Delta, error) {
	report := ValidationReport{Valid: true}

	plan, havePlan := output[Plan](pc, NamePlan)
	edit, haveEdit := output[EditOutput](pc, NameEdit)

	if !havePlan {
		report.Valid = false
		report.Problems = append(report.Problems, "no plan was produced")
	}
	if !haveEdit {
		report.Valid = false
		report.Problems = append(report.Problems, "no edits were applied")
	}

	if havePlan && haveEdit {
		written := make(map[string]bool, len(edit.Results))
		for _, r := range edit.Results {
			written[r.Path] = true
			report.Checked++
			if !strings.HasPrefix(r.Path, planDir+"/") {
				report.Valid = false
				report.Problems = append(report.Problems,
					fmt.Sprintf("edit outside artifact directory: %s", r.Path))
			}
		}
		for _, a := range plan.Actions {
			if !written[a.Path] {
				report.Problems = append(report.Problems,
					fmt.Sprintf("planned action not applied: %s", a.Path))
			}
		}
	}

	d := delta(NameValidate, report)
	if len(report.Problems) > 0 {
		d.Warnings = []string{fmt.Sprintf("validation found %d problem(s)", len(report.Problems))}
	}
	return d, nil
}
