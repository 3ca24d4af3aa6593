package stages

import (
	"context"

	"github.com/ebarroso/promptforge/internal/pipeline"
	"github.com/ebarroso/promptforge/internal/policy"
)

// GateOutput is the gate stage's contribution when the request passes.
type GateOutput struct {
	Allowed         bool     `json:"allowed"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// GateStage runs policy enforcement over the request and the planned
// actions. A block is fatal: the stage returns a BlockedError and the
// orchestrator halts the pipeline.
type GateStage struct {
	engine *policy.Engine
}

// NewGateStage creates the stage.
func NewGateStage(engine *policy.Engine) *GateStage {
	return &GateStage{engine: engine}
}

func (s *GateStage) Name() string { return NameGate }

// Cost: the gate is free — it must never be skipped for budget reasons.
func (s *GateStage) Cost() pipeline.Cost { return pipeline.Cost{} }

// CanRetry: policy decisions are final.
func (s *GateStage) CanRetry(err error) bool { return false }

func (s *GateStage) Execute(_ context.Context, pc *pipeline.Context) (*pipeline.Delta, error) {
	var actions []string
	if plan, ok := output[Plan](pc, NamePlan); ok {
		for _, a := range plan.Actions {
			actions = append(actions, a.Description+" "+a.Path)
		}
	}

	decision := s.engine.Enforce(requestText(pc), actions)
	if !decision.Allowed {
		violations := make([]string, len(decision.Violations))
		for i, v := range decision.Violations {
			violations[i] = v.Rule + ": " + v.Detail
		}
		return nil, &pipeline.BlockedError{Violations: violations}
	}

	return delta(NameGate, GateOutput{
		Allowed:         true,
		Recommendations: decision.Recommendations,
	}), nil
}
