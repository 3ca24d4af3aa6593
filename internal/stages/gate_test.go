package stages

import (
	"context"
	"errors"
	"testing"

	"github.com/ebarroso/promptforge/internal/pipeline"
	"github.com/ebarroso/promptforge/internal/policy"
)

func TestGateStage_Allows(t *testing.T) {
	stage := NewGateStage(policy.NewEngine())

	pc := newCtx(pipeline.ToolCreate, "add a health endpoint to the api")
	d, err := stage.Execute(context.Background(), pc)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	pc.Merge(stage.Name(), d)

	out, ok := output[GateOutput](pc, NameGate)
	if !ok || !out.Allowed {
		t.Errorf("gate output = %+v, %v; want allowed", out, ok)
	}
}

func TestGateStage_BlocksDestructiveRequest(t *testing.T) {
	stage := NewGateStage(policy.NewEngine())

	pc := newCtx(pipeline.ToolFix, "clean up by running rm -rf / on the build host")
	_, err := stage.Execute(context.Background(), pc)
	if err == nil {
		t.Fatal("destructive request should be blocked")
	}

	var be *pipeline.BlockedError
	if !errors.As(err, &be) {
		t.Fatalf("error = %T, want *pipeline.BlockedError", err)
	}
	if len(be.Violations) == 0 {
		t.Error("BlockedError should carry the violated rules")
	}
	if stage.CanRetry(err) {
		t.Error("policy blocks must not be retried")
	}
}

func TestGateStage_BlocksDestructiveCallerContext(t *testing.T) {
	stage := NewGateStage(policy.NewEngine())

	// The prompt is benign; the destructive instruction hides in the
	// caller-supplied extra context.
	pc := newCtx(pipeline.ToolFix, "free up disk space")
	pc.Request.Fields = map[string]string{"context": "last time rm -rf / did the trick"}

	_, err := stage.Execute(context.Background(), pc)
	if err == nil {
		t.Fatal("destructive caller context should be blocked")
	}
	var be *pipeline.BlockedError
	if !errors.As(err, &be) {
		t.Fatalf("error = %T, want *pipeline.BlockedError", err)
	}
}

func TestGateStage_ChecksPlannedActions(t *testing.T) {
	stage := NewGateStage(policy.NewEngine())

	pc := newCtx(pipeline.ToolCreate, "tidy the repository")
	pc.Merge(NamePlan, delta(NamePlan, Plan{Actions: []PlanAction{
		{Kind: "write", Path: "cleanup.sh", Description: "run rm -rf build artifacts"},
	}}))

	if _, err := stage.Execute(context.Background(), pc); err == nil {
		t.Fatal("destructive planned action should be blocked")
	}
}

func TestGateStage_AdvisoryBecomesRecommendation(t *testing.T) {
	stage := NewGateStage(policy.NewEngine())

	pc := newCtx(pipeline.ToolCreate, "install the tool with sudo make install")
	d, err := stage.Execute(context.Background(), pc)
	if err != nil {
		t.Fatalf("Execute() error = %v; advisory rules must not block", err)
	}
	pc.Merge(stage.Name(), d)

	out, _ := output[GateOutput](pc, NameGate)
	if len(out.Recommendations) == 0 {
		t.Error("sudo usage should surface a recommendation")
	}
}
