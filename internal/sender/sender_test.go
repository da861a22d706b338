package sender

import (
	"context"
	"testing"

	"github.com/irhub/irhub/internal/engine"
	"github.com/irhub/irhub/internal/protocol"
)

func TestBuildPlanPress(t *testing.T) {
	plan, err := BuildPlan(protocol.SendRequest{Mode: "press", PressInitial: "900 -450 560 -560"})
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if plan.Mode != "press" || len(plan.Files) != 1 || plan.Repeats != 0 {
		t.Fatalf("plan = %+v", plan)
	}
}

func TestBuildPlanHoldComputesRepeatCount(t *testing.T) {
	// initial sums to 1350us, repeat sums to 1120us, gap 45000us.
	// ceil((200000 - 1350) / (1120 + 45000)) = ceil(198650/46120) = 5
	req := protocol.SendRequest{
		Mode:        "hold",
		HoldMs:      200,
		HoldInitial: "900 -450",
		HoldRepeat:  "560 -560",
		HoldGapUs:   45000,
	}
	plan, err := BuildPlan(req)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if plan.Repeats != 5 {
		t.Fatalf("Repeats = %d, want 5", plan.Repeats)
	}
	if len(plan.Files) != 6 { // 1 initial + 5 repeats
		t.Fatalf("len(Files) = %d, want 6", len(plan.Files))
	}
	if plan.GapUs == nil || *plan.GapUs != 45000 {
		t.Fatalf("GapUs = %v, want 45000", plan.GapUs)
	}
}

func TestBuildPlanHoldRejectsMissingFields(t *testing.T) {
	if _, err := BuildPlan(protocol.SendRequest{Mode: "hold", PressInitial: "900 -450"}); err == nil {
		t.Fatalf("expected error for missing hold fields")
	}
}

func TestBuildPlanRejectsUnknownMode(t *testing.T) {
	if _, err := BuildPlan(protocol.SendRequest{Mode: "blink", PressInitial: "900 -450"}); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestExecuteWritesFilesAndCallsEngine(t *testing.T) {
	plan, err := BuildPlan(protocol.SendRequest{Mode: "press", PressInitial: "900 -450"})
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	fake := &engine.FakeEngine{SendResult: engine.SendResult{Stdout: "ok"}}

	result, err := Execute(context.Background(), fake, t.TempDir(), plan, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Stdout != "ok" {
		t.Fatalf("Stdout = %q, want ok", result.Stdout)
	}
	if len(fake.SendCalls) != 1 || len(fake.SendCalls[0].Paths) != 1 {
		t.Fatalf("SendCalls = %+v", fake.SendCalls)
	}
}
