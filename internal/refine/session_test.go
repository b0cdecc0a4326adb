package refine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"vulnforge/internal/adapt"
	"vulnforge/internal/types"
)

func newTestSession(p *mockProducer, e *mockExecutor, c *mockClassifier, opts ...SessionOption) *Session {
	if p == nil {
		p = &mockProducer{}
	}
	if e == nil {
		e = &mockExecutor{}
	}
	if c == nil {
		c = &mockClassifier{}
	}
	return NewSession(p, e, c, &mockArtifacts{}, opts...)
}

func TestSession_ExploitConfirmedFirstAttempt(t *testing.T) {
	exec := &mockExecutor{executeFn: func(ctx context.Context, path string) (types.ExecutionResult, error) {
		return types.ExecutionResult{Success: true, Output: "2 passing", ExitCode: 0}, nil
	}}
	sink := &recordingSink{}
	s := newTestSession(nil, exec, nil, WithStatusSink(sink))

	result := s.Run(context.Background(), "run1", testTarget("t1"))

	if result.Outcome != types.OutcomeExploitConfirmed {
		t.Fatalf("Outcome = %s", result.Outcome)
	}
	if result.Cycles != 1 || len(result.Attempts) != 1 {
		t.Errorf("Cycles = %d, Attempts = %d", result.Cycles, len(result.Attempts))
	}
	if result.SessionID == "" {
		t.Error("SessionID missing")
	}

	want := []types.Phase{types.PhaseStarted, types.PhaseCycleStarted, types.PhaseExploitSuccess, types.PhaseComplete}
	if diff := cmp.Diff(want, sink.seen()); diff != "" {
		t.Errorf("phase sequence mismatch (-want +got):\n%s", diff)
	}
}

func TestSession_SecureOnSecondCycleStopsEarly(t *testing.T) {
	cls := &mockClassifier{classifyFn: func(ctx context.Context, target types.Target, code string, result types.ExecutionResult) types.Classification {
		if strings.Contains(code, "attempt2") {
			return types.Classification{IsSecure: true, Explanation: "guard rejected the nested call"}
		}
		return types.Classification{Kind: types.FailureTechnical, Explanation: "bad call"}
	}}
	s := newTestSession(nil, nil, cls, WithMaxCycles(5))

	result := s.Run(context.Background(), "run1", testTarget("t1"))

	if result.Outcome != types.OutcomeContractSecure {
		t.Fatalf("Outcome = %s", result.Outcome)
	}
	if result.Cycles != 2 || len(result.Attempts) != 2 {
		t.Errorf("secure verdict must stop immediately: cycles=%d attempts=%d", result.Cycles, len(result.Attempts))
	}
	if !strings.Contains(result.Explanation, "guard rejected") {
		t.Errorf("Explanation = %q", result.Explanation)
	}
}

func TestSession_BudgetExhaustionIsInconclusive(t *testing.T) {
	s := newTestSession(nil, nil, nil, WithMaxCycles(3))

	result := s.Run(context.Background(), "run1", testTarget("t1"))

	if result.Outcome != types.OutcomeInconclusive {
		t.Fatalf("Outcome = %s", result.Outcome)
	}
	if result.Cycles != 3 || len(result.Attempts) != 3 {
		t.Errorf("cycles=%d attempts=%d, want exactly the budget", result.Cycles, len(result.Attempts))
	}
	if !strings.Contains(result.Explanation, "budget exhausted") {
		t.Errorf("Explanation = %q", result.Explanation)
	}
}

func TestSession_NeverExceedsBudget(t *testing.T) {
	prod := &mockProducer{}
	s := NewSession(prod, &mockExecutor{}, &mockClassifier{}, &mockArtifacts{}, WithMaxCycles(4))

	s.Run(context.Background(), "run1", testTarget("t1"))

	if n := len(prod.seen()); n != 4 {
		t.Errorf("producer called %d times, budget is 4", n)
	}
}

func TestSession_GenerationFailureIsTerminalError(t *testing.T) {
	genErr := errors.New("service unavailable")
	prod := &mockProducer{produceFn: func(ctx context.Context, req adapt.Request) (string, []string, error) {
		if req.Attempt == 2 {
			return "", nil, genErr
		}
		return "await vault.withdraw(1);", nil, nil
	}}
	s := newTestSession(prod, nil, nil)

	result := s.Run(context.Background(), "run1", testTarget("t1"))

	if result.Outcome != types.OutcomeError {
		t.Fatalf("generation failure must be a terminal error, got %s", result.Outcome)
	}
	if result.Outcome == types.OutcomeContractSecure {
		t.Fatal("generation failure coerced into a security verdict")
	}
	if !errors.Is(result.Err, genErr) {
		t.Errorf("Err = %v", result.Err)
	}
	if result.Cycles != 1 {
		t.Errorf("Cycles = %d, the completed first attempt should count", result.Cycles)
	}
}

func TestSession_TierEscalationReachesProducer(t *testing.T) {
	prod := &mockProducer{}
	s := NewSession(prod, &mockExecutor{}, &mockClassifier{}, &mockArtifacts{}, WithMaxCycles(5))

	s.Run(context.Background(), "run1", testTarget("t1"))

	wantTiers := []types.Tier{
		types.TierStandard, types.TierStandard,
		types.TierAlternative, types.TierAlternative,
		types.TierMinimal,
	}
	reqs := prod.seen()
	if len(reqs) != len(wantTiers) {
		t.Fatalf("producer called %d times", len(reqs))
	}
	for i, req := range reqs {
		if req.Tier != wantTiers[i] {
			t.Errorf("attempt %d tier = %s, want %s", i+1, req.Tier, wantTiers[i])
		}
	}
}

func TestSession_RefinementContextFlowsForward(t *testing.T) {
	cls := &mockClassifier{classifyFn: func(ctx context.Context, target types.Target, code string, result types.ExecutionResult) types.Classification {
		return types.Classification{Kind: types.FailureTechnical, Explanation: "verdict for " + code}
	}}
	prod := &mockProducer{}
	s := NewSession(prod, &mockExecutor{}, cls, &mockArtifacts{}, WithMaxCycles(3))

	s.Run(context.Background(), "run1", testTarget("t1"))

	reqs := prod.seen()
	if reqs[0].Previous != nil || reqs[0].Verdict != nil {
		t.Error("first attempt must carry no refinement context")
	}
	if reqs[1].Previous == nil || reqs[1].Previous.Number != 1 {
		t.Errorf("attempt 2 should see attempt 1: %+v", reqs[1].Previous)
	}
	if reqs[1].Verdict == nil || !strings.Contains(reqs[1].Verdict.Explanation, "attempt1") {
		t.Errorf("attempt 2 should see attempt 1's verdict: %+v", reqs[1].Verdict)
	}
	if len(reqs[2].Tried) == 0 {
		t.Error("attempt 3 should see tried sequences")
	}
}

func TestSession_JournalRecordsEveryCycle(t *testing.T) {
	journal := &mockJournal{}
	s := newTestSession(nil, nil, nil, WithMaxCycles(2), WithJournal(journal))

	s.Run(context.Background(), "run-j", testTarget("t1"))

	recs := journal.all()
	if len(recs) != 2 {
		t.Fatalf("journaled %d cycles, want 2", len(recs))
	}
	for i, rec := range recs {
		if rec.RunID != "run-j" || rec.TargetID != "t1" || rec.Attempt != i+1 {
			t.Errorf("record %d = %+v", i, rec)
		}
		if rec.Outcome != "technical" {
			t.Errorf("record %d outcome = %q", i, rec.Outcome)
		}
	}
}

func TestSession_TimeoutJournaledAsTimeout(t *testing.T) {
	exec := &mockExecutor{executeFn: func(ctx context.Context, path string) (types.ExecutionResult, error) {
		return types.ExecutionResult{Success: false, TimedOut: true, ExitCode: -1}, nil
	}}
	journal := &mockJournal{}
	s := newTestSession(nil, exec, nil, WithMaxCycles(1), WithJournal(journal))

	result := s.Run(context.Background(), "r", testTarget("t1"))

	if result.Outcome != types.OutcomeInconclusive {
		t.Errorf("Outcome = %s", result.Outcome)
	}
	recs := journal.all()
	if len(recs) != 1 || recs[0].Outcome != "timeout" {
		t.Errorf("records = %+v", recs)
	}
}

func TestSession_NilSinkIsValid(t *testing.T) {
	s := newTestSession(nil, nil, nil, WithMaxCycles(1))
	// Must not panic with no sink attached.
	s.Run(context.Background(), "r", testTarget("t1"))
}

func TestSession_CanceledExecutionIsNotATimeout(t *testing.T) {
	exec := &mockExecutor{executeFn: func(ctx context.Context, path string) (types.ExecutionResult, error) {
		return types.ExecutionResult{Success: false, Canceled: true, ExitCode: -1}, nil
	}}
	journal := &mockJournal{}
	s := newTestSession(nil, exec, nil, WithMaxCycles(3), WithJournal(journal))

	result := s.Run(context.Background(), "r", testTarget("t1"))

	if result.Outcome != types.OutcomeError {
		t.Fatalf("Outcome = %s, cancellation must be terminal", result.Outcome)
	}
	if result.Err == nil {
		t.Error("Err missing for canceled execution")
	}
	if !strings.Contains(result.Explanation, "canceled") {
		t.Errorf("Explanation = %q", result.Explanation)
	}
	recs := journal.all()
	if len(recs) != 1 || recs[0].Outcome != "canceled" {
		t.Errorf("records = %+v, cancellation must not be journaled as timeout", recs)
	}
}

func TestSession_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := newTestSession(nil, nil, nil)
	result := s.Run(ctx, "r", testTarget("t1"))

	if result.Outcome != types.OutcomeError {
		t.Errorf("Outcome = %s", result.Outcome)
	}
	if result.Err == nil {
		t.Error("Err missing for canceled session")
	}
}
