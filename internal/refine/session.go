// Package refine contains the generate-execute-classify-adapt loop and
// the parallel scheduler that runs one refinement session per target.
package refine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"vulnforge/internal/adapt"
	"vulnforge/internal/contract"
	"vulnforge/internal/logging"
	"vulnforge/internal/store"
	"vulnforge/internal/strategy"
	"vulnforge/internal/types"
)

// DefaultMaxCycles bounds a session's refinement budget.
const DefaultMaxCycles = 5

// Producer generates attempt code from refinement state.
type Producer interface {
	Produce(ctx context.Context, req adapt.Request) (code string, warnings []string, err error)
}

// Executor runs one attempt artifact in the sandbox.
type Executor interface {
	Execute(ctx context.Context, artifactPath string) (types.ExecutionResult, error)
}

// Classifier judges why a failed execution failed.
type Classifier interface {
	Classify(ctx context.Context, target types.Target, attemptCode string, result types.ExecutionResult) types.Classification
}

// ArtifactStore persists attempt code.
type ArtifactStore interface {
	Save(targetID string, attemptNumber int, code string) (storageID, path string, err error)
}

// CycleJournal records completed cycles. Optional; journal failures are
// logged and never affect the session outcome.
type CycleJournal interface {
	Record(rec store.CycleRecord) error
}

// Session runs the refinement loop for a single target. Safe for
// sequential reuse; the scheduler gives each target its own goroutine
// but session state lives entirely in Run's frame.
type Session struct {
	maxCycles  int
	producer   Producer
	executor   Executor
	classifier Classifier
	artifacts  ArtifactStore
	journal    CycleJournal     // may be nil
	sink       types.StatusSink // may be nil
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithMaxCycles overrides the refinement budget.
func WithMaxCycles(n int) SessionOption {
	return func(s *Session) {
		if n > 0 {
			s.maxCycles = n
		}
	}
}

// WithJournal attaches a cycle journal.
func WithJournal(j CycleJournal) SessionOption {
	return func(s *Session) { s.journal = j }
}

// WithStatusSink attaches a status sink.
func WithStatusSink(sink types.StatusSink) SessionOption {
	return func(s *Session) { s.sink = sink }
}

// NewSession wires a session from its collaborators.
func NewSession(producer Producer, executor Executor, classifier Classifier, artifacts ArtifactStore, opts ...SessionOption) *Session {
	s := &Session{
		maxCycles:  DefaultMaxCycles,
		producer:   producer,
		executor:   executor,
		classifier: classifier,
		artifacts:  artifacts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run drives one target through the refinement loop and returns its
// single, unambiguous result. Run never panics outward and never returns
// an error: every failure mode maps to an outcome.
func (s *Session) Run(ctx context.Context, runID string, target types.Target) types.SessionResult {
	start := time.Now()
	sessionID := uuid.NewString()

	logging.Session("Session %s started: target=%s vuln=%q budget=%d",
		sessionID, target.ID, target.Vulnerability, s.maxCycles)
	s.notify(target.ID, types.PhaseStarted, target.Vulnerability)

	result := s.run(ctx, runID, sessionID, target)
	result.SessionID = sessionID
	result.Target = target
	result.Duration = time.Since(start)

	logging.Session("Session %s finished: target=%s outcome=%s cycles=%d elapsed=%s",
		sessionID, target.ID, result.Outcome, result.Cycles, result.Duration.Round(time.Millisecond))
	s.notify(target.ID, types.PhaseComplete, result.Outcome.String())
	return result
}

func (s *Session) run(ctx context.Context, runID, sessionID string, target types.Target) types.SessionResult {
	ops := contract.Enumerate(target)
	tracker := strategy.NewTracker()

	var (
		attempts   []types.Attempt
		lastResult types.ExecutionResult
		previous   *types.Attempt
		verdict    *types.Classification
	)

	for attemptNum := 1; attemptNum <= s.maxCycles; attemptNum++ {
		if err := ctx.Err(); err != nil {
			return types.SessionResult{
				Outcome:     types.OutcomeError,
				Explanation: "session canceled before completion",
				Cycles:      len(attempts),
				Attempts:    attempts,
				LastResult:  lastResult,
				Err:         err,
			}
		}

		tier := strategy.TierForAttempt(attemptNum)
		s.notify(target.ID, types.PhaseCycleStarted, fmt.Sprintf("attempt %d/%d (%s)", attemptNum, s.maxCycles, tier))
		cycleStart := time.Now()

		code, warnings, err := s.producer.Produce(ctx, adapt.Request{
			Target:     target,
			Operations: ops,
			Attempt:    attemptNum,
			Tier:       tier,
			Previous:   previous,
			Verdict:    verdict,
			Tried:      tracker.TriedSequences(),
		})
		if err != nil {
			// Generation failure is terminal and stays an error; it is
			// never evidence about the contract either way.
			s.journalCycle(runID, target.ID, attemptNum, tier, "", "error", cycleStart)
			return types.SessionResult{
				Outcome:     types.OutcomeError,
				Explanation: fmt.Sprintf("attempt generation failed on cycle %d", attemptNum),
				Cycles:      len(attempts),
				Attempts:    attempts,
				LastResult:  lastResult,
				Err:         err,
			}
		}

		storageID, artifactPath, err := s.artifacts.Save(target.ID, attemptNum, code)
		if err != nil {
			return types.SessionResult{
				Outcome:     types.OutcomeError,
				Explanation: fmt.Sprintf("could not persist attempt %d", attemptNum),
				Cycles:      len(attempts),
				Attempts:    attempts,
				LastResult:  lastResult,
				Err:         err,
			}
		}

		sig := tracker.Record(code)
		attempt := types.Attempt{
			Number:    attemptNum,
			Code:      code,
			StorageID: storageID,
			Tier:      tier,
			Warnings:  warnings,
			CreatedAt: time.Now().UTC(),
		}
		attempts = append(attempts, attempt)

		execResult, err := s.executor.Execute(ctx, artifactPath)
		if err != nil {
			s.journalCycle(runID, target.ID, attemptNum, tier, string(sig), "error", cycleStart)
			return types.SessionResult{
				Outcome:     types.OutcomeError,
				Explanation: fmt.Sprintf("sandbox could not run attempt %d", attemptNum),
				Cycles:      len(attempts),
				Attempts:    attempts,
				LastResult:  lastResult,
				Err:         err,
			}
		}
		lastResult = execResult

		if execResult.Canceled {
			// Cancellation is run teardown, not a verdict about the
			// contract; never classify it or mistake it for a timeout.
			s.journalCycle(runID, target.ID, attemptNum, tier, string(sig), "canceled", cycleStart)
			cause := ctx.Err()
			if cause == nil {
				cause = context.Canceled
			}
			return types.SessionResult{
				Outcome:     types.OutcomeError,
				Explanation: fmt.Sprintf("session canceled while attempt %d was executing", attemptNum),
				Cycles:      len(attempts),
				Attempts:    attempts,
				LastResult:  execResult,
				Err:         cause,
			}
		}

		if execResult.Success {
			s.journalCycle(runID, target.ID, attemptNum, tier, string(sig), "exploit-success", cycleStart)
			s.notify(target.ID, types.PhaseExploitSuccess, fmt.Sprintf("confirmed on attempt %d", attemptNum))
			return types.SessionResult{
				Outcome:     types.OutcomeExploitConfirmed,
				Explanation: fmt.Sprintf("exploit demonstrated on attempt %d", attemptNum),
				Cycles:      len(attempts),
				Attempts:    attempts,
				LastResult:  execResult,
			}
		}

		v := s.classifier.Classify(ctx, target, code, execResult)
		verdict = &v
		previous = &attempt

		if v.IsSecure {
			// Stop immediately: unused budget is traded for confidence
			// in the classifier's verdict.
			s.journalCycle(runID, target.ID, attemptNum, tier, string(sig), "secure", cycleStart)
			s.notify(target.ID, types.PhaseSecure, v.Explanation)
			return types.SessionResult{
				Outcome:     types.OutcomeContractSecure,
				Explanation: v.Explanation,
				Cycles:      len(attempts),
				Attempts:    attempts,
				LastResult:  execResult,
			}
		}

		s.journalCycle(runID, target.ID, attemptNum, tier, string(sig), cycleOutcome(execResult, v), cycleStart)
		s.notify(target.ID, types.PhaseRefining, v.Explanation)
	}

	explanation := fmt.Sprintf("refinement budget exhausted after %d attempts without a verdict", len(attempts))
	if verdict != nil {
		explanation = fmt.Sprintf("%s; last failure: %s", explanation, verdict.Explanation)
	}
	return types.SessionResult{
		Outcome:     types.OutcomeInconclusive,
		Explanation: explanation,
		Cycles:      len(attempts),
		Attempts:    attempts,
		LastResult:  lastResult,
	}
}

func cycleOutcome(result types.ExecutionResult, verdict types.Classification) string {
	switch {
	case result.TimedOut:
		return "timeout"
	case verdict.Kind == types.FailureAnalysis:
		return "analysis"
	default:
		return "technical"
	}
}

// notify forwards a phase transition to the sink, if any. Fire and
// forget: the sink contract forbids blocking, and the session never
// waits on acknowledgment.
func (s *Session) notify(targetID string, phase types.Phase, detail string) {
	if s.sink == nil {
		return
	}
	s.sink.Notify(targetID, phase, detail)
}

func (s *Session) journalCycle(runID, targetID string, attempt int, tier types.Tier, fingerprint, outcome string, started time.Time) {
	if s.journal == nil {
		return
	}
	err := s.journal.Record(store.CycleRecord{
		RunID:       runID,
		TargetID:    targetID,
		Attempt:     attempt,
		Tier:        tier,
		Fingerprint: fingerprint,
		Outcome:     outcome,
		ElapsedMS:   time.Since(started).Milliseconds(),
	})
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Journal write failed for %s attempt %d: %v", targetID, attempt, err)
	}
}
