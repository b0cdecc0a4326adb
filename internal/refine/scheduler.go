package refine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"vulnforge/internal/logging"
	"vulnforge/internal/types"
)

// DefaultStagger spaces out session starts so parallel sessions do not
// hit the generation service in one burst.
const DefaultStagger = 2 * time.Second

// sessionRunner is what the scheduler needs from a session.
type sessionRunner interface {
	Run(ctx context.Context, runID string, target types.Target) types.SessionResult
}

// Scheduler fans a batch of targets out to concurrent sessions. Each
// target gets an index-keyed result slot, so output order matches input
// order regardless of completion order, and one session's failure never
// disturbs its siblings.
type Scheduler struct {
	session sessionRunner
	stagger time.Duration
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithStagger overrides the inter-session start delay. Zero disables
// staggering.
func WithStagger(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d >= 0 {
			s.stagger = d
		}
	}
}

// NewScheduler creates a scheduler over the given session.
func NewScheduler(session sessionRunner, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{session: session, stagger: DefaultStagger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunAll refines every target concurrently and returns one result per
// target, in input order. Session number i starts after a delay of
// stagger x i. RunAll itself never fails: a panicking or erroring
// session yields an OutcomeError slot.
func (s *Scheduler) RunAll(ctx context.Context, targets []types.Target) types.ParallelResult {
	start := time.Now()
	runID := uuid.NewString()
	results := make([]types.SessionResult, len(targets))

	logging.Scheduler("Run %s: %d targets, stagger=%s", runID, len(targets), s.stagger)

	g, gctx := errgroup.WithContext(ctx)
	for i, target := range targets {
		i, target := i, target
		g.Go(func() error {
			delay := s.stagger * time.Duration(i)
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-gctx.Done():
					results[i] = types.SessionResult{
						Target:      target,
						Outcome:     types.OutcomeError,
						Explanation: "run canceled before session start",
						Err:         gctx.Err(),
					}
					return nil
				}
			}
			results[i] = s.runIsolated(gctx, runID, target)
			return nil
		})
	}
	// Sessions always return nil; Wait only gathers completion.
	g.Wait()

	elapsed := time.Since(start)
	logging.Scheduler("Run %s complete in %s", runID, elapsed.Round(time.Millisecond))
	return types.ParallelResult{
		RunID:    runID,
		Results:  results,
		Duration: elapsed,
	}
}

// runIsolated converts a session panic into an error result so a single
// misbehaving session cannot take down the run.
func (s *Scheduler) runIsolated(ctx context.Context, runID string, target types.Target) (result types.SessionResult) {
	defer func() {
		if r := recover(); r != nil {
			logging.Get(logging.CategoryScheduler).Error("Session panic for %s: %v", target.ID, r)
			result = types.SessionResult{
				Target:      target,
				Outcome:     types.OutcomeError,
				Explanation: "session terminated by internal panic",
				Err:         fmt.Errorf("session panic: %v", r),
			}
		}
	}()
	return s.session.Run(ctx, runID, target)
}
