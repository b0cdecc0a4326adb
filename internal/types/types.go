// Package types defines the shared data model for vulnforge.
// These types cross package boundaries: a Target enters the refinement
// loop, Attempts and ExecutionResults flow through it, and a
// SessionResult comes out the other side.
package types

import (
	"time"
)

// Severity grades a vulnerability hypothesis.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Target is a vulnerability hypothesis under test against a smart contract.
// Immutable for the lifetime of its refinement session.
type Target struct {
	ID            string   `json:"id" yaml:"id"`
	ContractName  string   `json:"contract_name" yaml:"contract"`
	Vulnerability string   `json:"vulnerability" yaml:"vulnerability"`
	Severity      Severity `json:"severity" yaml:"severity"`

	// Source is the reference snapshot of the contract source taken when
	// the target was created. Sessions read this copy, never the file.
	Source string `json:"source" yaml:"-"`

	// ABIPath optionally points at a compiled ABI JSON artifact. When
	// present it is the authoritative list of callable operations.
	ABIPath string `json:"abi_path,omitempty" yaml:"abi,omitempty"`
}

// Tier is the escalation level used to produce an attempt.
// The transition table lives in internal/strategy.
type Tier string

const (
	// TierStandard is the direct approach used for attempts 1-2.
	TierStandard Tier = "standard"
	// TierAlternative forces an unexplored angle for attempts 3-4.
	TierAlternative Tier = "alternative"
	// TierMinimal restricts attempts 5+ to single-operation probes.
	TierMinimal Tier = "minimal"
)

// Attempt is one generated exploit test artifact within a session.
type Attempt struct {
	Number    int       `json:"number"`
	Code      string    `json:"code"`
	StorageID string    `json:"storage_id"` // collision-resistant artifact name on disk
	Tier      Tier      `json:"tier"`
	Warnings  []string  `json:"warnings,omitempty"` // non-fatal validation warnings
	CreatedAt time.Time `json:"created_at"`
}

// ExecutionResult is the immutable outcome of running one attempt in the
// sandbox. Produced exactly once per attempt. TimedOut means the
// sandbox's own wall-clock limit fired; Canceled means the caller's
// context was canceled while the attempt ran. They are distinct causes
// and never both set.
type ExecutionResult struct {
	Success  bool          `json:"success"`
	Output   string        `json:"output"` // combined stdout+stderr, bounded
	ExitCode int           `json:"exit_code"`
	Elapsed  time.Duration `json:"elapsed"`
	TimedOut bool          `json:"timed_out"`
	Canceled bool          `json:"canceled,omitempty"`
}

// FailureKind distinguishes why a failed execution failed.
type FailureKind string

const (
	// FailureTechnical means the test itself broke (bad call, missing
	// entry point, deploy error) - the contract was not exercised.
	FailureTechnical FailureKind = "technical_error"
	// FailureAnalysis means classification itself could not complete;
	// IsSecure is forced false so refinement continues.
	FailureAnalysis FailureKind = "analysis_error"
)

// Classification is the classifier's verdict on one execution result.
type Classification struct {
	IsSecure        bool        `json:"is_secure"`
	Kind            FailureKind `json:"failure_kind,omitempty"`
	Explanation     string      `json:"explanation"`
	SuggestedFix    string      `json:"suggested_fix,omitempty"`
	ValidOperations []string    `json:"valid_operations"`

	// Confidence is populated by the AI classification path (0 for the
	// deterministic path). Kept so a confidence-weighted decision can be
	// layered on later without a shape change.
	Confidence float64 `json:"confidence,omitempty"`
}

// Outcome is the terminal state of a refinement session.
type Outcome int

const (
	// OutcomeError means generation failed or the session panicked;
	// never silently coerced into OutcomeContractSecure.
	OutcomeError Outcome = iota
	// OutcomeExploitConfirmed means an attempt demonstrated the exploit.
	OutcomeExploitConfirmed
	// OutcomeContractSecure means the classifier judged the contract
	// resistant; the session stops immediately, trading unused budget
	// for confidence.
	OutcomeContractSecure
	// OutcomeInconclusive means the cycle budget ran out without a
	// verdict. Lower confidence than OutcomeContractSecure: exhaustion,
	// not demonstrated resistance.
	OutcomeInconclusive
)

func (o Outcome) String() string {
	switch o {
	case OutcomeExploitConfirmed:
		return "exploit_confirmed"
	case OutcomeContractSecure:
		return "contract_secure"
	case OutcomeInconclusive:
		return "inconclusive"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether the outcome ends a session. All outcomes are
// terminal; this exists so callers don't switch on the zero value by
// accident.
func (o Outcome) Terminal() bool {
	return o >= OutcomeError && o <= OutcomeInconclusive
}

// SessionResult is the single, unambiguous result of one refinement
// session. Every target yields exactly one.
type SessionResult struct {
	SessionID   string          `json:"session_id"`
	Target      Target          `json:"target"`
	Outcome     Outcome         `json:"outcome"`
	Explanation string          `json:"explanation"`
	Cycles      int             `json:"cycles"`
	Attempts    []Attempt       `json:"attempts"`
	LastResult  ExecutionResult `json:"last_result"`
	Duration    time.Duration   `json:"duration"`

	// Err carries the cause for OutcomeError results; nil otherwise.
	Err error `json:"-"`
}

// ParallelResult aggregates one scheduler run. Results preserve input
// order by target index, not completion order.
type ParallelResult struct {
	RunID    string          `json:"run_id"`
	Results  []SessionResult `json:"results"`
	Duration time.Duration   `json:"duration"`
}

// Phase names a refinement lifecycle transition emitted to the status sink.
type Phase string

const (
	PhaseStarted        Phase = "started"
	PhaseCycleStarted   Phase = "cycle-started"
	PhaseSecure         Phase = "secure"
	PhaseRefining       Phase = "refining"
	PhaseExploitSuccess Phase = "exploit-success"
	PhaseComplete       Phase = "complete"
)
