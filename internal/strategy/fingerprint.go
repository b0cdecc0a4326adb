// Package strategy tracks the approaches a refinement session has already
// tried. Attempts are fingerprinted by structural shape - the ordered
// sequence of invoked operations, whether value moves, how branchy the
// code is - so that cosmetically different but strategically identical
// attempts are recognized as repeats.
package strategy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"vulnforge/internal/logging"
)

// Signature is a structural fingerprint of one attempt.
type Signature string

// callPattern matches method invocations on a receiver, optionally routed
// through a signer: `vault.withdraw(`, `await token.connect(attacker).transfer(`.
var callPattern = regexp.MustCompile(`(?:\bawait\s+)?\b\w+(?:\.connect\([^)]*\))?\.(\w+)\s*\(`)

// valuePattern matches explicit value transfers in a generated test:
// call overrides (`{value: ...}`), raw sends, and payable deposits.
var valuePattern = regexp.MustCompile(`\bvalue\s*:|\bsendTransaction\b|\.transfer\s*\(|\.send\s*\(`)

var branchPattern = regexp.MustCompile(`\bif\s*\(|\bfor\s*\(|\bwhile\s*\(|\?\s*[^:]+:`)

// frameworkCalls are invocations that say nothing about exploit strategy.
// Test scaffolding and ethers plumbing are excluded from the operation
// sequence so fingerprints only reflect calls aimed at the target.
var frameworkCalls = map[string]bool{
	"describe": true, "it": true, "expect": true, "before": true,
	"beforeEach": true, "after": true, "afterEach": true,
	"log": true, "error": true, "warn": true,
	"to": true, "be": true, "equal": true, "eq": true, "emit": true,
	"revertedWith": true, "reverted": true, "changeEtherBalance": true,
	"getSigners": true, "getContractFactory": true, "deploy": true,
	"attach": true, "waitForDeployment": true, "deployed": true, "wait": true,
	"getAddress": true, "parseEther": true, "formatEther": true,
	"parseUnits": true, "formatUnits": true, "getBalance": true,
	"connect": true, "toString": true, "toNumber": true, "push": true,
}

// InvokedOperations returns the ordered sequence of target-operation
// invocations in an attempt's code, with framework scaffolding filtered
// out. The sequence preserves duplicates: calling withdraw twice is a
// different shape than calling it once.
func InvokedOperations(code string) []string {
	var ops []string
	for _, m := range callPattern.FindAllStringSubmatch(code, -1) {
		name := m[1]
		if frameworkCalls[name] {
			continue
		}
		ops = append(ops, name)
	}
	return ops
}

// branchDensity buckets control-flow density so small formatting changes
// don't perturb the fingerprint.
func branchDensity(code string) string {
	lines := strings.Count(code, "\n") + 1
	branches := len(branchPattern.FindAllString(code, -1))
	per100 := float64(branches) / float64(lines) * 100
	switch {
	case per100 >= 10:
		return "high"
	case per100 >= 3:
		return "mid"
	default:
		return "low"
	}
}

// Fingerprint computes the structural signature of an attempt's code.
// Two attempts with different literal text but the same invoked-operation
// sequence, value-transfer presence, and branch density share a signature.
func Fingerprint(code string) Signature {
	ops := InvokedOperations(code)
	hasValue := valuePattern.MatchString(code)

	canonical := fmt.Sprintf("ops=[%s];value=%v;branch=%s",
		strings.Join(ops, ","), hasValue, branchDensity(code))

	sum := sha256.Sum256([]byte(canonical))
	return Signature(hex.EncodeToString(sum[:8]))
}

// Tracker records the fingerprints a session has seen. The set is
// monotonically non-decreasing: signatures are recorded, never removed.
type Tracker struct {
	mu   sync.Mutex
	seen map[Signature][]string // signature -> operation sequence that produced it
}

// NewTracker creates an empty tracker for one session.
func NewTracker() *Tracker {
	return &Tracker{seen: make(map[Signature][]string)}
}

// IsNovel reports whether the signature has not been seen before.
// Repeats are flagged for the next generation request, not rejected.
func (t *Tracker) IsNovel(sig Signature) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, exists := t.seen[sig]
	return !exists
}

// Record registers an attempt's signature and the operation sequence
// behind it. Recording an already-seen signature is a no-op.
func (t *Tracker) Record(code string) Signature {
	sig := Fingerprint(code)
	ops := InvokedOperations(code)

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.seen[sig]; !exists {
		t.seen[sig] = ops
		logging.StrategyDebug("Recorded fingerprint %s (ops=%v)", sig, ops)
	} else {
		logging.Strategy("Repeated strategy detected: %s (ops=%v)", sig, ops)
	}
	return sig
}

// Size returns the number of distinct fingerprints recorded.
func (t *Tracker) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.seen)
}

// TriedSequences returns the distinct operation sequences already
// attempted, formatted for inclusion in a generation prompt.
func (t *Tracker) TriedSequences() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var seqs []string
	for _, ops := range t.seen {
		if len(ops) == 0 {
			continue
		}
		seqs = append(seqs, strings.Join(ops, " -> "))
	}
	return seqs
}
