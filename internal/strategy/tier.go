package strategy

import (
	"vulnforge/internal/types"
)

// Tier escalation is driven purely by attempt number:
//
//	attempt 1-2  -> standard     (direct exploit of the described vulnerability)
//	attempt 3-4  -> alternative  (force an angle not yet tried)
//	attempt 5+   -> minimal      (single-operation probes only)
//
// The thresholds are deliberate: two shots at the obvious approach, two at
// something different, then strip the test down until failures are
// attributable to one call.

// TierForAttempt returns the escalation tier for a given attempt number.
// Attempt numbers start at 1; zero and negative values map to standard.
func TierForAttempt(n int) types.Tier {
	switch {
	case n >= 5:
		return types.TierMinimal
	case n >= 3:
		return types.TierAlternative
	default:
		return types.TierStandard
	}
}

// Directive returns the prompt instruction block for a tier. The wording
// escalates in strictness: standard leaves the approach open, minimal
// forbids everything but a single operation.
func Directive(tier types.Tier) string {
	switch tier {
	case types.TierMinimal:
		return `STRATEGY TIER: minimal.
Write the simplest possible test: exactly ONE call to ONE contract operation,
followed by a single assertion. No loops, no helper contracts, no multi-step
setups. The goal is to isolate which single operation misbehaves.`
	case types.TierAlternative:
		return `STRATEGY TIER: alternative.
Previous direct approaches failed. Do NOT repeat any operation sequence
listed under PREVIOUSLY TRIED. Attack from a different angle: a different
entry point, a different call ordering, or a different actor setup.`
	default:
		return `STRATEGY TIER: standard.
Attempt a direct exploit of the described vulnerability using the contract's
documented operations.`
	}
}
