// Package classify decides why an exploit attempt failed. The verdict
// drives the refinement loop: a secure contract ends the session, a
// technical failure earns the attempt another cycle, and an analysis
// failure is recorded without ever being mistaken for security.
package classify

import (
	"fmt"
	"regexp"
	"strings"

	"vulnforge/internal/contract"
	"vulnforge/internal/types"
)

// signature is a deterministic failure pattern. When one matches the
// harness output we skip the model entirely: these failures have exactly
// one meaning and a mechanical fix.
type signature struct {
	name    string
	pattern *regexp.Regexp
	// build renders the classification, optionally using the first
	// capture group (the offending call) and the target's operations.
	build func(match []string, ops []contract.Operation) types.Classification
}

var signatures = []signature{
	{
		name:    "unknown_function",
		pattern: regexp.MustCompile(`(?:TypeError:\s*)?(\w+(?:\.\w+)*\.(\w+)) is not a function`),
		build: func(match []string, ops []contract.Operation) types.Classification {
			return types.Classification{
				Kind:        types.FailureTechnical,
				Explanation: fmt.Sprintf("the test calls %s, which does not exist on the contract", match[1]),
				SuggestedFix: fmt.Sprintf("replace the call to %q with one of the contract's callable operations:\n%s",
					match[2], contract.Describe(ops)),
				ValidOperations: contract.Names(ops),
			}
		},
	},
	{
		name:    "unrecognized_selector",
		pattern: regexp.MustCompile(`(?i)unrecognized (?:function )?selector|function selector was not recognized`),
		build: func(match []string, ops []contract.Operation) types.Classification {
			return types.Classification{
				Kind:        types.FailureTechnical,
				Explanation: "the transaction targeted a function selector the contract does not implement",
				SuggestedFix: fmt.Sprintf("call only operations the contract actually exposes:\n%s",
					contract.Describe(ops)),
				ValidOperations: contract.Names(ops),
			}
		},
	},
	{
		name:    "nonpayable_value",
		pattern: regexp.MustCompile(`(?i)non-payable (?:function|method|constructor)|Cannot send value to non-payable`),
		build: func(match []string, ops []contract.Operation) types.Classification {
			return types.Classification{
				Kind:        types.FailureTechnical,
				Explanation: "the test sent ether to a non-payable entry point",
				SuggestedFix: fmt.Sprintf("send value only to payable operations:\n%s",
					describePayable(ops)),
				ValidOperations: contract.Names(ops),
			}
		},
	},
	{
		name:    "deployment_failure",
		pattern: regexp.MustCompile(`(?i)(?:contract deployment failed|cannot deploy|invalid bytecode|constructor reverted)`),
		build: func(match []string, ops []contract.Operation) types.Classification {
			return types.Classification{
				Kind:            types.FailureTechnical,
				Explanation:     "contract deployment failed before any exploit logic ran",
				SuggestedFix:    "fix the deployment setup (constructor arguments, linked libraries, deploy value) before the attack sequence",
				ValidOperations: contract.Names(ops),
			}
		},
	},
	{
		name:    "gas_estimation",
		pattern: regexp.MustCompile(`(?i)cannot estimate gas|gas required exceeds allowance|UNPREDICTABLE_GAS_LIMIT`),
		build: func(match []string, ops []contract.Operation) types.Classification {
			return types.Classification{
				Kind:            types.FailureTechnical,
				Explanation:     "gas estimation failed, the transaction reverts during simulation",
				SuggestedFix:    "the call as written always reverts; check preconditions (balances, allowances, call order) or pass an explicit gasLimit",
				ValidOperations: contract.Names(ops),
			}
		},
	},
	{
		name:    "syntax_error",
		pattern: regexp.MustCompile(`SyntaxError: (.+)`),
		build: func(match []string, ops []contract.Operation) types.Classification {
			return types.Classification{
				Kind:            types.FailureTechnical,
				Explanation:     fmt.Sprintf("the generated test does not parse: %s", strings.TrimSpace(match[1])),
				SuggestedFix:    "produce syntactically valid test code",
				ValidOperations: contract.Names(ops),
			}
		},
	},
	{
		name:    "undefined_reference",
		pattern: regexp.MustCompile(`ReferenceError: (\w+) is not defined`),
		build: func(match []string, ops []contract.Operation) types.Classification {
			return types.Classification{
				Kind:            types.FailureTechnical,
				Explanation:     fmt.Sprintf("the test references %q, which is never declared", match[1]),
				SuggestedFix:    fmt.Sprintf("declare or import %q before use, or remove the reference", match[1]),
				ValidOperations: contract.Names(ops),
			}
		},
	},
}

func describePayable(ops []contract.Operation) string {
	var payable []contract.Operation
	for _, op := range ops {
		if op.Payable {
			payable = append(payable, op)
		}
	}
	if len(payable) == 0 {
		return "(the contract has no payable operations; do not send value at all)"
	}
	return contract.Describe(payable)
}

// matchSignature returns the deterministic classification for the output,
// if any signature applies. The first match wins; signatures are ordered
// from most to least specific.
func matchSignature(output string, ops []contract.Operation) (types.Classification, bool) {
	for _, sig := range signatures {
		if m := sig.pattern.FindStringSubmatch(output); m != nil {
			c := sig.build(m, ops)
			c.Confidence = 1.0
			return c, true
		}
	}
	return types.Classification{}, false
}
