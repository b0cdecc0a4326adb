// Package adapt turns refinement state into the next exploit attempt.
// The Requester builds generation prompts with escalating context (what
// failed, what the contract actually exposes, what was already tried),
// calls the generation service, and statically validates what comes back.
package adapt

import (
	"context"
	"fmt"
	"strings"

	"vulnforge/internal/contract"
	"vulnforge/internal/generation"
	"vulnforge/internal/logging"
	"vulnforge/internal/strategy"
	"vulnforge/internal/types"
)

const systemPrompt = `You are a smart-contract security researcher writing proof-of-concept exploit tests.
You produce Hardhat test files in JavaScript using ethers v6 and chai.
The test must deploy the target contract, perform the attack sequence, and assert that the exploit succeeded (funds drained, state corrupted, or access gained).
Output exactly one fenced javascript code block containing the complete test file. No prose outside the fence.`

// Request carries everything the Requester needs to produce one attempt.
// Previous and Verdict are nil on the first attempt of a session.
type Request struct {
	Target     types.Target
	Operations []contract.Operation
	Attempt    int // 1-based
	Tier       types.Tier
	Previous   *types.Attempt
	Verdict    *types.Classification
	Tried      []string // operation sequences already attempted
}

// Requester produces exploit attempt code from refinement state.
type Requester struct {
	llm types.LLMClient
}

// New creates a Requester backed by the given generation client.
func New(llm types.LLMClient) *Requester {
	return &Requester{llm: llm}
}

// Produce generates the next attempt's code. A generation failure is
// returned as an error and is terminal for the session; it is never
// papered over with placeholder code. The returned warnings are the
// non-fatal findings of static validation.
func (r *Requester) Produce(ctx context.Context, req Request) (string, []string, error) {
	timer := logging.StartTimer(logging.CategoryGenerate, fmt.Sprintf("produce attempt %d for %s", req.Attempt, req.Target.ID))
	defer timer.Stop()

	prompt := r.buildPrompt(req)

	raw, err := r.llm.CompleteWithSystem(ctx, systemPrompt, prompt)
	if err != nil {
		return "", nil, fmt.Errorf("generation failed for attempt %d: %w", req.Attempt, err)
	}

	code, err := generation.ExtractCodeBlock(raw)
	if err != nil {
		return "", nil, fmt.Errorf("generation produced no usable code for attempt %d: %w", req.Attempt, err)
	}

	code, warnings := Validate(code, req.Operations)
	for _, w := range warnings {
		logging.Generate("Attempt %d validation: %s", req.Attempt, w)
	}
	return code, warnings, nil
}

func (r *Requester) buildPrompt(req Request) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "TARGET CONTRACT: %s\n", req.Target.ContractName)
	fmt.Fprintf(&sb, "CLAIMED VULNERABILITY: %s (severity: %s)\n\n", req.Target.Vulnerability, req.Target.Severity)

	fmt.Fprintf(&sb, "CONTRACT SOURCE:\n```solidity\n%s\n```\n\n", req.Target.Source)

	sb.WriteString("CALLABLE OPERATIONS (call nothing outside this list):\n")
	sb.WriteString(contract.Describe(req.Operations))
	sb.WriteString("\n")

	if req.Previous != nil && req.Verdict != nil {
		fmt.Fprintf(&sb, "PREVIOUS ATTEMPT (#%d) FAILED.\n", req.Previous.Number)
		fmt.Fprintf(&sb, "Failure analysis: %s\n", req.Verdict.Explanation)
		if req.Verdict.SuggestedFix != "" {
			fmt.Fprintf(&sb, "Suggested fix: %s\n", req.Verdict.SuggestedFix)
		}
		fmt.Fprintf(&sb, "\nPREVIOUS CODE:\n```javascript\n%s\n```\n\n", req.Previous.Code)
	}

	if len(req.Tried) > 0 {
		sb.WriteString("PREVIOUSLY TRIED (operation sequences; do not repeat these shapes):\n")
		for _, seq := range req.Tried {
			fmt.Fprintf(&sb, "- %s\n", seq)
		}
		sb.WriteString("\n")
	}

	sb.WriteString(strategy.Directive(req.Tier))
	sb.WriteString("\n")
	return sb.String()
}
