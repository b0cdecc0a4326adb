package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"vulnforge/internal/contract"
	"vulnforge/internal/generation"
	"vulnforge/internal/logging"
	"vulnforge/internal/types"
)

const maxOutputInPrompt = 8000

// Classifier produces a verdict for a failed exploit attempt. Cheap
// deterministic signatures run first; the model is consulted only for
// outputs no signature explains.
type Classifier struct {
	llm types.LLMClient
}

// New creates a Classifier backed by the given generation client.
func New(llm types.LLMClient) *Classifier {
	return &Classifier{llm: llm}
}

// Classify analyzes a failed execution and returns a verdict. It never
// returns an error: when the model itself fails, the verdict degrades to
// an analysis failure with IsSecure forced false, so a broken analysis
// pipeline can never certify a contract as secure.
func (c *Classifier) Classify(ctx context.Context, target types.Target, attemptCode string, result types.ExecutionResult) types.Classification {
	timer := logging.StartTimer(logging.CategoryClassify, "classify "+target.ID)
	defer timer.Stop()

	ops := contract.Enumerate(target)

	if result.TimedOut {
		return types.Classification{
			IsSecure:        false,
			Kind:            types.FailureTechnical,
			Explanation:     fmt.Sprintf("execution exceeded the time limit (%s); the test likely hangs on an unresolved promise or an unmined transaction", result.Elapsed),
			SuggestedFix:    "await every transaction, avoid unbounded loops, and keep the attack sequence short",
			ValidOperations: contract.Names(ops),
			Confidence:      1.0,
		}
	}

	if verdict, ok := matchSignature(result.Output, ops); ok {
		logging.Classify("Deterministic verdict for %s: %s", target.ID, verdict.Explanation)
		return verdict
	}

	verdict, err := c.classifyWithModel(ctx, target, attemptCode, result, ops)
	if err != nil {
		logging.Get(logging.CategoryClassify).Error("Model classification failed for %s: %v", target.ID, err)
		return types.Classification{
			IsSecure:        false,
			Kind:            types.FailureAnalysis,
			Explanation:     fmt.Sprintf("failure analysis itself failed: %v", err),
			SuggestedFix:    "retry with a different approach; the previous failure could not be analyzed",
			ValidOperations: contract.Names(ops),
		}
	}
	return verdict
}

// modelVerdict is the JSON shape the model is asked to produce.
type modelVerdict struct {
	Secure      bool    `json:"secure"`
	Explanation string  `json:"explanation"`
	Fix         string  `json:"suggested_fix"`
	Confidence  float64 `json:"confidence"`
}

const classifySystemPrompt = `You are a smart-contract security analyst reviewing the output of a failed exploit test.
Decide whether the failure means the contract successfully DEFENDED itself, or the test is merely BROKEN.

A contract defended itself when the exploit logic ran and the contract's guards (require checks, access control, reentrancy locks, balance accounting) rejected it.
A test is broken when the failure is mechanical: wrong function names, bad arguments, setup mistakes, assertion errors unrelated to the contract's defenses.

Respond with ONLY a JSON object:
{"secure": bool, "explanation": "one or two sentences", "suggested_fix": "concrete change for the next attempt, empty if secure", "confidence": 0.0-1.0}`

func (c *Classifier) classifyWithModel(ctx context.Context, target types.Target, attemptCode string, result types.ExecutionResult, ops []contract.Operation) (types.Classification, error) {
	output := result.Output
	if len(output) > maxOutputInPrompt {
		output = output[len(output)-maxOutputInPrompt:]
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Contract: %s\nClaimed vulnerability: %s\n\n", target.ContractName, target.Vulnerability)
	fmt.Fprintf(&prompt, "Callable operations:\n%s\n", contract.Describe(ops))
	fmt.Fprintf(&prompt, "Exploit test code:\n```javascript\n%s\n```\n\n", attemptCode)
	fmt.Fprintf(&prompt, "Execution output (exit code %d):\n```\n%s\n```\n", result.ExitCode, output)

	raw, err := c.llm.CompleteWithSystem(ctx, classifySystemPrompt, prompt.String())
	if err != nil {
		return types.Classification{}, fmt.Errorf("model call: %w", err)
	}

	jsonText, err := generation.ExtractJSON(raw)
	if err != nil {
		return types.Classification{}, fmt.Errorf("verdict has no JSON: %w", err)
	}

	var mv modelVerdict
	if err := json.Unmarshal([]byte(jsonText), &mv); err != nil {
		return types.Classification{}, fmt.Errorf("verdict does not parse: %w", err)
	}
	if strings.TrimSpace(mv.Explanation) == "" {
		return types.Classification{}, fmt.Errorf("verdict missing explanation")
	}

	verdict := types.Classification{
		IsSecure:        mv.Secure,
		Kind:            types.FailureTechnical,
		Explanation:     mv.Explanation,
		SuggestedFix:    mv.Fix,
		ValidOperations: contract.Names(ops),
		Confidence:      mv.Confidence,
	}
	logging.Classify("Model verdict for %s: secure=%v confidence=%.2f", target.ID, mv.Secure, mv.Confidence)
	return verdict, nil
}
