package types

import (
	"context"
)

// LLMClient defines the minimal interface components use to call the
// generation service. Concrete implementations live in
// internal/generation; tests substitute function-field mocks.
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// StatusSink receives one-way phase notifications from a running session.
// Calls are fire-and-forget: implementations must not block, and callers
// never await acknowledgment. A nil sink is valid and means "no events".
type StatusSink interface {
	Notify(targetID string, phase Phase, detail string)
}
