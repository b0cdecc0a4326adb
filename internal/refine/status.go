package refine

import (
	"vulnforge/internal/logging"
	"vulnforge/internal/types"
)

// LogSink is a StatusSink that forwards phase transitions to the session
// log. Used when no consumer subscribes to live events.
type LogSink struct{}

// Notify implements types.StatusSink.
func (LogSink) Notify(targetID string, phase types.Phase, detail string) {
	logging.Session("[%s] %s: %s", targetID, phase, detail)
}

// StatusEvent is one phase transition delivered through a ChannelSink.
type StatusEvent struct {
	TargetID string
	Phase    types.Phase
	Detail   string
}

// ChannelSink delivers events on a buffered channel without ever
// blocking the emitting session: when the buffer is full the event is
// dropped. Consumers that care about completeness size the buffer for
// their run.
type ChannelSink struct {
	ch chan StatusEvent
}

// NewChannelSink creates a sink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer < 1 {
		buffer = 1
	}
	return &ChannelSink{ch: make(chan StatusEvent, buffer)}
}

// Notify implements types.StatusSink.
func (s *ChannelSink) Notify(targetID string, phase types.Phase, detail string) {
	select {
	case s.ch <- StatusEvent{TargetID: targetID, Phase: phase, Detail: detail}:
	default:
		logging.SchedulerDebug("Status event dropped for %s (%s): sink full", targetID, phase)
	}
}

// Events returns the receive side of the sink.
func (s *ChannelSink) Events() <-chan StatusEvent {
	return s.ch
}

// Close closes the event channel. Call only after all sessions finish.
func (s *ChannelSink) Close() {
	close(s.ch)
}
