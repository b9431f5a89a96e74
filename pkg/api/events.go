package api

// StreamEventType identifies the type of a streaming event.
type StreamEventType string

// Events used by the "sse" stream format. The "raw" format writes
// fragment text verbatim and has no events.
const (
	EventAnswerCreated   StreamEventType = "answer.created"
	EventAnswerDelta     StreamEventType = "answer.delta"
	EventAnswerSources   StreamEventType = "answer.sources"
	EventAnswerCompleted StreamEventType = "answer.completed"
	EventAnswerFailed    StreamEventType = "answer.failed"
	EventAnswerCancelled StreamEventType = "answer.cancelled"
)

// StreamEvent is a single server-sent event in an SSE-formatted answer.
type StreamEvent struct {
	Type           StreamEventType `json:"type"`
	SequenceNumber int             `json:"sequence_number"`
	Delta          string          `json:"delta,omitempty"`
	Answer         *Answer         `json:"answer,omitempty"`
}

// IsTerminal reports whether the event ends a stream.
func (t StreamEventType) IsTerminal() bool {
	return t == EventAnswerCompleted || t == EventAnswerFailed || t == EventAnswerCancelled
}
