package transport

import (
	"context"
	"errors"
	"sync"
)

// ErrAnswerCancelled is the cancellation cause of an answer cancelled
// through the registry. Handlers check it with context.Cause to tell an
// explicit cancellation apart from a disconnected client.
var ErrAnswerCancelled = errors.New("answer cancelled")

// InFlightRegistry maps the IDs of answers that are still streaming to
// the cancel function of their request context, so DELETE can stop them.
// It is safe for concurrent use.
type InFlightRegistry struct {
	mu      sync.Mutex
	entries map[string]context.CancelCauseFunc
}

// NewInFlightRegistry creates an empty registry.
func NewInFlightRegistry() *InFlightRegistry {
	return &InFlightRegistry{entries: make(map[string]context.CancelCauseFunc)}
}

// Register records a streaming answer. The returned release func drops
// the entry without cancelling; call it when the stream ends.
func (r *InFlightRegistry) Register(id string, cancel context.CancelCauseFunc) (release func()) {
	r.mu.Lock()
	r.entries[id] = cancel
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.entries, id)
		r.mu.Unlock()
	}
}

// Cancel stops the answer with cause ErrAnswerCancelled. It reports
// false when id is not streaming (finished, already cancelled or unknown).
func (r *InFlightRegistry) Cancel(id string) bool {
	r.mu.Lock()
	cancel, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()

	if !ok {
		return false
	}
	cancel(ErrAnswerCancelled)
	return true
}

// Len returns the number of streaming answers.
func (r *InFlightRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
