package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/rhuss/askdocs/pkg/api"
	"github.com/rhuss/askdocs/pkg/prompt"
	"github.com/rhuss/askdocs/pkg/transport"
)

// StreamFormat selects how a streaming answer is framed on the wire.
type StreamFormat string

const (
	// FormatRaw writes fragment text verbatim, followed by the sources block.
	FormatRaw StreamFormat = "raw"

	// FormatSSE wraps every fragment in an answer.delta server-sent event.
	FormatSSE StreamFormat = "sse"
)

// ParseStreamFormat validates a format name. Empty selects FormatRaw.
func ParseStreamFormat(s string) (StreamFormat, error) {
	switch StreamFormat(s) {
	case "", FormatRaw:
		return FormatRaw, nil
	case FormatSSE:
		return FormatSSE, nil
	default:
		return "", fmt.Errorf("unknown stream format %q (want raw or sse)", s)
	}
}

// writerState tracks the state of a stream writer.
type writerState int

const (
	writerIdle      writerState = iota // Initial state, nothing on the wire
	writerStreaming                    // Stream headers written
	writerCompleted                    // Stream closed or WriteAnswer called
)

// streamWriter implements transport.ResponseWriter for HTTP responses.
// Headers are committed lazily on the first fragment, so an error that
// happens before any text exists can still become a JSON error response.
type streamWriter struct {
	w      http.ResponseWriter
	rc     *http.ResponseController
	format StreamFormat

	mu     sync.Mutex
	state  writerState
	answer *api.Answer
	seq    int

	// onStart is called once with the answer ID, for in-flight registration.
	onStart func(id string)
}

var _ transport.ResponseWriter = (*streamWriter)(nil)

// newStreamWriter creates a ResponseWriter wrapping an http.ResponseWriter.
// onStart may be nil.
func newStreamWriter(w http.ResponseWriter, format StreamFormat, onStart func(id string)) *streamWriter {
	return &streamWriter{
		w:       w,
		rc:      http.NewResponseController(w),
		format:  format,
		onStart: onStart,
	}
}

// Start records the answer being streamed.
func (s *streamWriter) Start(_ context.Context, a *api.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != writerIdle || s.answer != nil {
		return errors.New("cannot start answer: writer already in use")
	}
	s.answer = a

	if s.onStart != nil {
		s.onStart(a.ID)
		s.onStart = nil
	}
	return nil
}

// WriteFragment writes one fragment and flushes it.
func (s *streamWriter) WriteFragment(_ context.Context, text string) error {
	if text == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == writerCompleted {
		return errors.New("cannot write fragment: writer is completed")
	}
	if err := s.commit(); err != nil {
		return err
	}

	var err error
	if s.format == FormatSSE {
		err = s.writeEvent(api.StreamEvent{Type: api.EventAnswerDelta, Delta: text})
	} else {
		_, err = fmt.Fprint(s.w, text)
	}
	if err != nil {
		return fmt.Errorf("failed to write fragment: %w", err)
	}

	return s.flush()
}

// Close finishes the stream. Completed and incomplete answers get the
// sources block; failed and cancelled answers do not.
func (s *streamWriter) Close(_ context.Context, a *api.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == writerCompleted {
		return errors.New("cannot close: writer is completed")
	}
	if err := s.commit(); err != nil {
		return err
	}
	defer func() { s.state = writerCompleted }()

	succeeded := a.Status == api.AnswerStatusCompleted || a.Status == api.AnswerStatusIncomplete

	if s.format == FormatRaw {
		if succeeded {
			if _, err := fmt.Fprint(s.w, prompt.SourcesSeparator+a.Sources); err != nil {
				return fmt.Errorf("failed to write sources: %w", err)
			}
		}
		return s.flush()
	}

	if succeeded && a.Sources != "" {
		if err := s.writeEvent(api.StreamEvent{Type: api.EventAnswerSources, Delta: a.Sources}); err != nil {
			return err
		}
	}

	terminal := api.EventAnswerCompleted
	switch a.Status {
	case api.AnswerStatusFailed:
		terminal = api.EventAnswerFailed
	case api.AnswerStatusCancelled:
		terminal = api.EventAnswerCancelled
	}
	if err := s.writeEvent(api.StreamEvent{Type: terminal, Answer: a}); err != nil {
		return err
	}
	if _, err := fmt.Fprint(s.w, "data: [DONE]\n\n"); err != nil {
		return fmt.Errorf("failed to write [DONE]: %w", err)
	}
	return s.flush()
}

// WriteAnswer sends a complete non-streaming JSON answer.
// This is mutually exclusive with the streaming methods.
func (s *streamWriter) WriteAnswer(_ context.Context, a *api.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == writerStreaming {
		return errors.New("cannot write answer: streaming has already started")
	}
	if s.state == writerCompleted {
		return errors.New("cannot write answer: writer is completed")
	}

	s.w.Header().Set("Content-Type", "application/json")
	s.state = writerCompleted

	if err := json.NewEncoder(s.w).Encode(a); err != nil {
		return fmt.Errorf("failed to encode answer: %w", err)
	}
	return nil
}

// Flush ensures buffered data is sent to the client.
func (s *streamWriter) Flush() error {
	return s.rc.Flush()
}

// commit writes the stream headers on first use. Caller holds mu.
func (s *streamWriter) commit() error {
	if s.state != writerIdle {
		return nil
	}

	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	if s.answer != nil {
		h.Set("X-Answer-ID", s.answer.ID)
	}
	s.w.WriteHeader(http.StatusOK)
	s.state = writerStreaming

	if s.format == FormatSSE && s.answer != nil {
		created := *s.answer
		return s.writeEvent(api.StreamEvent{Type: api.EventAnswerCreated, Answer: &created})
	}
	return nil
}

// writeEvent writes one SSE event:
//
//	event: {type}\n
//	data: {json}\n
//	\n
//
// Caller holds mu.
func (s *streamWriter) writeEvent(ev api.StreamEvent) error {
	s.seq++
	ev.SequenceNumber = s.seq

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}

func (s *streamWriter) flush() error {
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}
	return nil
}

// currentState returns the writer state.
func (s *streamWriter) currentState() writerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// startedAnswer returns the answer passed to Start, if any.
func (s *streamWriter) startedAnswer() *api.Answer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answer
}
