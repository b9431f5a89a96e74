package openaicompat

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/rhuss/askdocs/pkg/api"
	"github.com/rhuss/askdocs/pkg/debug"
	"github.com/rhuss/askdocs/pkg/provider"
)

// MaxChunkSize bounds a single line and the text accumulated for one
// JSON object split across lines.
const MaxChunkSize = 1 << 20

// doneSentinel marks the end of an OpenAI stream.
const doneSentinel = "[DONE]"

// ParseStream reads a completion stream from body and sends the decoded
// events on ch: zero or more non-empty text deltas, then exactly one Done
// or Error event. Nothing is sent after ctx is cancelled. The channel is
// NOT closed by this function; the caller is responsible for closing it.
//
// Accepted line formats, freely mixed:
//
//	data: {"choices":[{"delta":{"content":"Hel"}}]}
//	{"choices":[{"delta":{"content":"lo"}}]}
//	data: [DONE]
//
// A JSON object may span several lines; text is accumulated until it
// forms a complete value. SSE comments and the event, id and retry
// fields are ignored.
func ParseStream(ctx context.Context, body io.Reader, ch chan<- provider.ProviderEvent) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxChunkSize)

	var dec chunkDecoder

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		payload, ok := linePayload(scanner.Text())
		if !ok {
			continue
		}

		if payload == doneSentinel {
			if dec.pending() {
				slog.Warn("discarding incomplete chunk before end of stream",
					"data", debug.Truncate(dec.buf.String(), 200),
				)
			}
			send(ctx, ch, dec.doneEvent())
			return
		}

		fragments, err := dec.feed(payload)
		for _, f := range fragments {
			if !send(ctx, ch, provider.ProviderEvent{Type: provider.ProviderEventTextDelta, Delta: f}) {
				return
			}
		}
		if err != nil {
			send(ctx, ch, provider.ProviderEvent{Type: provider.ProviderEventError, Err: err})
			return
		}
	}

	if err := scanner.Err(); err != nil {
		// Context cancellation is not an error from our perspective.
		if ctx.Err() != nil {
			return
		}
		msg := "stream read error: " + err.Error()
		if errors.Is(err, bufio.ErrTooLong) {
			msg = "stream line exceeds maximum chunk size"
		}
		send(ctx, ch, provider.ProviderEvent{
			Type: provider.ProviderEventError,
			Err:  api.NewServerError(msg),
		})
		return
	}

	if dec.pending() {
		send(ctx, ch, provider.ProviderEvent{
			Type: provider.ProviderEventError,
			Err:  api.NewServerError("stream ended with a truncated chunk"),
		})
		return
	}

	send(ctx, ch, dec.doneEvent())
}

// send delivers ev unless ctx is cancelled first. It reports whether the
// event was delivered.
func send(ctx context.Context, ch chan<- provider.ProviderEvent, ev provider.ProviderEvent) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// linePayload extracts the JSON text carried by one stream line.
func linePayload(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, ":") {
		return "", false
	}

	if rest, ok := strings.CutPrefix(line, "data:"); ok {
		rest = strings.TrimSpace(rest)
		return rest, rest != ""
	}

	for _, field := range []string{"event:", "id:", "retry:"} {
		if strings.HasPrefix(line, field) {
			return "", false
		}
	}

	// Bare NDJSON, or a continuation line of a split object.
	return line, true
}

// chunkDecoder holds the state carried between lines of one stream.
type chunkDecoder struct {
	buf          strings.Builder
	finishReason string
	usage        *provider.Usage
}

func (d *chunkDecoder) pending() bool {
	return d.buf.Len() > 0
}

// feed consumes one payload and returns the text fragments it completes.
// Text is accumulated while it is a prefix of some valid JSON value. Once
// the accumulated text can no longer become valid it is dropped and the
// payload is retried on its own.
func (d *chunkDecoder) feed(payload string) ([]string, error) {
	if !d.pending() {
		switch jsonState(payload) {
		case jsonComplete:
			return d.decode(payload)
		case jsonInvalid:
			slog.Warn("skipping malformed chunk", "data", debug.Truncate(payload, 200))
			return nil, nil
		}
		d.buf.WriteString(payload)
		debug.Log("streaming", "accumulating partial chunk", "bytes", d.buf.Len())
		return nil, nil
	}

	candidate := d.buf.String() + "\n" + payload
	switch jsonState(candidate) {
	case jsonComplete:
		d.buf.Reset()
		return d.decode(candidate)
	case jsonInvalid:
		slog.Warn("skipping malformed chunk", "data", debug.Truncate(d.buf.String(), 200))
		d.buf.Reset()
		return d.feed(payload)
	}

	if len(candidate) > MaxChunkSize {
		d.buf.Reset()
		return nil, api.NewServerError("stream chunk exceeds maximum chunk size")
	}
	d.buf.Reset()
	d.buf.WriteString(candidate)
	debug.Log("streaming", "accumulating partial chunk", "bytes", d.buf.Len())
	return nil, nil
}

const (
	jsonComplete = iota
	jsonIncomplete
	jsonInvalid
)

// jsonState reports whether s is one complete JSON value, the beginning
// of one that more input could complete, or neither.
func jsonState(s string) int {
	dec := json.NewDecoder(strings.NewReader(s))
	var v json.RawMessage
	err := dec.Decode(&v)
	switch {
	case err == nil:
		if strings.TrimSpace(s[dec.InputOffset():]) != "" {
			return jsonInvalid
		}
		return jsonComplete
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return jsonIncomplete
	default:
		return jsonInvalid
	}
}

// decode interprets one complete JSON value.
func (d *chunkDecoder) decode(data string) ([]string, error) {
	var obj streamObject
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		slog.Warn("skipping malformed chunk",
			"error", err.Error(),
			"data", debug.Truncate(data, 200),
		)
		return nil, nil
	}

	if obj.Error != nil {
		msg := obj.Error.Message
		if msg == "" {
			msg = "backend reported an error"
		}
		return nil, api.NewModelError(msg)
	}

	if obj.Usage != nil {
		d.usage = translateUsage(obj.Usage)
	}

	var fragments []string
	for _, c := range obj.Choices {
		// n=1 is always requested; other choices are ignored.
		if c.Index != 0 {
			continue
		}
		if c.FinishReason != nil && *c.FinishReason != "" {
			d.finishReason = *c.FinishReason
		}
		if text := choiceText(c); text != "" {
			fragments = append(fragments, text)
		}
	}
	return fragments, nil
}

func (d *chunkDecoder) doneEvent() provider.ProviderEvent {
	return provider.ProviderEvent{
		Type:         provider.ProviderEventDone,
		FinishReason: d.finishReason,
		Usage:        d.usage,
	}
}

// choiceText returns the text of a streamed delta or of a whole message.
func choiceText(c streamChoice) string {
	if c.Delta != nil && c.Delta.Content != nil {
		return *c.Delta.Content
	}
	if c.Message != nil && c.Message.Content != nil {
		return *c.Message.Content
	}
	return ""
}
