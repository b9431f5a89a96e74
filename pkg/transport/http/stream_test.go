package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rhuss/askdocs/pkg/api"
)

func TestParseStreamFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    StreamFormat
		wantErr bool
	}{
		{"", FormatRaw, false},
		{"raw", FormatRaw, false},
		{"sse", FormatSSE, false},
		{"ndjson", "", true},
	}
	for _, tt := range tests {
		got, err := ParseStreamFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseStreamFormat(%q) = (%q, %v), want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestWriteAnswerJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newStreamWriter(rec, FormatRaw, nil)

	answer := &api.Answer{
		ID:     testAnswerID,
		Object: "answer",
		Status: api.AnswerStatusCompleted,
		Answer: "text",
	}
	if err := rw.WriteAnswer(context.Background(), answer); err != nil {
		t.Fatalf("WriteAnswer error: %v", err)
	}

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}
	var got api.Answer
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if got.ID != testAnswerID || got.Answer != "text" {
		t.Errorf("answer = %+v", got)
	}

	if err := rw.WriteAnswer(context.Background(), answer); err == nil {
		t.Error("second WriteAnswer should fail")
	}
	if err := rw.WriteFragment(context.Background(), "late"); err == nil {
		t.Error("WriteFragment after WriteAnswer should fail")
	}
}

func TestRawFragmentsVerbatim(t *testing.T) {
	rec := httptest.NewRecorder()
	var registered string
	rw := newStreamWriter(rec, FormatRaw, func(id string) { registered = id })
	ctx := context.Background()

	a := &api.Answer{ID: testAnswerID}
	if err := rw.Start(ctx, a); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if registered != testAnswerID {
		t.Errorf("onStart id = %q", registered)
	}
	if rec.Body.Len() != 0 || rw.currentState() != writerIdle {
		t.Error("Start must not commit the response")
	}

	for _, f := range []string{"**bold**", "", " data: not a field\n"} {
		if err := rw.WriteFragment(ctx, f); err != nil {
			t.Fatalf("WriteFragment(%q): %v", f, err)
		}
	}
	a.Status = api.AnswerStatusIncomplete
	a.Sources = "S"
	if err := rw.Close(ctx, a); err != nil {
		t.Fatalf("Close: %v", err)
	}

	want := "**bold** data: not a field\n\n\nSource:\n\nS"
	if got := rec.Body.String(); got != want {
		t.Errorf("body = %q, want %q", got, want)
	}
	if !rec.Flushed {
		t.Error("fragments should be flushed")
	}
	if rec.Header().Get("X-Answer-ID") != testAnswerID {
		t.Errorf("X-Answer-ID = %q", rec.Header().Get("X-Answer-ID"))
	}

	if err := rw.WriteFragment(ctx, "after close"); err == nil {
		t.Error("WriteFragment after Close should fail")
	}
	if err := rw.Close(ctx, a); err == nil {
		t.Error("second Close should fail")
	}
}

func TestRawEmptySourcesStillWritesSeparator(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newStreamWriter(rec, FormatRaw, nil)
	ctx := context.Background()

	rw.WriteFragment(ctx, "x")
	rw.Close(ctx, &api.Answer{Status: api.AnswerStatusCompleted})

	if got := rec.Body.String(); got != "x\n\nSource:\n\n" {
		t.Errorf("body = %q", got)
	}
}

func TestSSEEventSequence(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newStreamWriter(rec, FormatSSE, nil)
	ctx := context.Background()

	a := &api.Answer{ID: testAnswerID, Status: api.AnswerStatusInProgress}
	rw.Start(ctx, a)
	rw.WriteFragment(ctx, "Hel")
	rw.WriteFragment(ctx, "lo")
	a.Status = api.AnswerStatusCompleted
	a.Sources = "src"
	if err := rw.Close(ctx, a); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var events []api.StreamEvent
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok || data == "[DONE]" {
			continue
		}
		var ev api.StreamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			t.Fatalf("bad event JSON %q: %v", data, err)
		}
		events = append(events, ev)
	}

	wantTypes := []api.StreamEventType{
		api.EventAnswerCreated, api.EventAnswerDelta, api.EventAnswerDelta,
		api.EventAnswerSources, api.EventAnswerCompleted,
	}
	if len(events) != len(wantTypes) {
		t.Fatalf("got %d events, want %d", len(events), len(wantTypes))
	}
	for i, ev := range events {
		if ev.Type != wantTypes[i] {
			t.Errorf("event %d type = %q, want %q", i, ev.Type, wantTypes[i])
		}
		if ev.SequenceNumber != i+1 {
			t.Errorf("event %d sequence = %d, want %d", i, ev.SequenceNumber, i+1)
		}
	}
	if events[1].Delta+events[2].Delta != "Hello" {
		t.Errorf("deltas = %q + %q", events[1].Delta, events[2].Delta)
	}
	if events[0].Answer.Status != api.AnswerStatusInProgress {
		t.Errorf("created status = %q, want in_progress", events[0].Answer.Status)
	}
	if !strings.HasSuffix(rec.Body.String(), "data: [DONE]\n\n") {
		t.Error("missing [DONE] sentinel")
	}
}

func TestSSECancelled(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newStreamWriter(rec, FormatSSE, nil)
	ctx := context.Background()

	rw.WriteFragment(ctx, "x")
	rw.Close(ctx, &api.Answer{Status: api.AnswerStatusCancelled, Sources: "src"})

	body := rec.Body.String()
	if !strings.Contains(body, "event: answer.cancelled\n") {
		t.Errorf("missing answer.cancelled in %q", body)
	}
	if strings.Contains(body, "answer.sources") {
		t.Error("cancelled answers carry no sources")
	}
}

func TestStartTwiceFails(t *testing.T) {
	rw := newStreamWriter(httptest.NewRecorder(), FormatRaw, nil)
	rw.Start(context.Background(), &api.Answer{ID: testAnswerID})
	if err := rw.Start(context.Background(), &api.Answer{ID: testAnswerID}); err == nil {
		t.Error("second Start should fail")
	}
}
