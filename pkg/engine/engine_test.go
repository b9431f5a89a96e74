package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rhuss/askdocs/pkg/api"
	"github.com/rhuss/askdocs/pkg/prompt"
	"github.com/rhuss/askdocs/pkg/provider"
	"github.com/rhuss/askdocs/pkg/transport"
)

// mockProvider implements provider.Provider for testing.
type mockProvider struct {
	mu       sync.Mutex
	requests []*provider.CompletionRequest

	response *provider.CompletionResponse
	err      error
	streamFn func(ctx context.Context, req *provider.CompletionRequest) (<-chan provider.ProviderEvent, error)
	embedFn  func(ctx context.Context, req *provider.EmbeddingRequest) (*provider.EmbeddingResponse, error)
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) Complete(_ context.Context, req *provider.CompletionRequest) (*provider.CompletionResponse, error) {
	m.record(req)
	return m.response, m.err
}

func (m *mockProvider) Stream(ctx context.Context, req *provider.CompletionRequest) (<-chan provider.ProviderEvent, error) {
	m.record(req)
	if m.streamFn != nil {
		return m.streamFn(ctx, req)
	}
	return nil, api.NewServerError("streaming not configured in mock")
}

func (m *mockProvider) Embed(ctx context.Context, req *provider.EmbeddingRequest) (*provider.EmbeddingResponse, error) {
	return m.embedFn(ctx, req)
}

func (m *mockProvider) Close() error { return nil }

func (m *mockProvider) record(req *provider.CompletionRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
}

func (m *mockProvider) lastRequest() *provider.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}

// eventStream returns a streamFn that emits the given events and closes.
func eventStream(events ...provider.ProviderEvent) func(context.Context, *provider.CompletionRequest) (<-chan provider.ProviderEvent, error) {
	return func(_ context.Context, _ *provider.CompletionRequest) (<-chan provider.ProviderEvent, error) {
		ch := make(chan provider.ProviderEvent, len(events))
		for _, ev := range events {
			ch <- ev
		}
		close(ch)
		return ch, nil
	}
}

func delta(s string) provider.ProviderEvent {
	return provider.ProviderEvent{Type: provider.ProviderEventTextDelta, Delta: s}
}

func done(reason string) provider.ProviderEvent {
	return provider.ProviderEvent{Type: provider.ProviderEventDone, FinishReason: reason}
}

// recordingWriter captures everything the engine writes.
type recordingWriter struct {
	started   *api.Answer
	fragments []string
	closed    *api.Answer
	answer    *api.Answer

	fragmentErr error
	onFragment  func(text string)
}

func (w *recordingWriter) Start(_ context.Context, a *api.Answer) error {
	w.started = a
	return nil
}

func (w *recordingWriter) WriteFragment(_ context.Context, text string) error {
	if w.fragmentErr != nil {
		return w.fragmentErr
	}
	w.fragments = append(w.fragments, text)
	if w.onFragment != nil {
		w.onFragment(text)
	}
	return nil
}

func (w *recordingWriter) Close(_ context.Context, a *api.Answer) error {
	w.closed = a
	return nil
}

func (w *recordingWriter) WriteAnswer(_ context.Context, a *api.Answer) error {
	w.answer = a
	return nil
}

func (w *recordingWriter) Flush() error { return nil }

var _ transport.ResponseWriter = (*recordingWriter)(nil)

// memStore is a minimal AnswerStore recording saved answers.
type memStore struct {
	mu    sync.Mutex
	saved []*api.Answer
	err   error
}

func (s *memStore) SaveAnswer(_ context.Context, a *api.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, a)
	return s.err
}

func (s *memStore) GetAnswer(_ context.Context, _ string) (*api.Answer, error) {
	return nil, errors.New("not implemented")
}

func (s *memStore) DeleteAnswer(_ context.Context, _ string) error { return nil }

func (s *memStore) ListAnswers(_ context.Context, _ transport.ListOptions) (*api.AnswerList, error) {
	return &api.AnswerList{Object: "list"}, nil
}

func (s *memStore) HealthCheck(_ context.Context) error { return nil }
func (s *memStore) Close() error                        { return nil }

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

func streamingRequest() *api.AnswerRequest {
	return &api.AnswerRequest{
		Question: "What is alpha?",
		FileChunks: []api.FileChunk{
			{Filename: "a.txt", Text: "alpha is the first letter"},
			{Filename: "b.txt", Text: "beta is the second"},
		},
	}
}

func nonStreamingRequest() *api.AnswerRequest {
	req := streamingRequest()
	stream := false
	req.Stream = &stream
	return req
}

func newTestEngine(t *testing.T, p provider.Provider, store transport.AnswerStore, cfg Config) *Engine {
	t.Helper()
	eng, err := New(p, store, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return eng
}

func TestEngine_New_NilProvider(t *testing.T) {
	if _, err := New(nil, nil, Config{}); err == nil {
		t.Error("expected error for nil provider")
	}
}

func TestEngine_Streaming_FragmentsInOrder(t *testing.T) {
	mp := &mockProvider{streamFn: eventStream(
		delta("Alpha"), delta(""), delta(" is"), delta(" first."),
		provider.ProviderEvent{Type: provider.ProviderEventDone, FinishReason: "stop", Usage: &provider.Usage{InputTokens: 10, OutputTokens: 3}},
	)}
	store := &memStore{}
	eng := newTestEngine(t, mp, store, Config{})
	w := &recordingWriter{}

	if err := eng.CreateAnswer(context.Background(), streamingRequest(), w); err != nil {
		t.Fatalf("CreateAnswer: %v", err)
	}

	want := []string{"Alpha", " is", " first."}
	if strings.Join(w.fragments, "|") != strings.Join(want, "|") {
		t.Errorf("fragments = %q, want %q", w.fragments, want)
	}
	if w.started == nil || !api.ValidateAnswerID(w.started.ID) {
		t.Fatalf("Start not called with a valid answer: %+v", w.started)
	}
	if w.closed == nil {
		t.Fatal("Close was not called")
	}
	if w.closed.Status != api.AnswerStatusCompleted {
		t.Errorf("status = %q, want completed", w.closed.Status)
	}
	if w.closed.Answer != "Alpha is first." {
		t.Errorf("answer = %q", w.closed.Answer)
	}
	if !strings.Contains(w.closed.Sources, `1. "a.txt"`) || !strings.Contains(w.closed.Sources, `2. "b.txt"`) {
		t.Errorf("sources = %q", w.closed.Sources)
	}
	if w.closed.Usage == nil || w.closed.Usage.TotalTokens != 13 {
		t.Errorf("usage = %+v, want total 13", w.closed.Usage)
	}
	if store.count() != 1 {
		t.Errorf("saved %d answers, want 1", store.count())
	}
}

func TestEngine_PromptAndDefaults(t *testing.T) {
	mp := &mockProvider{streamFn: eventStream(done("stop"))}
	eng := newTestEngine(t, mp, nil, Config{MaxTokens: 256})

	if err := eng.CreateAnswer(context.Background(), streamingRequest(), &recordingWriter{}); err != nil {
		t.Fatalf("CreateAnswer: %v", err)
	}

	req := mp.lastRequest()
	if req.Model != provider.DefaultCompletionModel {
		t.Errorf("model = %q, want default", req.Model)
	}
	if req.Temperature == nil || *req.Temperature != 0 {
		t.Errorf("temperature = %v, want 0", req.Temperature)
	}
	if req.MaxTokens == nil || *req.MaxTokens != 256 {
		t.Errorf("max tokens = %v, want 256", req.MaxTokens)
	}
	if !strings.Contains(req.Prompt, "What is alpha?") || !strings.Contains(req.Prompt, "alpha is the first letter") {
		t.Errorf("prompt missing question or sources: %q", req.Prompt)
	}
}

func TestEngine_Streaming_SourcesTruncated(t *testing.T) {
	mp := &mockProvider{streamFn: eventStream(done("stop"))}
	eng := newTestEngine(t, mp, nil, Config{MaxSourcesLength: 10})
	w := &recordingWriter{}

	if err := eng.CreateAnswer(context.Background(), streamingRequest(), w); err != nil {
		t.Fatalf("CreateAnswer: %v", err)
	}
	if len(w.closed.Sources) != 10 {
		t.Errorf("sources length = %d, want 10", len(w.closed.Sources))
	}
}

func TestEngine_Streaming_FinishReasonLength(t *testing.T) {
	mp := &mockProvider{streamFn: eventStream(delta("partial"), done("length"))}
	eng := newTestEngine(t, mp, nil, Config{})
	w := &recordingWriter{}

	if err := eng.CreateAnswer(context.Background(), streamingRequest(), w); err != nil {
		t.Fatalf("CreateAnswer: %v", err)
	}
	if w.closed.Status != api.AnswerStatusIncomplete {
		t.Errorf("status = %q, want incomplete", w.closed.Status)
	}
}

func TestEngine_Streaming_FallbackOnOpenError(t *testing.T) {
	mp := &mockProvider{streamFn: func(context.Context, *provider.CompletionRequest) (<-chan provider.ProviderEvent, error) {
		return nil, api.NewServerError("connection refused")
	}}
	eng := newTestEngine(t, mp, nil, Config{FallbackAnswer: "Sorry, no answer right now."})
	w := &recordingWriter{}

	if err := eng.CreateAnswer(context.Background(), streamingRequest(), w); err != nil {
		t.Fatalf("CreateAnswer: %v", err)
	}
	if len(w.fragments) != 1 || w.fragments[0] != "Sorry, no answer right now." {
		t.Errorf("fragments = %q, want the fallback only", w.fragments)
	}
	if w.closed == nil || w.closed.Status != api.AnswerStatusIncomplete {
		t.Fatalf("closed = %+v, want incomplete", w.closed)
	}
}

func TestEngine_Streaming_FallbackMidStream(t *testing.T) {
	mp := &mockProvider{streamFn: eventStream(
		delta("Alpha"),
		provider.ProviderEvent{Type: provider.ProviderEventError, Err: api.NewModelError("overloaded")},
	)}
	eng := newTestEngine(t, mp, nil, Config{FallbackAnswer: " [fallback]"})
	w := &recordingWriter{}

	if err := eng.CreateAnswer(context.Background(), streamingRequest(), w); err != nil {
		t.Fatalf("CreateAnswer: %v", err)
	}
	if strings.Join(w.fragments, "") != "Alpha [fallback]" {
		t.Errorf("fragments = %q", w.fragments)
	}
	if w.closed.Answer != "Alpha [fallback]" {
		t.Errorf("answer = %q", w.closed.Answer)
	}
}

func TestEngine_Streaming_ErrorWithoutFallback(t *testing.T) {
	modelErr := api.NewModelError("overloaded")
	mp := &mockProvider{streamFn: eventStream(
		delta("Alpha"),
		provider.ProviderEvent{Type: provider.ProviderEventError, Err: modelErr},
	)}
	store := &memStore{}
	eng := newTestEngine(t, mp, store, Config{})
	w := &recordingWriter{}

	err := eng.CreateAnswer(context.Background(), streamingRequest(), w)
	if !errors.Is(err, modelErr) {
		t.Fatalf("err = %v, want the model error", err)
	}
	if w.closed != nil {
		t.Error("engine must leave terminating a failed stream to the transport")
	}
	if store.count() != 1 || store.saved[0].Status != api.AnswerStatusFailed {
		t.Errorf("expected one failed transcript, got %+v", store.saved)
	}
}

func TestEngine_Streaming_UnterminatedStream(t *testing.T) {
	mp := &mockProvider{streamFn: eventStream(delta("Alpha"))}
	eng := newTestEngine(t, mp, nil, Config{})

	err := eng.CreateAnswer(context.Background(), streamingRequest(), &recordingWriter{})
	if !errors.Is(err, errStreamEnded) {
		t.Errorf("err = %v, want errStreamEnded", err)
	}
}

func TestEngine_Streaming_WriteErrorStopsStream(t *testing.T) {
	var streamCtx context.Context
	mp := &mockProvider{streamFn: func(ctx context.Context, _ *provider.CompletionRequest) (<-chan provider.ProviderEvent, error) {
		streamCtx = ctx
		ch := make(chan provider.ProviderEvent, 2)
		ch <- delta("Alpha")
		ch <- done("stop")
		close(ch)
		return ch, nil
	}}
	store := &memStore{}
	eng := newTestEngine(t, mp, store, Config{})
	w := &recordingWriter{fragmentErr: errors.New("broken pipe")}

	if err := eng.CreateAnswer(context.Background(), streamingRequest(), w); err != nil {
		t.Fatalf("CreateAnswer: %v", err)
	}
	if streamCtx.Err() == nil {
		t.Error("provider context should be cancelled after a write error")
	}
	if w.closed != nil {
		t.Error("Close should not be called for a vanished client")
	}
	if store.count() != 0 {
		t.Error("answers for vanished clients should not be saved")
	}
}

func TestEngine_Streaming_Cancelled(t *testing.T) {
	mp := &mockProvider{streamFn: func(ctx context.Context, _ *provider.CompletionRequest) (<-chan provider.ProviderEvent, error) {
		ch := make(chan provider.ProviderEvent)
		go func() {
			defer close(ch)
			select {
			case ch <- delta("Alpha"):
			case <-ctx.Done():
				return
			}
			<-ctx.Done()
		}()
		return ch, nil
	}}
	store := &memStore{}
	eng := newTestEngine(t, mp, store, Config{FallbackAnswer: "fallback"})

	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)
	w := &recordingWriter{onFragment: func(string) { cancel(transport.ErrAnswerCancelled) }}

	if err := eng.CreateAnswer(ctx, streamingRequest(), w); err != nil {
		t.Fatalf("CreateAnswer: %v", err)
	}
	if w.closed == nil || w.closed.Status != api.AnswerStatusCancelled {
		t.Fatalf("closed = %+v, want cancelled", w.closed)
	}
	if w.closed.Answer != "Alpha" {
		t.Errorf("answer = %q, want the text before cancellation", w.closed.Answer)
	}
	if len(w.fragments) != 1 {
		t.Errorf("fallback must not be written on cancellation, fragments = %q", w.fragments)
	}
	if store.count() != 0 {
		t.Error("cancelled answers should not be saved")
	}
}

func TestEngine_Streaming_ClientDisconnect(t *testing.T) {
	mp := &mockProvider{streamFn: func(ctx context.Context, _ *provider.CompletionRequest) (<-chan provider.ProviderEvent, error) {
		ch := make(chan provider.ProviderEvent)
		go func() {
			defer close(ch)
			<-ctx.Done()
		}()
		return ch, nil
	}}
	eng := newTestEngine(t, mp, nil, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w := &recordingWriter{}

	if err := eng.CreateAnswer(ctx, streamingRequest(), w); err != nil {
		t.Fatalf("CreateAnswer: %v", err)
	}
	if w.closed != nil {
		t.Error("no terminal output expected for a disconnected client")
	}
}

func TestEngine_NonStreaming(t *testing.T) {
	mp := &mockProvider{response: &provider.CompletionResponse{
		Model:        "gpt-3.5-turbo-0613",
		Text:         "**Alpha** is first.",
		FinishReason: "stop",
		Usage:        &provider.Usage{InputTokens: 5, OutputTokens: 4, TotalTokens: 9},
	}}
	store := &memStore{}
	eng := newTestEngine(t, mp, store, Config{})
	w := &recordingWriter{}

	if err := eng.CreateAnswer(context.Background(), nonStreamingRequest(), w); err != nil {
		t.Fatalf("CreateAnswer: %v", err)
	}
	if w.answer == nil {
		t.Fatal("WriteAnswer not called")
	}
	if w.started != nil || len(w.fragments) != 0 {
		t.Error("non-streaming answers must not use the streaming methods")
	}
	want := "**Alpha** is first." + prompt.SourcesSeparator + w.answer.Sources
	if w.answer.Answer != want {
		t.Errorf("answer = %q, want %q", w.answer.Answer, want)
	}
	if w.answer.Model != "gpt-3.5-turbo-0613" {
		t.Errorf("model = %q", w.answer.Model)
	}
	if w.answer.Status != api.AnswerStatusCompleted {
		t.Errorf("status = %q", w.answer.Status)
	}
	if w.answer.Usage.TotalTokens != 9 {
		t.Errorf("usage = %+v", w.answer.Usage)
	}
	if store.count() != 1 {
		t.Errorf("saved %d answers, want 1", store.count())
	}
}

func TestEngine_NonStreaming_Fallback(t *testing.T) {
	mp := &mockProvider{err: api.NewServerError("timeout")}
	eng := newTestEngine(t, mp, nil, Config{FallbackAnswer: "Try again later."})
	w := &recordingWriter{}

	if err := eng.CreateAnswer(context.Background(), nonStreamingRequest(), w); err != nil {
		t.Fatalf("CreateAnswer: %v", err)
	}
	if !strings.HasPrefix(w.answer.Answer, "Try again later."+prompt.SourcesSeparator) {
		t.Errorf("answer = %q", w.answer.Answer)
	}
	if w.answer.Status != api.AnswerStatusIncomplete {
		t.Errorf("status = %q, want incomplete", w.answer.Status)
	}
}

func TestEngine_NonStreaming_Error(t *testing.T) {
	providerErr := api.NewServerError("timeout")
	mp := &mockProvider{err: providerErr}
	eng := newTestEngine(t, mp, nil, Config{})
	w := &recordingWriter{}

	err := eng.CreateAnswer(context.Background(), nonStreamingRequest(), w)
	if !errors.Is(err, providerErr) {
		t.Errorf("err = %v, want provider error", err)
	}
	if w.answer != nil {
		t.Error("no answer should be written on error")
	}
}

func TestEngine_NonStreaming_ClientDisconnect(t *testing.T) {
	mp := &mockProvider{err: context.Canceled}
	store := &memStore{}
	eng := newTestEngine(t, mp, store, Config{FallbackAnswer: "fallback"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w := &recordingWriter{}

	if err := eng.CreateAnswer(ctx, nonStreamingRequest(), w); err != nil {
		t.Fatalf("CreateAnswer: %v", err)
	}
	if w.answer != nil {
		t.Errorf("answer written to a disconnected client: %+v", w.answer)
	}
	if store.count() != 0 {
		t.Errorf("saved %d answers, want 0 for a disconnected client", store.count())
	}
}

func TestEngine_SaveFailureIsNotFatal(t *testing.T) {
	mp := &mockProvider{streamFn: eventStream(delta("ok"), done("stop"))}
	store := &memStore{err: errors.New("disk full")}
	eng := newTestEngine(t, mp, store, Config{})

	if err := eng.CreateAnswer(context.Background(), streamingRequest(), &recordingWriter{}); err != nil {
		t.Errorf("CreateAnswer = %v, want nil despite store failure", err)
	}
}

func TestEngine_CreateEmbeddings(t *testing.T) {
	var gotModel string
	mp := &mockProvider{embedFn: func(_ context.Context, req *provider.EmbeddingRequest) (*provider.EmbeddingResponse, error) {
		gotModel = req.Model
		vecs := make([][]float32, len(req.Input))
		for i := range req.Input {
			vecs[i] = []float32{float32(i), 0.5}
		}
		return &provider.EmbeddingResponse{Vectors: vecs}, nil
	}}
	eng := newTestEngine(t, mp, nil, Config{})

	list, err := eng.CreateEmbeddings(context.Background(), &api.EmbeddingRequest{Input: api.StringList{"a", "b"}})
	if err != nil {
		t.Fatalf("CreateEmbeddings: %v", err)
	}
	if gotModel != provider.DefaultEmbeddingModel {
		t.Errorf("model = %q, want default", gotModel)
	}
	if list.Object != "list" || list.Model != provider.DefaultEmbeddingModel {
		t.Errorf("list = %+v", list)
	}
	if len(list.Data) != 2 || list.Data[1].Index != 1 || list.Data[1].Embedding[0] != 1 {
		t.Errorf("data = %+v", list.Data)
	}

	if _, err := eng.CreateEmbeddings(context.Background(), &api.EmbeddingRequest{Input: api.StringList{"a"}, Model: "custom"}); err != nil {
		t.Fatalf("CreateEmbeddings: %v", err)
	}
	if gotModel != "custom" {
		t.Errorf("model = %q, want custom", gotModel)
	}
}

func TestEngine_CreateEmbeddings_Error(t *testing.T) {
	mp := &mockProvider{embedFn: func(context.Context, *provider.EmbeddingRequest) (*provider.EmbeddingResponse, error) {
		return nil, api.NewModelError("no embedding returned from the embeddings endpoint")
	}}
	eng := newTestEngine(t, mp, nil, Config{EmbeddingModel: "e"})

	if _, err := eng.CreateEmbeddings(context.Background(), &api.EmbeddingRequest{Input: api.StringList{"a"}}); err == nil {
		t.Error("expected error")
	}
}

func TestStatusForFinish(t *testing.T) {
	tests := map[string]api.AnswerStatus{
		"stop":           api.AnswerStatusCompleted,
		"":               api.AnswerStatusCompleted,
		"length":         api.AnswerStatusIncomplete,
		"content_filter": api.AnswerStatusIncomplete,
	}
	for reason, want := range tests {
		if got := statusForFinish(reason); got != want {
			t.Errorf("statusForFinish(%q) = %q, want %q", reason, got, want)
		}
	}
}

func TestSetStatus(t *testing.T) {
	ans := &api.Answer{ID: "ans_1"}

	setStatus(ans, api.AnswerStatusInProgress)
	if ans.Status != api.AnswerStatusInProgress {
		t.Fatalf("status = %q, want in_progress", ans.Status)
	}
	setStatus(ans, api.AnswerStatusCompleted)
	if ans.Status != api.AnswerStatusCompleted {
		t.Fatalf("status = %q, want completed", ans.Status)
	}

	// Terminal statuses stick.
	setStatus(ans, api.AnswerStatusFailed)
	if ans.Status != api.AnswerStatusCompleted {
		t.Errorf("status = %q, want completed to be kept", ans.Status)
	}
}

func TestEngine_FailedAnswerIsSavedOnce(t *testing.T) {
	mp := &mockProvider{err: api.NewServerError("timeout")}
	store := &memStore{}
	eng := newTestEngine(t, mp, store, Config{})

	_ = eng.CreateAnswer(context.Background(), nonStreamingRequest(), &recordingWriter{})
	if store.count() != 1 {
		t.Fatalf("saved %d answers, want 1", store.count())
	}
	if got := store.saved[0].Status; got != api.AnswerStatusFailed {
		t.Errorf("saved status = %q, want failed", got)
	}
}
