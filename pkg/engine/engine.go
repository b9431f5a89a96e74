package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rhuss/askdocs/pkg/api"
	"github.com/rhuss/askdocs/pkg/debug"
	"github.com/rhuss/askdocs/pkg/observability"
	"github.com/rhuss/askdocs/pkg/prompt"
	"github.com/rhuss/askdocs/pkg/provider"
	"github.com/rhuss/askdocs/pkg/transport"
)

// Engine orchestrates answer generation between the transport layer and
// the provider backend.
type Engine struct {
	provider provider.Provider
	store    transport.AnswerStore
	cfg      Config
}

// Ensure Engine implements the transport contracts at compile time.
var (
	_ transport.AnswerCreator = (*Engine)(nil)
	_ transport.Embedder      = (*Engine)(nil)
)

// New creates a new Engine. The provider must not be nil. The store
// can be nil for stateless operation.
func New(p provider.Provider, store transport.AnswerStore, cfg Config) (*Engine, error) {
	if p == nil {
		return nil, fmt.Errorf("engine: provider must not be nil")
	}
	return &Engine{
		provider: p,
		store:    store,
		cfg:      cfg,
	}, nil
}

// CreateAnswer answers req from its file chunks. Streaming requests write
// fragments as they arrive and finish with the sources block; other
// requests get a single answer carrying text, separator and sources.
func (e *Engine) CreateAnswer(ctx context.Context, req *api.AnswerRequest, w transport.ResponseWriter) error {
	sources := prompt.FormatSources(req.FileChunks, e.cfg.maxSourcesLength())
	provReq := e.completionRequest(req.Question, sources)

	ans := &api.Answer{
		ID:        api.NewAnswerID(),
		Object:    "answer",
		Model:     provReq.Model,
		Question:  req.Question,
		Sources:   sources,
		CreatedAt: time.Now().Unix(),
	}
	setStatus(ans, api.AnswerStatusInProgress)

	slog.Info("answering question",
		"request_id", transport.RequestIDFromContext(ctx),
		"answer_id", ans.ID,
		"question", debug.Truncate(req.Question, 200),
		"files", len(req.FileChunks),
		"stream", req.Streaming(),
	)
	debug.Block("engine", "sources", sources)

	if req.Streaming() {
		return e.streamAnswer(ctx, provReq, ans, w)
	}
	return e.completeAnswer(ctx, provReq, ans, w)
}

// completeAnswer handles the non-streaming path.
func (e *Engine) completeAnswer(ctx context.Context, provReq *provider.CompletionRequest, ans *api.Answer, w transport.ResponseWriter) error {
	start := time.Now()
	resp, err := e.provider.Complete(ctx, provReq)
	duration := time.Since(start)

	var text string
	if err != nil {
		observability.RecordProviderCall(e.provider.Name(), provReq.Model, "error", duration, 0, 0)
		if ctx.Err() != nil {
			// Nothing can reach a client that went away.
			setStatus(ans, api.AnswerStatusCancelled)
			debug.Log("engine", "client disconnected", "answer_id", ans.ID)
			return nil
		}
		if e.cfg.FallbackAnswer == "" {
			e.fail(ctx, ans, err)
			return err
		}
		slog.Warn("completion failed, using fallback answer", "answer_id", ans.ID, "error", err)
		observability.FallbackAnswersTotal.WithLabelValues(e.provider.Name()).Inc()
		text = e.cfg.FallbackAnswer
		setStatus(ans, api.AnswerStatusIncomplete)
	} else {
		in, out := tokenCounts(resp.Usage)
		observability.RecordProviderCall(e.provider.Name(), provReq.Model, "success", duration, in, out)
		text = resp.Text
		if resp.Model != "" {
			ans.Model = resp.Model
		}
		ans.Usage = apiUsage(resp.Usage)
		setStatus(ans, statusForFinish(resp.FinishReason))
	}

	ans.Answer = text + prompt.SourcesSeparator + ans.Sources
	if err := w.WriteAnswer(ctx, ans); err != nil {
		return err
	}

	e.finish(ctx, ans, text, start)
	return nil
}

// CreateEmbeddings returns one embedding per input, in input order.
func (e *Engine) CreateEmbeddings(ctx context.Context, req *api.EmbeddingRequest) (*api.EmbeddingList, error) {
	model := req.Model
	if model == "" {
		model = e.cfg.embeddingModel()
	}

	start := time.Now()
	resp, err := e.provider.Embed(ctx, &provider.EmbeddingRequest{Model: model, Input: req.Input})
	duration := time.Since(start)
	if err != nil {
		observability.RecordProviderCall(e.provider.Name(), model, "error", duration, 0, 0)
		return nil, err
	}
	in, _ := tokenCounts(resp.Usage)
	observability.RecordProviderCall(e.provider.Name(), model, "success", duration, in, 0)

	list := &api.EmbeddingList{
		Object: "list",
		Model:  model,
		Data:   make([]api.Embedding, len(resp.Vectors)),
	}
	if resp.Model != "" {
		list.Model = resp.Model
	}
	for i, v := range resp.Vectors {
		list.Data[i] = api.Embedding{Object: "embedding", Index: i, Embedding: v}
	}
	return list, nil
}

func (e *Engine) completionRequest(question, sources string) *provider.CompletionRequest {
	temp := e.cfg.Temperature
	req := &provider.CompletionRequest{
		Model:       e.cfg.model(),
		Prompt:      prompt.Build(question, sources),
		Temperature: &temp,
	}
	if e.cfg.MaxTokens > 0 {
		maxTokens := e.cfg.MaxTokens
		req.MaxTokens = &maxTokens
	}
	return req
}

// fail marks ans as failed and persists it.
func (e *Engine) fail(ctx context.Context, ans *api.Answer, err error) {
	setStatus(ans, api.AnswerStatusFailed)
	ans.Error = api.AsAPIError(err)
	slog.Warn("answer failed", "answer_id", ans.ID, "error", err)
	e.save(ctx, ans)
}

// finish logs the end of an answer and persists it.
func (e *Engine) finish(ctx context.Context, ans *api.Answer, text string, start time.Time) {
	debug.Block("engine", "answer "+ans.ID, text)
	slog.Info("answer finished",
		"answer_id", ans.ID,
		"status", ans.Status,
		"duration", time.Since(start),
	)
	e.save(ctx, ans)
}

// save persists the transcript when a store is configured. Failures are
// logged, never returned.
func (e *Engine) save(ctx context.Context, ans *api.Answer) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveAnswer(context.WithoutCancel(ctx), ans); err != nil {
		slog.Warn("failed to save answer", "answer_id", ans.ID, "error", err)
	}
}

// setStatus moves ans to status to. Transitions out of a terminal status
// are refused and logged, leaving the answer unchanged.
func setStatus(ans *api.Answer, to api.AnswerStatus) {
	if apiErr := api.ValidateAnswerTransition(ans.Status, to); apiErr != nil {
		slog.Error("refusing answer status change", "answer_id", ans.ID, "error", apiErr.Message)
		return
	}
	ans.Status = to
}

// statusForFinish maps a backend finish reason to the answer status.
func statusForFinish(reason string) api.AnswerStatus {
	switch reason {
	case "length", "content_filter":
		return api.AnswerStatusIncomplete
	default:
		return api.AnswerStatusCompleted
	}
}

func apiUsage(u *provider.Usage) *api.Usage {
	if u == nil {
		return nil
	}
	total := u.TotalTokens
	if total == 0 {
		total = u.InputTokens + u.OutputTokens
	}
	return &api.Usage{InputTokens: u.InputTokens, OutputTokens: u.OutputTokens, TotalTokens: total}
}

func tokenCounts(u *provider.Usage) (int, int) {
	if u == nil {
		return 0, 0
	}
	return u.InputTokens, u.OutputTokens
}
