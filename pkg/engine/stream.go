package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/rhuss/askdocs/pkg/api"
	"github.com/rhuss/askdocs/pkg/debug"
	"github.com/rhuss/askdocs/pkg/observability"
	"github.com/rhuss/askdocs/pkg/provider"
	"github.com/rhuss/askdocs/pkg/transport"
)

// errStreamEnded reports a provider stream that closed without a Done or
// Error event.
var errStreamEnded = api.NewModelError("completion stream ended unexpectedly")

// streamResult is what a consumed provider stream produced.
type streamResult struct {
	finishReason string
	usage        *provider.Usage
	err          error
}

// streamAnswer handles the streaming path. Fragments are written in the
// order the provider produced them; the writer's Close appends the sources.
func (e *Engine) streamAnswer(ctx context.Context, provReq *provider.CompletionRequest, ans *api.Answer, w transport.ResponseWriter) error {
	if err := w.Start(ctx, ans); err != nil {
		return err
	}

	// The derived context stops the provider goroutine when we return
	// early on a write error.
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := time.Now()
	var text strings.Builder

	res, writeErr := e.consumeStream(streamCtx, provReq, &text, w)
	duration := time.Since(start)

	status := "success"
	if res.err != nil {
		status = "error"
	}
	in, out := tokenCounts(res.usage)
	observability.RecordProviderCall(e.provider.Name(), provReq.Model, status, duration, in, out)

	if writeErr != nil {
		// The client is gone; nothing more can reach it.
		debug.Log("streaming", "fragment write failed", "answer_id", ans.ID, "error", writeErr)
		ans.Answer = text.String()
		setStatus(ans, api.AnswerStatusCancelled)
		return nil
	}

	if ctx.Err() != nil {
		return e.cancelAnswer(ctx, ans, text.String(), w)
	}

	if res.err != nil {
		if e.cfg.FallbackAnswer == "" {
			ans.Answer = text.String()
			e.fail(ctx, ans, res.err)
			return res.err
		}
		slog.Warn("completion stream failed, using fallback answer", "answer_id", ans.ID, "error", res.err)
		observability.FallbackAnswersTotal.WithLabelValues(e.provider.Name()).Inc()
		if err := w.WriteFragment(ctx, e.cfg.FallbackAnswer); err != nil {
			return err
		}
		observability.AnswerFragmentsTotal.Inc()
		text.WriteString(e.cfg.FallbackAnswer)
		setStatus(ans, api.AnswerStatusIncomplete)
	} else {
		setStatus(ans, statusForFinish(res.finishReason))
		ans.Usage = apiUsage(res.usage)
	}

	ans.Answer = text.String()
	if err := w.Close(ctx, ans); err != nil {
		return err
	}

	e.finish(ctx, ans, ans.Answer, start)
	return nil
}

// consumeStream opens the provider stream and forwards every text delta
// to w. The returned error is non-nil only when writing to w failed.
func (e *Engine) consumeStream(ctx context.Context, provReq *provider.CompletionRequest, text *strings.Builder, w transport.ResponseWriter) (streamResult, error) {
	ch, err := e.provider.Stream(ctx, provReq)
	if err != nil {
		return streamResult{err: err}, nil
	}

	res := streamResult{err: errStreamEnded}
	for ev := range ch {
		switch ev.Type {
		case provider.ProviderEventTextDelta:
			if ev.Delta == "" {
				continue
			}
			if err := w.WriteFragment(ctx, ev.Delta); err != nil {
				return res, err
			}
			observability.AnswerFragmentsTotal.Inc()
			text.WriteString(ev.Delta)
		case provider.ProviderEventDone:
			res.err = nil
			res.finishReason = ev.FinishReason
			res.usage = ev.Usage
		case provider.ProviderEventError:
			res.err = ev.Err
		}
	}
	return res, nil
}

// cancelAnswer finishes an answer whose context was cancelled. Answers
// cancelled through DELETE get a terminal event; a disconnected client
// gets nothing. Cancelled answers are not persisted.
func (e *Engine) cancelAnswer(ctx context.Context, ans *api.Answer, text string, w transport.ResponseWriter) error {
	ans.Answer = text
	setStatus(ans, api.AnswerStatusCancelled)

	if !errors.Is(context.Cause(ctx), transport.ErrAnswerCancelled) {
		debug.Log("streaming", "client disconnected", "answer_id", ans.ID)
		return nil
	}

	slog.Info("answer cancelled", "answer_id", ans.ID)
	if err := w.Close(context.WithoutCancel(ctx), ans); err != nil {
		debug.Log("streaming", "could not close cancelled stream", "answer_id", ans.ID, "error", err)
	}
	return nil
}
