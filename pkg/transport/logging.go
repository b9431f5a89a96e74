package transport

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rhuss/askdocs/pkg/api"
)

// Logging logs one line per answer request once the answer is finished.
// Cancelled requests (client gone or DELETE) are logged at info level,
// other failures at error level.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next AnswerCreator) AnswerCreator {
		return AnswerCreatorFunc(func(ctx context.Context, req *api.AnswerRequest, w ResponseWriter) error {
			start := time.Now()
			err := next.CreateAnswer(ctx, req, w)

			attrs := []slog.Attr{
				slog.String("request_id", RequestIDFromContext(ctx)),
				slog.Int("files", len(req.FileChunks)),
				slog.Int("question_len", len(req.Question)),
				slog.Bool("stream", req.Streaming()),
				slog.Duration("duration", time.Since(start)),
			}

			switch {
			case err == nil:
				logger.LogAttrs(ctx, slog.LevelInfo, "request completed", attrs...)
			case ctx.Err() != nil || errors.Is(err, context.Canceled):
				attrs = append(attrs, slog.Any("cause", context.Cause(ctx)))
				logger.LogAttrs(ctx, slog.LevelInfo, "request cancelled", attrs...)
			default:
				attrs = append(attrs, slog.String("error", err.Error()))
				logger.LogAttrs(ctx, slog.LevelError, "request failed", attrs...)
			}
			return err
		})
	}
}
