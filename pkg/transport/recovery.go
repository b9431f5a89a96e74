package transport

import (
	"context"
	"log/slog"

	"github.com/rhuss/askdocs/pkg/api"
)

// Recovery returns middleware that catches panics in the handler and
// converts them to server errors. The panic value is logged but never
// returned to the client.
func Recovery() Middleware {
	return func(next AnswerCreator) AnswerCreator {
		return AnswerCreatorFunc(func(ctx context.Context, req *api.AnswerRequest, w ResponseWriter) (retErr error) {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("recovered from panic in handler",
						"request_id", RequestIDFromContext(ctx),
						"panic", r,
					)
					retErr = api.NewServerError(api.GenericErrorMessage)
				}
			}()
			return next.CreateAnswer(ctx, req, w)
		})
	}
}
