package transport

import (
	"context"

	"github.com/google/uuid"

	"github.com/rhuss/askdocs/pkg/api"
)

type requestIDKey struct{}

// ContextWithRequestID returns ctx carrying the request ID id.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request ID of ctx, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestID ensures every answer request has an ID. The HTTP adapter
// seeds it from X-Request-ID; requests arriving without one get a UUID.
func RequestID() Middleware {
	return func(next AnswerCreator) AnswerCreator {
		return AnswerCreatorFunc(func(ctx context.Context, req *api.AnswerRequest, w ResponseWriter) error {
			if RequestIDFromContext(ctx) == "" {
				ctx = ContextWithRequestID(ctx, uuid.NewString())
			}
			return next.CreateAnswer(ctx, req, w)
		})
	}
}
