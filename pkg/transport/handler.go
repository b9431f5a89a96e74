package transport

import (
	"context"

	"github.com/rhuss/askdocs/pkg/api"
)

// AnswerCreator handles the core answer operation. The implementation
// receives a validated request and writes the result (a fragment stream or
// a complete answer) to the ResponseWriter.
type AnswerCreator interface {
	CreateAnswer(ctx context.Context, req *api.AnswerRequest, w ResponseWriter) error
}

// AnswerCreatorFunc is an adapter that allows using an ordinary function
// as an AnswerCreator.
type AnswerCreatorFunc func(ctx context.Context, req *api.AnswerRequest, w ResponseWriter) error

// CreateAnswer calls f(ctx, req, w).
func (f AnswerCreatorFunc) CreateAnswer(ctx context.Context, req *api.AnswerRequest, w ResponseWriter) error {
	return f(ctx, req, w)
}

// Embedder computes embeddings for one or more inputs.
type Embedder interface {
	CreateEmbeddings(ctx context.Context, req *api.EmbeddingRequest) (*api.EmbeddingList, error)
}

// ListOptions controls pagination, filtering, and ordering for list operations.
type ListOptions struct {
	After  string // Cursor: return items after this ID.
	Before string // Cursor: return items before this ID.
	Limit  int    // Maximum number of items to return (default 20, max 100).
	Model  string // Filter answers by model name.
	Order  string // Sort order: "asc" or "desc" (default "desc").
}

// AnswerStore handles persistence, retrieval, and deletion of answer
// transcripts. It is only available when persistence is configured.
type AnswerStore interface {
	// SaveAnswer persists a finished answer.
	SaveAnswer(ctx context.Context, a *api.Answer) error

	// GetAnswer retrieves an answer by ID. Returns storage.ErrNotFound if
	// the answer does not exist or has been deleted.
	GetAnswer(ctx context.Context, id string) (*api.Answer, error)

	// DeleteAnswer deletes an answer by ID.
	DeleteAnswer(ctx context.Context, id string) error

	// ListAnswers returns a paginated list of stored answers, filtered by
	// tenant (when present in context) and optionally by model.
	ListAnswers(ctx context.Context, opts ListOptions) (*api.AnswerList, error)

	// HealthCheck verifies the store connection is functional.
	HealthCheck(ctx context.Context) error

	// Close releases database connections and resources.
	Close() error
}

// ResponseWriter abstracts streaming and non-streaming output for the
// handler.
//
// A streaming answer is Start, then zero or more WriteFragment calls, then
// Close. A non-streaming answer is a single WriteAnswer. The two modes are
// mutually exclusive on one writer, and every write after Close or
// WriteAnswer returns an error.
type ResponseWriter interface {
	// Start announces a streaming answer. It carries the answer ID and
	// model; nothing needs to reach the client yet.
	Start(ctx context.Context, a *api.Answer) error

	// WriteFragment sends one fragment of answer text and flushes it.
	// Empty fragments are ignored.
	WriteFragment(ctx context.Context, text string) error

	// Close finishes a streaming answer. For completed and incomplete
	// answers the sources block is written before the stream ends.
	Close(ctx context.Context, a *api.Answer) error

	// WriteAnswer sends a complete non-streaming answer.
	WriteAnswer(ctx context.Context, a *api.Answer) error

	// Flush ensures buffered data is sent to the client. Returns an error
	// if the client has disconnected.
	Flush() error
}
