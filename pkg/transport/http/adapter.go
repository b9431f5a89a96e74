package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/rhuss/askdocs/pkg/api"
	"github.com/rhuss/askdocs/pkg/debug"
	"github.com/rhuss/askdocs/pkg/storage"
	"github.com/rhuss/askdocs/pkg/transport"
)

// Answer endpoints. LegacyAnswerPath is the path used by the original
// web client.
const (
	LegacyAnswerPath = "/api/get-answer-from-files"
	AnswersPath      = "/v1/answers"
	EmbeddingsPath   = "/v1/embeddings"
)

// Adapter serves the askdocs API over HTTP.
// It routes requests to the appropriate handler and serializes responses.
type Adapter struct {
	creator  transport.AnswerCreator
	embedder transport.Embedder    // nil disables /v1/embeddings
	store    transport.AnswerStore // nil if stateless
	inflight *transport.InFlightRegistry
	mux      *http.ServeMux
	config   Config
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	Addr            string
	MaxBodySize     int64
	ShutdownTimeout int // seconds

	// StreamFormat is the default framing of streamed answers. A request
	// may override it with the "format" query parameter.
	StreamFormat StreamFormat
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		MaxBodySize:     10 << 20, // 10 MB
		ShutdownTimeout: 30,
		StreamFormat:    FormatRaw,
	}
}

// NewAdapter creates an HTTP adapter. The embedder and store are optional;
// when nil, their endpoints return 501. Middleware is applied to the
// AnswerCreator in the given order.
func NewAdapter(creator transport.AnswerCreator, embedder transport.Embedder, store transport.AnswerStore, cfg Config, middlewares ...transport.Middleware) *Adapter {
	if len(middlewares) > 0 {
		creator = transport.Chain(middlewares...)(creator)
	}
	if cfg.StreamFormat == "" {
		cfg.StreamFormat = FormatRaw
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultConfig().MaxBodySize
	}

	a := &Adapter{
		creator:  creator,
		embedder: embedder,
		store:    store,
		inflight: transport.NewInFlightRegistry(),
		mux:      http.NewServeMux(),
		config:   cfg,
	}

	for _, path := range []string{LegacyAnswerPath, AnswersPath} {
		a.mux.HandleFunc("POST "+path, a.handleCreateAnswer)
		a.mux.HandleFunc(path, handleMethodNotAllowed)
	}
	a.mux.HandleFunc("GET "+AnswersPath, a.handleListAnswers)
	a.mux.HandleFunc("GET "+AnswersPath+"/{id}", a.handleGetAnswer)
	a.mux.HandleFunc("DELETE "+AnswersPath+"/{id}", a.handleDeleteAnswer)
	a.mux.HandleFunc("POST "+EmbeddingsPath, a.handleCreateEmbeddings)

	return a
}

// Handler returns the http.Handler for this adapter. Use this to integrate
// with an http.Server or test with httptest. The returned handler includes
// HTTP-level middleware for request ID propagation.
func (a *Adapter) Handler() http.Handler {
	return httpRequestIDMiddleware(a.mux)
}

// InFlight returns the registry of streaming answers.
func (a *Adapter) InFlight() *transport.InFlightRegistry {
	return a.inflight
}

// httpRequestIDMiddleware is HTTP-level middleware that propagates the
// X-Request-ID header. If present in the request, it is forwarded to
// the response; otherwise a new ID is generated. The transport-level
// RequestID middleware then finds the ID already in the context.
func httpRequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		r = r.WithContext(transport.ContextWithRequestID(r.Context(), id))
		rw := &requestIDResponseWriter{ResponseWriter: w, r: r}
		next.ServeHTTP(rw, r)
	})
}

// requestIDResponseWriter wraps http.ResponseWriter to inject the
// X-Request-ID header before the first write.
type requestIDResponseWriter struct {
	http.ResponseWriter
	r           *http.Request
	headersSent bool
}

func (w *requestIDResponseWriter) WriteHeader(statusCode int) {
	w.ensureRequestIDHeader()
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *requestIDResponseWriter) Write(b []byte) (int, error) {
	w.ensureRequestIDHeader()
	return w.ResponseWriter.Write(b)
}

func (w *requestIDResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap returns the underlying ResponseWriter for http.NewResponseController.
func (w *requestIDResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *requestIDResponseWriter) ensureRequestIDHeader() {
	if w.headersSent {
		return
	}
	w.headersSent = true
	if id := transport.RequestIDFromContext(w.r.Context()); id != "" {
		w.ResponseWriter.Header().Set("X-Request-ID", id)
	}
}

// handleMethodNotAllowed answers non-POST requests on the answer paths.
func handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", http.MethodPost)
	transport.WriteErrorResponse(w,
		api.NewInvalidRequestError("method", "Method not allowed"),
		http.StatusMethodNotAllowed,
	)
}

// handleCreateAnswer handles POST /v1/answers and the legacy path.
func (a *Adapter) handleCreateAnswer(w http.ResponseWriter, r *http.Request) {
	format := a.config.StreamFormat
	if f := r.URL.Query().Get("format"); f != "" {
		parsed, err := ParseStreamFormat(f)
		if err != nil {
			transport.WriteErrorResponse(w, api.NewInvalidRequestError("format", err.Error()), http.StatusBadRequest)
			return
		}
		format = parsed
	}

	var req api.AnswerRequest
	if !a.decodeJSON(w, r, &req) {
		return
	}

	if apiErr := api.ValidateAnswerRequest(&req); apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}

	if req.Streaming() {
		a.handleStreamingAnswer(w, r, &req, format)
		return
	}

	rw := newStreamWriter(w, format, nil)
	if err := a.creator.CreateAnswer(r.Context(), &req, rw); err != nil {
		a.writeHandlerError(w, rw, err)
	}
}

// handleStreamingAnswer handles streaming answers (the default).
func (a *Adapter) handleStreamingAnswer(w http.ResponseWriter, r *http.Request, req *api.AnswerRequest, format StreamFormat) {
	ctx, cancel := context.WithCancelCause(r.Context())
	defer cancel(nil)

	release := func() {}
	rw := newStreamWriter(w, format, func(id string) {
		release = a.inflight.Register(id, cancel)
	})

	err := a.creator.CreateAnswer(ctx, req, rw)
	release()

	if err != nil {
		a.writeHandlerError(w, rw, err)
	}
}

// handleCreateEmbeddings handles POST /v1/embeddings.
func (a *Adapter) handleCreateEmbeddings(w http.ResponseWriter, r *http.Request) {
	if a.embedder == nil {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("", "embeddings are not available"),
			http.StatusNotImplemented,
		)
		return
	}

	var req api.EmbeddingRequest
	if !a.decodeJSON(w, r, &req) {
		return
	}
	if apiErr := api.ValidateEmbeddingRequest(&req); apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}

	list, err := a.embedder.CreateEmbeddings(r.Context(), &req)
	if err != nil {
		slog.Error("embedding request failed", "error", err)
		transport.WriteAPIError(w, api.AsAPIError(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(list)
}

// handleGetAnswer handles GET /v1/answers/{id}.
func (a *Adapter) handleGetAnswer(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("", "answer retrieval is not available (no store configured)"),
			http.StatusNotImplemented,
		)
		return
	}

	id := r.PathValue("id")
	if !api.ValidateAnswerID(id) {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("id", "malformed answer ID"),
			http.StatusBadRequest,
		)
		return
	}

	answer, err := a.store.GetAnswer(r.Context(), id)
	if err != nil {
		writeStoreError(w, id, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(answer)
}

// handleDeleteAnswer handles DELETE /v1/answers/{id}.
// It first cancels a matching in-flight stream, then deletes the stored
// transcript.
func (a *Adapter) handleDeleteAnswer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !api.ValidateAnswerID(id) {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("id", "malformed answer ID"),
			http.StatusBadRequest,
		)
		return
	}

	cancelled := a.inflight.Cancel(id)
	if cancelled {
		debug.Log("transport", "cancelled in-flight answer", "id", id)
	}

	if a.store == nil {
		if cancelled {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("", "answer deletion is not available (no store configured)"),
			http.StatusNotImplemented,
		)
		return
	}

	if err := a.store.DeleteAnswer(r.Context(), id); err != nil {
		// A cancelled stream may not have been stored yet.
		if !(cancelled && errors.Is(err, storage.ErrNotFound)) {
			writeStoreError(w, id, err)
			return
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleListAnswers handles GET /v1/answers.
func (a *Adapter) handleListAnswers(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("", "answer listing is not available (no store configured)"),
			http.StatusNotImplemented,
		)
		return
	}

	opts, err := parseListOptions(r)
	if err != nil {
		transport.WriteErrorResponse(w, err, http.StatusBadRequest)
		return
	}

	result, storeErr := a.store.ListAnswers(r.Context(), opts)
	if storeErr != nil {
		slog.Error("listing answers failed", "error", storeErr)
		transport.WriteAPIError(w, api.AsAPIError(storeErr))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// decodeJSON validates the content type, limits the body size and decodes
// the body into v. It writes the error response and returns false on
// failure.
func (a *Adapter) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || mediaType != "application/json" {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("content_type", "Content-Type must be application/json"),
				http.StatusUnsupportedMediaType,
			)
			return false
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", a.config.MaxBodySize)),
				http.StatusRequestEntityTooLarge,
			)
			return false
		}
		transport.WriteAPIError(w, decodeError(err))
		return false
	}
	return true
}

// decodeError maps a JSON decoding error to a client error. Type
// mismatches on known fields get the same messages as validation.
func decodeError(err error) *api.APIError {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		switch field := typeErr.Field; {
		case field == "question":
			return api.NewInvalidRequestError("question", "question must be a string")
		case field == "fileChunks":
			return api.NewInvalidRequestError("fileChunks", "fileChunks must be an array")
		case strings.HasPrefix(field, "fileChunks."):
			return api.NewInvalidRequestError(field, field+" must be a string")
		case field == "stream":
			return api.NewInvalidRequestError("stream", "stream must be a boolean")
		case field != "":
			return api.NewInvalidRequestError(field, "invalid value for "+field)
		}
	}
	if strings.Contains(err.Error(), "input must be") {
		return api.NewInvalidRequestError("input", "input must be a string or an array of strings")
	}
	return api.NewInvalidRequestError("body", "invalid JSON: "+err.Error())
}

// writeStoreError maps a store error to an HTTP error response.
func writeStoreError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		transport.WriteAPIError(w, api.NewNotFoundError("answer "+id+" not found"))
		return
	}
	slog.Error("store operation failed", "id", id, "error", err)
	transport.WriteAPIError(w, api.AsAPIError(err))
}

// parseListOptions extracts pagination parameters from query string.
func parseListOptions(r *http.Request) (transport.ListOptions, *api.APIError) {
	q := r.URL.Query()
	opts := transport.ListOptions{
		After:  q.Get("after"),
		Before: q.Get("before"),
		Model:  q.Get("model"),
		Order:  q.Get("order"),
	}

	if opts.After != "" && opts.Before != "" {
		return opts, api.NewInvalidRequestError("after", "cannot use both 'after' and 'before' cursors")
	}

	if opts.Order != "" && opts.Order != "asc" && opts.Order != "desc" {
		return opts, api.NewInvalidRequestError("order", "order must be 'asc' or 'desc'")
	}
	if opts.Order == "" {
		opts.Order = "desc"
	}

	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			return opts, api.NewInvalidRequestError("limit", "limit must be a positive integer")
		}
		opts.Limit = limit
	}

	return opts, nil
}

// writeHandlerError writes an error from the handler. Before the stream
// has started it becomes a JSON error response; after that the stream is
// closed as failed and no sources are written.
func (a *Adapter) writeHandlerError(w http.ResponseWriter, rw *streamWriter, err error) {
	apiErr := api.AsAPIError(err)

	switch rw.currentState() {
	case writerIdle:
		transport.WriteAPIError(w, apiErr)
	case writerStreaming:
		failed := &api.Answer{Object: "answer", Status: api.AnswerStatusFailed, Error: apiErr}
		if started := rw.startedAnswer(); started != nil {
			failed.ID = started.ID
			failed.Model = started.Model
		}
		if closeErr := rw.Close(context.Background(), failed); closeErr != nil {
			debug.Log("transport", "could not terminate stream", "error", closeErr)
		}
	default:
		// The answer was already delivered; only the log remains.
		debug.Log("transport", "error after answer completed", "error", err)
	}
}
