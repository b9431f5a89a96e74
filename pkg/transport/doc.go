// Package transport defines the handler interfaces and middleware chain for
// the askdocs HTTP transport layer.
//
// The transport layer bridges external clients and the answer engine. It
// deserializes incoming requests into the types defined in pkg/api,
// dispatches them for processing, and serializes results back to the
// client either as a stream of answer fragments or as one JSON document.
//
// # Handler Interfaces
//
//   - AnswerCreator handles the answer-a-question operation.
//   - Embedder handles embedding requests.
//   - AnswerStore handles retrieval, listing and deletion of stored
//     answer transcripts, available only when persistence is configured.
//
// The ResponseWriter interface abstracts streaming and non-streaming output,
// so the engine can emit fragments or a complete answer without knowing
// the wire format (raw text or SSE events).
//
// # Middleware
//
// The middleware chain wraps AnswerCreator with cross-cutting concerns.
// Built-in middleware provides panic recovery, request ID assignment
// (X-Request-ID), and structured logging via log/slog.
package transport
