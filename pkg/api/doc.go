// Package api defines the wire types for the askdocs answer service.
//
// Clients send an [AnswerRequest] holding a question and a list of
// [FileChunk] excerpts. The service answers with a stream of text
// fragments (or a complete [Answer] when streaming is disabled) followed
// by the excerpts it was given. Stored transcripts use the same [Answer]
// type.
//
// Core types:
//   - [AnswerRequest]: question plus file excerpts
//   - [Answer]: transcript of one answered question
//   - [StreamEvent]: event emitted when the SSE stream format is selected
//   - [EmbeddingRequest]: input for the embeddings endpoint
//   - [APIError]: structured error with type, code, param, and message
package api
