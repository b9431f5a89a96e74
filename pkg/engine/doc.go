// Package engine implements the answer orchestration for askdocs.
// The Engine struct implements transport.AnswerCreator and
// transport.Embedder: it formats the sources, builds the prompt, streams
// or completes the answer through the provider, substitutes the fallback
// answer when the backend fails, and persists the transcript. Storage is
// optional; a nil store means stateless operation.
package engine
