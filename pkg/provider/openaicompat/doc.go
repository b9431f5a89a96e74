// Package openaicompat implements the provider interface against any
// OpenAI-compatible backend (/v1/chat/completions and /v1/embeddings).
//
// The streaming side is a small state machine over the backend's
// line-delimited body. It accepts Server-Sent Events ("data: {...}"),
// bare newline-delimited JSON, and JSON objects split across several
// lines, and turns them into an ordered sequence of text fragments
// terminated by exactly one done or error event.
package openaicompat
