package api

import (
	"encoding/json"
	"errors"
)

// FileChunk is an excerpt of a file the question should be answered from.
type FileChunk struct {
	Filename string `json:"filename" validate:"max=1024"`
	Text     string `json:"text"`
}

// AnswerRequest is the client request for an answer. FileChunks must be
// present (an empty list is allowed); Question must be non-empty.
// Fields are validated in declaration order, so a missing fileChunks is
// reported before a missing question.
type AnswerRequest struct {
	FileChunks []FileChunk `json:"fileChunks" validate:"required,dive"`
	Question   string      `json:"question" validate:"required"`

	// Stream selects streaming output. Nil means true.
	Stream *bool `json:"stream,omitempty"`
}

// Streaming reports whether the answer should be streamed.
func (r *AnswerRequest) Streaming() bool {
	return r.Stream == nil || *r.Stream
}

// AnswerStatus is the lifecycle state of an answer.
type AnswerStatus string

const (
	AnswerStatusInProgress AnswerStatus = "in_progress"
	AnswerStatusCompleted  AnswerStatus = "completed"

	// AnswerStatusIncomplete marks an answer that ended with the fallback
	// text or was cut short by the model's length limit.
	AnswerStatusIncomplete AnswerStatus = "incomplete"
	AnswerStatusFailed     AnswerStatus = "failed"
	AnswerStatusCancelled  AnswerStatus = "cancelled"
)

// Answer is the transcript of one answered question. It is also the body
// of a non-streaming answer response.
type Answer struct {
	ID        string       `json:"id"`
	Object    string       `json:"object"`
	Status    AnswerStatus `json:"status"`
	Model     string       `json:"model"`
	Question  string       `json:"question"`
	Answer    string       `json:"answer"`
	Sources   string       `json:"sources"`
	Usage     *Usage       `json:"usage,omitempty"`
	Error     *APIError    `json:"error,omitempty"`
	CreatedAt int64        `json:"created_at"`
}

// Usage reports token consumption for an answer.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// AnswerList holds a page of stored answers.
type AnswerList struct {
	Object  string    `json:"object"`
	Data    []*Answer `json:"data"`
	HasMore bool      `json:"has_more"`
	FirstID string    `json:"first_id"`
	LastID  string    `json:"last_id"`
}

// StringList accepts either a single JSON string or an array of strings.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (s *StringList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*s = StringList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return errors.New("input must be a string or an array of strings")
	}
	*s = many
	return nil
}

// EmbeddingRequest is the client request for embeddings.
type EmbeddingRequest struct {
	Input StringList `json:"input" validate:"required,min=1"`
	Model string     `json:"model,omitempty"`
}

// Embedding is one vector of an embedding list.
type Embedding struct {
	Object    string    `json:"object"`
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

// EmbeddingList is the embeddings endpoint response.
type EmbeddingList struct {
	Object string      `json:"object"`
	Model  string      `json:"model"`
	Data   []Embedding `json:"data"`
}
