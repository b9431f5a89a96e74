package provider

// Defaults applied by adapters when a request leaves the field empty.
const (
	DefaultCompletionModel = "gpt-3.5-turbo"
	DefaultEmbeddingModel  = "text-embedding-ada-002"
)

// CompletionRequest is a single-turn completion: one user prompt.
type CompletionRequest struct {
	Model       string
	Prompt      string
	Temperature *float64
	MaxTokens   *int
}

// CompletionResponse is the result of a non-streaming completion.
type CompletionResponse struct {
	Model        string
	Text         string
	FinishReason string
	Usage        *Usage
}

// Usage reports token consumption as returned by the backend.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// ProviderEventType classifies a streaming event from the backend.
type ProviderEventType int

const (
	ProviderEventTextDelta ProviderEventType = iota // Text fragment
	ProviderEventDone                               // Stream finished
	ProviderEventError                              // Stream failed
)

// String returns the event type name for logs.
func (t ProviderEventType) String() string {
	switch t {
	case ProviderEventTextDelta:
		return "text_delta"
	case ProviderEventDone:
		return "done"
	case ProviderEventError:
		return "error"
	default:
		return "unknown"
	}
}

// ProviderEvent is a single streaming event from the backend.
//
// A well-formed stream is zero or more TextDelta events followed by
// exactly one Done or Error event. TextDelta events never carry an
// empty Delta.
type ProviderEvent struct {
	Type ProviderEventType

	// Delta is the text fragment of a TextDelta event.
	Delta string

	// FinishReason is the backend's finish reason, set on Done when known.
	FinishReason string

	// Usage is set on Done when the backend reported it.
	Usage *Usage

	// Err is set on Error events.
	Err error
}

// EmbeddingRequest asks for embeddings of one or more inputs.
type EmbeddingRequest struct {
	Model string
	Input []string
}

// EmbeddingResponse holds one vector per input, in input order.
type EmbeddingResponse struct {
	Model   string
	Vectors [][]float32
	Usage   *Usage
}
