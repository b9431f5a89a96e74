package openaicompat

import (
	"github.com/rhuss/askdocs/pkg/provider"
)

// TranslateToChat converts a CompletionRequest into a single-message
// ChatCompletionRequest. The prompt is sent as one user message.
func TranslateToChat(req *provider.CompletionRequest, stream bool) ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = provider.DefaultCompletionModel
	}

	temperature := req.Temperature
	if temperature == nil {
		zero := 0.0
		temperature = &zero
	}

	prompt := req.Prompt
	cr := ChatCompletionRequest{
		Model:       model,
		Messages:    []ChatMessage{{Role: "user", Content: &prompt}},
		Temperature: temperature,
		MaxTokens:   req.MaxTokens,
		N:           1,
		Stream:      stream,
	}

	// When streaming, enable usage reporting in the stream.
	if stream {
		cr.StreamOptions = &ChatStreamOptions{IncludeUsage: true}
	}
	return cr
}

// TranslateResponse converts a ChatCompletionResponse into a
// CompletionResponse using the first choice.
func TranslateResponse(resp *ChatCompletionResponse) *provider.CompletionResponse {
	out := &provider.CompletionResponse{
		Model: resp.Model,
		Usage: translateUsage(resp.Usage),
	}
	for _, c := range resp.Choices {
		if c.Index != 0 {
			continue
		}
		if c.Message.Content != nil {
			out.Text = *c.Message.Content
		}
		out.FinishReason = c.FinishReason
		break
	}
	return out
}

// TranslateEmbeddings orders embedding vectors by their input index.
func TranslateEmbeddings(resp *embeddingResponse, inputs int) (*provider.EmbeddingResponse, bool) {
	vectors := make([][]float32, inputs)
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= inputs || vectors[d.Index] != nil {
			return nil, false
		}
		vectors[d.Index] = d.Embedding
	}
	for _, v := range vectors {
		if v == nil {
			return nil, false
		}
	}
	return &provider.EmbeddingResponse{
		Model:   resp.Model,
		Vectors: vectors,
		Usage:   translateUsage(resp.Usage),
	}, true
}

func translateUsage(u *ChatUsage) *provider.Usage {
	if u == nil {
		return nil
	}
	return &provider.Usage{
		InputTokens:  u.PromptTokens,
		OutputTokens: u.CompletionTokens,
		TotalTokens:  u.TotalTokens,
	}
}
