// Package mockbackend implements a deterministic OpenAI-compatible
// backend. It serves chat completions in three stream framings, and
// embeddings, for local runs and end-to-end tests.
//
// Answers are derived from the question found in the prompt. Questions
// containing "[fail]" get an HTTP 500, "[stream-error]" an error object
// after the first chunk, and "[empty]" a completion without text.
package mockbackend

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rhuss/askdocs/pkg/provider/openaicompat"
)

// Mode selects how completion chunks are framed on the wire.
type Mode string

const (
	ModeSSE    Mode = "sse"    // data: {...}\n\n
	ModeNDJSON Mode = "ndjson" // {...}\n
	ModeSplit  Mode = "split"  // each JSON object spread over two lines
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeSSE, ModeNDJSON, ModeSplit:
		return m, nil
	}
	return "", fmt.Errorf("unknown stream mode %q", s)
}

// ModeHeader lets a single request choose its stream mode.
const ModeHeader = "X-Mock-Stream-Mode"

// Model is reported when a request names no model.
const Model = "mock-model"

const (
	embeddingDims = 8
	promptTokens  = 10
)

// Options configures the backend.
type Options struct {
	// Mode is the default stream framing. Empty means ModeSSE.
	Mode Mode

	// Delay pauses between streamed chunks.
	Delay time.Duration
}

var questionPattern = regexp.MustCompile(`##Question: (.*?)##`)

type backend struct {
	mode  Mode
	delay time.Duration
}

// New returns the backend's HTTP handler.
func New(opts Options) http.Handler {
	b := &backend{mode: opts.Mode, delay: opts.Delay}
	if b.mode == "" {
		b.mode = ModeSSE
	}
	return b.routes()
}

func (b *backend) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", b.handleChatCompletions)
	mux.HandleFunc("POST /v1/embeddings", handleEmbeddings)
	mux.HandleFunc("GET /v1/models", handleModels)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	return mux
}

func (b *backend) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req openaicompat.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "invalid JSON: "+err.Error())
		return
	}

	question := questionOf(&req)
	if strings.Contains(question, "[fail]") {
		writeError(w, http.StatusInternalServerError, "server_error", "The server had an error while processing your request.")
		return
	}

	model := req.Model
	if model == "" {
		model = Model
	}

	tokens := AnswerTokens(question)
	if strings.Contains(question, "[empty]") {
		tokens = nil
	}

	if !req.Stream {
		writeCompletion(w, model, strings.Join(tokens, ""), len(tokens))
		return
	}

	mode := b.mode
	if h := r.Header.Get(ModeHeader); h != "" {
		m, err := ParseMode(h)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_error", err.Error())
			return
		}
		mode = m
	}

	b.stream(w, r, mode, model, tokens, strings.Contains(question, "[stream-error]"))
}

// questionOf extracts the question from the last user message, falling
// back to the whole message when it does not follow the prompt layout.
func questionOf(req *openaicompat.ChatCompletionRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		m := req.Messages[i]
		if m.Role != "user" || m.Content == nil {
			continue
		}
		if match := questionPattern.FindStringSubmatch(*m.Content); match != nil {
			return match[1]
		}
		return *m.Content
	}
	return ""
}

// AnswerTokens returns the fragments streamed for question, one per word.
func AnswerTokens(question string) []string {
	text := fmt.Sprintf("**Answer:** the files describe %s.", strings.TrimSuffix(strings.TrimSpace(question), "?"))
	var tokens []string
	for i, word := range strings.Fields(text) {
		if i > 0 {
			word = " " + word
		}
		tokens = append(tokens, word)
	}
	return tokens
}

func writeCompletion(w http.ResponseWriter, model, text string, n int) {
	content := text
	resp := openaicompat.ChatCompletionResponse{
		ID:     "chatcmpl-mock",
		Object: "chat.completion",
		Model:  model,
		Choices: []openaicompat.ChatChoice{{
			Message:      openaicompat.ChatMessage{Role: "assistant", Content: &content},
			FinishReason: "stop",
		}},
		Usage: &openaicompat.ChatUsage{
			PromptTokens:     promptTokens,
			CompletionTokens: n,
			TotalTokens:      promptTokens + n,
		},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (b *backend) stream(w http.ResponseWriter, r *http.Request, mode Mode, model string, tokens []string, failMidway bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "server_error", "streaming not supported")
		return
	}

	if mode == ModeSSE {
		w.Header().Set("Content-Type", "text/event-stream")
	} else {
		w.Header().Set("Content-Type", "application/x-ndjson")
	}
	w.Header().Set("Cache-Control", "no-cache")

	emit := func(v any) bool {
		if b.delay > 0 {
			select {
			case <-time.After(b.delay):
			case <-r.Context().Done():
				return false
			}
		}
		data, _ := json.Marshal(v)
		writeFrame(w, mode, data)
		flusher.Flush()
		return true
	}

	for i, tok := range tokens {
		if !emit(deltaChunk(model, tok, nil)) {
			return
		}
		if failMidway && i == 0 {
			emit(map[string]any{"error": openaicompat.ChatErrorDetail{
				Message: "The model is overloaded.",
				Type:    "server_error",
			}})
			return
		}
	}

	stop := "stop"
	final := deltaChunk(model, "", &stop)
	final["usage"] = openaicompat.ChatUsage{
		PromptTokens:     promptTokens,
		CompletionTokens: len(tokens),
		TotalTokens:      promptTokens + len(tokens),
	}
	if !emit(final) {
		return
	}

	if mode == ModeSSE {
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}
}

func deltaChunk(model, content string, finish *string) map[string]any {
	delta := map[string]any{}
	if content != "" {
		delta["content"] = content
	}
	return map[string]any{
		"id":     "chatcmpl-mock-stream",
		"object": "chat.completion.chunk",
		"model":  model,
		"choices": []any{map[string]any{
			"index":         0,
			"delta":         delta,
			"finish_reason": finish,
		}},
	}
}

// writeFrame writes one JSON object in the framing of mode. The split
// mode breaks the object after its first structural comma to exercise
// clients that accumulate partial JSON.
func writeFrame(w http.ResponseWriter, mode Mode, data []byte) {
	switch mode {
	case ModeSSE:
		fmt.Fprintf(w, "data: %s\n\n", data)
	case ModeNDJSON:
		fmt.Fprintf(w, "%s\n", data)
	case ModeSplit:
		if i := structuralComma(data); i > 0 {
			fmt.Fprintf(w, "%s\n%s\n", data[:i+1], data[i+1:])
			return
		}
		fmt.Fprintf(w, "%s\n", data)
	}
}

// structuralComma returns the index of the first comma outside a JSON
// string, or -1.
func structuralComma(data []byte) int {
	inString, escaped := false, false
	for i, c := range data {
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case c == ',' && !inString:
			return i
		}
	}
	return -1
}

type embeddingRequest struct {
	Model string          `json:"model"`
	Input json.RawMessage `json:"input"`
}

func handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	var req embeddingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "invalid JSON: "+err.Error())
		return
	}

	var inputs []string
	if err := json.Unmarshal(req.Input, &inputs); err != nil {
		var single string
		if err := json.Unmarshal(req.Input, &single); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_error", "input must be a string or an array of strings")
			return
		}
		inputs = []string{single}
	}

	data := make([]map[string]any, len(inputs))
	for i, in := range inputs {
		data[i] = map[string]any{
			"object":    "embedding",
			"index":     i,
			"embedding": embed(in),
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"model":  req.Model,
		"data":   data,
		"usage":  map[string]int{"prompt_tokens": len(inputs), "total_tokens": len(inputs)},
	})
}

// embed derives a unit vector from the FNV hash of s.
func embed(s string) []float32 {
	h := fnv.New64a()
	h.Write([]byte(s))
	seed := h.Sum64()

	vec := make([]float32, embeddingDims)
	var norm float64
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		v := float64(int64(seed>>11))/float64(1<<52) - 1
		vec[i] = float32(v)
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

func handleModels(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"data": []map[string]any{
			{"id": Model, "object": "model", "owned_by": "askdocs-mock"},
		},
	})
}

func writeError(w http.ResponseWriter, status int, typ, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(openaicompat.ChatErrorResponse{
		Error: openaicompat.ChatErrorDetail{Message: msg, Type: typ},
	})
}
