package api

import (
	"encoding/json"
	"strings"
	"testing"
)

func decodeAnswerRequest(t *testing.T, body string) *AnswerRequest {
	t.Helper()
	var req AnswerRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("unmarshal %s: %v", body, err)
	}
	return &req
}

func TestValidateAnswerRequest(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantParam string
		wantMsg   string
	}{
		{
			name: "valid",
			body: `{"question":"what?","fileChunks":[{"filename":"a.txt","text":"alpha"}]}`,
		},
		{
			name: "empty chunk list is allowed",
			body: `{"question":"what?","fileChunks":[]}`,
		},
		{
			name:      "missing fileChunks",
			body:      `{"question":"what?"}`,
			wantParam: "fileChunks",
			wantMsg:   "fileChunks must be an array",
		},
		{
			name:      "null fileChunks",
			body:      `{"question":"what?","fileChunks":null}`,
			wantParam: "fileChunks",
			wantMsg:   "fileChunks must be an array",
		},
		{
			name:      "empty body reports fileChunks first",
			body:      `{}`,
			wantParam: "fileChunks",
			wantMsg:   "fileChunks must be an array",
		},
		{
			name:      "missing question",
			body:      `{"fileChunks":[]}`,
			wantParam: "question",
			wantMsg:   "question must be a string",
		},
		{
			name:      "empty question",
			body:      `{"question":"","fileChunks":[]}`,
			wantParam: "question",
			wantMsg:   "question must be a string",
		},
		{
			name:      "filename too long",
			body:      `{"question":"q","fileChunks":[{"filename":"` + strings.Repeat("x", 1025) + `","text":""}]}`,
			wantParam: "fileChunks[0].filename",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAnswerRequest(decodeAnswerRequest(t, tt.body))
			if tt.wantParam == "" {
				if err != nil {
					t.Fatalf("ValidateAnswerRequest() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("ValidateAnswerRequest() = nil, want error on %q", tt.wantParam)
			}
			if err.Type != ErrorTypeInvalidRequest {
				t.Errorf("Type = %q, want %q", err.Type, ErrorTypeInvalidRequest)
			}
			if err.Param != tt.wantParam {
				t.Errorf("Param = %q, want %q", err.Param, tt.wantParam)
			}
			if tt.wantMsg != "" && err.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", err.Message, tt.wantMsg)
			}
		})
	}
}

func TestAnswerRequestStreamingDefault(t *testing.T) {
	req := decodeAnswerRequest(t, `{"question":"q","fileChunks":[]}`)
	if !req.Streaming() {
		t.Error("Streaming() should default to true")
	}

	req = decodeAnswerRequest(t, `{"question":"q","fileChunks":[],"stream":false}`)
	if req.Streaming() {
		t.Error("Streaming() = true, want false when stream is false")
	}
}

func TestValidateEmbeddingRequest(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"single string", `{"input":"hello"}`, false},
		{"string array", `{"input":["a","b"],"model":"m"}`, false},
		{"missing input", `{}`, true},
		{"empty array", `{"input":[]}`, true},
		{"empty string", `{"input":""}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req EmbeddingRequest
			if err := json.Unmarshal([]byte(tt.body), &req); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			err := ValidateEmbeddingRequest(&req)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateEmbeddingRequest() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStringListRejectsNumbers(t *testing.T) {
	var req EmbeddingRequest
	if err := json.Unmarshal([]byte(`{"input":[1,2]}`), &req); err == nil {
		t.Error("expected error for numeric input")
	}
}
