package openaicompat

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/rhuss/askdocs/pkg/api"
)

func makeResponse(statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

func TestMapHTTPError(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantType api.ErrorType
		wantMsg  string
	}{
		{"400 with body", 400, `{"error":{"message":"bad model param"}}`, api.ErrorTypeInvalidRequest, "bad model param"},
		{"400 no body", 400, "", api.ErrorTypeInvalidRequest, "invalid request to backend"},
		{"401", 401, "", api.ErrorTypeServerError, "backend authentication failed"},
		{"403", 403, "", api.ErrorTypeServerError, "backend authentication failed"},
		{"404", 404, `{"error":{"message":"Model not found"}}`, api.ErrorTypeNotFound, "Model not found"},
		{"429", 429, "", api.ErrorTypeTooManyRequests, "backend rate limit exceeded"},
		{"503", 503, "", api.ErrorTypeServerError, "backend server error (HTTP 503)"},
		{"502 with body", 502, `{"error":{"message":"upstream down"}}`, api.ErrorTypeServerError, "upstream down"},
		{"418", 418, "not json", api.ErrorTypeServerError, "unexpected backend error (HTTP 418)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := MapHTTPError(makeResponse(tt.status, tt.body))
			if apiErr.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", apiErr.Type, tt.wantType)
			}
			if apiErr.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", apiErr.Message, tt.wantMsg)
			}
		})
	}
}

func TestMapNetworkError(t *testing.T) {
	apiErr := MapNetworkError(errors.New("connection refused"))
	if apiErr.Type != api.ErrorTypeServerError {
		t.Errorf("Type = %q, want %q", apiErr.Type, api.ErrorTypeServerError)
	}
	if strings.Contains(apiErr.Message, "refused") {
		t.Errorf("Message = %q leaks the network cause", apiErr.Message)
	}
}

func TestExtractErrorMessage(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"error":{"message":"context length exceeded","type":"invalid_request_error"}}`, "context length exceeded"},
		{`{"error":{"type":"server_error"}}`, ""},
		{`<html>bad gateway</html>`, ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ExtractErrorMessage(strings.NewReader(tt.body)); got != tt.want {
			t.Errorf("ExtractErrorMessage(%q) = %q, want %q", tt.body, got, tt.want)
		}
	}
	if got := ExtractErrorMessage(nil); got != "" {
		t.Errorf("ExtractErrorMessage(nil) = %q", got)
	}
}
