package openaicompat

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rhuss/askdocs/pkg/api"
	"github.com/rhuss/askdocs/pkg/debug"
)

// maxErrorBody bounds how much of a failed response is read for its message.
const maxErrorBody = 4096

// statusErrors maps backend status codes to an error constructor and the
// message used when the body carries none.
var statusErrors = map[int]struct {
	build    func(string) *api.APIError
	fallback string
}{
	http.StatusBadRequest: {
		build:    func(m string) *api.APIError { return api.NewInvalidRequestError("", m) },
		fallback: "invalid request to backend",
	},
	http.StatusUnauthorized:    {build: api.NewServerError, fallback: "backend authentication failed"},
	http.StatusForbidden:       {build: api.NewServerError, fallback: "backend authentication failed"},
	http.StatusNotFound:        {build: api.NewNotFoundError, fallback: "backend resource not found"},
	http.StatusTooManyRequests: {build: api.NewTooManyRequestsError, fallback: "backend rate limit exceeded"},
}

// MapHTTPError converts a non-2xx backend response into an APIError. The
// message comes from the backend's error object when it sent one.
func MapHTTPError(resp *http.Response) *api.APIError {
	message := ExtractErrorMessage(resp.Body)

	if m, ok := statusErrors[resp.StatusCode]; ok {
		if message == "" {
			message = m.fallback
		}
		return m.build(message)
	}

	if message == "" {
		if resp.StatusCode >= http.StatusInternalServerError {
			message = fmt.Sprintf("backend server error (HTTP %d)", resp.StatusCode)
		} else {
			message = fmt.Sprintf("unexpected backend error (HTTP %d)", resp.StatusCode)
		}
	}
	return api.NewServerError(message)
}

// MapNetworkError converts a transport failure (refused connection, DNS,
// timeout) into a server error. The cause names internal hosts, so it is
// only logged.
func MapNetworkError(err error) *api.APIError {
	debug.Log("providers", "backend unreachable", "error", err)
	return api.NewServerError("backend connection error")
}

// ExtractErrorMessage returns error.message from a ChatErrorResponse body,
// or "" when the body is missing or not in that shape.
func ExtractErrorMessage(body io.Reader) string {
	if body == nil {
		return ""
	}

	data, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return ""
	}

	var errResp ChatErrorResponse
	if json.Unmarshal(data, &errResp) != nil {
		return ""
	}
	return errResp.Error.Message
}
