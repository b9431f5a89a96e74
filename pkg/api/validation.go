package api

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// Report JSON field names ("fileChunks[0].filename") instead of Go names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// fieldMessages holds the client-facing message for a failed top-level field.
var fieldMessages = map[string]string{
	"question":   "question must be a string",
	"fileChunks": "fileChunks must be an array",
	"input":      "input must be a non-empty string or array of strings",
}

// ValidateAnswerRequest checks an AnswerRequest. It returns an *APIError
// describing the first validation failure, or nil if the request is valid.
func ValidateAnswerRequest(req *AnswerRequest) *APIError {
	return validateStruct(req)
}

// ValidateEmbeddingRequest checks an EmbeddingRequest.
func ValidateEmbeddingRequest(req *EmbeddingRequest) *APIError {
	if apiErr := validateStruct(req); apiErr != nil {
		return apiErr
	}
	for i, s := range req.Input {
		if s == "" {
			return NewInvalidRequestError(fmt.Sprintf("input[%d]", i), "input strings must not be empty")
		}
	}
	return nil
}

func validateStruct(s any) *APIError {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return NewInvalidRequestError("", err.Error())
	}

	fe := verrs[0]
	// Namespace is "AnswerRequest.fileChunks[0].filename"; drop the type name.
	param := fe.Namespace()
	if i := strings.IndexByte(param, '.'); i >= 0 {
		param = param[i+1:]
	}

	if msg, ok := fieldMessages[param]; ok {
		return NewInvalidRequestError(param, msg)
	}
	return NewInvalidRequestError(param, fmt.Sprintf("%s failed %q validation", param, fe.Tag()))
}
