package api

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const answerIDPrefix = "ans_"

var answerIDPattern = regexp.MustCompile(`^ans_[0-9a-f]{32}$`)

// NewAnswerID generates an answer ID: "ans_" followed by a random UUID
// in 32 lowercase hex characters.
func NewAnswerID() string {
	return answerIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ValidateAnswerID checks whether id is a well-formed answer ID.
func ValidateAnswerID(id string) bool {
	return answerIDPattern.MatchString(id)
}
