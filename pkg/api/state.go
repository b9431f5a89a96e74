package api

import "fmt"

// answerTransitions lists the statuses reachable from each status. An
// answer starts in progress and ends in exactly one terminal status.
var answerTransitions = map[AnswerStatus][]AnswerStatus{
	"": {AnswerStatusInProgress},
	AnswerStatusInProgress: {
		AnswerStatusCompleted,
		AnswerStatusIncomplete,
		AnswerStatusFailed,
		AnswerStatusCancelled,
	},
}

// ValidateAnswerTransition checks whether an answer may move from one
// status to another. The empty status is the state before creation.
func ValidateAnswerTransition(from, to AnswerStatus) *APIError {
	for _, s := range answerTransitions[from] {
		if s == to {
			return nil
		}
	}
	return NewInvalidRequestError("status",
		fmt.Sprintf("invalid transition from %q to %q", from, to))
}
