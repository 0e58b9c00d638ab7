package questiongen

import (
	"errors"
	"fmt"
)

var (
	// ErrNoQuestionBlock means the reply held nothing brace-delimited.
	ErrNoQuestionBlock = errors.New("no question produced")

	// ErrMalformedQuestion means a block was found but it is not a valid question.
	ErrMalformedQuestion = errors.New("malformed question produced")
)

// MalformedGenerationError reports a reply that could not be turned into
// a question. errors.Is matches Reason, so callers can tell
// ErrNoQuestionBlock from ErrMalformedQuestion.
type MalformedGenerationError struct {
	Reason error  // ErrNoQuestionBlock or ErrMalformedQuestion
	Raw    string // the reply as received
	Err    error  // underlying decode or validation failure, may be nil
}

func (e *MalformedGenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed generation: %v: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed generation: %v", e.Reason)
}

func (e *MalformedGenerationError) Unwrap() error { return e.Err }

func (e *MalformedGenerationError) Is(target error) bool {
	return target == e.Reason
}

func malformed(raw string, err error) *MalformedGenerationError {
	return &MalformedGenerationError{Reason: ErrMalformedQuestion, Raw: raw, Err: err}
}
