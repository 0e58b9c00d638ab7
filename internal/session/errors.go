package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNoPendingQuestion is returned when an answer arrives with no
	// outstanding question.
	ErrNoPendingQuestion = errors.New("no pending question")

	// ErrInvalidSelection matches every *InvalidSelectionError.
	ErrInvalidSelection = errors.New("invalid selection")

	// ErrUnknownIdentity is returned for identities that were never initialized.
	ErrUnknownIdentity = errors.New("unknown identity")

	// ErrEmptyConversation is returned by Chat when there is nothing to reply to.
	ErrEmptyConversation = errors.New("empty conversation")

	// ErrInvalidMessage is returned by Chat for messages with a role the
	// caller may not send.
	ErrInvalidMessage = errors.New("invalid message")

	// ErrStateConflict is returned when another writer saved the identity
	// between load and save. Nothing was stored; the caller may retry.
	ErrStateConflict = errors.New("state changed concurrently")
)

// InvalidSelectionError reports an answer index outside the pending
// question's answers.
type InvalidSelectionError struct {
	Selected int
	Count    int
}

func (e *InvalidSelectionError) Error() string {
	return fmt.Sprintf("invalid selection %d: pending question has %d answers", e.Selected, e.Count)
}

func (e *InvalidSelectionError) Is(target error) bool {
	return target == ErrInvalidSelection
}

// NextQuestionError reports that an answer was recorded and the persona
// revised, but the follow-up question could not be generated. The stored
// state carries the answer with no pending question.
type NextQuestionError struct {
	Correct bool
	Persona string
	Err     error
}

func (e *NextQuestionError) Error() string {
	return fmt.Sprintf("answer recorded, next question failed: %v", e.Err)
}

func (e *NextQuestionError) Unwrap() error { return e.Err }
