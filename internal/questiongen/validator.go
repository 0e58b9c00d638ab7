package questiongen

import (
	"fmt"
	"strings"
)

// Validator checks a parsed question. Implementations should be stateless
// and safe for concurrent use.
type Validator interface {
	// Name returns a short identifier, e.g. "structural".
	Name() string

	// Validate returns nil if the question passes.
	Validate(q *Question) *ValidationError
}

// ValidationError describes why a question failed validation.
type ValidationError struct {
	Validator string
	Message   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validator %q: %s", e.Validator, e.Message)
}

const (
	minAnswers = 2
	maxAnswers = 4
)

// StructuralValidator checks that the question text and every answer are
// non-blank, that there are 2 to 4 answers, and that PersonaIndex points
// at one of them.
type StructuralValidator struct{}

func (v *StructuralValidator) Name() string { return "structural" }

func (v *StructuralValidator) Validate(q *Question) *ValidationError {
	if strings.TrimSpace(q.Text) == "" {
		return &ValidationError{Validator: v.Name(), Message: "question is empty"}
	}
	if n := len(q.Answers); n < minAnswers || n > maxAnswers {
		return &ValidationError{
			Validator: v.Name(),
			Message:   fmt.Sprintf("expected %d to %d answers, got %d", minAnswers, maxAnswers, n),
		}
	}
	for i, a := range q.Answers {
		if strings.TrimSpace(a) == "" {
			return &ValidationError{Validator: v.Name(), Message: fmt.Sprintf("answer %d is empty", i)}
		}
	}
	if q.PersonaIndex < 0 || q.PersonaIndex >= len(q.Answers) {
		return &ValidationError{
			Validator: v.Name(),
			Message:   fmt.Sprintf("personaIndex %d out of range for %d answers", q.PersonaIndex, len(q.Answers)),
		}
	}
	return nil
}

// DistinctAnswersValidator rejects questions that repeat an option,
// ignoring case and surrounding whitespace.
type DistinctAnswersValidator struct{}

func (v *DistinctAnswersValidator) Name() string { return "distinct-answers" }

func (v *DistinctAnswersValidator) Validate(q *Question) *ValidationError {
	seen := make(map[string]bool, len(q.Answers))
	for _, a := range q.Answers {
		key := strings.ToLower(strings.TrimSpace(a))
		if seen[key] {
			return &ValidationError{Validator: v.Name(), Message: fmt.Sprintf("answer %q appears twice", a)}
		}
		seen[key] = true
	}
	return nil
}
