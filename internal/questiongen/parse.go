package questiongen

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/abhisek/twinly/internal/llm"
)

// questionOutput is the raw reply object before validation.
type questionOutput struct {
	Question     string   `json:"question"`
	Answers      []string `json:"answers"`
	PersonaIndex float64  `json:"personaIndex"`
}

// ParseQuestion scrapes a question for category out of a free-text reply.
// The reply may wrap the JSON object in prose or code fences and may carry
// // or /* */ comments inside it.
func ParseQuestion(raw, category string) (*Question, error) {
	block, ok := extractBlock(raw)
	if !ok {
		return nil, &MalformedGenerationError{Reason: ErrNoQuestionBlock, Raw: raw}
	}

	cleaned := []byte(stripComments(block))
	if !json.Valid(cleaned) {
		return nil, malformed(raw, fmt.Errorf("extracted block is not valid JSON"))
	}
	if err := llm.ValidateJSON(QuestionSchema, cleaned); err != nil {
		return nil, malformed(raw, err)
	}

	var out questionOutput
	if err := json.Unmarshal(cleaned, &out); err != nil {
		return nil, malformed(raw, fmt.Errorf("decode question: %w", err))
	}
	if out.PersonaIndex != math.Trunc(out.PersonaIndex) {
		return nil, malformed(raw, fmt.Errorf("personaIndex %v is not an integer", out.PersonaIndex))
	}

	q := &Question{
		Text:         strings.TrimSpace(out.Question),
		Answers:      make([]string, len(out.Answers)),
		PersonaIndex: int(out.PersonaIndex),
		Category:     category,
	}
	for i, a := range out.Answers {
		q.Answers[i] = strings.TrimSpace(a)
	}

	if verr := (&StructuralValidator{}).Validate(q); verr != nil {
		return nil, malformed(raw, verr)
	}
	return q, nil
}

// extractBlock returns the first balanced {...} substring of s. Braces
// inside JSON string literals and // or /* */ comments do not count. When
// the braces never balance
// it falls back to the span from the first '{' to the last '}'.
func extractBlock(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '/':
			i = skipComment(s, i)
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}

	end := strings.LastIndexByte(s, '}')
	if end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// skipComment returns the index of the last byte of the comment opening
// at s[i], or i when none opens there. An unterminated block comment runs
// to the end of s.
func skipComment(s string, i int) int {
	if i+1 >= len(s) {
		return i
	}
	switch s[i+1] {
	case '/':
		if nl := strings.IndexByte(s[i:], '\n'); nl >= 0 {
			return i + nl
		}
		return len(s) - 1
	case '*':
		if end := strings.Index(s[i+2:], "*/"); end >= 0 {
			return i + 2 + end + 1
		}
		return len(s) - 1
	}
	return i
}

// stripComments removes // line comments and /* */ block comments that sit
// outside string literals. An unterminated block comment runs to the end.
func stripComments(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		if c == '/' && i+1 < len(s) {
			switch s[i+1] {
			case '/':
				nl := strings.IndexByte(s[i:], '\n')
				if nl < 0 {
					return b.String()
				}
				i += nl - 1 // the newline itself is kept
				continue
			case '*':
				end := strings.Index(s[i+2:], "*/")
				if end < 0 {
					return b.String()
				}
				i += 2 + end + 1
				continue
			}
		}

		if c == '"' {
			inString = true
		}
		b.WriteByte(c)
	}
	return b.String()
}
