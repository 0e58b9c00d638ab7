package questiongen

import "github.com/abhisek/twinly/internal/llm"

// QuestionSchema defines the JSON object a question reply must contain.
var QuestionSchema = &llm.Schema{
	Name:        "persona-question",
	Description: "One multiple-choice question about a persona with the option the persona implies",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"question": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "The question shown to the user",
			},
			"answers": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":      "string",
					"minLength": 1,
				},
				"minItems":    2,
				"maxItems":    4,
				"description": "Two to four mutually exclusive options",
			},
			"personaIndex": map[string]any{
				"type":        "integer",
				"minimum":     0,
				"description": "Index into answers of the option the persona implies",
			},
		},
		"required": []any{"question", "answers", "personaIndex"},
	},
}
