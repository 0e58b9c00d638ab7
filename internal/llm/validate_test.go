package llm

import (
	"errors"
	"testing"
)

func testSchema() *Schema {
	return &Schema{
		Name:        "test-answer-set",
		Description: "A test object",
		Definition: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"question": map[string]any{"type": "string", "minLength": 1},
				"answers": map[string]any{
					"type":     "array",
					"items":    map[string]any{"type": "string"},
					"minItems": 2,
					"maxItems": 4,
				},
				"personaIndex": map[string]any{"type": "integer", "minimum": 0},
			},
			"required": []any{"question", "answers", "personaIndex"},
		},
	}
}

func TestValidateJSON(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"valid", `{"question":"Tea or coffee?","answers":["Tea","Coffee"],"personaIndex":1}`, false},
		{"extra fields allowed", `{"question":"Q?","answers":["A","B"],"personaIndex":0,"note":"x"}`, false},
		{"missing required", `{"question":"Q?","answers":["A","B"]}`, true},
		{"wrong type", `{"question":"Q?","answers":["A","B"],"personaIndex":"one"}`, true},
		{"too few answers", `{"question":"Q?","answers":["A"],"personaIndex":0}`, true},
		{"too many answers", `{"question":"Q?","answers":["A","B","C","D","E"],"personaIndex":0}`, true},
		{"malformed", `{"question":`, true},
		{"empty", ``, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateJSON(testSchema(), []byte(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var inv *ErrInvalidResponse
				if !errors.As(err, &inv) {
					t.Fatalf("expected ErrInvalidResponse, got: %T", err)
				}
			}
		})
	}
}

func TestValidateJSON_NilSchema(t *testing.T) {
	if err := ValidateJSON(nil, []byte(`not json`)); err != nil {
		t.Fatalf("expected nil for nil schema, got %v", err)
	}
}

func TestValidateJSON_SchemaIsCached(t *testing.T) {
	s := testSchema()
	s.Name = "cache-probe"
	if err := ValidateJSON(s, []byte(`{"question":"Q?","answers":["A","B"],"personaIndex":0}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := schemaCache.Load("cache-probe"); !ok {
		t.Fatal("expected compiled schema to be cached")
	}
}
