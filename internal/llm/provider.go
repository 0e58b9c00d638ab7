package llm

import "context"

// Provider is the core abstraction for text generation.
// Consumers call Generate with a Request and receive free text back; any
// structure in the reply is the caller's concern.
type Provider interface {
	// Generate sends the conversation to the model and returns one or more
	// candidate completions.
	Generate(ctx context.Context, req Request) (*Response, error)

	// ModelID returns the model identifier this provider is configured to use.
	ModelID() string
}

// Request describes what to send to the model.
type Request struct {
	// System is the system prompt. Empty means no system message is sent.
	System string

	// Messages is the role-tagged conversation, oldest first. Single-shot
	// prompts carry exactly one user message.
	Messages []Message

	// MaxTokens is the maximum number of tokens in the response.
	// Zero leaves the provider default in place.
	MaxTokens int

	// Temperature controls randomness. Range: 0.0 - 1.0.
	Temperature float64
}

// Message represents a single message in the conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Role is the message sender role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// UserMessage is shorthand for a single-turn prompt.
func UserMessage(content string) []Message {
	return []Message{{Role: RoleUser, Content: content}}
}

// Response holds the model's output.
type Response struct {
	// Text is the first candidate. Always non-empty on success.
	Text string

	// Candidates holds every non-empty completion in provider order.
	// Candidates[0] == Text.
	Candidates []string

	// Usage reports token consumption for this request.
	Usage Usage

	// Model is the actual model that served the request.
	Model string

	// StopReason indicates why generation stopped.
	// Normalized to: "end", "max_tokens", "error"
	StopReason string
}

// Usage tracks token consumption for a single request.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// newResponse builds a Response from raw candidate texts, dropping blanks.
// It fails with ErrInvalidResponse when nothing usable is left.
func newResponse(candidates []string) (*Response, error) {
	var kept []string
	for _, c := range candidates {
		if c != "" {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return nil, &ErrInvalidResponse{Err: errEmptyCompletion}
	}
	return &Response{Text: kept[0], Candidates: kept}, nil
}
