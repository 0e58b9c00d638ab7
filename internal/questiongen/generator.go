package questiongen

import (
	"context"
	"fmt"
	"strings"

	"github.com/abhisek/twinly/internal/llm"
)

// Generator produces questions, persona revisions, names and chat replies
// through an llm.Provider.
type Generator struct {
	provider llm.Provider
	config   Config
}

// New creates a Generator with the given provider and config.
func New(provider llm.Provider, cfg Config) *Generator {
	return &Generator{provider: provider, config: cfg}
}

func (g *Generator) request(messages []llm.Message) llm.Request {
	return llm.Request{
		Messages:    messages,
		MaxTokens:   g.config.MaxTokens,
		Temperature: g.config.Temperature,
	}
}

// Question generates one question about in.Category.
func (g *Generator) Question(ctx context.Context, in Input) (*Question, error) {
	ctx = llm.WithPurpose(ctx, llm.PurposeQuestion)

	prompt := BuildQuestionPrompt(in.Persona, in.Guidance, in.Category)
	resp, err := g.provider.Generate(ctx, g.request(llm.UserMessage(prompt)))
	if err != nil {
		return nil, fmt.Errorf("question generation failed: %w", err)
	}

	q, err := ParseQuestion(resp.Text, in.Category.Name)
	if err != nil {
		return nil, err
	}

	for _, v := range g.config.Validators {
		if verr := v.Validate(q); verr != nil {
			return nil, malformed(resp.Text, verr)
		}
	}
	return q, nil
}

// Revise returns the persona rewritten toward the selected answer. The
// text is returned as generated.
func (g *Generator) Revise(ctx context.Context, in RevisionInput) (string, error) {
	ctx = llm.WithPurpose(ctx, llm.PurposeRevise)

	if in.Selected < 0 || in.Selected >= len(in.Question.Answers) {
		return "", fmt.Errorf("selection %d out of range for %d answers", in.Selected, len(in.Question.Answers))
	}

	prompt := BuildRevisionPrompt(in.Persona, in.Guidance, in.Question, in.Question.Answers[in.Selected])
	resp, err := g.provider.Generate(ctx, g.request(llm.UserMessage(prompt)))
	if err != nil {
		return "", fmt.Errorf("persona revision failed: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// Name mints a display name not associated with a particular gender.
func (g *Generator) Name(ctx context.Context) (string, error) {
	ctx = llm.WithPurpose(ctx, llm.PurposeName)

	resp, err := g.provider.Generate(ctx, g.request(llm.UserMessage(namePrompt)))
	if err != nil {
		return "", fmt.Errorf("name generation failed: %w", err)
	}
	return cleanName(resp.Text), nil
}

// cleanName keeps the text before the first newline or comma.
func cleanName(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "\n,"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// Chat answers the conversation in character.
func (g *Generator) Chat(ctx context.Context, in ChatInput) (string, error) {
	ctx = llm.WithPurpose(ctx, llm.PurposeChat)

	req := g.request(in.Messages)
	req.System = buildChatSystemPrompt(in.Persona, in.Guidance)

	resp, err := g.provider.Generate(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat failed: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
