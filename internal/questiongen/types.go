package questiongen

import (
	"github.com/abhisek/twinly/internal/catalog"
	"github.com/abhisek/twinly/internal/llm"
)

// Question is a generated multiple-choice question awaiting an answer.
type Question struct {
	// Text is the question shown to the user, e.g. "Do you prefer mountains or beaches?"
	Text string `json:"question"`

	// Answers holds 2 to 4 mutually exclusive options.
	Answers []string `json:"answers"`

	// PersonaIndex is the answer the current persona implies. Never shown
	// to the user; it scores the reply.
	PersonaIndex int `json:"personaIndex"`

	// Category is the catalog name the question probes.
	Category string `json:"category"`
}

// Input is what a question is generated from.
type Input struct {
	Persona  string
	Guidance string
	Category catalog.Category
}

// RevisionInput is what a persona revision is generated from.
type RevisionInput struct {
	Persona  string
	Guidance string
	Question Question
	Selected int
}

// ChatInput is a conversation with the persona.
type ChatInput struct {
	Persona  string
	Guidance string
	Messages []llm.Message
}
