package session

import (
	"time"

	"github.com/abhisek/twinly/internal/confidence"
	"github.com/abhisek/twinly/internal/coverage"
	"github.com/abhisek/twinly/internal/persona"
	"github.com/abhisek/twinly/internal/questiongen"
)

// Stats holds lifetime counters and the rolling correctness window.
type Stats struct {
	Asked   int    `json:"asked"`
	Correct int    `json:"correct"`
	History []bool `json:"history"`
}

// State is everything stored for one identity.
type State struct {
	Name     string          `json:"name"`
	Persona  string          `json:"persona"`
	Guidance string          `json:"guidance"`
	Coverage coverage.Counts `json:"coverage"`
	Stats    Stats           `json:"stats"`

	// Pending is the single outstanding question, nil when none.
	Pending *questiongen.Question `json:"pending"`

	LastUsed time.Time `json:"lastUsed"`

	// Version is the store revision this state was loaded at. Saving
	// fails with ErrStateConflict once another writer has moved past it.
	Version int64 `json:"-"`
}

// NewState returns the state of a first-contact identity.
func NewState(name string) *State {
	return &State{
		Name:     name,
		Persona:  persona.Default,
		Coverage: coverage.Counts{},
		Stats:    Stats{History: []bool{}},
	}
}

// Confidence rates how well the persona predicts recent answers.
func (s *State) Confidence() confidence.Level {
	return confidence.Estimate(s.Stats.History)
}

// recordAnswer applies the effects of one scored answer.
func (s *State) recordAnswer(category string, correct bool) {
	s.Coverage.Increment(category)
	s.Stats.Asked++
	if correct {
		s.Stats.Correct++
	}
	s.Stats.History = confidence.Record(s.Stats.History, correct)
}
