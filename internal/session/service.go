package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/abhisek/twinly/internal/catalog"
	"github.com/abhisek/twinly/internal/confidence"
	"github.com/abhisek/twinly/internal/coverage"
	"github.com/abhisek/twinly/internal/llm"
	"github.com/abhisek/twinly/internal/logger"
	"github.com/abhisek/twinly/internal/persona"
	"github.com/abhisek/twinly/internal/questiongen"
)

// Generator is the text-generation side of the engine. It is satisfied by
// *questiongen.Generator.
type Generator interface {
	Question(ctx context.Context, in questiongen.Input) (*questiongen.Question, error)
	Revise(ctx context.Context, in questiongen.RevisionInput) (string, error)
	Name(ctx context.Context) (string, error)
	Chat(ctx context.Context, in questiongen.ChatInput) (string, error)
}

// Recorder receives engine events for metrics. Nil disables it.
type Recorder interface {
	QuestionServed(category string)
	AnswerRecorded(correct bool)
}

// Identity is the result of Initialize.
type Identity struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Created bool   `json:"-"`
}

// QuestionView is a question as shown to the user. The persona's own
// answer is never included.
type QuestionView struct {
	Question   string           `json:"question"`
	Answers    []string         `json:"answers"`
	Category   string           `json:"category"`
	Confidence confidence.Level `json:"confidence"`
}

// AnswerView is the outcome of SubmitAnswer: the next question plus the
// revised persona.
type AnswerView struct {
	QuestionView
	Correct bool   `json:"correct"`
	Persona string `json:"persona"`
}

// Profile is a read-only summary of an identity.
type Profile struct {
	Name       string           `json:"name"`
	Persona    string           `json:"persona"`
	Guidance   string           `json:"guidance"`
	Asked      int              `json:"asked"`
	Correct    int              `json:"correct"`
	History    []bool           `json:"history"`
	Confidence confidence.Level `json:"confidence"`
	Coverage   coverage.Counts  `json:"coverage"`
	Pending    bool             `json:"pending"`
	LastUsed   time.Time        `json:"lastUsed"`
}

// Service drives the question/answer cycle for every identity. All
// operations on one identity are serialized; different identities run
// concurrently.
type Service struct {
	states  StateStore
	gen     Generator
	tracker *coverage.Tracker
	locks   *keyedMutex
	now     func() time.Time
	log     *logger.Logger
	rec     Recorder
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the time source for lastUsed.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithTracker replaces the default coverage tracker over the full catalog.
func WithTracker(t *coverage.Tracker) Option {
	return func(s *Service) { s.tracker = t }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.rec = r }
}

// NewService creates a Service.
func NewService(states StateStore, gen Generator, opts ...Option) *Service {
	s := &Service{
		states: states,
		gen:    gen,
		locks:  newKeyedMutex(),
		now:    time.Now,
		log:    logger.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.tracker == nil {
		s.tracker = coverage.New(catalog.All())
	}
	return s
}

// withState runs fn on the identity's state under its lock. fn reports
// whether the state must be saved. The lock serializes this process only;
// a save racing another process fails with ErrStateConflict and stores
// nothing.
func (s *Service) withState(ctx context.Context, id string, fn func(st *State) (bool, error)) error {
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	st, err := s.states.Load(ctx, id)
	if err != nil {
		return err
	}

	save, fnErr := fn(st)
	if !save {
		return fnErr
	}
	if err := s.save(ctx, id, st); err != nil {
		if errors.Is(err, ErrStateConflict) {
			s.log.Warn("state changed by another writer", "identity", id)
		}
		return err
	}
	return fnErr
}

func (s *Service) save(ctx context.Context, id string, st *State) error {
	st.LastUsed = s.now().UTC()
	return s.states.Save(ctx, id, st)
}

// initAttempts bounds Initialize's reload-and-retry on ErrStateConflict.
const initAttempts = 3

// Initialize creates the identity on first contact, minting a name, and
// otherwise only refreshes lastUsed. A concurrent first contact from
// another process is resolved by reloading what that process stored.
func (s *Service) Initialize(ctx context.Context, id string) (*Identity, error) {
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	for attempt := 1; ; attempt++ {
		ident, err := s.initialize(ctx, id)
		if errors.Is(err, ErrStateConflict) && attempt < initAttempts {
			s.log.Debug("initialize raced, reloading", "identity", id, "attempt", attempt)
			continue
		}
		return ident, err
	}
}

func (s *Service) initialize(ctx context.Context, id string) (*Identity, error) {
	created := false
	st, err := s.states.Load(ctx, id)
	switch {
	case errors.Is(err, ErrUnknownIdentity):
		st = NewState("")
		created = true
	case err != nil:
		return nil, err
	}

	if st.Name == "" {
		name, err := s.gen.Name(ctx)
		if err != nil {
			return nil, err
		}
		st.Name = name
	}

	if err := s.save(ctx, id, st); err != nil {
		return nil, err
	}
	if created {
		s.log.Info("identity created", "identity", id, "name", st.Name)
	}
	return &Identity{ID: id, Name: st.Name, Created: created}, nil
}

// nextQuestion picks the least-covered category and generates a question
// from the state's current persona.
func (s *Service) nextQuestion(ctx context.Context, st *State) (*questiongen.Question, error) {
	cat := s.tracker.Pick(st.Coverage)
	q, err := s.gen.Question(ctx, questiongen.Input{
		Persona:  st.Persona,
		Guidance: st.Guidance,
		Category: cat,
	})
	if err != nil {
		return nil, err
	}
	if s.rec != nil {
		s.rec.QuestionServed(q.Category)
	}
	return q, nil
}

func view(q *questiongen.Question, st *State) QuestionView {
	return QuestionView{
		Question:   q.Text,
		Answers:    append([]string(nil), q.Answers...),
		Category:   q.Category,
		Confidence: st.Confidence(),
	}
}

// RequestQuestion generates a fresh question, replacing any pending one.
func (s *Service) RequestQuestion(ctx context.Context, id string) (*QuestionView, error) {
	var out QuestionView
	err := s.withState(ctx, id, func(st *State) (bool, error) {
		q, err := s.nextQuestion(ctx, st)
		if err != nil {
			return false, err
		}
		if st.Pending != nil {
			s.log.Debug("discarding pending question", "identity", id, "category", st.Pending.Category)
		}
		st.Pending = q
		out = view(q, st)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitAnswer scores selected against the pending question, revises the
// persona toward it, records coverage and history, and generates the next
// question. Nothing is stored unless the revision succeeds; if only the
// next question fails the answer is kept and *NextQuestionError returned.
func (s *Service) SubmitAnswer(ctx context.Context, id string, selected int) (*AnswerView, error) {
	var (
		out      AnswerView
		recorded bool
		correct  bool
	)
	err := s.withState(ctx, id, func(st *State) (bool, error) {
		p := st.Pending
		if p == nil {
			return false, ErrNoPendingQuestion
		}
		if selected < 0 || selected >= len(p.Answers) {
			return false, &InvalidSelectionError{Selected: selected, Count: len(p.Answers)}
		}

		correct = selected == p.PersonaIndex
		revised, err := s.gen.Revise(ctx, questiongen.RevisionInput{
			Persona:  st.Persona,
			Guidance: st.Guidance,
			Question: *p,
			Selected: selected,
		})
		if err != nil {
			return false, err
		}

		st.Persona = persona.Canonicalize(revised)
		st.recordAnswer(p.Category, correct)
		recorded = true
		s.log.Debug("answer recorded", "identity", id, "category", p.Category, "correct", correct,
			"confidence", st.Confidence())

		next, err := s.nextQuestion(ctx, st)
		if err != nil {
			st.Pending = nil
			s.log.Warn("next question failed after answer", "identity", id, "error", err)
			return true, &NextQuestionError{Correct: correct, Persona: st.Persona, Err: err}
		}

		st.Pending = next
		out = AnswerView{QuestionView: view(next, st), Correct: correct, Persona: st.Persona}
		return true, nil
	})
	var nqe *NextQuestionError
	if recorded && s.rec != nil && (err == nil || errors.As(err, &nqe)) {
		s.rec.AnswerRecorded(correct)
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Profile returns the identity's summary.
func (s *Service) Profile(ctx context.Context, id string) (*Profile, error) {
	st, err := s.states.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Profile{
		Name:       st.Name,
		Persona:    st.Persona,
		Guidance:   st.Guidance,
		Asked:      st.Stats.Asked,
		Correct:    st.Stats.Correct,
		History:    st.Stats.History,
		Confidence: st.Confidence(),
		Coverage:   st.Coverage,
		Pending:    st.Pending != nil,
		LastUsed:   st.LastUsed,
	}, nil
}

// SetGuidance replaces the steering notes.
func (s *Service) SetGuidance(ctx context.Context, id, text string) error {
	return s.withState(ctx, id, func(st *State) (bool, error) {
		st.Guidance = text
		return true, nil
	})
}

// SetName replaces the display name.
func (s *Service) SetName(ctx context.Context, id, name string) error {
	return s.withState(ctx, id, func(st *State) (bool, error) {
		st.Name = strings.TrimSpace(name)
		return true, nil
	})
}

// SetPersona replaces the persona with the canonical form of text.
func (s *Service) SetPersona(ctx context.Context, id, text string) error {
	return s.withState(ctx, id, func(st *State) (bool, error) {
		st.Persona = persona.Canonicalize(text)
		return true, nil
	})
}

// Reset discards everything learned about the identity. The name and
// guidance are kept.
func (s *Service) Reset(ctx context.Context, id string) error {
	return s.withState(ctx, id, func(st *State) (bool, error) {
		fresh := NewState(st.Name)
		fresh.Guidance = st.Guidance
		fresh.Version = st.Version
		*st = *fresh
		return true, nil
	})
}

// Chat answers the conversation as the identity's persona. Callers may
// only send user and assistant turns.
func (s *Service) Chat(ctx context.Context, id string, messages []llm.Message) (string, error) {
	if len(messages) == 0 {
		return "", ErrEmptyConversation
	}
	for i, m := range messages {
		if m.Role != llm.RoleUser && m.Role != llm.RoleAssistant {
			return "", fmt.Errorf("%w: message %d has role %q", ErrInvalidMessage, i, m.Role)
		}
	}

	var reply string
	err := s.withState(ctx, id, func(st *State) (bool, error) {
		out, err := s.gen.Chat(ctx, questiongen.ChatInput{
			Persona:  st.Persona,
			Guidance: st.Guidance,
			Messages: messages,
		})
		if err != nil {
			return false, err
		}
		reply = out
		return true, nil
	})
	if err != nil {
		return "", err
	}
	return reply, nil
}
