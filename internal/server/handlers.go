package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/abhisek/twinly/internal/llm"
	"github.com/abhisek/twinly/internal/session"
)

// Engine is the part of *session.Service the handlers use.
type Engine interface {
	Initialize(ctx context.Context, id string) (*session.Identity, error)
	RequestQuestion(ctx context.Context, id string) (*session.QuestionView, error)
	SubmitAnswer(ctx context.Context, id string, selected int) (*session.AnswerView, error)
	Profile(ctx context.Context, id string) (*session.Profile, error)
	SetGuidance(ctx context.Context, id, text string) error
	SetName(ctx context.Context, id, name string) error
	SetPersona(ctx context.Context, id, text string) error
	Reset(ctx context.Context, id string) error
	Chat(ctx context.Context, id string, messages []llm.Message) (string, error)
}

// Pinger reports backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type handlers struct {
	engine Engine
	health Pinger
}

type answerRequest struct {
	Selected *int `json:"selected" binding:"required"`
}

type textRequest struct {
	Text *string `json:"text" binding:"required"`
}

type chatRequest struct {
	Messages []llm.Message `json:"messages"`
}

type chatChoice struct {
	Message llm.Message `json:"message"`
}

// statusFor maps engine errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrUnknownIdentity):
		return http.StatusNotFound
	case errors.Is(err, session.ErrNoPendingQuestion),
		errors.Is(err, session.ErrInvalidSelection),
		errors.Is(err, session.ErrEmptyConversation),
		errors.Is(err, session.ErrInvalidMessage):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrStateConflict):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(statusFor(err), gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
}

func (h *handlers) initialize(c *gin.Context) {
	id, err := h.engine.Initialize(c.Request.Context(), Identity(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, id)
}

func (h *handlers) getQuestion(c *gin.Context) {
	q, err := h.engine.RequestQuestion(c.Request.Context(), Identity(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (h *handlers) submitAnswer(c *gin.Context) {
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	out, err := h.engine.SubmitAnswer(c.Request.Context(), Identity(c), *req.Selected)
	var nq *session.NextQuestionError
	if errors.As(err, &nq) {
		// The answer is stored; only the follow-up question is missing.
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"correct": nq.Correct,
			"persona": nq.Persona,
			"error":   err.Error(),
		})
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) profile(c *gin.Context) {
	p, err := h.engine.Profile(c.Request.Context(), Identity(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// setText builds a PUT handler for one free-text field.
func (h *handlers) setText(set func(ctx context.Context, id, text string) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req textRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		if err := set(c.Request.Context(), Identity(c), *req.Text); err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

func (h *handlers) reset(c *gin.Context) {
	if err := h.engine.Reset(c.Request.Context(), Identity(c)); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *handlers) chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	reply, err := h.engine.Chat(c.Request.Context(), Identity(c), req.Messages)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"choices": []chatChoice{{
		Message: llm.Message{Role: llm.RoleAssistant, Content: reply},
	}}})
}

func (h *handlers) healthz(c *gin.Context) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.health.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
