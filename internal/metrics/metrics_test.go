package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineCounters(t *testing.T) {
	m := New()
	m.QuestionServed("Financial Outlook")
	m.QuestionServed("Financial Outlook")
	m.QuestionServed("Culture & Arts")
	m.AnswerRecorded(true)
	m.AnswerRecorded(false)
	m.AnswerRecorded(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.questionsServed.WithLabelValues("Financial Outlook")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.answers.WithLabelValues("true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.answers.WithLabelValues("false")))
}

func TestObserveLLMCall(t *testing.T) {
	m := New()
	m.ObserveLLMCall("question-gen", true, 300*time.Millisecond)
	m.ObserveLLMCall("question-gen", false, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.llmCalls.WithLabelValues("question-gen", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.llmCalls.WithLabelValues("question-gen", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.llmLatency))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveHTTP("/api/learn", http.MethodGet, 200, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `twinly_http_requests_total{method="GET",route="/api/learn",status="200"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestNewIsolated(t *testing.T) {
	a, b := New(), New()
	a.AnswerRecorded(true)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.answers.WithLabelValues("true")))
}
