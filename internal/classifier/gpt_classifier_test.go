package classifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fedeforai/frostdesk-core-sub003/internal/models"
)

// fakeCompletions serves the chat completions endpoint with a fixed message content.
func fakeCompletions(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-test",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestGPT(t *testing.T, srv *httptest.Server) *GPTClassifier {
	return NewGPTClassifier("test-key", srv.URL+"/v1", "gpt-test", 100, nil, zaptest.NewLogger(t))
}

func TestGPTClassifier_ValidVerdict(t *testing.T) {
	srv := fakeCompletions(t, http.StatusOK, `{"relevant": true, "relevance_confidence": 0.97, "intent": "reschedule", "intent_confidence": 1.4}`)

	res, err := newTestGPT(t, srv).Classify(context.Background(), Input{Text: "move my lesson please"})
	require.NoError(t, err)

	assert.True(t, res.Relevant)
	assert.Equal(t, models.IntentReschedule, res.Intent)
	require.NotNil(t, res.IntentConfidence)
	assert.Equal(t, 1.0, *res.IntentConfidence)
	assert.Equal(t, "openai:gpt-test", res.ModelID)
}

func TestGPTClassifier_NotRelevantVerdict(t *testing.T) {
	srv := fakeCompletions(t, http.StatusOK, "```json\n{\"relevant\": false, \"relevance_confidence\": 0.8, \"relevance_reason\": \"SPAM\"}\n```")

	res, err := newTestGPT(t, srv).Classify(context.Background(), Input{Text: "win big"})
	require.NoError(t, err)

	assert.False(t, res.Relevant)
	assert.Equal(t, models.ReasonSpam, res.RelevanceReason)
	assert.Nil(t, res.IntentConfidence)
}

func TestGPTClassifier_FallsBackToRules(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		content string
	}{
		{"server error", http.StatusInternalServerError, ""},
		{"not json", http.StatusOK, "I think it is a booking"},
		{"unknown intent", http.StatusOK, `{"relevant": true, "relevance_confidence": 0.9, "intent": "UNKNOWN", "intent_confidence": 0.9}`},
		{"unknown reason", http.StatusOK, `{"relevant": false, "relevance_confidence": 0.9, "relevance_reason": "BORING"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := fakeCompletions(t, tt.status, tt.content)

			res, err := newTestGPT(t, srv).Classify(context.Background(), Input{Text: "I want a ski lesson"})
			require.NoError(t, err)

			assert.Equal(t, RulesModelID, res.ModelID)
			assert.Equal(t, models.IntentNewBooking, res.Intent)
		})
	}
}

func TestGPTClassifier_SendsNearZeroTemperature(t *testing.T) {
	bodies := make(chan map[string]any, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		bodies <- body
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	_, err := newTestGPT(t, srv).Classify(context.Background(), Input{Text: "I want a ski lesson"})
	require.NoError(t, err)

	body := <-bodies
	require.Contains(t, body, "temperature")
	temperature, ok := body["temperature"].(float64)
	require.True(t, ok)
	assert.Greater(t, temperature, 0.0)
	assert.Less(t, temperature, 1e-6)
}
