package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatServer(t *testing.T, content string, check func(body map[string]any)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if check != nil {
			check(body)
		}

		choices := []map[string]any{}
		if content != "" {
			choices = append(choices, map[string]any{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"model":   "gpt-4o-mini",
			"choices": choices,
		})
	}))
}

func TestOpenAIComplete(t *testing.T) {
	srv := chatServer(t, "  Hello there!  ", func(body map[string]any) {
		assert.Equal(t, "gpt-4o-mini", body["model"])
		assert.InDelta(t, 0.7, body["temperature"], 0.0001)
		assert.EqualValues(t, 300, body["max_tokens"])
		assert.Nil(t, body["response_format"])

		msgs := body["messages"].([]any)
		require.Len(t, msgs, 1)
		msg := msgs[0].(map[string]any)
		assert.Equal(t, "system", msg["role"])
		assert.Equal(t, "say hello", msg["content"])
	})
	defer srv.Close()

	c := NewOpenAI("test-key", srv.URL, "gpt-4o-mini")
	out, err := c.Complete(context.Background(), "say hello", Options{Temperature: 0.7, MaxTokens: 300})
	require.NoError(t, err)
	assert.Equal(t, "Hello there!", out)
}

func TestOpenAICompleteJSONMode(t *testing.T) {
	srv := chatServer(t, `{"budget":"5k"}`, func(body map[string]any) {
		rf, ok := body["response_format"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "json_object", rf["type"])
	})
	defer srv.Close()

	c := NewOpenAI("test-key", srv.URL+"/", "gpt-4o-mini")
	out, err := c.Complete(context.Background(), "extract", Options{Temperature: 0.1, MaxTokens: 500, JSON: true})
	require.NoError(t, err)
	assert.Equal(t, `{"budget":"5k"}`, out)
}

func TestOpenAICompleteNoChoices(t *testing.T) {
	srv := chatServer(t, "", nil)
	defer srv.Close()

	_, err := NewOpenAI("test-key", srv.URL, "gpt-4o-mini").Complete(context.Background(), "x", Options{})
	assert.ErrorIs(t, err, ErrNoChoices)
}

func TestOpenAICompleteUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	_, err := NewOpenAI("test-key", srv.URL, "gpt-4o-mini").Complete(context.Background(), "x", Options{})
	assert.Error(t, err)
}
