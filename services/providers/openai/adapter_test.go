package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/llm-gateway/config"
	"github.com/upb/llm-gateway/services/providers"
)

func newTestAdapter(url string) *Adapter {
	return NewAdapter(config.ProviderConfig{APIKey: "sk-test", BaseURL: url})
}

func TestChatCompletion(t *testing.T) {
	var gotAuth string
	var gotBody wireRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		assert.Equal(t, "/chat/completions", r.URL.Path)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":      "chatcmpl-123",
			"model":   "gpt-4o",
			"created": 1710000000,
			"choices": []map[string]interface{}{{
				"message":       map[string]string{"role": "assistant", "content": "hello there"},
				"finish_reason": "stop",
			}},
			"usage": map[string]int{"prompt_tokens": 12, "completion_tokens": 4, "total_tokens": 16},
		})
	}))
	defer server.Close()

	adapter := newTestAdapter(server.URL)
	resp, err := adapter.ChatCompletion(context.Background(), &providers.ChatRequest{
		Model:    "gpt-4o",
		Messages: []providers.Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "gpt-4o", gotBody.Model)
	assert.Equal(t, "openai", resp.Provider)
	assert.Equal(t, "hello there", resp.Message.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 12, resp.Usage.InputTokens)
	assert.Equal(t, 4, resp.Usage.OutputTokens)
}

func TestChatCompletionKeyOverride(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":    "chatcmpl-1",
			"model": "gpt-4o",
			"choices": []map[string]interface{}{{
				"message":       map[string]string{"role": "assistant", "content": "ok"},
				"finish_reason": "stop",
			}},
		})
	}))
	defer server.Close()

	adapter := newTestAdapter(server.URL)
	ctx := providers.WithKeyOverride(context.Background(), "sk-byok")
	_, err := adapter.ChatCompletion(ctx, &providers.ChatRequest{Model: "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer sk-byok", gotAuth)
}

func TestChatCompletionAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit_error"}}`))
	}))
	defer server.Close()

	adapter := newTestAdapter(server.URL)
	_, err := adapter.ChatCompletion(context.Background(), &providers.ChatRequest{Model: "gpt-4o"})
	require.Error(t, err)

	var pe *providers.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 429, pe.StatusCode)
	assert.True(t, pe.Retryable)
	assert.True(t, providers.IsRateLimited(err))
	assert.Equal(t, "rate limited", pe.Message)
}

func TestChatCompletionRetriesServerError(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":    "chatcmpl-1",
			"model": "gpt-4o",
			"choices": []map[string]interface{}{{
				"message":       map[string]string{"role": "assistant", "content": "ok"},
				"finish_reason": "stop",
			}},
		})
	}))
	defer server.Close()

	adapter := NewAdapter(config.ProviderConfig{APIKey: "sk-test", BaseURL: server.URL, MaxRetries: 1})
	resp, err := adapter.ChatCompletion(context.Background(), &providers.ChatRequest{Model: "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "ok", resp.Message.Content)
}

func TestChatCompletionStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body wireRequest
		json.NewDecoder(r.Body).Decode(&body)
		assert.True(t, body.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(`data: {"id":"c1","model":"gpt-4o","choices":[{"delta":{"role":"assistant","content":"hel"}}]}` + "\n\n"))
		w.Write([]byte(`data: {"id":"c1","model":"gpt-4o","choices":[{"delta":{"content":"lo"}}]}` + "\n\n"))
		w.Write([]byte(`data: {"id":"c1","model":"gpt-4o","choices":[{"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}` + "\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer server.Close()

	adapter := newTestAdapter(server.URL)

	var text string
	var finalUsage *providers.Usage
	err := adapter.ChatCompletionStream(context.Background(), &providers.ChatRequest{Model: "gpt-4o"}, func(chunk *providers.ChatChunk) error {
		text += chunk.Delta.Content
		if chunk.Usage != nil {
			finalUsage = chunk.Usage
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
	require.NotNil(t, finalUsage)
	assert.Equal(t, 5, finalUsage.InputTokens)
	assert.Equal(t, 2, finalUsage.OutputTokens)
}

func TestChatCompletionStreamCallbackAborts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`data: {"id":"c1","choices":[{"delta":{"content":"a"}}]}` + "\n\n"))
		w.Write([]byte(`data: {"id":"c1","choices":[{"delta":{"content":"b"}}]}` + "\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer server.Close()

	adapter := newTestAdapter(server.URL)
	seen := 0
	err := adapter.ChatCompletionStream(context.Background(), &providers.ChatRequest{Model: "gpt-4o"}, func(chunk *providers.ChatChunk) error {
		seen++
		return context.Canceled
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, seen)
}
