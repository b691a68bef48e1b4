package anthropic

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
	return NewAdapter(config.ProviderConfig{APIKey: "sk-ant-test", BaseURL: url})
}

func TestBuildWireRequestLiftsSystemMessages(t *testing.T) {
	req := &providers.ChatRequest{
		Model: "claude-sonnet-4",
		Messages: []providers.Message{
			{Role: "system", Content: "be terse"},
			{Role: "user", Content: "hi"},
			{Role: "assistant", Content: "hello"},
			{Role: "system", Content: "no markdown"},
		},
	}

	wire := buildWireRequest(req, false)
	assert.Equal(t, "be terse\n\nno markdown", wire.System)
	require.Len(t, wire.Messages, 2)
	assert.Equal(t, "user", wire.Messages[0].Role)
	assert.Equal(t, "assistant", wire.Messages[1].Role)
	assert.Equal(t, defaultMaxTokens, wire.MaxTokens)
}

func TestBuildWireRequestToolTranslation(t *testing.T) {
	req := &providers.ChatRequest{
		Model:     "claude-sonnet-4",
		MaxTokens: 256,
		Messages: []providers.Message{
			{Role: "user", Content: "weather in Medellín?"},
			{Role: "assistant", ToolCalls: []providers.ToolCall{{
				ID:   "call_1",
				Type: "function",
				Function: providers.FunctionCall{
					Name:      "get_weather",
					Arguments: `{"city":"Medellín"}`,
				},
			}}},
			{Role: "tool", ToolCallID: "call_1", Content: "22C, cloudy"},
		},
		Tools: []providers.Tool{{
			Type: "function",
			Function: providers.FunctionDef{
				Name:        "get_weather",
				Description: "look up weather",
				Parameters:  json.RawMessage(`{"type":"object"}`),
			},
		}},
	}

	wire := buildWireRequest(req, false)
	require.Len(t, wire.Messages, 3)

	assert.Equal(t, "tool_use", wire.Messages[1].Content[0].Type)
	assert.Equal(t, "call_1", wire.Messages[1].Content[0].ID)
	assert.Equal(t, "get_weather", wire.Messages[1].Content[0].Name)

	assert.Equal(t, "user", wire.Messages[2].Role)
	assert.Equal(t, "tool_result", wire.Messages[2].Content[0].Type)
	assert.Equal(t, "call_1", wire.Messages[2].Content[0].ToolUseID)

	require.Len(t, wire.Tools, 1)
	assert.Equal(t, "get_weather", wire.Tools[0].Name)
}

func TestMapStopReason(t *testing.T) {
	assert.Equal(t, "stop", mapStopReason("end_turn"))
	assert.Equal(t, "stop", mapStopReason("stop_sequence"))
	assert.Equal(t, "length", mapStopReason("max_tokens"))
	assert.Equal(t, "tool_calls", mapStopReason("tool_use"))
}

func TestChatCompletion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant-test", r.Header.Get("x-api-key"))
		assert.Equal(t, apiVersion, r.Header.Get("anthropic-version"))

		w.Write([]byte(`{
			"id": "msg_01",
			"model": "claude-sonnet-4",
			"content": [{"type":"text","text":"hola"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 3}
		}`))
	}))
	defer server.Close()

	adapter := newTestAdapter(server.URL)
	resp, err := adapter.ChatCompletion(context.Background(), &providers.ChatRequest{
		Model:    "claude-sonnet-4",
		Messages: []providers.Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "anthropic", resp.Provider)
	assert.Equal(t, "hola", resp.Message.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 13, resp.Usage.TotalTokens)
}

func TestChatCompletionOverloadedError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"type":"rate_limit_error","message":"overloaded"}}`))
	}))
	defer server.Close()

	adapter := newTestAdapter(server.URL)
	_, err := adapter.ChatCompletion(context.Background(), &providers.ChatRequest{Model: "claude-sonnet-4"})
	require.Error(t, err)

	var pe *providers.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "rate_limit_error", pe.Code)
	assert.True(t, providers.IsRateLimited(err))
}

func TestChatCompletionStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("event: message_start\n"))
		w.Write([]byte(`data: {"type":"message_start","message":{"id":"msg_01","model":"claude-sonnet-4","usage":{"input_tokens":9}}}` + "\n\n"))
		w.Write([]byte(`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"ho"}}` + "\n\n"))
		w.Write([]byte(`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"la"}}` + "\n\n"))
		w.Write([]byte(`data: {"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":2}}` + "\n\n"))
		w.Write([]byte(`data: {"type":"message_stop"}` + "\n\n"))
	}))
	defer server.Close()

	adapter := newTestAdapter(server.URL)

	var text, finish string
	var usage *providers.Usage
	err := adapter.ChatCompletionStream(context.Background(), &providers.ChatRequest{
		Model:    "claude-sonnet-4",
		Messages: []providers.Message{{Role: "user", Content: "hi"}},
	}, func(chunk *providers.ChatChunk) error {
		text += chunk.Delta.Content
		if chunk.FinishReason != "" {
			finish = chunk.FinishReason
		}
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
		assert.Equal(t, "msg_01", chunk.ID)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, "hola", text)
	assert.Equal(t, "stop", finish)
	require.NotNil(t, usage)
	assert.Equal(t, 9, usage.InputTokens)
	assert.Equal(t, 2, usage.OutputTokens)
}
