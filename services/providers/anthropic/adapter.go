package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/upb/llm-gateway/config"
	"github.com/upb/llm-gateway/services/providers"
)

const (
	providerName = "anthropic"
	apiVersion   = "2023-06-01"

	// The messages API requires max_tokens; applied when the caller set none.
	defaultMaxTokens = 4096
)

// Adapter translates canonical chat requests to the Anthropic messages API:
// system turns are lifted into the top-level system field, tool results
// become tool_result content blocks, and stop reasons are mapped back to
// the canonical vocabulary.
type Adapter struct {
	apiKey     string
	baseURL    string
	maxRetries int
	client     *http.Client
}

func NewAdapter(cfg config.ProviderConfig) *Adapter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Adapter{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		maxRetries: cfg.MaxRetries,
		client:     &http.Client{Timeout: timeout},
	}
}

func (a *Adapter) Name() string { return providerName }

type wireRequest struct {
	Model         string        `json:"model"`
	System        string        `json:"system,omitempty"`
	Messages      []wireMessage `json:"messages"`
	MaxTokens     int           `json:"max_tokens"`
	Temperature   *float64      `json:"temperature,omitempty"`
	TopP          *float64      `json:"top_p,omitempty"`
	StopSequences []string      `json:"stop_sequences,omitempty"`
	Stream        bool          `json:"stream,omitempty"`
	Tools         []wireTool    `json:"tools,omitempty"`
	Metadata      *wireMetadata `json:"metadata,omitempty"`
}

type wireMessage struct {
	Role    string      `json:"role"`
	Content []wireBlock `json:"content"`
}

type wireBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`

	// tool_use blocks (assistant turns)
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result blocks (user turns)
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

type wireTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type wireMetadata struct {
	UserID string `json:"user_id,omitempty"`
}

type wireResponse struct {
	ID         string      `json:"id"`
	Model      string      `json:"model"`
	Content    []wireBlock `json:"content"`
	StopReason string      `json:"stop_reason"`
	Usage      wireUsage   `json:"usage"`
}

type wireUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type wireError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func buildWireRequest(req *providers.ChatRequest, stream bool) *wireRequest {
	wire := &wireRequest{
		Model:         req.Model,
		MaxTokens:     req.MaxTokens,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		StopSequences: req.Stop,
		Stream:        stream,
	}
	if wire.MaxTokens == 0 {
		wire.MaxTokens = defaultMaxTokens
	}
	if req.User != "" {
		wire.Metadata = &wireMetadata{UserID: req.User}
	}

	var systemParts []string
	for _, msg := range req.Messages {
		switch msg.Role {
		case "system":
			systemParts = append(systemParts, msg.Content)
		case "tool":
			wire.Messages = append(wire.Messages, wireMessage{
				Role: "user",
				Content: []wireBlock{{
					Type:      "tool_result",
					ToolUseID: msg.ToolCallID,
					Content:   msg.Content,
				}},
			})
		case "assistant":
			blocks := make([]wireBlock, 0, 1+len(msg.ToolCalls))
			if msg.Content != "" {
				blocks = append(blocks, wireBlock{Type: "text", Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, wireBlock{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  tc.Function.Name,
					Input: json.RawMessage(tc.Function.Arguments),
				})
			}
			wire.Messages = append(wire.Messages, wireMessage{Role: "assistant", Content: blocks})
		default:
			wire.Messages = append(wire.Messages, wireMessage{
				Role:    "user",
				Content: []wireBlock{{Type: "text", Text: msg.Content}},
			})
		}
	}
	wire.System = strings.Join(systemParts, "\n\n")

	for _, tool := range req.Tools {
		wire.Tools = append(wire.Tools, wireTool{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
			InputSchema: tool.Function.Parameters,
		})
	}
	return wire
}

func mapStopReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return "stop"
	case "max_tokens":
		return "length"
	case "tool_use":
		return "tool_calls"
	default:
		return reason
	}
}

func (a *Adapter) ChatCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		resp, err := a.doChatCompletion(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !providers.IsRetryable(err) || ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (a *Adapter) doChatCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	httpResp, err := a.post(ctx, buildWireRequest(req, false))
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, a.errorFromResponse(httpResp)
	}

	var wire wireResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&wire); err != nil {
		return nil, &providers.ProviderError{
			Provider: providerName, Code: "decode_error",
			Message: "malformed response body", Cause: err,
		}
	}

	msg := providers.Message{Role: "assistant"}
	for _, block := range wire.Content {
		switch block.Type {
		case "text":
			msg.Content += block.Text
		case "tool_use":
			msg.ToolCalls = append(msg.ToolCalls, providers.ToolCall{
				ID:   block.ID,
				Type: "function",
				Function: providers.FunctionCall{
					Name:      block.Name,
					Arguments: string(block.Input),
				},
			})
		}
	}

	return &providers.ChatResponse{
		ID:           wire.ID,
		Provider:     providerName,
		Model:        wire.Model,
		Created:      time.Now().Unix(),
		Message:      msg,
		FinishReason: mapStopReason(wire.StopReason),
		Usage: providers.Usage{
			InputTokens:  wire.Usage.InputTokens,
			OutputTokens: wire.Usage.OutputTokens,
			TotalTokens:  wire.Usage.InputTokens + wire.Usage.OutputTokens,
		},
	}, nil
}

// Streaming event payloads. Only the fields the gateway forwards are decoded.
type streamEvent struct {
	Type    string `json:"type"`
	Message *struct {
		ID    string    `json:"id"`
		Model string    `json:"model"`
		Usage wireUsage `json:"usage"`
	} `json:"message"`
	Delta *struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Usage *wireUsage `json:"usage"`
}

func (a *Adapter) ChatCompletionStream(ctx context.Context, req *providers.ChatRequest, fn providers.StreamFunc) error {
	httpResp, err := a.post(ctx, buildWireRequest(req, true))
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return a.errorFromResponse(httpResp)
	}

	var (
		msgID      string
		model      string
		inputToks  int
		outputToks int
	)

	scanner := bufio.NewScanner(httpResp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var event streamEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			continue
		}

		switch event.Type {
		case "message_start":
			if event.Message != nil {
				msgID = event.Message.ID
				model = event.Message.Model
				inputToks = event.Message.Usage.InputTokens
			}
		case "content_block_delta":
			if event.Delta == nil || event.Delta.Text == "" {
				continue
			}
			chunk := &providers.ChatChunk{
				ID:    msgID,
				Model: model,
				Delta: providers.Message{Role: "assistant", Content: event.Delta.Text},
			}
			if err := fn(chunk); err != nil {
				return err
			}
		case "message_delta":
			if event.Usage != nil {
				outputToks = event.Usage.OutputTokens
			}
			if event.Delta != nil && event.Delta.StopReason != "" {
				chunk := &providers.ChatChunk{
					ID:           msgID,
					Model:        model,
					FinishReason: mapStopReason(event.Delta.StopReason),
					Usage: &providers.Usage{
						InputTokens:  inputToks,
						OutputTokens: outputToks,
						TotalTokens:  inputToks + outputToks,
					},
				}
				if err := fn(chunk); err != nil {
					return err
				}
			}
		case "message_stop":
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &providers.ProviderError{
			Provider: providerName, Code: "stream_error",
			Message: "stream interrupted", Cause: err,
		}
	}
	return nil
}

func (a *Adapter) post(ctx context.Context, body *wireRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	apiKey := a.apiKey
	if override, ok := providers.KeyOverride(ctx); ok {
		apiKey = override
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &providers.ProviderError{
			Provider: providerName, Code: "connection_error",
			Message: "request failed", Retryable: true, Cause: err,
		}
	}
	return resp, nil
}

func (a *Adapter) errorFromResponse(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	pe := &providers.ProviderError{
		Provider:   providerName,
		Code:       "api_error",
		Message:    strings.TrimSpace(string(raw)),
		StatusCode: resp.StatusCode,
		Retryable:  resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests,
	}
	var wire wireError
	if err := json.Unmarshal(raw, &wire); err == nil && wire.Error.Message != "" {
		pe.Message = wire.Error.Message
		pe.Code = wire.Error.Type
	}
	return pe
}
