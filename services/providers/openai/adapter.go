package openai

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

const providerName = "openai"

// Adapter speaks the OpenAI chat completions API. The canonical request
// shape is already OpenAI-compatible, so translation is mostly pass-through.
type Adapter struct {
	apiKey     string
	baseURL    string
	maxRetries int
	client     *http.Client
}

func NewAdapter(cfg config.ProviderConfig) *Adapter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
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
	Model         string               `json:"model"`
	Messages      []providers.Message  `json:"messages"`
	MaxTokens     int                  `json:"max_tokens,omitempty"`
	Temperature   *float64             `json:"temperature,omitempty"`
	TopP          *float64             `json:"top_p,omitempty"`
	Stop          []string             `json:"stop,omitempty"`
	Stream        bool                 `json:"stream,omitempty"`
	StreamOptions *wireStreamOptions   `json:"stream_options,omitempty"`
	Tools         []providers.Tool     `json:"tools,omitempty"`
	User          string               `json:"user,omitempty"`
}

type wireStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type wireResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Created int64  `json:"created"`
	Choices []struct {
		Message      providers.Message `json:"message"`
		FinishReason string            `json:"finish_reason"`
	} `json:"choices"`
	Usage wireUsage `json:"usage"`
}

type wireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type wireChunk struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Created int64  `json:"created"`
	Choices []struct {
		Delta        providers.Message `json:"delta"`
		FinishReason string            `json:"finish_reason"`
	} `json:"choices"`
	Usage *wireUsage `json:"usage"`
}

type wireError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
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
	body := wireRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.Stop,
		Tools:       req.Tools,
		User:        req.User,
	}
	httpResp, err := a.post(ctx, body)
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
	if len(wire.Choices) == 0 {
		return nil, &providers.ProviderError{
			Provider: providerName, Code: "empty_response",
			Message: "response contained no choices",
		}
	}

	return &providers.ChatResponse{
		ID:           wire.ID,
		Provider:     providerName,
		Model:        wire.Model,
		Created:      wire.Created,
		Message:      wire.Choices[0].Message,
		FinishReason: wire.Choices[0].FinishReason,
		Usage: providers.Usage{
			InputTokens:  wire.Usage.PromptTokens,
			OutputTokens: wire.Usage.CompletionTokens,
			TotalTokens:  wire.Usage.TotalTokens,
		},
	}, nil
}

func (a *Adapter) ChatCompletionStream(ctx context.Context, req *providers.ChatRequest, fn providers.StreamFunc) error {
	body := wireRequest{
		Model:         req.Model,
		Messages:      req.Messages,
		MaxTokens:     req.MaxTokens,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		Stop:          req.Stop,
		Stream:        true,
		StreamOptions: &wireStreamOptions{IncludeUsage: true},
		Tools:         req.Tools,
		User:          req.User,
	}
	httpResp, err := a.post(ctx, body)
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return a.errorFromResponse(httpResp)
	}

	scanner := bufio.NewScanner(httpResp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			return nil
		}

		var wire wireChunk
		if err := json.Unmarshal([]byte(payload), &wire); err != nil {
			continue
		}
		chunk := &providers.ChatChunk{
			ID:      wire.ID,
			Model:   wire.Model,
			Created: wire.Created,
		}
		if len(wire.Choices) > 0 {
			chunk.Delta = wire.Choices[0].Delta
			chunk.FinishReason = wire.Choices[0].FinishReason
		}
		if wire.Usage != nil {
			chunk.Usage = &providers.Usage{
				InputTokens:  wire.Usage.PromptTokens,
				OutputTokens: wire.Usage.CompletionTokens,
				TotalTokens:  wire.Usage.TotalTokens,
			}
		}
		if err := fn(chunk); err != nil {
			return err
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

func (a *Adapter) post(ctx context.Context, body interface{}) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	apiKey := a.apiKey
	if override, ok := providers.KeyOverride(ctx); ok {
		apiKey = override
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

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
		if wire.Error.Code != "" {
			pe.Code = wire.Error.Code
		} else if wire.Error.Type != "" {
			pe.Code = wire.Error.Type
		}
	}
	return pe
}
