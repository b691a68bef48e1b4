package guard

import (
	"context"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
	"github.com/upb/llm-gateway/config"
	"github.com/upb/llm-gateway/services/providers"
)

const categoryModeration = "content_policy"

// ModerationDetector sends user content to the OpenAI moderation endpoint.
// It is the one remote detector; a transport failure is returned to the
// guard, which skips it rather than failing the request.
type ModerationDetector struct {
	client *openai.Client
}

func NewModerationDetector(cfg config.GuardConfig) *ModerationDetector {
	clientCfg := openai.DefaultConfig(cfg.ModerationAPIKey)
	if cfg.ModerationBaseURL != "" {
		clientCfg.BaseURL = cfg.ModerationBaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.ModerationTimeout}
	return &ModerationDetector{client: openai.NewClientWithConfig(clientCfg)}
}

func (d *ModerationDetector) Name() string { return "moderation" }

func (d *ModerationDetector) Detect(ctx context.Context, messages []providers.Message) ([]Finding, error) {
	var inputs []string
	for _, msg := range messages {
		if msg.Role == "assistant" || msg.Content == "" {
			continue
		}
		inputs = append(inputs, msg.Content)
	}
	if len(inputs) == 0 {
		return nil, nil
	}

	var findings []Finding
	for _, input := range inputs {
		resp, err := d.client.Moderations(ctx, openai.ModerationRequest{
			Model: openai.ModerationOmniLatest,
			Input: input,
		})
		if err != nil {
			return nil, fmt.Errorf("moderation call: %w", err)
		}
		for _, result := range resp.Results {
			if !result.Flagged {
				continue
			}
			findings = append(findings, Finding{
				Detector:    d.Name(),
				Category:    categoryModeration,
				Severity:    moderationSeverity(result),
				Description: "content flagged by moderation endpoint",
			})
		}
	}
	return findings, nil
}

func moderationSeverity(result openai.Result) Severity {
	// Self-harm and violence categories block outright; everything else warns.
	if result.Categories.SelfHarm || result.Categories.Violence || result.Categories.SexualMinors {
		return SeverityCritical
	}
	return SeverityMedium
}
