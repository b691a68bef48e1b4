package guard

import (
	"context"
	"regexp"

	"github.com/upb/llm-gateway/services/providers"
)

const categoryPromptInjection = "prompt_injection"

type injectionPattern struct {
	re          *regexp.Regexp
	severity    Severity
	description string
}

var injectionPatterns = []injectionPattern{
	{
		re:          regexp.MustCompile(`(?i)ignore\s+(previous|all|above|prior)\s+(instructions?|prompts?|rules?|context)`),
		severity:    SeverityHigh,
		description: "instruction override attempt",
	},
	{
		re:          regexp.MustCompile(`(?i)disregard\s+(your|all|previous|the)\s+(instructions?|guidelines?|rules?|training)`),
		severity:    SeverityHigh,
		description: "instruction override attempt",
	},
	{
		re:          regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an|in)\s+`),
		severity:    SeverityMedium,
		description: "role reassignment attempt",
	},
	{
		re:          regexp.MustCompile(`(?i)(pretend|act\s+as\s+if)\s+you\s+(are|have|can)\s+`),
		severity:    SeverityMedium,
		description: "role reassignment attempt",
	},
	{
		re:          regexp.MustCompile(`(?i)(enable|activate|enter)\s+(dan|developer|jailbreak|god)\s*mode`),
		severity:    SeverityHigh,
		description: "jailbreak mode activation",
	},
	{
		re:          regexp.MustCompile(`(?i)(reveal|show|print|repeat)\s+(your|the)\s+(system\s+prompt|initial\s+instructions?|hidden\s+rules?)`),
		severity:    SeverityHigh,
		description: "system prompt extraction attempt",
	},
	{
		re:          regexp.MustCompile(`(?i)\[\s*system\s*\]|<\s*system\s*>`),
		severity:    SeverityMedium,
		description: "forged system delimiter",
	},
}

// InjectionDetector matches known prompt-injection phrasings in user and
// tool content. Assistant turns are skipped; they came from a model, not
// the caller.
type InjectionDetector struct{}

func NewInjectionDetector() *InjectionDetector { return &InjectionDetector{} }

func (d *InjectionDetector) Name() string { return "injection" }

func (d *InjectionDetector) Detect(_ context.Context, messages []providers.Message) ([]Finding, error) {
	var findings []Finding
	for _, msg := range messages {
		if msg.Role == "assistant" {
			continue
		}
		for _, p := range injectionPatterns {
			if p.re.MatchString(msg.Content) {
				findings = append(findings, Finding{
					Detector:    d.Name(),
					Category:    categoryPromptInjection,
					Severity:    p.severity,
					Description: p.description,
				})
			}
		}
	}
	return findings, nil
}
