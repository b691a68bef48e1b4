package guard

import (
	"context"
	"regexp"

	"github.com/upb/llm-gateway/services/providers"
)

const categoryPII = "pii"

type piiPattern struct {
	re          *regexp.Regexp
	severity    Severity
	description string
}

var piiPatterns = []piiPattern{
	{
		re:          regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		severity:    SeverityHigh,
		description: "US social security number",
	},
	{
		re:          regexp.MustCompile(`\b(?:\d[ -]*?){13,16}\b`),
		severity:    SeverityHigh,
		description: "possible payment card number",
	},
	{
		re:          regexp.MustCompile(`\b[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}\b`),
		severity:    SeverityLow,
		description: "email address",
	},
	{
		re:          regexp.MustCompile(`\+\d{1,3}[ -]?\(?\d{1,4}\)?[ -]?\d{3,4}[ -]?\d{4}\b`),
		severity:    SeverityLow,
		description: "phone number",
	},
}

// PIIDetector flags personally identifiable information in outbound prompts.
type PIIDetector struct{}

func NewPIIDetector() *PIIDetector { return &PIIDetector{} }

func (d *PIIDetector) Name() string { return "pii" }

func (d *PIIDetector) Detect(_ context.Context, messages []providers.Message) ([]Finding, error) {
	var findings []Finding
	for _, msg := range messages {
		if msg.Role == "assistant" {
			continue
		}
		for _, p := range piiPatterns {
			if p.re.MatchString(msg.Content) {
				findings = append(findings, Finding{
					Detector:    d.Name(),
					Category:    categoryPII,
					Severity:    p.severity,
					Description: p.description,
				})
			}
		}
	}
	return findings, nil
}
