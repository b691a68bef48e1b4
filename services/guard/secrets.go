package guard

import (
	"context"
	"regexp"

	"github.com/upb/llm-gateway/services/providers"
)

const categorySecrets = "secrets"

type secretPattern struct {
	re          *regexp.Regexp
	severity    Severity
	description string
}

var secretPatterns = []secretPattern{
	{
		re:          regexp.MustCompile(`\bsk-[a-zA-Z0-9_-]{20,}\b`),
		severity:    SeverityCritical,
		description: "OpenAI-style API key",
	},
	{
		re:          regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
		severity:    SeverityCritical,
		description: "AWS access key id",
	},
	{
		re:          regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}\b`),
		severity:    SeverityCritical,
		description: "GitHub token",
	},
	{
		re:          regexp.MustCompile(`-----BEGIN\s+(RSA|EC|OPENSSH|DSA)?\s*PRIVATE\s+KEY-----`),
		severity:    SeverityCritical,
		description: "private key material",
	},
	{
		re:          regexp.MustCompile(`(?i)(password|passwd|secret|api[_-]?key|token)\s*[:=]\s*['"][^'"]{8,}['"]`),
		severity:    SeverityMedium,
		description: "hardcoded credential assignment",
	},
	{
		re:          regexp.MustCompile(`\beyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\b`),
		severity:    SeverityHigh,
		description: "JWT token",
	},
}

// SecretsDetector flags credentials and key material before they leave the
// perimeter.
type SecretsDetector struct{}

func NewSecretsDetector() *SecretsDetector { return &SecretsDetector{} }

func (d *SecretsDetector) Name() string { return "secrets" }

func (d *SecretsDetector) Detect(_ context.Context, messages []providers.Message) ([]Finding, error) {
	var findings []Finding
	for _, msg := range messages {
		for _, p := range secretPatterns {
			if p.re.MatchString(msg.Content) {
				findings = append(findings, Finding{
					Detector:    d.Name(),
					Category:    categorySecrets,
					Severity:    p.severity,
					Description: p.description,
				})
			}
		}
	}
	return findings, nil
}
