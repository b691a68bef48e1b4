package guard

import (
	"context"
	"regexp"

	"github.com/upb/llm-gateway/services/providers"
)

const categoryCodeExec = "code_execution"

var codeExecPatterns = []struct {
	re          *regexp.Regexp
	severity    Severity
	description string
}{
	{
		re:          regexp.MustCompile(`(?i)\b(rm\s+-rf\s+/|mkfs\.|dd\s+if=/dev/(zero|random)\s+of=/dev/)`),
		severity:    SeverityHigh,
		description: "destructive shell command",
	},
	{
		re:          regexp.MustCompile(`(?i)(curl|wget)\s+[^\s]+\s*\|\s*(ba)?sh\b`),
		severity:    SeverityHigh,
		description: "fetch-and-execute pipeline",
	},
	{
		re:          regexp.MustCompile(`(?i)\b(eval|exec)\s*\(\s*(base64|atob|decode)`),
		severity:    SeverityMedium,
		description: "obfuscated code execution",
	},
}

// CodeExecDetector flags prompts asking models to produce or relay
// dangerous shell invocations.
type CodeExecDetector struct{}

func NewCodeExecDetector() *CodeExecDetector { return &CodeExecDetector{} }

func (d *CodeExecDetector) Name() string { return "code_exec" }

func (d *CodeExecDetector) Detect(_ context.Context, messages []providers.Message) ([]Finding, error) {
	var findings []Finding
	for _, msg := range messages {
		if msg.Role == "assistant" {
			continue
		}
		for _, p := range codeExecPatterns {
			if p.re.MatchString(msg.Content) {
				findings = append(findings, Finding{
					Detector:    d.Name(),
					Category:    categoryCodeExec,
					Severity:    p.severity,
					Description: p.description,
				})
			}
		}
	}
	return findings, nil
}
