package guard

import (
	"context"

	"github.com/upb/llm-gateway/services/providers"
	"go.uber.org/zap"
)

// Severity grades a finding. The scan score is the maximum severity seen,
// so one critical finding blocks regardless of how clean the rest is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) Score() float64 {
	switch s {
	case SeverityLow:
		return 0.25
	case SeverityMedium:
		return 0.5
	case SeverityHigh:
		return 0.75
	case SeverityCritical:
		return 1.0
	}
	return 0
}

// Finding is one detector hit.
type Finding struct {
	Detector    string   `json:"detector"`
	Category    string   `json:"category"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
}

// Detector inspects the inbound messages. Implementations must be safe for
// concurrent use.
type Detector interface {
	Name() string
	Detect(ctx context.Context, messages []providers.Message) ([]Finding, error)
}

// Verdict is the aggregate result of one scan.
type Verdict string

const (
	VerdictClean Verdict = "clean"
	VerdictWarn  Verdict = "warn"
	VerdictBlock Verdict = "block"
)

// ScanResult carries the verdict, the max-severity risk score and every
// finding from every detector.
type ScanResult struct {
	Verdict   Verdict   `json:"verdict"`
	RiskScore float64   `json:"risk_score"`
	Findings  []Finding `json:"findings,omitempty"`
}

// Guard runs all registered detectors over a request and maps the resulting
// risk score to a verdict via the warn/block thresholds.
type Guard struct {
	detectors []Detector
	warn      float64
	block     float64
	logger    *zap.Logger
}

func New(warnThreshold, blockThreshold float64, logger *zap.Logger) *Guard {
	return &Guard{warn: warnThreshold, block: blockThreshold, logger: logger}
}

func (g *Guard) Register(d Detector) {
	g.detectors = append(g.detectors, d)
}

// Scan always runs every detector: the score is the maximum severity across
// all findings, so stopping early would under-report risk. A detector that
// fails (a remote moderation endpoint, typically) is skipped with a warning
// rather than failing the request.
func (g *Guard) Scan(ctx context.Context, messages []providers.Message) *ScanResult {
	result := &ScanResult{Verdict: VerdictClean}

	for _, d := range g.detectors {
		findings, err := d.Detect(ctx, messages)
		if err != nil {
			g.logger.Warn("detector failed, skipping",
				zap.String("detector", d.Name()), zap.Error(err))
			continue
		}
		for _, f := range findings {
			result.Findings = append(result.Findings, f)
			if score := f.Severity.Score(); score > result.RiskScore {
				result.RiskScore = score
			}
		}
	}

	switch {
	case result.RiskScore >= g.block:
		result.Verdict = VerdictBlock
	case result.RiskScore >= g.warn:
		result.Verdict = VerdictWarn
	}
	return result
}

// TopCategory returns the category of the highest-severity finding, for
// error messages and audit records.
func (r *ScanResult) TopCategory() string {
	top := ""
	best := -1.0
	for _, f := range r.Findings {
		if s := f.Severity.Score(); s > best {
			best = s
			top = f.Category
		}
	}
	return top
}
