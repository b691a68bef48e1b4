package pipeline

import (
	"time"

	"github.com/upb/llm-gateway/models"
	"github.com/upb/llm-gateway/services/providers"
)

// Stage names the pipeline steps in execution order.
type Stage string

const (
	StageAuth     Stage = "auth"
	StageFeature  Stage = "feature_check"
	StagePolicy   Stage = "policy_check"
	StageBudget   Stage = "budget_check"
	StageSecurity Stage = "security_check"
	StageRoute    Stage = "route_and_call"
	StageUsage    Stage = "usage_record"
)

// StageResult records one executed stage for the decision trace.
type StageResult struct {
	Stage      Stage  `json:"stage"`
	Code       string `json:"code"`
	DurationMs int64  `json:"duration_ms"`
}

const (
	codePass    = "pass"
	codeWarn    = "warn"
	codeDeny    = "deny"
	codeError   = "error"
	codeSkipped = "skipped"
)

// DecisionRecord is the full trace of one pipeline run, returned on
// debug-flagged requests and logged for every denial.
type DecisionRecord struct {
	RequestID         string         `json:"request_id"`
	Stages            []StageResult  `json:"stages"`
	Outcome           models.Outcome `json:"outcome"`
	BlockedReason     string         `json:"blocked_reason,omitempty"`
	Warnings          []string       `json:"warnings,omitempty"`
	PoliciesEvaluated int            `json:"policies_evaluated"`
}

func (d *DecisionRecord) addStage(stage Stage, code string, started time.Time) {
	d.Stages = append(d.Stages, StageResult{
		Stage:      stage,
		Code:       code,
		DurationMs: time.Since(started).Milliseconds(),
	})
}

// Request is one governed chat completion run.
type Request struct {
	RequestID string
	Contract  *models.Contract
	Chat      *providers.ChatRequest
	// App is resolved by the auth middleware; nil means unauthenticated.
	App    *models.Application
	DryRun bool
	Debug  bool
}

// Response is the result of a non-streaming pipeline run.
type Response struct {
	Chat     *providers.ChatResponse `json:"chat,omitempty"`
	Decision *DecisionRecord         `json:"decision,omitempty"`
	Warnings []string                `json:"warnings,omitempty"`
}

// DryRunResult reports what the pipeline would have done without calling
// a provider or committing spend.
type DryRunResult struct {
	WouldRoute string          `json:"would_route,omitempty"`
	Decision   *DecisionRecord `json:"decision"`
}
