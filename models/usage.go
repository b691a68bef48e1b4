package models

import "time"

// UsageRecord is the append-only audit row written once per completed or
// denied request. It feeds budget spend figures and external analytics and
// is never updated after creation.
type UsageRecord struct {
	RequestID    string      `json:"request_id" db:"request_id"`
	AppID        string      `json:"app_id" db:"app_id"`
	Feature      string      `json:"feature,omitempty" db:"feature"`
	Environment  Environment `json:"environment" db:"environment"`
	Provider     string      `json:"provider,omitempty" db:"provider"`
	Model        string      `json:"model" db:"model"`
	InputTokens  int         `json:"input_tokens" db:"input_tokens"`
	OutputTokens int         `json:"output_tokens" db:"output_tokens"`
	CostUSD      float64     `json:"cost_usd" db:"cost_usd"`
	LatencyMs    int         `json:"latency_ms" db:"latency_ms"`
	Outcome      Outcome     `json:"outcome" db:"outcome"`
	DeniedReason string      `json:"denied_reason,omitempty" db:"denied_reason"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
}
