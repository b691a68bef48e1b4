package models

// Environment identifies the deployment stage a request originates from
type Environment string

const (
	EnvironmentDev     Environment = "dev"
	EnvironmentStaging Environment = "staging"
	EnvironmentProd    Environment = "prod"
)

// Contract carries the per-request governance metadata attached to a
// canonical chat completion request. It is built once by the handler and
// consumed read-only by every pipeline stage.
type Contract struct {
	AppID       string      `json:"app_id"`
	Feature     string      `json:"feature"`
	Action      string      `json:"action"`
	Environment Environment `json:"environment"`
	UserEmail   string      `json:"user_email,omitempty"`
	Model       string      `json:"model"`
	MaxTokens   int         `json:"max_tokens,omitempty"`
}

// Outcome is the final disposition of a pipeline run
type Outcome string

const (
	OutcomeAllow Outcome = "allow"
	OutcomeWarn  Outcome = "warn"
	OutcomeDeny  Outcome = "deny"
)
