package models

import (
	"encoding/json"
	"time"
)

// RuleAction is the action a policy rule takes when its condition matches
type RuleAction string

const (
	RuleActionAllow RuleAction = "allow"
	RuleActionWarn  RuleAction = "warn"
	RuleActionDeny  RuleAction = "deny"
)

// RuleType discriminates which condition fields are meaningful on a rule
type RuleType string

const (
	RuleTypeModelRestriction       RuleType = "model_restriction"
	RuleTypeEnvironmentRestriction RuleType = "environment_restriction"
	RuleTypeFeatureRestriction     RuleType = "feature_restriction"
	RuleTypeTokenLimit             RuleType = "token_limit"
	RuleTypeTimeWindow             RuleType = "time_window"
)

// AppScopeGlobal marks a rule that applies to every application
const AppScopeGlobal = "*"

// PolicyRule is an admin-managed governance rule. Rules are read-only for
// the pipeline; the Condition payload is decoded per Type by the policy
// engine, so a malformed payload disables only the offending rule.
type PolicyRule struct {
	ID        string          `json:"id" db:"id"`
	AppScope  string          `json:"app_scope" db:"app_scope"`   // "*" = global
	UserScope string          `json:"user_scope,omitempty" db:"user_scope"` // optional end-user email
	Type      RuleType        `json:"type" db:"rule_type"`
	Condition json.RawMessage `json:"condition" db:"condition"`
	Action    RuleAction      `json:"action" db:"action"`
	Priority  int             `json:"priority" db:"priority"`
	Enabled   bool            `json:"enabled" db:"enabled"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// ModelRestrictionCondition matches when the requested model is listed
type ModelRestrictionCondition struct {
	Models []string `json:"models"`
}

// EnvironmentRestrictionCondition matches when the request environment is listed
type EnvironmentRestrictionCondition struct {
	Environments []Environment `json:"environments"`
}

// FeatureRestrictionCondition matches when the request feature is listed
type FeatureRestrictionCondition struct {
	Features []string `json:"features"`
}

// TokenLimitCondition matches when requested max tokens exceeds the limit
type TokenLimitCondition struct {
	MaxTokens int `json:"max_tokens"`
}

// TimeWindowCondition matches when the current hour falls outside the
// allowed [StartHour, EndHour) range. Hours are UTC plus UTCOffset.
type TimeWindowCondition struct {
	StartHour int `json:"start_hour"`
	EndHour   int `json:"end_hour"`
	UTCOffset int `json:"utc_offset,omitempty"`
}
