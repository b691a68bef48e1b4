package models

import "strings"

// BalanceStrategy selects among endpoints within one priority tier
type BalanceStrategy string

const (
	StrategyRoundRobin     BalanceStrategy = "round_robin"
	StrategyWeightedRandom BalanceStrategy = "weighted_random"
	StrategyLeastLatency   BalanceStrategy = "least_latency"
)

// RouteEndpoint binds a model pattern to one concrete provider target
type RouteEndpoint struct {
	Provider string `json:"provider" yaml:"provider"`
	// Model optionally rewrites the upstream model name (e.g. strip an
	// "azure/" routing prefix). Empty keeps the requested model.
	Model    string `json:"model,omitempty" yaml:"model"`
	Weight   int    `json:"weight" yaml:"weight"`
	Priority int    `json:"priority" yaml:"priority"` // lower tier tried first
}

// RouteRule maps a model name or pattern to an ordered endpoint set
type RouteRule struct {
	// Pattern is an exact model name, a provider prefix such as "azure/",
	// or a trailing-wildcard pattern such as "gpt-*".
	Pattern             string          `json:"pattern" yaml:"pattern"`
	Endpoints           []RouteEndpoint `json:"endpoints" yaml:"endpoints"`
	Strategy            BalanceStrategy `json:"strategy" yaml:"strategy"`
	MaxAttempts         int             `json:"max_attempts,omitempty" yaml:"max_attempts"`
	FallbackOnRateLimit bool            `json:"fallback_on_rate_limit,omitempty" yaml:"fallback_on_rate_limit"`
}

// Matches reports whether the rule's pattern covers the model name
func (r *RouteRule) Matches(model string) bool {
	switch {
	case strings.HasSuffix(r.Pattern, "/"):
		return strings.HasPrefix(model, r.Pattern)
	case strings.HasSuffix(r.Pattern, "*"):
		return strings.HasPrefix(model, strings.TrimSuffix(r.Pattern, "*"))
	default:
		return model == r.Pattern
	}
}
