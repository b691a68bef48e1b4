package policy

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/upb/llm-gateway/models"
	"go.uber.org/zap"
)

// Decision is the result of evaluating a request against the active rules.
type Decision struct {
	Action      models.RuleAction
	MatchedRule *models.PolicyRule
	Evaluated   int
}

// Engine evaluates policy rules against request contracts. It holds no
// rule state; callers pass the rules from the current config snapshot.
type Engine struct {
	logger *zap.Logger
}

func NewEngine(logger *zap.Logger) *Engine {
	return &Engine{logger: logger}
}

// Evaluate walks the enabled rules in priority order (higher first, rule ID
// as tiebreaker) and returns the action of the first matching rule. A rule
// whose condition cannot be decoded is skipped so one bad payload cannot
// take the gateway down. No match means allow.
func (e *Engine) Evaluate(contract *models.Contract, rules []*models.PolicyRule, now time.Time) Decision {
	ordered := make([]*models.PolicyRule, 0, len(rules))
	for _, r := range rules {
		if r.Enabled {
			ordered = append(ordered, r)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority > ordered[j].Priority
		}
		return ordered[i].ID < ordered[j].ID
	})

	evaluated := 0
	for _, rule := range ordered {
		evaluated++
		matched, err := e.matches(rule, contract, now)
		if err != nil {
			e.logger.Warn("skipping rule with undecodable condition",
				zap.String("rule_id", rule.ID),
				zap.String("rule_type", string(rule.Type)),
				zap.Error(err))
			continue
		}
		if matched {
			return Decision{Action: rule.Action, MatchedRule: rule, Evaluated: evaluated}
		}
	}
	return Decision{Action: models.RuleActionAllow, Evaluated: evaluated}
}

func (e *Engine) matches(rule *models.PolicyRule, contract *models.Contract, now time.Time) (bool, error) {
	switch rule.Type {
	case models.RuleTypeModelRestriction:
		var cond models.ModelRestrictionCondition
		if err := json.Unmarshal(rule.Condition, &cond); err != nil {
			return false, err
		}
		for _, m := range cond.Models {
			if m == contract.Model {
				return true, nil
			}
		}
		return false, nil

	case models.RuleTypeEnvironmentRestriction:
		var cond models.EnvironmentRestrictionCondition
		if err := json.Unmarshal(rule.Condition, &cond); err != nil {
			return false, err
		}
		for _, env := range cond.Environments {
			if env == contract.Environment {
				return true, nil
			}
		}
		return false, nil

	case models.RuleTypeFeatureRestriction:
		var cond models.FeatureRestrictionCondition
		if err := json.Unmarshal(rule.Condition, &cond); err != nil {
			return false, err
		}
		for _, f := range cond.Features {
			if f == contract.Feature {
				return true, nil
			}
		}
		return false, nil

	case models.RuleTypeTokenLimit:
		var cond models.TokenLimitCondition
		if err := json.Unmarshal(rule.Condition, &cond); err != nil {
			return false, err
		}
		return contract.MaxTokens > cond.MaxTokens, nil

	case models.RuleTypeTimeWindow:
		var cond models.TimeWindowCondition
		if err := json.Unmarshal(rule.Condition, &cond); err != nil {
			return false, err
		}
		hour := (now.UTC().Hour() + cond.UTCOffset + 24) % 24
		inside := hour >= cond.StartHour && hour < cond.EndHour
		return !inside, nil

	default:
		return false, fmt.Errorf("unknown rule type %q", rule.Type)
	}
}
