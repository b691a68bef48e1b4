package models

import (
	"fmt"
	"time"
)

// BudgetScope is the accounting unit a budget applies to
type BudgetScope string

const (
	BudgetScopeGlobal      BudgetScope = "global"
	BudgetScopeApplication BudgetScope = "application"
	BudgetScopeUser        BudgetScope = "user"
)

// BudgetPeriod is the rollover cadence for a budget. PeriodNone means the
// budget is lifetime and only an explicit reset clears it.
type BudgetPeriod string

const (
	PeriodDaily   BudgetPeriod = "daily"
	PeriodWeekly  BudgetPeriod = "weekly"
	PeriodMonthly BudgetPeriod = "monthly"
	PeriodYearly  BudgetPeriod = "yearly"
	PeriodNone    BudgetPeriod = "none"
)

// Budget tracks spend against soft/hard USD limits for one scope.
// Spend is monotone within a period; it moves to zero only through an
// explicit reset or (with AutoReset) a period rollover.
type Budget struct {
	ID           string       `json:"id" yaml:"id"`
	Scope        BudgetScope  `json:"scope" yaml:"scope"`
	ScopeID      string       `json:"scope_id,omitempty" yaml:"scope_id"` // app id or user email; empty for global
	SoftLimitUSD float64      `json:"soft_limit_usd" yaml:"soft_limit_usd"`
	HardLimitUSD float64      `json:"hard_limit_usd" yaml:"hard_limit_usd"`
	SpendUSD     float64      `json:"spend_usd" yaml:"-"`
	Period       BudgetPeriod `json:"period" yaml:"period"`
	PeriodStart  time.Time    `json:"period_start" yaml:"-"`
	PeriodEnd    time.Time    `json:"period_end" yaml:"-"`
	AutoReset    bool         `json:"auto_reset" yaml:"auto_reset"`
}

// Validate checks the structural invariants of a budget definition
func (b *Budget) Validate() error {
	if b.SoftLimitUSD > b.HardLimitUSD {
		return fmt.Errorf("budget %s: soft limit %.2f exceeds hard limit %.2f", b.ID, b.SoftLimitUSD, b.HardLimitUSD)
	}
	switch b.Scope {
	case BudgetScopeGlobal, BudgetScopeApplication, BudgetScopeUser:
	default:
		return fmt.Errorf("budget %s: unknown scope %q", b.ID, b.Scope)
	}
	if b.Scope != BudgetScopeGlobal && b.ScopeID == "" {
		return fmt.Errorf("budget %s: scope %s requires a scope id", b.ID, b.Scope)
	}
	return nil
}

// PeriodBounds returns the [start, end) bounds of the period containing now.
// Lifetime budgets report a zero start and the far future.
func (b *Budget) PeriodBounds(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	switch b.Period {
	case PeriodDaily:
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 0, 1)
	case PeriodWeekly:
		// ISO-style week starting Monday
		offset := (int(now.Weekday()) + 6) % 7
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 7)
	case PeriodMonthly:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0)
	case PeriodYearly:
		start := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(1, 0, 0)
	default:
		return time.Time{}, time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)
	}
}

// PeriodKey returns the counter key segment for the period containing now.
// Period-keyed counters make lazy rollover idempotent: a new period simply
// addresses a fresh counter. Non-auto-reset budgets keep one counter.
func (b *Budget) PeriodKey(now time.Time) string {
	if !b.AutoReset || b.Period == PeriodNone {
		return "current"
	}
	start, _ := b.PeriodBounds(now)
	switch b.Period {
	case PeriodDaily:
		return start.Format("2006-01-02")
	case PeriodWeekly:
		year, week := start.ISOWeek()
		return fmt.Sprintf("%04d-w%02d", year, week)
	case PeriodMonthly:
		return start.Format("2006-01")
	case PeriodYearly:
		return start.Format("2006")
	default:
		return "current"
	}
}

// CounterKey is the budget store key for spend in the period containing now
func (b *Budget) CounterKey(now time.Time) string {
	return fmt.Sprintf("spend:%s:%s", b.ID, b.PeriodKey(now))
}

// AppliesTo reports whether the budget covers the given contract
func (b *Budget) AppliesTo(c *Contract) bool {
	switch b.Scope {
	case BudgetScopeGlobal:
		return true
	case BudgetScopeApplication:
		return b.ScopeID == c.AppID
	case BudgetScopeUser:
		return c.UserEmail != "" && b.ScopeID == c.UserEmail
	}
	return false
}
