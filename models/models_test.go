package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplicationAllowsFeature(t *testing.T) {
	t.Run("empty allowlist admits everything", func(t *testing.T) {
		app := &Application{ID: "acct-a"}
		assert.True(t, app.AllowsFeature("chat"))
		assert.True(t, app.AllowsFeature(""))
	})

	t.Run("named allowlist is exact", func(t *testing.T) {
		app := &Application{ID: "acct-a", Features: []string{"chat", "summarize"}}
		assert.True(t, app.AllowsFeature("chat"))
		assert.False(t, app.AllowsFeature("embeddings"))
	})
}

func TestBudgetPeriodBounds(t *testing.T) {
	now := time.Date(2024, 3, 13, 14, 30, 0, 0, time.UTC) // a Wednesday

	tests := []struct {
		period BudgetPeriod
		start  time.Time
		end    time.Time
	}{
		{PeriodDaily, time.Date(2024, 3, 13, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)},
		{PeriodWeekly, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 18, 0, 0, 0, 0, time.UTC)},
		{PeriodMonthly, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)},
		{PeriodYearly, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(string(tt.period), func(t *testing.T) {
			b := &Budget{ID: "b1", Scope: BudgetScopeGlobal, Period: tt.period}
			start, end := b.PeriodBounds(now)
			assert.Equal(t, tt.start, start)
			assert.Equal(t, tt.end, end)
		})
	}
}

func TestBudgetCounterKey(t *testing.T) {
	now := time.Date(2024, 3, 13, 14, 30, 0, 0, time.UTC)

	t.Run("auto reset keys by period", func(t *testing.T) {
		b := &Budget{ID: "b1", Scope: BudgetScopeGlobal, Period: PeriodDaily, AutoReset: true}
		assert.Equal(t, "spend:b1:2024-03-13", b.CounterKey(now))
	})

	t.Run("lifetime budget keeps one counter", func(t *testing.T) {
		b := &Budget{ID: "b2", Scope: BudgetScopeGlobal, Period: PeriodNone}
		assert.Equal(t, "spend:b2:current", b.CounterKey(now))
	})

	t.Run("no auto reset keeps one counter regardless of period", func(t *testing.T) {
		b := &Budget{ID: "b3", Scope: BudgetScopeGlobal, Period: PeriodMonthly, AutoReset: false}
		assert.Equal(t, "spend:b3:current", b.CounterKey(now))
	})
}

func TestBudgetValidate(t *testing.T) {
	require.Error(t, (&Budget{ID: "b", Scope: BudgetScopeGlobal, SoftLimitUSD: 5, HardLimitUSD: 1}).Validate())
	require.Error(t, (&Budget{ID: "b", Scope: BudgetScopeUser}).Validate())
	require.NoError(t, (&Budget{ID: "b", Scope: BudgetScopeApplication, ScopeID: "acct-a", SoftLimitUSD: 1, HardLimitUSD: 2}).Validate())
}

func TestBudgetAppliesTo(t *testing.T) {
	c := &Contract{AppID: "acct-a", UserEmail: "dev@example.com"}

	assert.True(t, (&Budget{Scope: BudgetScopeGlobal}).AppliesTo(c))
	assert.True(t, (&Budget{Scope: BudgetScopeApplication, ScopeID: "acct-a"}).AppliesTo(c))
	assert.False(t, (&Budget{Scope: BudgetScopeApplication, ScopeID: "acct-b"}).AppliesTo(c))
	assert.True(t, (&Budget{Scope: BudgetScopeUser, ScopeID: "dev@example.com"}).AppliesTo(c))
	assert.False(t, (&Budget{Scope: BudgetScopeUser, ScopeID: "other@example.com"}).AppliesTo(c))
}

func TestRouteRuleMatches(t *testing.T) {
	tests := []struct {
		pattern string
		model   string
		want    bool
	}{
		{"gpt-4o", "gpt-4o", true},
		{"gpt-4o", "gpt-4o-mini", false},
		{"gpt-*", "gpt-4o-mini", true},
		{"claude-*", "claude-sonnet-4", true},
		{"claude-*", "gpt-4o", false},
		{"azure/", "azure/gpt-4o", true},
		{"azure/", "gpt-4o", false},
	}

	for _, tt := range tests {
		r := &RouteRule{Pattern: tt.pattern}
		assert.Equal(t, tt.want, r.Matches(tt.model), "pattern %s model %s", tt.pattern, tt.model)
	}
}
