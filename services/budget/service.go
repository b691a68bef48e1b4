package budget

import (
	"context"
	"fmt"
	"time"

	"github.com/upb/llm-gateway/models"
	"github.com/upb/llm-gateway/services"
	"go.uber.org/zap"
)

// Service enforces spend budgets. Checks run before the provider call and
// fail closed; commits run after and never fail the request.
type Service struct {
	store  Store
	logger *zap.Logger
}

func NewService(store Store, logger *zap.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// CheckResult reports the outcome of a pre-call budget check.
type CheckResult struct {
	// Warnings lists budgets past their soft limit or forecast to blow
	// through the hard limit before the period ends.
	Warnings []string
}

// Check verifies the contract against every applicable budget. A budget at
// or past its hard limit denies the request. A store read failure also
// denies: when spend cannot be verified the gateway refuses rather than
// risking unbounded cost.
func (s *Service) Check(ctx context.Context, contract *models.Contract, budgets []*models.Budget, now time.Time) (*CheckResult, error) {
	result := &CheckResult{}
	for _, b := range budgets {
		if !b.AppliesTo(contract) {
			continue
		}
		spend, err := s.store.Get(ctx, b.CounterKey(now))
		if err != nil {
			s.logger.Error("budget check failed, denying request",
				zap.String("budget_id", b.ID), zap.Error(err))
			return nil, services.NewInternalError("budget state unavailable", err)
		}

		if spend >= b.HardLimitUSD {
			return nil, services.NewBudgetWouldExceed(b.ID, spend, b.HardLimitUSD)
		}
		if spend >= b.SoftLimitUSD {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("budget %s past soft limit: $%.4f of $%.2f", b.ID, spend, b.SoftLimitUSD))
		}
		if msg := s.forecast(b, spend, now); msg != "" {
			result.Warnings = append(result.Warnings, msg)
		}
	}
	return result, nil
}

// forecast projects spend linearly across the period. The projection only
// ever warns; a request is denied on actual spend, not extrapolation.
func (s *Service) forecast(b *models.Budget, spend float64, now time.Time) string {
	if !b.AutoReset || b.Period == models.PeriodNone || spend <= 0 {
		return ""
	}
	start, end := b.PeriodBounds(now)
	elapsed := now.UTC().Sub(start)
	total := end.Sub(start)
	if elapsed < time.Hour || total <= 0 {
		// Too early in the period for the projection to mean anything.
		return ""
	}
	projected := spend / elapsed.Seconds() * total.Seconds()
	if projected > b.HardLimitUSD {
		return fmt.Sprintf("budget %s forecast to exceed hard limit: projected $%.2f of $%.2f", b.ID, projected, b.HardLimitUSD)
	}
	return ""
}

// Commit records actual cost against every applicable budget. Commit runs
// after the provider call so a failure here is an accounting gap, not a
// request failure; the write is retried once and then logged for repair.
func (s *Service) Commit(ctx context.Context, contract *models.Contract, budgets []*models.Budget, costUSD float64, now time.Time) {
	if costUSD <= 0 {
		return
	}
	for _, b := range budgets {
		if !b.AppliesTo(contract) {
			continue
		}
		key := b.CounterKey(now)
		total, err := s.store.Add(ctx, key, costUSD)
		if err != nil {
			total, err = s.store.Add(ctx, key, costUSD)
		}
		if err != nil {
			s.logger.Error("budget commit failed, spend not recorded",
				zap.String("budget_id", b.ID),
				zap.String("counter_key", key),
				zap.Float64("cost_usd", costUSD),
				zap.Error(err))
			continue
		}
		s.logger.Debug("budget spend committed",
			zap.String("budget_id", b.ID),
			zap.Float64("cost_usd", costUSD),
			zap.Float64("period_total_usd", total))
	}
}

// Reset zeroes the budget's current-period counter.
func (s *Service) Reset(ctx context.Context, b *models.Budget, now time.Time) error {
	key := b.CounterKey(now)
	if err := s.store.Set(ctx, key, 0, 0); err != nil {
		return services.NewInternalError(fmt.Sprintf("reset budget %s", b.ID), err)
	}
	s.logger.Info("budget reset", zap.String("budget_id", b.ID), zap.String("counter_key", key))
	return nil
}

// Status returns the budget annotated with live spend and current period
// bounds for status endpoints.
func (s *Service) Status(ctx context.Context, b *models.Budget, now time.Time) (*models.Budget, error) {
	spend, err := s.store.Get(ctx, b.CounterKey(now))
	if err != nil {
		return nil, services.NewInternalError("budget state unavailable", err)
	}
	out := *b
	out.SpendUSD = spend
	out.PeriodStart, out.PeriodEnd = b.PeriodBounds(now)
	return &out, nil
}
