// Package runtimeconfig loads the admin-managed governance definitions
// (applications, features, policy rules, budgets, route tables) into an
// immutable in-memory snapshot. Pipeline stages take the current snapshot
// as an explicit parameter; refresh swaps the whole snapshot atomically,
// so a request never observes a half-updated table.
package runtimeconfig

import (
	"strings"
	"time"

	"github.com/upb/llm-gateway/models"
)

// Snapshot is one immutable, versioned view of the governance tables.
// All lookup maps are built at load time and never mutated afterwards.
type Snapshot struct {
	Version  int64
	LoadedAt time.Time

	Rules   []*models.PolicyRule
	Budgets []*models.Budget
	Routes  []*models.RouteRule

	appsByID  map[string]*models.Application
	appsByKey map[string]*models.Application
	features  map[string]*models.Feature
}

// NewSnapshot builds an immutable snapshot with its lookup maps. Callers
// must not mutate the slices after handing them over.
func NewSnapshot(version int64, apps []*models.Application, features []*models.Feature,
	rules []*models.PolicyRule, budgets []*models.Budget, routes []*models.RouteRule) *Snapshot {

	s := &Snapshot{
		Version:   version,
		LoadedAt:  time.Now(),
		Rules:     rules,
		Budgets:   budgets,
		Routes:    routes,
		appsByID:  make(map[string]*models.Application, len(apps)),
		appsByKey: make(map[string]*models.Application, len(apps)),
		features:  make(map[string]*models.Feature, len(features)),
	}
	for _, a := range apps {
		s.appsByID[a.ID] = a
		if a.APIKey != "" {
			s.appsByKey[a.APIKey] = a
		}
	}
	for _, f := range features {
		s.features[f.ID] = f
	}
	return s
}

// Application returns the application with the given id, or nil
func (s *Snapshot) Application(id string) *models.Application {
	return s.appsByID[id]
}

// ApplicationByKey returns the application owning the API key, or nil
func (s *Snapshot) ApplicationByKey(key string) *models.Application {
	return s.appsByKey[key]
}

// Feature returns the feature definition, or nil when unknown
func (s *Snapshot) Feature(id string) *models.Feature {
	return s.features[id]
}

// RulesFor returns the rules scoped to the contract's application and,
// when the contract names an end user, to that user. The policy engine
// does its own enabled filtering and ordering.
func (s *Snapshot) RulesFor(c *models.Contract) []*models.PolicyRule {
	out := make([]*models.PolicyRule, 0, len(s.Rules))
	for _, r := range s.Rules {
		if r.AppScope != models.AppScopeGlobal && r.AppScope != c.AppID {
			continue
		}
		if r.UserScope != "" && !strings.EqualFold(r.UserScope, c.UserEmail) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// BudgetsFor returns every budget whose scope covers the contract
func (s *Snapshot) BudgetsFor(c *models.Contract) []*models.Budget {
	out := make([]*models.Budget, 0, 3)
	for _, b := range s.Budgets {
		if b.AppliesTo(c) {
			out = append(out, b)
		}
	}
	return out
}

// RouteFor returns the first route rule matching the model, or nil
func (s *Snapshot) RouteFor(model string) *models.RouteRule {
	for _, r := range s.Routes {
		if r.Matches(model) {
			return r
		}
	}
	return nil
}
