package runtimeconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/upb/llm-gateway/models"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// fileDocument is the YAML shape of the governance definitions file
type fileDocument struct {
	Applications []*models.Application `yaml:"applications"`
	Features     []*models.Feature     `yaml:"features"`
	Budgets      []*models.Budget      `yaml:"budgets"`
	Routes       []*models.RouteRule   `yaml:"routes"`
	Rules        []fileRule            `yaml:"rules"`
}

// fileRule carries the rule condition as a free-form map so that a rule
// with a malformed payload loads (and later fails open in the engine)
// instead of failing the whole file.
type fileRule struct {
	ID        string                 `yaml:"id"`
	AppScope  string                 `yaml:"app_scope"`
	UserScope string                 `yaml:"user_scope"`
	Type      models.RuleType        `yaml:"type"`
	Condition map[string]interface{} `yaml:"condition"`
	Action    models.RuleAction      `yaml:"action"`
	Priority  int                    `yaml:"priority"`
	Enabled   bool                   `yaml:"enabled"`
}

// Store holds the current snapshot behind an atomic pointer and knows how
// to reload it from the definitions file.
type Store struct {
	path    string
	logger  *zap.Logger
	current atomic.Pointer[Snapshot]
	version atomic.Int64
}

// NewStore loads the initial snapshot from path
func NewStore(path string, logger *zap.Logger) (*Store, error) {
	s := &Store{path: path, logger: logger}
	if err := s.Refresh(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewStoreFromSnapshot wraps a pre-built snapshot; used by tests and by
// callers that manage their own config source.
func NewStoreFromSnapshot(snap *Snapshot, logger *zap.Logger) *Store {
	s := &Store{logger: logger}
	s.current.Store(snap)
	return s
}

// Current returns the latest snapshot. The returned value is immutable.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Refresh reloads the definitions file and atomically swaps the snapshot.
// On any load error the previous snapshot stays in place.
func (s *Store) Refresh() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read gateway config: %w", err)
	}

	var doc fileDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse gateway config: %w", err)
	}

	rules := make([]*models.PolicyRule, 0, len(doc.Rules))
	for _, fr := range doc.Rules {
		cond, err := json.Marshal(fr.Condition)
		if err != nil {
			// Fail open on the single rule, per the config-error taxonomy.
			s.logger.Warn("skipping rule with unencodable condition",
				zap.String("rule_id", fr.ID),
				zap.Error(err))
			continue
		}
		rules = append(rules, &models.PolicyRule{
			ID:        fr.ID,
			AppScope:  fr.AppScope,
			UserScope: fr.UserScope,
			Type:      fr.Type,
			Condition: cond,
			Action:    fr.Action,
			Priority:  fr.Priority,
			Enabled:   fr.Enabled,
		})
	}

	budgets := make([]*models.Budget, 0, len(doc.Budgets))
	for _, b := range doc.Budgets {
		if err := b.Validate(); err != nil {
			s.logger.Warn("skipping invalid budget", zap.Error(err))
			continue
		}
		budgets = append(budgets, b)
	}

	snap := NewSnapshot(s.version.Add(1), doc.Applications, doc.Features, rules, budgets, doc.Routes)
	s.current.Store(snap)

	s.logger.Info("gateway config loaded",
		zap.Int64("version", snap.Version),
		zap.Int("applications", len(doc.Applications)),
		zap.Int("rules", len(rules)),
		zap.Int("budgets", len(budgets)),
		zap.Int("routes", len(doc.Routes)))

	return nil
}

// StartRefreshWorker reloads the snapshot on the given interval until
// stopCh closes. Load failures keep the previous snapshot.
func (s *Store) StartRefreshWorker(interval time.Duration, stopCh <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := s.Refresh(); err != nil {
					s.logger.Warn("gateway config refresh failed, keeping previous snapshot",
						zap.Error(err))
				}
			case <-stopCh:
				return
			}
		}
	}()
}
