package routing

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/upb/llm-gateway/models"
	"github.com/upb/llm-gateway/services"
	"github.com/upb/llm-gateway/services/providers"
	"go.uber.org/zap"
)

// ewmaAlpha weights the newest latency sample at 20%.
const ewmaAlpha = 0.2

// Target is one concrete attempt: a provider adapter plus the upstream
// model name to send it.
type Target struct {
	Provider string
	Model    string
}

// Result reports a completed (non-streaming) routed call.
type Result struct {
	Response *providers.ChatResponse
	Target   Target
	Attempts int
	Latency  time.Duration
}

// StreamResult reports a completed streaming call. Usage arrives through
// the caller's StreamFunc on the final chunk.
type StreamResult struct {
	Target   Target
	Attempts int
	Latency  time.Duration
}

// Service resolves a model name to an ordered attempt plan and executes it
// with bounded fallback.
type Service struct {
	registry *providers.Registry
	logger   *zap.Logger

	mu       sync.Mutex
	rrState  map[string]*atomic.Uint64
	latency  sync.Map // provider name -> *atomic.Uint64 (float64 bits, ms)
	randFunc func(n int) int
}

func NewService(registry *providers.Registry, logger *zap.Logger) *Service {
	return &Service{
		registry: registry,
		logger:   logger,
		rrState:  make(map[string]*atomic.Uint64),
		randFunc: rand.Intn,
	}
}

// Plan resolves model to the ordered endpoint list to attempt. Routes come
// from the config snapshot; models with no route fall back to a
// name-prefix heuristic so a bare deployment still works.
func (s *Service) Plan(model string, route *models.RouteRule) ([]Target, *models.RouteRule) {
	if route == nil {
		route = defaultRoute(model)
	}
	if route == nil {
		return nil, nil
	}

	// Group endpoints by priority tier, lower tiers first.
	tiers := make(map[int][]models.RouteEndpoint)
	var order []int
	for _, ep := range route.Endpoints {
		if _, seen := tiers[ep.Priority]; !seen {
			order = append(order, ep.Priority)
		}
		tiers[ep.Priority] = append(tiers[ep.Priority], ep)
	}
	sort.Ints(order)

	var targets []Target
	for _, tier := range order {
		eps := s.orderTier(route, tiers[tier])
		for _, ep := range eps {
			upstream := ep.Model
			if upstream == "" {
				upstream = strings.TrimPrefix(model, providerPrefix(route.Pattern))
			}
			targets = append(targets, Target{Provider: ep.Provider, Model: upstream})
		}
	}
	return targets, route
}

// providerPrefix returns the routing prefix for "openai/"-style patterns,
// which is stripped from the upstream model name.
func providerPrefix(pattern string) string {
	if strings.HasSuffix(pattern, "/") {
		return pattern
	}
	return ""
}

func (s *Service) orderTier(route *models.RouteRule, eps []models.RouteEndpoint) []models.RouteEndpoint {
	if len(eps) <= 1 {
		return eps
	}
	out := make([]models.RouteEndpoint, len(eps))
	copy(out, eps)

	switch route.Strategy {
	case models.StrategyWeightedRandom:
		s.weightedShuffle(out)
	case models.StrategyLeastLatency:
		sort.SliceStable(out, func(i, j int) bool {
			return s.avgLatency(out[i].Provider) < s.avgLatency(out[j].Provider)
		})
	default: // round robin
		counter := s.rrCounter(route.Pattern)
		offset := int(counter.Add(1)-1) % len(out)
		rotated := make([]models.RouteEndpoint, 0, len(out))
		rotated = append(rotated, out[offset:]...)
		rotated = append(rotated, out[:offset]...)
		out = rotated
	}
	return out
}

// weightedShuffle repeatedly draws the next endpoint with probability
// proportional to weight, so the full order is weight-biased.
func (s *Service) weightedShuffle(eps []models.RouteEndpoint) {
	for i := 0; i < len(eps)-1; i++ {
		total := 0
		for _, ep := range eps[i:] {
			total += max(ep.Weight, 1)
		}
		pick := s.randFunc(total)
		for j := i; j < len(eps); j++ {
			pick -= max(eps[j].Weight, 1)
			if pick < 0 {
				eps[i], eps[j] = eps[j], eps[i]
				break
			}
		}
	}
}

func (s *Service) rrCounter(pattern string) *atomic.Uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.rrState[pattern]
	if !ok {
		c = &atomic.Uint64{}
		s.rrState[pattern] = c
	}
	return c
}

func (s *Service) avgLatency(provider string) float64 {
	v, ok := s.latency.Load(provider)
	if !ok {
		return 0
	}
	return math.Float64frombits(v.(*atomic.Uint64).Load())
}

func (s *Service) recordLatency(provider string, d time.Duration) {
	v, _ := s.latency.LoadOrStore(provider, &atomic.Uint64{})
	cell := v.(*atomic.Uint64)
	for {
		old := cell.Load()
		prev := math.Float64frombits(old)
		next := float64(d.Milliseconds())
		if prev > 0 {
			next = ewmaAlpha*next + (1-ewmaAlpha)*prev
		}
		if cell.CompareAndSwap(old, math.Float64bits(next)) {
			return
		}
	}
}

// Execute runs the attempt plan until a call succeeds or fallback is
// exhausted. A 429 stops fallback unless the route opts in: hammering the
// next provider on quota pressure usually just spreads the outage.
func (s *Service) Execute(ctx context.Context, req *providers.ChatRequest, route *models.RouteRule) (*Result, error) {
	targets, route := s.Plan(req.Model, route)
	if len(targets) == 0 {
		return nil, services.NewInternalError("no route for model "+req.Model, nil)
	}
	maxAttempts := route.MaxAttempts
	if maxAttempts <= 0 || maxAttempts > len(targets) {
		maxAttempts = len(targets)
	}

	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		target := targets[i]
		provider, err := s.registry.Get(target.Provider)
		if err != nil {
			lastErr = err
			continue
		}

		attemptReq := *req
		attemptReq.Model = target.Model

		start := time.Now()
		resp, err := provider.ChatCompletion(ctx, &attemptReq)
		elapsed := time.Since(start)

		if err == nil {
			s.recordLatency(target.Provider, elapsed)
			return &Result{Response: resp, Target: target, Attempts: i + 1, Latency: elapsed}, nil
		}
		lastErr = err

		if !s.shouldFallback(route, err) || ctx.Err() != nil {
			break
		}
		s.logger.Warn("provider attempt failed, trying next endpoint",
			zap.String("provider", target.Provider),
			zap.String("model", target.Model),
			zap.Error(err))
	}
	return nil, s.wrapProviderError(lastErr)
}

// ExecuteStream is Execute for streaming calls. Fallback is only possible
// before the first chunk reaches the caller; after that the stream is
// theirs and a failure surfaces as an error.
func (s *Service) ExecuteStream(ctx context.Context, req *providers.ChatRequest, route *models.RouteRule, fn providers.StreamFunc) (*StreamResult, error) {
	targets, route := s.Plan(req.Model, route)
	if len(targets) == 0 {
		return nil, services.NewInternalError("no route for model "+req.Model, nil)
	}
	maxAttempts := route.MaxAttempts
	if maxAttempts <= 0 || maxAttempts > len(targets) {
		maxAttempts = len(targets)
	}

	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		target := targets[i]
		provider, err := s.registry.Get(target.Provider)
		if err != nil {
			lastErr = err
			continue
		}

		attemptReq := *req
		attemptReq.Model = target.Model

		delivered := false
		wrapped := func(chunk *providers.ChatChunk) error {
			delivered = true
			return fn(chunk)
		}

		start := time.Now()
		err = provider.ChatCompletionStream(ctx, &attemptReq, wrapped)
		elapsed := time.Since(start)

		if err == nil {
			s.recordLatency(target.Provider, elapsed)
			return &StreamResult{Target: target, Attempts: i + 1, Latency: elapsed}, nil
		}
		lastErr = err

		if delivered || !s.shouldFallback(route, err) || ctx.Err() != nil {
			break
		}
		s.logger.Warn("provider stream attempt failed, trying next endpoint",
			zap.String("provider", target.Provider),
			zap.String("model", target.Model),
			zap.Error(err))
	}
	return nil, s.wrapProviderError(lastErr)
}

func (s *Service) shouldFallback(route *models.RouteRule, err error) bool {
	if providers.IsRateLimited(err) {
		return route.FallbackOnRateLimit
	}
	return providers.IsRetryable(err)
}

func (s *Service) wrapProviderError(err error) error {
	if err == nil {
		return services.NewInternalError("provider call failed", nil)
	}
	var pe *providers.ProviderError
	if errors.As(err, &pe) {
		if pe.StatusCode == 429 {
			return services.NewRateLimited(pe.Provider)
		}
		return services.NewProviderError(pe.Provider, err)
	}
	return services.NewInternalError("provider call failed", err)
}

// defaultRoute builds a single-endpoint route from the model name when the
// config has no matching rule.
func defaultRoute(model string) *models.RouteRule {
	var provider string
	switch {
	case strings.HasPrefix(model, "gpt-"), strings.HasPrefix(model, "o1"), strings.HasPrefix(model, "o3"):
		provider = "openai"
	case strings.HasPrefix(model, "claude-"):
		provider = "anthropic"
	default:
		return nil
	}
	return &models.RouteRule{
		Pattern:   model,
		Endpoints: []models.RouteEndpoint{{Provider: provider, Weight: 1}},
		Strategy:  models.StrategyRoundRobin,
	}
}
