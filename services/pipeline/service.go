package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/upb/llm-gateway/internal/observability"
	"github.com/upb/llm-gateway/internal/runtimeconfig"
	"github.com/upb/llm-gateway/models"
	"github.com/upb/llm-gateway/services"
	"github.com/upb/llm-gateway/services/budget"
	"github.com/upb/llm-gateway/services/guard"
	"github.com/upb/llm-gateway/services/policy"
	"github.com/upb/llm-gateway/services/pricing"
	"github.com/upb/llm-gateway/services/providers"
	"github.com/upb/llm-gateway/services/routing"
	"github.com/upb/llm-gateway/services/usage"
	"go.uber.org/zap"
)

// Service runs the governance pipeline. Stages execute in a fixed order
// and the first denial stops the run; whatever happens, exactly one usage
// record is written per request.
type Service struct {
	snapshots *runtimeconfig.Store
	policies  *policy.Engine
	budgets   *budget.Service
	guard     *guard.Guard
	router    *routing.Service
	sink      usage.Sink
	metrics   *observability.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(
	snapshots *runtimeconfig.Store,
	policies *policy.Engine,
	budgets *budget.Service,
	g *guard.Guard,
	router *routing.Service,
	sink usage.Sink,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Service {
	return &Service{
		snapshots: snapshots,
		policies:  policies,
		budgets:   budgets,
		guard:     g,
		router:    router,
		sink:      sink,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// Process runs a non-streaming request through the pipeline.
func (s *Service) Process(ctx context.Context, req *Request) (*Response, *DryRunResult, error) {
	run := s.newRun(req)

	if err := s.runChecks(ctx, req, run); err != nil {
		s.finishDenied(ctx, req, run, err)
		return nil, nil, err
	}

	if req.DryRun {
		return nil, s.finishDryRun(ctx, req, run), nil
	}

	// 6. Route and call the provider.
	started := s.now()
	result, err := s.router.Execute(ctx, req.Chat, run.route)
	if err != nil {
		run.record.addStage(StageRoute, codeError, started)
		s.finishDenied(ctx, req, run, err)
		return nil, nil, err
	}
	run.record.addStage(StageRoute, codePass, started)
	s.metrics.ObserveProviderCall(result.Target.Provider, "ok")
	s.metrics.ObserveStage(string(StageRoute), result.Latency.Seconds())

	// 7. Account and record. Failures here must not fail the request.
	cost := pricing.Cost(result.Target.Model, result.Response.Usage)
	s.commitAndRecord(ctx, req, run, &callOutcome{
		provider:  result.Target.Provider,
		model:     result.Target.Model,
		usage:     result.Response.Usage,
		costUSD:   cost,
		latencyMs: int(result.Latency.Milliseconds()),
	})

	return &Response{
		Chat:     result.Response,
		Decision: s.decisionFor(req, run),
		Warnings: run.record.Warnings,
	}, nil, nil
}

// ProcessStream runs a streaming request. Chunks flow to fn as they
// arrive; usage is taken from the final chunk when the provider reports
// it and estimated otherwise.
func (s *Service) ProcessStream(ctx context.Context, req *Request, fn providers.StreamFunc) (*Response, *DryRunResult, error) {
	run := s.newRun(req)

	if err := s.runChecks(ctx, req, run); err != nil {
		s.finishDenied(ctx, req, run, err)
		return nil, nil, err
	}

	if req.DryRun {
		return nil, s.finishDryRun(ctx, req, run), nil
	}

	var (
		streamUsage  *providers.Usage
		outputChunks int
	)
	wrapped := func(chunk *providers.ChatChunk) error {
		if chunk.Usage != nil {
			streamUsage = chunk.Usage
		}
		if chunk.Delta.Content != "" {
			outputChunks++
		}
		return fn(chunk)
	}

	started := s.now()
	result, err := s.router.ExecuteStream(ctx, req.Chat, run.route, wrapped)
	if err != nil {
		run.record.addStage(StageRoute, codeError, started)
		s.finishDenied(ctx, req, run, err)
		return nil, nil, err
	}
	run.record.addStage(StageRoute, codePass, started)
	s.metrics.ObserveProviderCall(result.Target.Provider, "ok")
	s.metrics.ObserveStage(string(StageRoute), result.Latency.Seconds())

	finalUsage := providers.Usage{}
	if streamUsage != nil {
		finalUsage = *streamUsage
	} else {
		finalUsage.InputTokens = EstimateTokens(result.Target.Model, req.Chat.Messages)
		finalUsage.OutputTokens = outputChunks * 2 // rough: ~2 tokens per delta
		finalUsage.TotalTokens = finalUsage.InputTokens + finalUsage.OutputTokens
	}

	cost := pricing.Cost(result.Target.Model, finalUsage)
	s.commitAndRecord(ctx, req, run, &callOutcome{
		provider:  result.Target.Provider,
		model:     result.Target.Model,
		usage:     finalUsage,
		costUSD:   cost,
		latencyMs: int(result.Latency.Milliseconds()),
	})

	return &Response{
		Decision: s.decisionFor(req, run),
		Warnings: run.record.Warnings,
	}, nil, nil
}

type run struct {
	record   *DecisionRecord
	snapshot *runtimeconfig.Snapshot
	budgets  []*models.Budget
	route    *models.RouteRule
}

type callOutcome struct {
	provider  string
	model     string
	usage     providers.Usage
	costUSD   float64
	latencyMs int
}

func (s *Service) newRun(req *Request) *run {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	return &run{
		record:   &DecisionRecord{RequestID: req.RequestID, Outcome: models.OutcomeAllow},
		snapshot: s.snapshots.Current(),
	}
}

// runChecks executes stages 1-5. The returned error is the denial; the
// matching stage result is already on the record.
func (s *Service) runChecks(ctx context.Context, req *Request, run *run) error {
	// 1. Authentication was resolved by the middleware; verify and trace it.
	started := s.now()
	if req.App == nil {
		run.record.addStage(StageAuth, codeDeny, started)
		return services.NewAuthRequired()
	}
	if !req.App.Enabled {
		run.record.addStage(StageAuth, codeDeny, started)
		return services.NewInvalidAPIKey()
	}
	run.record.addStage(StageAuth, codePass, started)

	// 2. Feature check: the feature must exist, be globally enabled, and be
	// on the application's allowlist.
	started = s.now()
	feature := run.snapshot.Feature(req.Contract.Feature)
	if feature == nil || !feature.Enabled || !req.App.AllowsFeature(req.Contract.Feature) {
		run.record.addStage(StageFeature, codeDeny, started)
		return services.NewFeatureNotAllowed(req.App.ID, req.Contract.Feature)
	}
	run.record.addStage(StageFeature, codePass, started)

	// 3. Policy check.
	started = s.now()
	decision := s.policies.Evaluate(req.Contract, run.snapshot.RulesFor(req.Contract), s.now())
	run.record.PoliciesEvaluated = decision.Evaluated
	switch decision.Action {
	case models.RuleActionDeny:
		run.record.addStage(StagePolicy, codeDeny, started)
		return services.NewRequestDenied(decision.MatchedRule.ID, "request denied by policy rule")
	case models.RuleActionWarn:
		run.record.addStage(StagePolicy, codeWarn, started)
		run.record.Warnings = append(run.record.Warnings,
			"policy rule "+decision.MatchedRule.ID+" flagged this request")
	default:
		run.record.addStage(StagePolicy, codePass, started)
	}

	// 4. Budget check.
	started = s.now()
	run.budgets = run.snapshot.BudgetsFor(req.Contract)
	check, err := s.budgets.Check(ctx, req.Contract, run.budgets, s.now())
	if err != nil {
		run.record.addStage(StageBudget, codeDeny, started)
		return err
	}
	if len(check.Warnings) > 0 {
		run.record.addStage(StageBudget, codeWarn, started)
		run.record.Warnings = append(run.record.Warnings, check.Warnings...)
	} else {
		run.record.addStage(StageBudget, codePass, started)
	}

	// 5. Security scan.
	started = s.now()
	scan := s.guard.Scan(ctx, req.Chat.Messages)
	switch scan.Verdict {
	case guard.VerdictBlock:
		run.record.addStage(StageSecurity, codeDeny, started)
		return services.NewSecurityBlocked(scan.TopCategory(), scan.RiskScore)
	case guard.VerdictWarn:
		run.record.addStage(StageSecurity, codeWarn, started)
		run.record.Warnings = append(run.record.Warnings,
			"security guard flagged this request ("+scan.TopCategory()+")")
	default:
		run.record.addStage(StageSecurity, codePass, started)
	}

	run.route = run.snapshot.RouteFor(req.Contract.Model)
	return nil
}

func (s *Service) finishDryRun(ctx context.Context, req *Request, run *run) *DryRunResult {
	// The provider is never called and no spend is committed; the route
	// stage is traced as skipped so the record shape stays uniform.
	started := s.now()
	run.record.addStage(StageRoute, codeSkipped, started)

	wouldRoute := ""
	if targets, _ := s.router.Plan(req.Contract.Model, run.route); len(targets) > 0 {
		wouldRoute = targets[0].Provider
	}

	if len(run.record.Warnings) > 0 {
		run.record.Outcome = models.OutcomeWarn
	}
	s.writeUsage(ctx, req, run, nil)
	s.metrics.ObserveDecision(string(run.record.Outcome), "dry_run")
	return &DryRunResult{WouldRoute: wouldRoute, Decision: run.record}
}

func (s *Service) finishDenied(ctx context.Context, req *Request, run *run, denial error) {
	run.record.Outcome = models.OutcomeDeny
	run.record.BlockedReason = denial.Error()
	if de, ok := services.AsDomainError(denial); ok {
		run.record.BlockedReason = de.Message
	}

	lastStage := ""
	if n := len(run.record.Stages); n > 0 {
		lastStage = string(run.record.Stages[n-1].Stage)
	}
	s.metrics.ObserveDecision(string(models.OutcomeDeny), lastStage)
	s.logger.Info("request denied",
		zap.String("request_id", req.RequestID),
		zap.String("stage", lastStage),
		zap.String("reason", run.record.BlockedReason))

	s.writeUsage(ctx, req, run, nil)
}

func (s *Service) commitAndRecord(ctx context.Context, req *Request, run *run, call *callOutcome) {
	started := s.now()
	s.budgets.Commit(ctx, req.Contract, run.budgets, call.costUSD, s.now())
	s.metrics.ObserveSpend(req.Contract.AppID, call.costUSD)

	if len(run.record.Warnings) > 0 {
		run.record.Outcome = models.OutcomeWarn
	}
	s.metrics.ObserveDecision(string(run.record.Outcome), string(StageRoute))

	s.writeUsage(ctx, req, run, call)
	run.record.addStage(StageUsage, codePass, started)
}

// writeUsage emits the one-per-request usage record. A sink failure is
// logged, never propagated.
func (s *Service) writeUsage(ctx context.Context, req *Request, run *run, call *callOutcome) {
	rec := &models.UsageRecord{
		RequestID:   req.RequestID,
		AppID:       req.Contract.AppID,
		Feature:     req.Contract.Feature,
		Environment: req.Contract.Environment,
		Model:       req.Contract.Model,
		Outcome:     run.record.Outcome,
		CreatedAt:   s.now().UTC(),
	}
	if run.record.Outcome == models.OutcomeDeny {
		rec.DeniedReason = run.record.BlockedReason
	}
	if call != nil {
		rec.Provider = call.provider
		rec.Model = call.model
		rec.InputTokens = call.usage.InputTokens
		rec.OutputTokens = call.usage.OutputTokens
		rec.CostUSD = call.costUSD
		rec.LatencyMs = call.latencyMs
	}
	if err := s.sink.Record(ctx, rec); err != nil {
		s.logger.Error("usage record write failed",
			zap.String("request_id", rec.RequestID), zap.Error(err))
	}
}

func (s *Service) decisionFor(req *Request, run *run) *DecisionRecord {
	if !req.Debug {
		return nil
	}
	return run.record
}
