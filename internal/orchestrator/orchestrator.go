// Package orchestrator wires the engine together and exposes the single
// entry point: RunGoal decomposes a user goal, drives each sub-task through
// the controller in order, and aggregates the outcomes.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sageflow/sageflow/internal/aggregator"
	"github.com/sageflow/sageflow/internal/config"
	"github.com/sageflow/sageflow/internal/controller"
	"github.com/sageflow/sageflow/internal/decomposer"
	"github.com/sageflow/sageflow/internal/embeddings"
	"github.com/sageflow/sageflow/internal/evaluator"
	"github.com/sageflow/sageflow/internal/executor"
	"github.com/sageflow/sageflow/internal/gateway"
	"github.com/sageflow/sageflow/internal/metrics"
	"github.com/sageflow/sageflow/internal/models"
	"github.com/sageflow/sageflow/internal/router"
)

// Engine is the assembled control loop.
type Engine struct {
	cfg        *config.Config
	decomposer decomposer.Decomposer
	ctrl       *controller.Controller
	agg        *aggregator.Aggregator
	logger     *zap.Logger
}

// Option overrides a default component, mainly for tests and embedders.
type Option func(*builder)

type builder struct {
	decomposer decomposer.Decomposer
	invokers   map[string]gateway.Invoker
}

// WithDecomposer replaces the heuristic decomposer, e.g. with an LLM planner.
func WithDecomposer(d decomposer.Decomposer) Option {
	return func(b *builder) { b.decomposer = d }
}

// WithInvoker installs (or replaces) the invoker for a provider tag before
// the dispatch table is frozen.
func WithInvoker(provider string, inv gateway.Invoker) Option {
	return func(b *builder) {
		if b.invokers == nil {
			b.invokers = make(map[string]gateway.Invoker)
		}
		b.invokers[provider] = inv
	}
}

// New validates the configuration and assembles the engine. An empty
// candidate pool is the only fatal configuration error.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	var b builder
	for _, o := range opts {
		o(&b)
	}

	reg, err := buildRegistry(cfg, logger, b.invokers)
	if err != nil {
		return nil, err
	}

	judge := buildJudge(cfg, logger, reg)

	evalProvider := cfg.ProviderFor(cfg.Models.EvaluatorModel)
	sel := router.NewSelector(
		cfg.Models.CategoryMap,
		cfg.ProviderFor,
		cfg.ParametersFor,
		logger,
		router.WithArbiter(router.NewLLMArbiter(reg, cfg.Models.EvaluatorModel, evalProvider)),
	)

	exec := executor.New(reg, logger)
	ctrl := controller.New(sel, exec, judge, cfg.Models.Available, cfg.MaxRetries, logger)

	dec := b.decomposer
	if dec == nil {
		dec = decomposer.NewHeuristic(logger)
	}

	return &Engine{
		cfg:        cfg,
		decomposer: dec,
		ctrl:       ctrl,
		agg:        aggregator.New(logger),
		logger:     logger,
	}, nil
}

// buildRegistry assembles the provider dispatch table from config, then
// applies overrides. Ollama is always registered; openai and the generic
// HTTP service only when configured.
func buildRegistry(cfg *config.Config, logger *zap.Logger, overrides map[string]gateway.Invoker) (*gateway.Registry, error) {
	var regOpts []gateway.Option
	if rl := cfg.Gateway.RateLimit; rl.RequestsPerSecond > 0 {
		regOpts = append(regOpts, gateway.WithRateLimit(rl.RequestsPerSecond, rl.Burst))
	}
	if br := cfg.Gateway.Breaker; br.FailureThreshold > 0 {
		regOpts = append(regOpts, gateway.WithBreakerConfig(gateway.BreakerConfig{
			FailureThreshold: br.FailureThreshold,
			ResetTimeout:     br.ResetTimeout,
			HalfOpenRequests: br.HalfOpenRequests,
		}))
	}
	reg := gateway.NewRegistry(logger, regOpts...)

	if _, ok := overrides["ollama"]; !ok {
		inv, err := gateway.NewOllamaInvoker(cfg.Gateway.Ollama.BaseURL, cfg.Gateway.Ollama.Timeout)
		if err != nil {
			return nil, fmt.Errorf("ollama invoker: %w", err)
		}
		reg.Register("ollama", inv)
	}
	if cfg.Gateway.OpenAI.APIKey != "" {
		reg.Register("openai", gateway.NewOpenAIInvoker(
			cfg.Gateway.OpenAI.APIKey,
			cfg.Gateway.OpenAI.BaseURL,
			cfg.Gateway.OpenAI.Timeout,
		))
	}
	if cfg.Gateway.HTTP.BaseURL != "" {
		reg.Register("http", gateway.NewHTTPInvoker(cfg.Gateway.HTTP.BaseURL, cfg.Gateway.HTTP.Timeout))
	}
	for tag, inv := range overrides {
		reg.Register(tag, inv)
	}
	return reg, nil
}

// buildJudge assembles the verdict cascade: LLM judge, then semantic
// similarity when an embedding endpoint is configured, then the lexical
// terminal stage.
func buildJudge(cfg *config.Config, logger *zap.Logger, reg *gateway.Registry) *evaluator.Judge {
	threshold := cfg.SimilarityThreshold
	stages := []evaluator.Strategy{
		evaluator.NewLLMJudge(reg, cfg.Models.EvaluatorModel, cfg.ProviderFor(cfg.Models.EvaluatorModel), threshold),
	}
	if cfg.Embeddings.BaseURL != "" {
		var cache embeddings.Cache
		if cfg.Embeddings.EnableRedis {
			rc, err := embeddings.NewRedisCache(cfg.Embeddings.RedisAddr)
			if err != nil {
				logger.Warn("Redis embedding cache unavailable, continuing without it",
					zap.String("addr", cfg.Embeddings.RedisAddr), zap.Error(err))
			} else {
				cache = rc
			}
		}
		svc := embeddings.NewService(embeddings.Config{
			BaseURL:      cfg.Embeddings.BaseURL,
			DefaultModel: cfg.Embeddings.Model,
			Timeout:      cfg.Embeddings.Timeout,
			CacheTTL:     cfg.Embeddings.CacheTTL,
			MaxLRU:       cfg.Embeddings.MaxLRU,
		}, cache)
		stages = append(stages, evaluator.NewSemanticSimilarity(svc, cfg.Embeddings.Model, threshold))
	}
	stages = append(stages, evaluator.NewLexicalSimilarity(threshold))
	return evaluator.NewJudge(logger, stages...)
}

// RunGoal resolves a goal end to end. Sub-tasks run strictly in order; each
// task after the first receives the previous task's chosen content through
// context chaining whether or not that task was accepted.
func (e *Engine) RunGoal(ctx context.Context, goal string, runContext map[string]interface{}) (models.FinalResponse, error) {
	start := time.Now()
	metrics.RunsStarted.Inc()
	e.logger.Info("Run started", zap.Int("goal_len", len(goal)))

	tasks, err := e.decomposer.Decompose(ctx, goal, runContext)
	if err != nil {
		return models.FinalResponse{}, fmt.Errorf("decompose goal: %w", err)
	}
	if len(tasks) == 0 {
		return models.FinalResponse{}, fmt.Errorf("decomposition produced no tasks")
	}

	outcomes := make([]models.Outcome, 0, len(tasks))
	for i := range tasks {
		if i > 0 {
			controller.Chain(outcomes[i-1], &tasks[i])
		}
		outcomes = append(outcomes, e.ctrl.Resolve(ctx, tasks[i]))
	}

	resp := e.agg.Aggregate(outcomes)

	elapsed := time.Since(start)
	metrics.RunDuration.Observe(elapsed.Seconds())
	metrics.RunSuccessRate.Observe(resp.Metadata.SuccessRate)
	e.logger.Info("Run finished",
		zap.Int("tasks", resp.Metadata.NumResults),
		zap.Int("successful", resp.Metadata.NumSuccessful),
		zap.Duration("elapsed", elapsed),
	)
	return resp, nil
}
