// Package router selects the (model, provider, parameters) assignment for
// each attempt. Model choice is delegated to an external arbitration strategy
// with a deterministic fallback chain behind it; the selector itself is
// stateless and receives the caller's exclusion list explicitly.
package router

import (
	"context"
	"errors"
	"math/rand"
	"strings"

	"go.uber.org/zap"

	"github.com/sageflow/sageflow/internal/models"
)

// ErrNoModelAvailable is the selector's only hard failure: an empty candidate
// pool with nothing excluded to fall back onto.
var ErrNoModelAvailable = errors.New("no model available")

// Arbiter is the external model-arbitration strategy. It receives the task
// and the viable candidates and names a model; any error downgrades the
// selector to its static fallback chain.
type Arbiter interface {
	Arbitrate(ctx context.Context, task models.TaskDescriptor, candidates []string) (string, error)
}

// Selector issues assignments. It holds only read-only configuration; the
// exclusion list is passed per call, so one Selector serves all tasks.
type Selector struct {
	arbiter     Arbiter
	categoryMap map[string]string
	providerFor func(model string) string
	paramsFor   func(model string) map[string]interface{}
	rng         *rand.Rand
	logger      *zap.Logger
}

// Option configures a Selector.
type Option func(*Selector)

// WithArbiter installs the external arbitration strategy.
func WithArbiter(a Arbiter) Option {
	return func(s *Selector) { s.arbiter = a }
}

// WithRand makes the final fallback pick pseudo-random instead of
// first-candidate. The source must be seeded by the caller so retry behavior
// stays reproducible.
func WithRand(r *rand.Rand) Option {
	return func(s *Selector) { s.rng = r }
}

// NewSelector creates a Selector. categoryMap maps task categories to their
// statically preferred model; providerFor and paramsFor come from config.
func NewSelector(
	categoryMap map[string]string,
	providerFor func(model string) string,
	paramsFor func(model string) map[string]interface{},
	logger *zap.Logger,
	opts ...Option,
) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Selector{
		categoryMap: categoryMap,
		providerFor: providerFor,
		paramsFor:   paramsFor,
		logger:      logger,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Select produces a fresh Assignment for the task. excluded lists
// already-tried models in try order; when it exhausts the pool the most
// recently excluded model is re-issued with adjusted parameters and the
// ParamReusedModel marker set.
func (s *Selector) Select(ctx context.Context, task models.TaskDescriptor, pool []string, excluded []string) (models.Assignment, error) {
	viable := filterExcluded(pool, excluded)
	if len(viable) == 0 {
		if len(excluded) == 0 {
			return models.Assignment{}, ErrNoModelAvailable
		}
		return s.reuseLast(excluded), nil
	}

	model := s.chooseModel(ctx, task, viable)
	return models.Assignment{
		ModelName:  model,
		Provider:   s.providerFor(model),
		Parameters: s.paramsFor(model),
	}, nil
}

// chooseModel runs the arbitration strategy and the fallback chain:
// arbiter -> name matching -> category map -> deterministic pick.
func (s *Selector) chooseModel(ctx context.Context, task models.TaskDescriptor, viable []string) string {
	if s.arbiter != nil {
		name, err := s.arbiter.Arbitrate(ctx, task, viable)
		if err != nil {
			s.logger.Warn("Arbitration strategy failed, using static fallback",
				zap.String("task_id", task.ID),
				zap.Error(err),
			)
		} else if m, ok := matchCandidate(name, viable); ok {
			return m
		} else {
			s.logger.Warn("Arbitration returned unknown model, using static fallback",
				zap.String("task_id", task.ID),
				zap.String("returned", name),
			)
		}
	}

	if preferred, ok := s.categoryMap[task.Category]; ok {
		if m, ok := matchCandidate(preferred, viable); ok {
			return m
		}
	}

	if s.rng != nil {
		return viable[s.rng.Intn(len(viable))]
	}
	return viable[0]
}

// reuseLast re-issues the most recently excluded model with adjusted
// parameters, marking the assignment so the caller can detect the reuse.
func (s *Selector) reuseLast(excluded []string) models.Assignment {
	model := excluded[len(excluded)-1]
	params := AdjustParameters(s.paramsFor(model))
	params[models.ParamReusedModel] = true
	s.logger.Info("Candidate pool exhausted, reusing last model with adjusted parameters",
		zap.String("model", model),
	)
	return models.Assignment{
		ModelName:  model,
		Provider:   s.providerFor(model),
		Parameters: params,
	}
}

// AdjustParameters nudges sampling parameters for a repeat attempt on the
// same model: temperature +0.1 capped at 1.0, max_tokens scaled by 1.2.
func AdjustParameters(params map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(params)+1)
	for k, v := range params {
		out[k] = v
	}
	if t, ok := out["temperature"].(float64); ok {
		t += 0.1
		if t > 1.0 {
			t = 1.0
		}
		out["temperature"] = t
	}
	switch n := out["max_tokens"].(type) {
	case int:
		out["max_tokens"] = int(float64(n) * 1.2)
	case float64:
		out["max_tokens"] = float64(int(n * 1.2))
	}
	return out
}

func filterExcluded(pool, excluded []string) []string {
	if len(excluded) == 0 {
		return pool
	}
	seen := make(map[string]struct{}, len(excluded))
	for _, m := range excluded {
		seen[m] = struct{}{}
	}
	out := make([]string, 0, len(pool))
	for _, m := range pool {
		if _, ok := seen[m]; !ok {
			out = append(out, m)
		}
	}
	return out
}

// matchCandidate resolves a model name against the candidates: exact match
// first, then case-insensitive, then substring in either direction.
func matchCandidate(name string, candidates []string) (string, bool) {
	if name == "" {
		return "", false
	}
	for _, c := range candidates {
		if c == name {
			return c, true
		}
	}
	ln := strings.ToLower(name)
	for _, c := range candidates {
		if strings.ToLower(c) == ln {
			return c, true
		}
	}
	for _, c := range candidates {
		lc := strings.ToLower(c)
		if strings.Contains(lc, ln) || strings.Contains(ln, lc) {
			return c, true
		}
	}
	return "", false
}
