// Package gateway provides the uniform backend invocation boundary: one
// Invoker per provider family, selected through a dispatch table built at
// startup. Timeout, rate limiting, and circuit breaking live here; retry
// policy does not.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sageflow/sageflow/internal/metrics"
)

// ErrUnknownProvider is returned when no invoker is registered for a tag.
var ErrUnknownProvider = errors.New("unknown provider")

// Invoker is the uniform provider call. Implementations enforce their own
// deadlines and return an error on any transport or provider failure.
type Invoker interface {
	Invoke(ctx context.Context, prompt, model string, params map[string]interface{}) (string, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, prompt, model string, params map[string]interface{}) (string, error)

func (f InvokerFunc) Invoke(ctx context.Context, prompt, model string, params map[string]interface{}) (string, error) {
	return f(ctx, prompt, model, params)
}

// Registry dispatches invocations to registered providers. The invoker table
// is fixed after construction; no runtime string branching on provider names
// happens outside the map lookup.
type Registry struct {
	invokers map[string]Invoker
	breakers map[string]*breaker
	limiter  *rate.Limiter
	logger   *zap.Logger

	breakerCfg BreakerConfig
}

// Option configures a Registry.
type Option func(*Registry)

// WithRateLimit applies a shared requests-per-second limit across providers.
func WithRateLimit(rps float64, burst int) Option {
	return func(r *Registry) {
		if rps > 0 {
			if burst <= 0 {
				burst = 1
			}
			r.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithBreakerConfig overrides the per-provider circuit breaker settings.
func WithBreakerConfig(cfg BreakerConfig) Option {
	return func(r *Registry) { r.breakerCfg = cfg }
}

// NewRegistry creates an empty provider registry.
func NewRegistry(logger *zap.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		invokers:   make(map[string]Invoker),
		breakers:   make(map[string]*breaker),
		logger:     logger,
		breakerCfg: DefaultBreakerConfig(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register installs an invoker for a provider tag. Call during startup only.
func (r *Registry) Register(provider string, inv Invoker) {
	r.invokers[provider] = inv
	r.breakers[provider] = newBreaker(provider, r.breakerCfg, r.logger)
}

// Providers returns the registered provider tags.
func (r *Registry) Providers() []string {
	out := make([]string, 0, len(r.invokers))
	for tag := range r.invokers {
		out = append(out, tag)
	}
	return out
}

// Invoke dispatches to the provider's invoker, applying the shared rate limit
// and the provider's circuit breaker. An open breaker surfaces as an ordinary
// invocation error so the caller's retry policy can move on to another model.
func (r *Registry) Invoke(ctx context.Context, provider, prompt, model string, params map[string]interface{}) (string, error) {
	inv, ok := r.invokers[provider]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}
	}

	start := time.Now()
	var text string
	err := r.breakers[provider].Execute(func() error {
		var ierr error
		text, ierr = inv.Invoke(ctx, prompt, model, params)
		return ierr
	})
	elapsed := time.Since(start)

	if err != nil {
		metrics.RecordGateway(provider, "error", elapsed.Seconds())
		r.logger.Warn("Gateway invocation failed",
			zap.String("provider", provider),
			zap.String("model", model),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return "", err
	}

	metrics.RecordGateway(provider, "ok", elapsed.Seconds())
	return text, nil
}
