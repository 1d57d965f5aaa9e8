package gateway

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sageflow/sageflow/internal/metrics"
)

// ErrBreakerOpen is returned while a provider's breaker is open.
var ErrBreakerOpen = errors.New("provider circuit breaker is open")

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerHalfOpen
	breakerOpen
)

func (s breakerState) String() string {
	switch s {
	case breakerClosed:
		return "closed"
	case breakerHalfOpen:
		return "half-open"
	case breakerOpen:
		return "open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds per-provider circuit breaker settings.
type BreakerConfig struct {
	FailureThreshold uint32        // consecutive failures to trip open
	ResetTimeout     time.Duration // open -> half-open delay
	HalfOpenRequests uint32        // probes allowed while half-open
}

// DefaultBreakerConfig returns the settings used when none are configured.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     60 * time.Second,
		HalfOpenRequests: 1,
	}
}

// breaker guards one provider. A tripped breaker converts invocations into
// immediate failures, which the retry controller treats like any other
// transport failure.
type breaker struct {
	provider string
	cfg      BreakerConfig
	logger   *zap.Logger

	mu           sync.Mutex
	state        breakerState
	failures     uint32
	halfOpenUsed uint32
	openedAt     time.Time
}

func newBreaker(provider string, cfg BreakerConfig, logger *zap.Logger) *breaker {
	if cfg.FailureThreshold == 0 {
		cfg = DefaultBreakerConfig()
	}
	return &breaker{provider: provider, cfg: cfg, logger: logger}
}

func (b *breaker) Execute(fn func() error) error {
	if err := b.before(); err != nil {
		return err
	}
	err := fn()
	b.after(err == nil)
	return err
}

func (b *breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerOpen:
		if time.Since(b.openedAt) < b.cfg.ResetTimeout {
			return ErrBreakerOpen
		}
		b.transition(breakerHalfOpen)
		b.halfOpenUsed = 0
	case breakerHalfOpen:
		if b.halfOpenUsed >= b.cfg.HalfOpenRequests {
			return ErrBreakerOpen
		}
	}
	if b.state == breakerHalfOpen {
		b.halfOpenUsed++
	}
	return nil
}

func (b *breaker) after(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.failures = 0
		if b.state == breakerHalfOpen {
			b.transition(breakerClosed)
		}
		return
	}

	switch b.state {
	case breakerClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.trip()
		}
	case breakerHalfOpen:
		b.trip()
	}
}

func (b *breaker) trip() {
	b.transition(breakerOpen)
	b.openedAt = time.Now()
	b.failures = 0
}

// transition must be called with b.mu held.
func (b *breaker) transition(to breakerState) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	metrics.BreakerTransitions.WithLabelValues(b.provider, to.String()).Inc()
	b.logger.Info("Circuit breaker state changed",
		zap.String("provider", b.provider),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	)
}
