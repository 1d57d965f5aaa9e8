package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegistryDispatch(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	r.Register("fake", InvokerFunc(func(_ context.Context, prompt, model string, _ map[string]interface{}) (string, error) {
		return "echo:" + model + ":" + prompt, nil
	}))

	out, err := r.Invoke(context.Background(), "fake", "hi", "m1", nil)
	require.NoError(t, err)
	assert.Equal(t, "echo:m1:hi", out)
}

func TestRegistryUnknownProvider(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	_, err := r.Invoke(context.Background(), "nope", "hi", "m1", nil)
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	r := NewRegistry(zap.NewNop(), WithBreakerConfig(BreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Minute,
		HalfOpenRequests: 1,
	}))
	boom := errors.New("boom")
	r.Register("flaky", InvokerFunc(func(context.Context, string, string, map[string]interface{}) (string, error) {
		return "", boom
	}))

	ctx := context.Background()
	_, err := r.Invoke(ctx, "flaky", "p", "m", nil)
	assert.ErrorIs(t, err, boom)
	_, err = r.Invoke(ctx, "flaky", "p", "m", nil)
	assert.ErrorIs(t, err, boom)

	// Breaker tripped: the invoker must not be reached anymore.
	_, err = r.Invoke(ctx, "flaky", "p", "m", nil)
	assert.ErrorIs(t, err, ErrBreakerOpen)
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	b := newBreaker("p", BreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     10 * time.Millisecond,
		HalfOpenRequests: 1,
	}, zap.NewNop())

	require.Error(t, b.Execute(func() error { return errors.New("fail") }))
	assert.ErrorIs(t, b.Execute(func() error { return nil }), ErrBreakerOpen)

	time.Sleep(15 * time.Millisecond)
	// Half-open probe succeeds and closes the breaker again.
	assert.NoError(t, b.Execute(func() error { return nil }))
	assert.NoError(t, b.Execute(func() error { return nil }))
}

func TestHTTPInvoker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/completions", req.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"served","model_used":"m1"}`))
	}))
	defer srv.Close()

	inv := NewHTTPInvoker(srv.URL, time.Second)
	out, err := inv.Invoke(context.Background(), "prompt", "m1", map[string]interface{}{"temperature": 0.7})
	require.NoError(t, err)
	assert.Equal(t, "served", out)
}

func TestHTTPInvokerErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	inv := NewHTTPInvoker(srv.URL, time.Second)
	_, err := inv.Invoke(context.Background(), "prompt", "m1", nil)
	assert.Error(t, err)
}
