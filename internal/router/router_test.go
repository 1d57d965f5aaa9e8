package router

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sageflow/sageflow/internal/models"
)

type fakeArbiter struct {
	name string
	err  error
}

func (f *fakeArbiter) Arbitrate(context.Context, models.TaskDescriptor, []string) (string, error) {
	return f.name, f.err
}

func newSelector(t *testing.T, opts ...Option) *Selector {
	t.Helper()
	params := map[string]map[string]interface{}{
		"m1": {"temperature": 0.7, "max_tokens": 100},
	}
	return NewSelector(
		map[string]string{models.CategoryCode: "m2"},
		func(m string) string { return "fake" },
		func(m string) map[string]interface{} {
			out := map[string]interface{}{}
			for k, v := range params[m] {
				out[k] = v
			}
			return out
		},
		nil,
		opts...,
	)
}

func codeTask() models.TaskDescriptor {
	return models.TaskDescriptor{ID: "t1", Content: "write a function", Category: models.CategoryCode}
}

func TestSelectUsesArbiter(t *testing.T) {
	s := newSelector(t, WithArbiter(&fakeArbiter{name: "m3"}))
	a, err := s.Select(context.Background(), codeTask(), []string{"m1", "m2", "m3"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "m3", a.ModelName)
	assert.Equal(t, "fake", a.Provider)
}

func TestSelectArbiterNameMatching(t *testing.T) {
	// Arbiter answers with a sloppy variant; substring matching resolves it.
	s := newSelector(t, WithArbiter(&fakeArbiter{name: "I would pick M2"}))
	a, err := s.Select(context.Background(), codeTask(), []string{"m1", "m2"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "m2", a.ModelName)
}

func TestSelectArbiterFailureFallsBackToCategoryMap(t *testing.T) {
	s := newSelector(t, WithArbiter(&fakeArbiter{err: errors.New("meta-selector down")}))
	a, err := s.Select(context.Background(), codeTask(), []string{"m1", "m2"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "m2", a.ModelName, "category map must pick m2 for code tasks")
}

func TestSelectCategoryModelExcludedFallsBackToFirst(t *testing.T) {
	s := newSelector(t)
	a, err := s.Select(context.Background(), codeTask(), []string{"m1", "m2"}, []string{"m2"})
	require.NoError(t, err)
	assert.Equal(t, "m1", a.ModelName)
}

func TestSelectRespectsExclusions(t *testing.T) {
	s := newSelector(t, WithArbiter(&fakeArbiter{name: "m1"}))
	a, err := s.Select(context.Background(), codeTask(), []string{"m1", "m2"}, []string{"m1"})
	require.NoError(t, err)
	assert.NotEqual(t, "m1", a.ModelName)
}

func TestSelectEmptyPoolIsHardFailure(t *testing.T) {
	s := newSelector(t)
	_, err := s.Select(context.Background(), codeTask(), nil, nil)
	assert.ErrorIs(t, err, ErrNoModelAvailable)
}

func TestSelectExhaustedPoolReusesLastWithAdjustedParams(t *testing.T) {
	s := newSelector(t)
	a, err := s.Select(context.Background(), codeTask(), []string{"m1"}, []string{"m1"})
	require.NoError(t, err)

	assert.Equal(t, "m1", a.ModelName)
	assert.Equal(t, true, a.Parameters[models.ParamReusedModel])
	assert.InDelta(t, 0.8, a.Parameters["temperature"].(float64), 1e-9)
	assert.Equal(t, 120, a.Parameters["max_tokens"])
}

func TestAdjustParametersCapsTemperature(t *testing.T) {
	out := AdjustParameters(map[string]interface{}{"temperature": 0.95})
	assert.InDelta(t, 1.0, out["temperature"].(float64), 1e-9)

	// No adjustable keys: parameters come back unchanged.
	out = AdjustParameters(map[string]interface{}{"top_p": 0.9})
	assert.Equal(t, 0.9, out["top_p"])
	_, hasTemp := out["temperature"]
	assert.False(t, hasTemp)
}

func TestSelectDeterministicWithoutRand(t *testing.T) {
	s := newSelector(t)
	task := models.TaskDescriptor{ID: "t2", Category: models.CategoryOther}
	for i := 0; i < 5; i++ {
		a, err := s.Select(context.Background(), task, []string{"m9", "m8"}, nil)
		require.NoError(t, err)
		assert.Equal(t, "m9", a.ModelName)
	}
}

func TestSelectSeededRandIsReproducible(t *testing.T) {
	task := models.TaskDescriptor{ID: "t2", Category: models.CategoryOther}
	pick := func() string {
		s := newSelector(t, WithRand(rand.New(rand.NewSource(42))))
		a, err := s.Select(context.Background(), task, []string{"m1", "m2", "m3"}, nil)
		require.NoError(t, err)
		return a.ModelName
	}
	assert.Equal(t, pick(), pick())
}

func TestLLMArbiterTrimsReply(t *testing.T) {
	a := NewLLMArbiter(callerFunc(func(_ context.Context, _, prompt, _ string, _ map[string]interface{}) (string, error) {
		assert.Contains(t, prompt, "write a function")
		return "  m2  \nbecause it is good at code", nil
	}), "judge", "ollama")

	name, err := a.Arbitrate(context.Background(), codeTask(), []string{"m1", "m2"})
	require.NoError(t, err)
	assert.Equal(t, "m2", name)
}

type callerFunc func(ctx context.Context, provider, prompt, model string, params map[string]interface{}) (string, error)

func (f callerFunc) Invoke(ctx context.Context, provider, prompt, model string, params map[string]interface{}) (string, error) {
	return f(ctx, provider, prompt, model, params)
}
