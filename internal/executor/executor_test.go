package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sageflow/sageflow/internal/models"
)

type gatewayFunc func(ctx context.Context, provider, prompt, model string, params map[string]interface{}) (string, error)

func (f gatewayFunc) Invoke(ctx context.Context, provider, prompt, model string, params map[string]interface{}) (string, error) {
	return f(ctx, provider, prompt, model, params)
}

func TestRunSuccess(t *testing.T) {
	e := New(gatewayFunc(func(_ context.Context, provider, prompt, model string, _ map[string]interface{}) (string, error) {
		assert.Equal(t, "ollama", provider)
		assert.Equal(t, "gemma3:4b", model)
		assert.Equal(t, "do the thing", prompt)
		return "done", nil
	}), nil)

	res := e.Run(context.Background(), models.TaskDescriptor{ID: "t1", Content: "do the thing"}, models.Assignment{
		ModelName: "gemma3:4b",
		Provider:  "ollama",
	})

	assert.True(t, res.Succeeded)
	assert.Equal(t, "done", res.Content)
	assert.Equal(t, "t1", res.TaskID)
	assert.Empty(t, res.Metadata.Error)
	assert.False(t, res.Metadata.ExecutionTime.IsZero())
}

func TestRunFailure(t *testing.T) {
	e := New(gatewayFunc(func(context.Context, string, string, string, map[string]interface{}) (string, error) {
		return "", errors.New("connection refused")
	}), nil)

	res := e.Run(context.Background(), models.TaskDescriptor{ID: "t1", Content: "x"}, models.Assignment{
		ModelName: "m1",
		Provider:  "ollama",
	})

	assert.False(t, res.Succeeded)
	assert.Empty(t, res.Content)
	assert.Contains(t, res.Metadata.Error, "connection refused")
}

func TestRunChainsContextIntoPrompt(t *testing.T) {
	var gotPrompt string
	e := New(gatewayFunc(func(_ context.Context, _, prompt, _ string, _ map[string]interface{}) (string, error) {
		gotPrompt = prompt
		return "ok", nil
	}), nil)

	e.Run(context.Background(), models.TaskDescriptor{
		ID:      "t2",
		Content: "refine the draft",
		Context: map[string]interface{}{models.ContextChainKey: "the draft text"},
	}, models.Assignment{ModelName: "m1", Provider: "ollama"})

	assert.Contains(t, gotPrompt, "the draft text")
	assert.Contains(t, gotPrompt, "refine the draft")
}
