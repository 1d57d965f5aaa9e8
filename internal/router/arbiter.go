package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/sageflow/sageflow/internal/models"
)

// ModelCaller abstracts the backend gateway for the LLM arbiter.
type ModelCaller interface {
	Invoke(ctx context.Context, provider, prompt, model string, params map[string]interface{}) (string, error)
}

const arbiterPromptTemplate = `You are a model router. Given a sub-task and a list of candidate models, pick the single model best suited to execute the sub-task.

Sub-task (category: %s):
%s

Candidate models:
%s

Reply with exactly one model name from the candidate list and nothing else.`

// LLMArbiter asks a meta-selector model to pick the executing model.
type LLMArbiter struct {
	caller   ModelCaller
	model    string
	provider string
}

// NewLLMArbiter creates the arbitration strategy backed by the given judge or
// router model.
func NewLLMArbiter(caller ModelCaller, model, provider string) *LLMArbiter {
	return &LLMArbiter{caller: caller, model: model, provider: provider}
}

// Arbitrate prompts the meta-selector and returns its raw answer, trimmed.
// Name resolution against the candidate list is the selector's concern.
func (a *LLMArbiter) Arbitrate(ctx context.Context, task models.TaskDescriptor, candidates []string) (string, error) {
	prompt := fmt.Sprintf(arbiterPromptTemplate, task.Category, task.Content, strings.Join(candidates, "\n"))
	reply, err := a.caller.Invoke(ctx, a.provider, prompt, a.model, nil)
	if err != nil {
		return "", fmt.Errorf("arbiter call: %w", err)
	}
	name := strings.TrimSpace(reply)
	if name == "" {
		return "", fmt.Errorf("arbiter returned empty reply")
	}
	// Keep only the first line; chatty models tend to append justification.
	if i := strings.IndexByte(name, '\n'); i >= 0 {
		name = strings.TrimSpace(name[:i])
	}
	return name, nil
}
