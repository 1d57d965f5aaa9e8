// Package executor runs one attempt of one task against an assigned backend
// and normalizes the outcome. It never retries; escalation policy lives in
// the controller.
package executor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sageflow/sageflow/internal/metrics"
	"github.com/sageflow/sageflow/internal/models"
)

// Gateway abstracts the provider dispatch table.
type Gateway interface {
	Invoke(ctx context.Context, provider, prompt, model string, params map[string]interface{}) (string, error)
}

// Executor dispatches attempts to the backend gateway.
type Executor struct {
	gw     Gateway
	logger *zap.Logger
}

// New creates an Executor.
func New(gw Gateway, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{gw: gw, logger: logger}
}

// Run executes the task under the given assignment and wraps the result.
// Invocation failures become AttemptResults with Succeeded=false; Run itself
// never fails.
func (e *Executor) Run(ctx context.Context, task models.TaskDescriptor, assignment models.Assignment) models.AttemptResult {
	prompt := buildPrompt(task)
	start := time.Now()

	text, err := e.gw.Invoke(ctx, assignment.Provider, prompt, assignment.ModelName, assignment.Parameters)
	elapsed := time.Since(start)
	completedAt := start.Add(elapsed)

	if err != nil {
		e.logger.Warn("Attempt execution failed",
			zap.String("task_id", task.ID),
			zap.String("model", assignment.ModelName),
			zap.String("provider", assignment.Provider),
			zap.Error(err),
		)
		metrics.RecordAttempt(assignment.Provider, assignment.ModelName, false)
		return models.AttemptResult{
			TaskID:     task.ID,
			Content:    "",
			Assignment: assignment,
			Succeeded:  false,
			Metadata: models.AttemptMetadata{
				ExecutionTime: completedAt,
				Duration:      elapsed,
				Provider:      assignment.Provider,
				Error:         err.Error(),
			},
		}
	}

	e.logger.Debug("Attempt executed",
		zap.String("task_id", task.ID),
		zap.String("model", assignment.ModelName),
		zap.Duration("elapsed", elapsed),
	)
	metrics.RecordAttempt(assignment.Provider, assignment.ModelName, true)
	return models.AttemptResult{
		TaskID:     task.ID,
		Content:    text,
		Assignment: assignment,
		Succeeded:  true,
		Metadata: models.AttemptMetadata{
			ExecutionTime: completedAt,
			Duration:      elapsed,
			Provider:      assignment.Provider,
		},
	}
}

// buildPrompt folds chained upstream content into the prompt so dependent
// tasks can reference earlier results.
func buildPrompt(task models.TaskDescriptor) string {
	prev, ok := task.Context[models.ContextChainKey]
	if !ok {
		return task.Content
	}
	prevText, ok := prev.(string)
	if !ok || prevText == "" {
		return task.Content
	}
	return fmt.Sprintf("Context from the previous step:\n%s\n\nTask:\n%s", prevText, task.Content)
}
