// Package controller drives each task through the execution-evaluation-retry
// loop: obtain an assignment, execute, judge, and escalate to another model
// until a verdict is accepted or the budget runs out. It owns the per-task
// exclusion list and attempt history exclusively.
package controller

import (
	"context"
	"reflect"

	"go.uber.org/zap"

	"github.com/sageflow/sageflow/internal/metrics"
	"github.com/sageflow/sageflow/internal/models"
)

// Selector issues assignments (see router.Selector).
type Selector interface {
	Select(ctx context.Context, task models.TaskDescriptor, pool []string, excluded []string) (models.Assignment, error)
}

// Runner executes one attempt (see executor.Executor).
type Runner interface {
	Run(ctx context.Context, task models.TaskDescriptor, assignment models.Assignment) models.AttemptResult
}

// Judge scores one attempt (see evaluator.Judge).
type Judge interface {
	Judge(ctx context.Context, task models.TaskDescriptor, attempt models.AttemptResult, retryIndex int) models.Verdict
}

// Controller resolves tasks one at a time. A single Controller serves a whole
// run; all mutable state is local to each Resolve call.
type Controller struct {
	selector   Selector
	runner     Runner
	judge      Judge
	pool       []string
	maxRetries int
	logger     *zap.Logger
}

// New creates a Controller over a fixed candidate pool.
func New(selector Selector, runner Runner, judge Judge, pool []string, maxRetries int, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		selector:   selector,
		runner:     runner,
		judge:      judge,
		pool:       pool,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

type attemptRecord struct {
	result  models.AttemptResult
	verdict models.Verdict
}

// Resolve drives one task to a terminal state. It always returns an Outcome:
// the first accepted attempt, or on exhaustion the best-scoring attempt with
// ties broken by earliest attempt. Transport failures consume retry slots
// like any rejected attempt.
func (c *Controller) Resolve(ctx context.Context, task models.TaskDescriptor) models.Outcome {
	var attempts []attemptRecord
	var tried []string
	retryIndex := 0

	for {
		assignment, err := c.selector.Select(ctx, task, c.pool, tried)
		if err != nil {
			// Only an empty candidate pool reaches here; config validation
			// makes this unreachable in a normal run.
			c.logger.Error("No model available for task", zap.String("task_id", task.ID), zap.Error(err))
			out := models.Outcome{
				TaskID: task.ID,
				State:  models.StateExhausted,
				Verdict: models.Verdict{
					TaskID:   task.ID,
					Accepted: false,
					Score:    0,
					Feedback: "no model available",
				},
			}
			metrics.RecordTask(out.State, 0)
			return out
		}

		reused := assignment.Parameters[models.ParamReusedModel] == true
		if reused && len(attempts) > 0 && !parametersDiffer(lastAssignment(attempts).Parameters, assignment.Parameters) {
			// The pool is exhausted and parameter adjustment produced nothing
			// new; retrying the identical assignment cannot help.
			break
		}

		result := c.runner.Run(ctx, task, assignment)
		verdict := c.judge.Judge(ctx, task, result, retryIndex)
		attempts = append(attempts, attemptRecord{result: result, verdict: verdict})
		if !reused {
			tried = append(tried, assignment.ModelName)
		}

		if verdict.Accepted {
			c.logger.Info("Task accepted",
				zap.String("task_id", task.ID),
				zap.String("model", assignment.ModelName),
				zap.Int("attempts", len(attempts)),
				zap.Float64("score", verdict.Score),
			)
			out := models.Outcome{
				TaskID:   task.ID,
				State:    models.StateAccepted,
				Attempt:  result,
				Verdict:  verdict,
				Attempts: len(attempts),
			}
			metrics.RecordTask(out.State, out.Attempts)
			return out
		}

		retryIndex++
		if retryIndex > c.maxRetries {
			break
		}
	}

	best := bestAttempt(attempts)
	c.logger.Warn("Task exhausted retry budget below acceptance threshold",
		zap.String("task_id", task.ID),
		zap.Int("attempts", len(attempts)),
		zap.Float64("best_score", best.verdict.Score),
		zap.String("best_model", best.result.Assignment.ModelName),
	)
	out := models.Outcome{
		TaskID:   task.ID,
		State:    models.StateExhausted,
		Attempt:  best.result,
		Verdict:  best.verdict,
		Attempts: len(attempts),
	}
	metrics.RecordTask(out.State, out.Attempts)
	return out
}

// Chain hands the previous task's chosen content to the next task under the
// reserved context key. Chaining is unconditional: even an exhausted
// outcome's best content flows forward.
func Chain(prev models.Outcome, next *models.TaskDescriptor) {
	if next.Context == nil {
		next.Context = make(map[string]interface{}, 1)
	}
	next.Context[models.ContextChainKey] = prev.Attempt.Content
}

// bestAttempt picks the maximum-score attempt; earliest wins ties, so
// re-running selection over the same attempts is deterministic.
func bestAttempt(attempts []attemptRecord) attemptRecord {
	if len(attempts) == 0 {
		return attemptRecord{}
	}
	best := attempts[0]
	for _, a := range attempts[1:] {
		if a.verdict.Score > best.verdict.Score {
			best = a
		}
	}
	return best
}

func lastAssignment(attempts []attemptRecord) models.Assignment {
	return attempts[len(attempts)-1].result.Assignment
}

// parametersDiffer compares parameter maps ignoring the reuse marker.
func parametersDiffer(a, b map[string]interface{}) bool {
	return !reflect.DeepEqual(stripMarker(a), stripMarker(b))
}

func stripMarker(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		if k == models.ParamReusedModel {
			continue
		}
		out[k] = v
	}
	return out
}
