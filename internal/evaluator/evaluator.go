// Package evaluator scores execution attempts against their task's goal.
// Strategies form an explicit chain of responsibility: the judge walks the
// ordered list and uses the first strategy that produces a verdict, advancing
// only on strategy failure, never on a low score.
package evaluator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sageflow/sageflow/internal/metrics"
	"github.com/sageflow/sageflow/internal/models"
)

// Strategy is one judging stage. A returned error means the stage could not
// produce a verdict at all (transport failure, missing dependency); a verdict
// with Accepted=false is a valid result and stops the cascade.
type Strategy interface {
	Name() string
	Score(ctx context.Context, task models.TaskDescriptor, attempt models.AttemptResult) (models.Verdict, error)
}

// Judge applies the strategy cascade to attempts.
type Judge struct {
	strategies []Strategy
	logger     *zap.Logger
}

// NewJudge creates a Judge over the given ordered strategies.
func NewJudge(logger *zap.Logger, strategies ...Strategy) *Judge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Judge{strategies: strategies, logger: logger}
}

// Judge evaluates one attempt. Attempts that failed at the transport level
// are rejected with score 0 without consulting any strategy.
func (j *Judge) Judge(ctx context.Context, task models.TaskDescriptor, attempt models.AttemptResult, retryIndex int) models.Verdict {
	if !attempt.Succeeded {
		return models.Verdict{
			TaskID:     task.ID,
			Accepted:   false,
			Score:      0,
			Feedback:   fmt.Sprintf("execution failed: %s", attempt.Metadata.Error),
			RetryIndex: retryIndex,
		}
	}

	for _, s := range j.strategies {
		v, err := s.Score(ctx, task, attempt)
		if err != nil {
			metrics.JudgeStrategyFailures.WithLabelValues(s.Name()).Inc()
			j.logger.Warn("Judge strategy failed, advancing cascade",
				zap.String("strategy", s.Name()),
				zap.String("task_id", task.ID),
				zap.Error(err),
			)
			continue
		}
		v.TaskID = task.ID
		v.RetryIndex = retryIndex
		v.Score = clamp01(v.Score)
		metrics.RecordVerdict(s.Name(), v.Accepted)
		j.logger.Debug("Verdict produced",
			zap.String("strategy", s.Name()),
			zap.String("task_id", task.ID),
			zap.Bool("accepted", v.Accepted),
			zap.Float64("score", v.Score),
		)
		return v
	}

	metrics.RecordVerdict("none", false)
	return models.Verdict{
		TaskID:     task.ID,
		Accepted:   false,
		Score:      0,
		Feedback:   "all judge strategies failed to produce a verdict",
		RetryIndex: retryIndex,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// goalText returns the text a similarity stage compares the attempt against.
func goalText(task models.TaskDescriptor) string {
	if task.ExpectedGoal != "" {
		return task.ExpectedGoal
	}
	return task.Content
}
