package aggregator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sageflow/sageflow/internal/models"
)

func outcome(id string, state string, content string, at time.Time, dur time.Duration) models.Outcome {
	return models.Outcome{
		TaskID: id,
		State:  state,
		Attempt: models.AttemptResult{
			TaskID:    id,
			Content:   content,
			Succeeded: true,
			Metadata: models.AttemptMetadata{
				ExecutionTime: at,
				Duration:      dur,
			},
		},
	}
}

func TestAggregateOrdersByExecutionTime(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	outs := []models.Outcome{
		outcome("t2", models.StateAccepted, "second", base.Add(2*time.Second), time.Second),
		outcome("t1", models.StateAccepted, "first", base, time.Second),
		outcome("t3", models.StateAccepted, "third", base.Add(5*time.Second), time.Second),
	}

	resp := New(nil).Aggregate(outs)

	assert.Equal(t, "first\n\nsecond\n\nthird", resp.Text)
	assert.Equal(t, []string{"t1", "t2", "t3"}, []string{resp.Outcomes[0].TaskID, resp.Outcomes[1].TaskID, resp.Outcomes[2].TaskID})
	// Input order untouched.
	assert.Equal(t, "t2", outs[0].TaskID)
}

func TestAggregateIncludesExhaustedBestEffortContent(t *testing.T) {
	// An exhausted task whose best attempt executed fine still contributes
	// its content; quality degradation shows in the outcome's verdict.
	base := time.Now()
	outs := []models.Outcome{
		outcome("t1", models.StateAccepted, "good", base, 2*time.Second),
		outcome("t2", models.StateExhausted, "best effort", base.Add(time.Second), 3*time.Second),
	}

	resp := New(nil).Aggregate(outs)

	assert.Equal(t, "good\n\nbest effort", resp.Text)
	assert.Equal(t, models.StateExhausted, resp.Outcomes[1].State)
	assert.Equal(t, 2, resp.Metadata.NumResults)
	assert.Equal(t, 2, resp.Metadata.NumSuccessful)
	assert.InDelta(t, 1.0, resp.Metadata.SuccessRate, 1e-9)
	assert.Equal(t, 5*time.Second, resp.Metadata.TotalDuration)
}

func TestAggregateExcludesTransportFailedAttempts(t *testing.T) {
	base := time.Now()
	failed := outcome("t2", models.StateExhausted, "", base.Add(time.Second), time.Second)
	failed.Attempt.Succeeded = false
	failed.Attempt.Metadata.Error = "connection refused"
	outs := []models.Outcome{
		outcome("t1", models.StateAccepted, "good", base, 2*time.Second),
		failed,
	}

	resp := New(nil).Aggregate(outs)

	assert.Equal(t, "good", resp.Text)
	assert.Len(t, resp.Outcomes, 2)
	assert.Equal(t, 2, resp.Metadata.NumResults)
	assert.Equal(t, 1, resp.Metadata.NumSuccessful)
	assert.InDelta(t, 0.5, resp.Metadata.SuccessRate, 1e-9)
}

func TestAggregateEmptyInput(t *testing.T) {
	resp := New(nil).Aggregate(nil)

	assert.Empty(t, resp.Text)
	assert.Empty(t, resp.Outcomes)
	assert.Zero(t, resp.Metadata.SuccessRate)
	assert.Zero(t, resp.Metadata.NumResults)
	assert.False(t, resp.Metadata.AggregatedAt.IsZero())
}

func TestAggregateStableForEqualTimestamps(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	outs := []models.Outcome{
		outcome("a", models.StateAccepted, "alpha", at, 0),
		outcome("b", models.StateAccepted, "beta", at, 0),
	}

	resp := New(nil).Aggregate(outs)

	assert.Equal(t, "alpha\n\nbeta", resp.Text)
}
