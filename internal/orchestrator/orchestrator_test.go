package orchestrator

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sageflow/sageflow/internal/config"
	"github.com/sageflow/sageflow/internal/gateway"
	"github.com/sageflow/sageflow/internal/models"
)

func testConfig() *config.Config {
	return &config.Config{
		Models: config.ModelsConfig{
			Available:      []string{"alpha", "beta"},
			Default:        "alpha",
			EvaluatorModel: "judge-model",
			Providers: map[string]string{
				"alpha":       "ollama",
				"beta":        "ollama",
				"judge-model": "ollama",
			},
		},
		SimilarityThreshold: 0.9,
		MaxRetries:          2,
	}
}

// scriptedBackend answers router, judge, and task prompts from one fake
// provider endpoint, the way a single local ollama daemon would.
type scriptedBackend struct {
	judgeReply func(prompt string) string
	taskReply  func(prompt, model string) (string, error)
	prompts    []string
}

func (s *scriptedBackend) Invoke(_ context.Context, prompt, model string, _ map[string]interface{}) (string, error) {
	s.prompts = append(s.prompts, prompt)
	switch {
	case strings.Contains(prompt, "You are a model router"):
		return "alpha", nil
	case strings.Contains(prompt, "You are an expert evaluator"):
		return s.judgeReply(prompt), nil
	default:
		return s.taskReply(prompt, model)
	}
}

func TestNewRejectsEmptyPool(t *testing.T) {
	cfg := testConfig()
	cfg.Models.Available = nil
	_, err := New(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "models.available")
}

func TestRunGoalAcceptedTasksChainAndJoin(t *testing.T) {
	backend := &scriptedBackend{
		judgeReply: func(string) string { return "YES (0.95): correct and sufficient." },
		taskReply: func(prompt, _ string) (string, error) {
			if strings.Contains(prompt, "Analyze") {
				return "analysis output", nil
			}
			return "summary output", nil
		},
	}
	eng, err := New(testConfig(), nil, WithInvoker("ollama", backend))
	require.NoError(t, err)

	resp, err := eng.RunGoal(context.Background(), "Analyze the report. Summarize the findings.", nil)
	require.NoError(t, err)

	assert.Equal(t, "analysis output\n\nsummary output", resp.Text)
	require.Len(t, resp.Outcomes, 2)
	assert.Equal(t, models.StateAccepted, resp.Outcomes[0].State)
	assert.Equal(t, models.StateAccepted, resp.Outcomes[1].State)
	assert.InDelta(t, 1.0, resp.Metadata.SuccessRate, 1e-9)

	// The second task's prompt must carry the first task's result.
	var chained bool
	for _, p := range backend.prompts {
		if strings.Contains(p, "Context from the previous step") && strings.Contains(p, "analysis output") {
			chained = true
		}
	}
	assert.True(t, chained, "second task prompt must embed the first task's output")
}

func TestRunGoalChainsContextEvenAfterExhaustion(t *testing.T) {
	// First task is rejected on every attempt; its best effort still flows
	// into the second task's prompt.
	backend := &scriptedBackend{
		judgeReply: func(prompt string) string {
			if strings.Contains(prompt, "partial analysis") {
				return "NO (0.4): incomplete."
			}
			return "YES (0.9): good."
		},
		taskReply: func(prompt, _ string) (string, error) {
			if strings.Contains(prompt, "Analyze") {
				return "partial analysis", nil
			}
			return "final summary", nil
		},
	}
	eng, err := New(testConfig(), nil, WithInvoker("ollama", backend))
	require.NoError(t, err)

	resp, err := eng.RunGoal(context.Background(), "Analyze the report. Summarize the findings.", nil)
	require.NoError(t, err)

	require.Len(t, resp.Outcomes, 2)
	assert.Equal(t, models.StateExhausted, resp.Outcomes[0].State)
	assert.Equal(t, models.StateAccepted, resp.Outcomes[1].State)
	// Best-effort content still joins; rejection shows in the verdict.
	assert.Equal(t, "partial analysis\n\nfinal summary", resp.Text)
	assert.False(t, resp.Outcomes[0].Verdict.Accepted)

	var chained bool
	for _, p := range backend.prompts {
		if strings.Contains(p, "Context from the previous step") && strings.Contains(p, "partial analysis") {
			chained = true
		}
	}
	assert.True(t, chained, "exhausted best-effort content must still chain forward")
}

func TestRunGoalSingleModelRejectionExhaustsQuickly(t *testing.T) {
	cfg := testConfig()
	cfg.Models.Available = []string{"alpha"}

	var taskCalls int
	backend := &scriptedBackend{
		judgeReply: func(string) string { return "NO (0.3): wrong." },
		taskReply: func(string, string) (string, error) {
			taskCalls++
			return "attempt output", nil
		},
	}
	eng, err := New(cfg, nil, WithInvoker("ollama", backend))
	require.NoError(t, err)

	resp, err := eng.RunGoal(context.Background(), "Summarize the findings", nil)
	require.NoError(t, err)

	require.Len(t, resp.Outcomes, 1)
	assert.Equal(t, models.StateExhausted, resp.Outcomes[0].State)
	assert.Equal(t, 1, resp.Outcomes[0].Attempts, "no parameters to adjust, so no reuse attempt")
	assert.Equal(t, 1, taskCalls)
	assert.Equal(t, "attempt output", resp.Text)
	assert.False(t, resp.Outcomes[0].Verdict.Accepted)
}

func TestRunGoalTransportFailureEscalatesToSecondModel(t *testing.T) {
	backend := &scriptedBackend{
		judgeReply: func(string) string { return "YES: fine." },
		taskReply: func(_, model string) (string, error) {
			if model == "alpha" {
				return "", context.DeadlineExceeded
			}
			return "beta output", nil
		},
	}
	eng, err := New(testConfig(), nil, WithInvoker("ollama", backend))
	require.NoError(t, err)

	resp, err := eng.RunGoal(context.Background(), "Summarize the findings", nil)
	require.NoError(t, err)

	require.Len(t, resp.Outcomes, 1)
	assert.Equal(t, models.StateAccepted, resp.Outcomes[0].State)
	assert.Equal(t, "beta", resp.Outcomes[0].Attempt.Assignment.ModelName)
	assert.Equal(t, 2, resp.Outcomes[0].Attempts)
}

func TestRunFinishedLogCountsTransportSuccesses(t *testing.T) {
	// A rejected-but-executed task counts as successful in the run summary;
	// the field name must not suggest judge acceptance.
	core, logs := observer.New(zap.InfoLevel)
	cfg := testConfig()
	cfg.Models.Available = []string{"alpha"}
	backend := &scriptedBackend{
		judgeReply: func(string) string { return "NO (0.3): wrong." },
		taskReply:  func(string, string) (string, error) { return "best effort", nil },
	}
	eng, err := New(cfg, zap.New(core), WithInvoker("ollama", backend))
	require.NoError(t, err)

	resp, err := eng.RunGoal(context.Background(), "Summarize the findings", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Metadata.NumSuccessful)

	entries := logs.FilterMessage("Run finished").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.EqualValues(t, 1, fields["successful"])
	_, hasAccepted := fields["accepted"]
	assert.False(t, hasAccepted)
}

var _ gateway.Invoker = (*scriptedBackend)(nil)
