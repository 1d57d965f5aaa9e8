package models

import "time"

// Task categories
const (
	CategoryCreative      = "creative"
	CategoryTechnical     = "technical"
	CategorySummarization = "summarization"
	CategoryAnalysis      = "analysis"
	CategoryCode          = "code"
	CategoryOther         = "other"
)

// Task resolution states
const (
	StatePending   = "pending"
	StateAttempted = "attempted"
	StateAccepted  = "accepted"
	StateExhausted = "exhausted"
)

// ContextChainKey is the reserved context key under which a task's chosen
// content is handed to the next task in the sequence.
const ContextChainKey = "previous_result"

// ParamReusedModel is set in Assignment.Parameters when the router had to
// re-issue an already-tried model because no other candidate remained.
const ParamReusedModel = "reused_model"

// TaskDescriptor is one ordered unit of work derived from the user's goal.
// Dependencies never contain forward references; in the current decomposition
// they form a strict linear chain.
type TaskDescriptor struct {
	ID           string                 `json:"id"`
	Content      string                 `json:"content"`
	Category     string                 `json:"category"`
	ExpectedGoal string                 `json:"expected_goal"`
	Context      map[string]interface{} `json:"context,omitempty"`
	Dependencies []string               `json:"dependencies,omitempty"`
}

// Assignment is the (model, provider, parameters) triple chosen for one
// attempt. Issued fresh by the router on every attempt and never mutated.
type Assignment struct {
	ModelName  string                 `json:"model_name"`
	Provider   string                 `json:"provider"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

// AttemptMetadata records execution facts for a single attempt.
type AttemptMetadata struct {
	ExecutionTime time.Time     `json:"execution_time"`
	Duration      time.Duration `json:"duration"`
	Provider      string        `json:"provider"`
	Error         string        `json:"error,omitempty"`
}

// AttemptResult is the outcome of one executor invocation. Succeeded reflects
// transport-level success only; quality is judged separately.
type AttemptResult struct {
	TaskID     string          `json:"task_id"`
	Content    string          `json:"content"`
	Assignment Assignment      `json:"assignment"`
	Succeeded  bool            `json:"succeeded"`
	Metadata   AttemptMetadata `json:"metadata"`
}

// Verdict is the judge's decision for one attempt. Score is always in [0,1].
type Verdict struct {
	TaskID     string  `json:"task_id"`
	Accepted   bool    `json:"accepted"`
	Score      float64 `json:"score"`
	Feedback   string  `json:"feedback"`
	RetryIndex int     `json:"retry_index"`
}

// Outcome is the chosen (attempt, verdict) pair for a task after the retry
// loop ends: the first accepted attempt, or the best-scoring one on exhaustion.
type Outcome struct {
	TaskID   string        `json:"task_id"`
	State    string        `json:"state"`
	Attempt  AttemptResult `json:"attempt"`
	Verdict  Verdict       `json:"verdict"`
	Attempts int           `json:"attempts"`
}

// ResponseMetadata aggregates run-level statistics.
type ResponseMetadata struct {
	SuccessRate   float64       `json:"success_rate"`
	TotalDuration time.Duration `json:"total_duration"`
	NumResults    int           `json:"num_results"`
	NumSuccessful int           `json:"num_successful"`
	AggregatedAt  time.Time     `json:"aggregated_at"`
}

// FinalResponse is the terminal value of a run.
type FinalResponse struct {
	Text     string           `json:"text"`
	Outcomes []Outcome        `json:"outcomes"`
	Metadata ResponseMetadata `json:"metadata"`
}
