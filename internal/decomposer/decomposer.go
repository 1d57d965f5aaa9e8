// Package decomposer turns a user goal into an ordered list of sub-tasks.
// The default implementation is a heuristic splitter; callers with an LLM
// planner can supply their own Decomposer.
package decomposer

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sageflow/sageflow/internal/models"
)

// Decomposer breaks a goal into sub-tasks. Implementations must return tasks
// in execution order; downstream tasks receive upstream results through
// context chaining.
type Decomposer interface {
	Decompose(ctx context.Context, goal string, taskContext map[string]interface{}) ([]models.TaskDescriptor, error)
}

// Heuristic splits the goal on sentence and conjunction boundaries and
// classifies each fragment by keyword. Tasks form a linear dependency chain.
type Heuristic struct {
	logger *zap.Logger
}

// NewHeuristic creates the default decomposer.
func NewHeuristic(logger *zap.Logger) *Heuristic {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Heuristic{logger: logger}
}

// Decompose splits the goal into sub-tasks. A goal with no recognizable
// boundaries yields a single task carrying the whole goal.
func (h *Heuristic) Decompose(_ context.Context, goal string, taskContext map[string]interface{}) ([]models.TaskDescriptor, error) {
	fragments := splitGoal(goal)
	tasks := make([]models.TaskDescriptor, 0, len(fragments))
	var prevID string
	for _, frag := range fragments {
		task := models.TaskDescriptor{
			ID:       uuid.New().String(),
			Content:  frag,
			Category: Classify(frag),
			Context:  cloneContext(taskContext),
		}
		if prevID != "" {
			task.Dependencies = []string{prevID}
		}
		prevID = task.ID
		tasks = append(tasks, task)
	}

	h.logger.Info("Decomposed goal into sub-tasks",
		zap.Int("num_tasks", len(tasks)),
		zap.Int("goal_len", len(goal)),
	)
	return tasks, nil
}

// splitGoal cuts on sentence terminators first, then on sequencing
// conjunctions within each sentence. Fragments shorter than a few words stay
// attached to their sentence rather than becoming their own task.
func splitGoal(goal string) []string {
	var out []string
	for _, sentence := range splitAny(goal, ".?!;\n") {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		for _, frag := range splitConjunctions(sentence) {
			frag = strings.TrimSpace(frag)
			if frag != "" {
				out = append(out, frag)
			}
		}
	}
	if len(out) == 0 {
		out = []string{strings.TrimSpace(goal)}
	}
	return out
}

var sequencers = []string{" and then ", ", then ", " then ", " after that ", " afterwards "}

func splitConjunctions(sentence string) []string {
	parts := []string{sentence}
	for _, sep := range sequencers {
		var next []string
		for _, p := range parts {
			next = append(next, splitOn(p, sep)...)
		}
		parts = next
	}
	return parts
}

func splitOn(s, sep string) []string {
	var out []string
	for {
		i := strings.Index(strings.ToLower(s), sep)
		if i < 0 {
			out = append(out, s)
			return out
		}
		left := s[:i]
		if countWords(left) < 3 {
			// Too short to stand alone as a sub-task.
			out = append(out, s)
			return out
		}
		out = append(out, left)
		s = s[i+len(sep):]
	}
}

func splitAny(s, cutset string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return strings.ContainsRune(cutset, r)
	})
}

func countWords(s string) int {
	return len(strings.Fields(s))
}

var categoryKeywords = map[string][]string{
	models.CategoryCode:          {"code", "function", "implement", "program", "script", "debug", "refactor", "compile"},
	models.CategoryTechnical:     {"explain", "architecture", "design", "technical", "algorithm", "protocol", "configure"},
	models.CategorySummarization: {"summarize", "summary", "condense", "tl;dr", "shorten", "abstract"},
	models.CategoryAnalysis:      {"analyze", "analysis", "compare", "evaluate", "assess", "review", "examine"},
	models.CategoryCreative:      {"write", "story", "poem", "creative", "imagine", "draft", "compose", "brainstorm"},
}

// classifyOrder fixes the tie-break between categories whose keywords both
// appear in a fragment.
var classifyOrder = []string{
	models.CategoryCode,
	models.CategorySummarization,
	models.CategoryAnalysis,
	models.CategoryTechnical,
	models.CategoryCreative,
}

// Classify assigns a category to a task fragment by keyword. Unrecognized
// fragments fall into CategoryOther and route through the default model.
func Classify(fragment string) string {
	lower := strings.ToLower(fragment)
	for _, cat := range classifyOrder {
		for _, kw := range categoryKeywords[cat] {
			if strings.Contains(lower, kw) {
				return cat
			}
		}
	}
	return models.CategoryOther
}

func cloneContext(src map[string]interface{}) map[string]interface{} {
	if src == nil {
		return nil
	}
	out := make(map[string]interface{}, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
