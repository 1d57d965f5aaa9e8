package evaluator

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sageflow/sageflow/internal/models"
)

// ModelCaller abstracts the backend gateway for the LLM judge.
type ModelCaller interface {
	Invoke(ctx context.Context, provider, prompt, model string, params map[string]interface{}) (string, error)
}

const judgePromptTemplate = `You are an expert evaluator. Given a sub-task and a model's answer, determine if the answer correctly and sufficiently fulfills the sub-task.

Sub-task:
%s

Model's answer:
%s

Respond with 'YES' if the answer is correct and sufficient, 'NO' otherwise. Optionally, provide a confidence score (0-1) and a brief explanation, e.g.:
YES (0.95): The answer is correct and complete.
NO (0.2): The answer is missing key details.`

// confidenceRe matches the first number in [0,1] in the judge reply.
var confidenceRe = regexp.MustCompile(`([01](?:\.\d+)?)`)

// LLMJudge asks a judge model for an accept/reject verdict.
type LLMJudge struct {
	caller    ModelCaller
	model     string
	provider  string
	threshold float64
}

// NewLLMJudge creates the first cascade stage. threshold is the acceptance
// bar applied when the reply carries only a confidence number.
func NewLLMJudge(caller ModelCaller, model, provider string, threshold float64) *LLMJudge {
	return &LLMJudge{caller: caller, model: model, provider: provider, threshold: threshold}
}

func (l *LLMJudge) Name() string { return "llm_judge" }

// Score prompts the judge model and parses its reply. A transport failure is
// returned as an error so the cascade can advance; an unparsable reply is a
// rejection, not a failure.
func (l *LLMJudge) Score(ctx context.Context, task models.TaskDescriptor, attempt models.AttemptResult) (models.Verdict, error) {
	prompt := fmt.Sprintf(judgePromptTemplate, task.Content, attempt.Content)
	reply, err := l.caller.Invoke(ctx, l.provider, prompt, l.model, nil)
	if err != nil {
		return models.Verdict{}, fmt.Errorf("llm judge call: %w", err)
	}
	return l.parse(reply), nil
}

func (l *LLMJudge) parse(reply string) models.Verdict {
	lower := strings.ToLower(reply)
	// "no" is checked before "yes": replies like "no, ..." must not be
	// accepted because some later word contains the letters y-e-s.
	hasNo := containsWord(lower, "no")
	hasYes := containsWord(lower, "yes")

	confidence, hasConfidence := parseConfidence(reply)

	switch {
	case hasYes && !hasNo:
		score := 1.0
		if hasConfidence {
			score = confidence
		}
		return models.Verdict{Accepted: true, Score: score, Feedback: strings.TrimSpace(reply)}
	case hasNo:
		score := 0.0
		if hasConfidence {
			score = confidence
		}
		return models.Verdict{Accepted: false, Score: score, Feedback: strings.TrimSpace(reply)}
	case hasConfidence:
		// Ambiguous verdict: fall back to the confidence number against the
		// shared threshold.
		return models.Verdict{
			Accepted: confidence >= l.threshold,
			Score:    confidence,
			Feedback: fmt.Sprintf("ambiguous judge reply, confidence %.2f vs threshold %.2f: %s", confidence, l.threshold, strings.TrimSpace(reply)),
		}
	default:
		return models.Verdict{
			Accepted: false,
			Score:    0,
			Feedback: fmt.Sprintf("unparsable judge reply: %s", strings.TrimSpace(reply)),
		}
	}
}

func parseConfidence(reply string) (float64, bool) {
	m := confidenceRe.FindString(reply)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil || v < 0 || v > 1 {
		return 0, false
	}
	return v, true
}

// containsWord reports whether w appears in s delimited by non-letters.
func containsWord(s, w string) bool {
	idx := 0
	for {
		i := strings.Index(s[idx:], w)
		if i < 0 {
			return false
		}
		i += idx
		before := i == 0 || !isLetter(s[i-1])
		afterIdx := i + len(w)
		after := afterIdx >= len(s) || !isLetter(s[afterIdx])
		if before && after {
			return true
		}
		idx = i + len(w)
	}
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
