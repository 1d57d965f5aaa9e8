package evaluator

import (
	"context"
	"fmt"

	"github.com/agnivade/levenshtein"

	"github.com/sageflow/sageflow/internal/embeddings"
	"github.com/sageflow/sageflow/internal/models"
)

// SemanticSimilarity accepts an attempt when the embedding cosine similarity
// between its content and the task's goal text meets the threshold. It is the
// second cascade stage, reached when the LLM judge fails.
type SemanticSimilarity struct {
	svc       *embeddings.Service
	model     string
	threshold float64
}

func NewSemanticSimilarity(svc *embeddings.Service, model string, threshold float64) *SemanticSimilarity {
	return &SemanticSimilarity{svc: svc, model: model, threshold: threshold}
}

func (s *SemanticSimilarity) Name() string { return "semantic_similarity" }

func (s *SemanticSimilarity) Score(ctx context.Context, task models.TaskDescriptor, attempt models.AttemptResult) (models.Verdict, error) {
	goal := goalText(task)
	a, err := s.svc.Generate(ctx, attempt.Content, s.model)
	if err != nil {
		return models.Verdict{}, fmt.Errorf("embed attempt content: %w", err)
	}
	b, err := s.svc.Generate(ctx, goal, s.model)
	if err != nil {
		return models.Verdict{}, fmt.Errorf("embed goal text: %w", err)
	}

	sim := embeddings.CosineSimilarity(a, b)
	if sim < 0 {
		sim = 0
	}
	return models.Verdict{
		Accepted: sim >= s.threshold,
		Score:    sim,
		Feedback: fmt.Sprintf("semantic similarity %.3f vs threshold %.2f", sim, s.threshold),
	}, nil
}

// LexicalSimilarity is the terminal cascade stage: a character-level
// similarity ratio between the attempt and the goal text. It never fails.
type LexicalSimilarity struct {
	threshold float64
}

func NewLexicalSimilarity(threshold float64) *LexicalSimilarity {
	return &LexicalSimilarity{threshold: threshold}
}

func (l *LexicalSimilarity) Name() string { return "lexical_similarity" }

func (l *LexicalSimilarity) Score(_ context.Context, task models.TaskDescriptor, attempt models.AttemptResult) (models.Verdict, error) {
	ratio := similarityRatio(attempt.Content, goalText(task))
	return models.Verdict{
		Accepted: ratio >= l.threshold,
		Score:    ratio,
		Feedback: fmt.Sprintf("lexical similarity %.3f vs threshold %.2f", ratio, l.threshold),
	}, nil
}

// similarityRatio normalizes edit distance into [0,1]: 1 for identical texts,
// 0 when every character differs.
func similarityRatio(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	longest := len([]rune(a))
	if lb := len([]rune(b)); lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	r := 1 - float64(dist)/float64(longest)
	if r < 0 {
		return 0
	}
	return r
}
