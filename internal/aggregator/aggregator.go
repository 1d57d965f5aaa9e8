// Package aggregator assembles per-task outcomes into the final response
// returned to the caller.
package aggregator

import (
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sageflow/sageflow/internal/models"
)

// Aggregator merges resolved task outcomes into one response.
type Aggregator struct {
	logger *zap.Logger
}

// New creates an Aggregator.
func New(logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{logger: logger}
}

// Aggregate orders outcomes by when their chosen attempt finished executing
// and joins the content of every outcome whose chosen attempt executed
// successfully. An exhausted task's best-effort content still contributes;
// only transport-failed attempts are withheld. Quality degradation stays
// visible through each outcome's verdict, not through the joined text.
func (a *Aggregator) Aggregate(outcomes []models.Outcome) models.FinalResponse {
	ordered := make([]models.Outcome, len(outcomes))
	copy(ordered, outcomes)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Attempt.Metadata.ExecutionTime.Before(ordered[j].Attempt.Metadata.ExecutionTime)
	})

	var parts []string
	var successful int
	var total time.Duration
	for _, out := range ordered {
		total += out.Attempt.Metadata.Duration
		if out.Attempt.Succeeded {
			successful++
			if out.Attempt.Content != "" {
				parts = append(parts, out.Attempt.Content)
			}
		}
	}

	meta := models.ResponseMetadata{
		NumResults:    len(ordered),
		NumSuccessful: successful,
		TotalDuration: total,
		AggregatedAt:  time.Now().UTC(),
	}
	if len(ordered) > 0 {
		meta.SuccessRate = float64(successful) / float64(len(ordered))
	}

	a.logger.Info("Aggregated task outcomes",
		zap.Int("tasks", meta.NumResults),
		zap.Int("successful", meta.NumSuccessful),
		zap.Float64("success_rate", meta.SuccessRate),
	)

	return models.FinalResponse{
		Text:     strings.Join(parts, "\n\n"),
		Outcomes: ordered,
		Metadata: meta,
	}
}
