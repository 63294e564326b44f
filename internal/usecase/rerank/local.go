package rerank

import (
	"context"
	"fmt"
	"math"
)

// LogitModel is a cross-encoder producing raw real-valued logits, one per
// passage. Logits are NOT probabilities and must never be compared against
// score thresholds directly.
type LogitModel interface {
	Logits(ctx context.Context, query string, passages []string) ([]float64, error)
}

// LocalScorer adapts a logit-producing cross-encoder to the Scorer
// interface. Every logit goes through the sigmoid transform; raw logits
// must never reach threshold checks downstream.
type LocalScorer struct {
	model LogitModel
}

// NewLocal wraps a cross-encoder model.
func NewLocal(model LogitModel) *LocalScorer {
	return &LocalScorer{model: model}
}

// Name identifies the provider in metrics and rank attribution.
func (s *LocalScorer) Name() string { return "local" }

// Score returns sigmoid-normalized relevance scores in (0,1).
func (s *LocalScorer) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	logits, err := s.model.Logits(ctx, query, passages)
	if err != nil {
		return nil, fmt.Errorf("cross-encoder logits: %w", err)
	}
	if len(logits) != len(passages) {
		return nil, fmt.Errorf("cross-encoder returned %d logits for %d passages", len(logits), len(passages))
	}

	scores := make([]float64, len(logits))
	for i, logit := range logits {
		scores[i] = Sigmoid(logit)
	}
	return scores, nil
}

// Sigmoid maps any real-valued logit into (0,1); a logit of 0 maps to
// exactly 0.5.
func Sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
