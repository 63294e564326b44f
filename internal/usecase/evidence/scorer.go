package evidence

import (
	"math"

	"go.uber.org/zap"

	"github.com/helicase-ai/evidex/internal/domain"
	"github.com/helicase-ai/evidex/internal/metrics"
)

// Confidence blend weights. They sum to 1 so confidence stays in [0,1].
const (
	weightTop         = 0.35
	weightMean        = 0.30
	weightCoverage    = 0.20
	weightConsistency = 0.15

	topN = 5
)

// Scorer turns a ranking into a single confidence value and the gate
// decision for the generation collaborator.
type Scorer struct {
	evidenceThreshold  float64
	strongMatchScore   float64
	strongMatchMinimum int
	logger             *zap.Logger
}

// New creates an evidence scorer.
func New(evidenceThreshold, strongMatchScore float64, strongMatchMinimum int, logger *zap.Logger) *Scorer {
	return &Scorer{
		evidenceThreshold:  evidenceThreshold,
		strongMatchScore:   strongMatchScore,
		strongMatchMinimum: strongMatchMinimum,
		logger:             logger,
	}
}

// Score derives the evidence decision from a ranking sorted descending by
// final score. Sufficiency requires either a top score at or above the
// threshold or enough strong matches; anything else is a refusal with a
// reason code, never an error.
func (s *Scorer) Score(ranked []domain.RankedFragment) domain.EvidenceDecision {
	decision := s.score(ranked)

	outcome := "sufficient"
	if !decision.Sufficient {
		outcome = string(decision.Reason)
	}
	metrics.EvidenceDecisionsTotal.WithLabelValues(outcome).Inc()

	return decision
}

func (s *Scorer) score(ranked []domain.RankedFragment) domain.EvidenceDecision {
	if len(ranked) == 0 {
		return domain.EvidenceDecision{
			Sufficient: false,
			Reason:     domain.ReasonNoCandidates,
			Confidence: 0,
		}
	}

	top := ranked
	if len(top) > topN {
		top = top[:topN]
	}

	topScore := top[0].FinalScore
	mean := meanScore(top)
	coverage := s.coverage(ranked)
	consistency := consistency(top)

	confidence := weightTop*topScore +
		weightMean*mean +
		weightCoverage*coverage +
		weightConsistency*consistency

	strong := s.strongMatches(ranked)
	sufficient := topScore >= s.evidenceThreshold || strong >= s.strongMatchMinimum

	decision := domain.EvidenceDecision{Sufficient: sufficient, Confidence: confidence}
	if !sufficient {
		if strong == 0 {
			decision.Reason = domain.ReasonNoStrongMatches
		} else {
			decision.Reason = domain.ReasonLowRetrievalConfidence
		}
		s.logger.Info("evidence insufficient",
			zap.Float64("top_score", topScore),
			zap.Int("strong_matches", strong),
			zap.Float64("confidence", confidence),
			zap.String("reason", string(decision.Reason)))
	}
	return decision
}

func (s *Scorer) strongMatches(ranked []domain.RankedFragment) int {
	var n int
	for _, r := range ranked {
		if r.FinalScore > s.strongMatchScore {
			n++
		}
	}
	return n
}

// coverage is the share of fragments clearing the strong-match threshold,
// saturating once the strong-match minimum is met.
func (s *Scorer) coverage(ranked []domain.RankedFragment) float64 {
	strong := s.strongMatches(ranked)
	if s.strongMatchMinimum <= 0 {
		return 1
	}
	c := float64(strong) / float64(s.strongMatchMinimum)
	if c > 1 {
		c = 1
	}
	return c
}

func meanScore(top []domain.RankedFragment) float64 {
	var sum float64
	for _, r := range top {
		sum += r.FinalScore
	}
	return sum / float64(len(top))
}

// consistency maps score variance among the top fragments to [0,1]: 1 for
// perfect agreement, approaching 0 as scores diverge. Variance on a [0,1]
// scale is at most 0.25, which normalizes the term.
func consistency(top []domain.RankedFragment) float64 {
	if len(top) < 2 {
		return 1
	}
	mean := meanScore(top)
	var variance float64
	for _, r := range top {
		d := r.FinalScore - mean
		variance += d * d
	}
	variance /= float64(len(top))

	c := 1 - variance/0.25
	return math.Max(0, math.Min(1, c))
}
