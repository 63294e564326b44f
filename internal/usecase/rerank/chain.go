package rerank

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/helicase-ai/evidex/internal/domain"
	"github.com/helicase-ai/evidex/internal/metrics"
)

// Scorer scores passages for relevance to a query. Implementations must
// return one score per passage, aligned by index, normalized to [0,1].
type Scorer interface {
	Name() string
	Score(ctx context.Context, query string, passages []string) ([]float64, error)
}

// Chain tries scorers in order and uses the first that succeeds. The last
// scorer in the chain must be infallible; the chain itself never returns an
// error.
type Chain struct {
	scorers []Scorer
	logger  *zap.Logger
}

// NewChain creates a rerank chain. The terminal lexical scorer is appended
// automatically so the chain always produces a ranking.
func NewChain(logger *zap.Logger, scorers ...Scorer) *Chain {
	return &Chain{scorers: append(scorers, NewLexical()), logger: logger}
}

// Rerank scores all candidates and returns them sorted by final score
// descending. Provider failures and malformed responses (wrong count,
// out-of-range scores) fall through to the next provider.
func (c *Chain) Rerank(ctx context.Context, query string, candidates []domain.CandidateFragment) []domain.RankedFragment {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues("rerank").Observe(time.Since(start).Seconds())
	}()

	if len(candidates) == 0 {
		return nil
	}

	passages := make([]string, len(candidates))
	for i, cand := range candidates {
		passages[i] = cand.Text
	}

	scores, provider := c.score(ctx, query, passages)

	ranked := make([]domain.RankedFragment, len(candidates))
	for i, cand := range candidates {
		ranked[i] = domain.RankedFragment{
			CandidateFragment: cand,
			FinalScore:        scores[i],
			RankedBy:          provider,
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].FinalScore != ranked[j].FinalScore {
			return ranked[i].FinalScore > ranked[j].FinalScore
		}
		return ranked[i].ID < ranked[j].ID
	})
	return ranked
}

func (c *Chain) score(ctx context.Context, query string, passages []string) ([]float64, string) {
	for _, scorer := range c.scorers {
		scores, err := scorer.Score(ctx, query, passages)
		if err != nil {
			metrics.RerankAttemptsTotal.WithLabelValues(scorer.Name(), "error").Inc()
			c.logger.Warn("rerank provider failed, falling through",
				zap.String("provider", scorer.Name()), zap.Error(err))
			continue
		}
		if !validScores(scores, len(passages)) {
			metrics.RerankAttemptsTotal.WithLabelValues(scorer.Name(), "error").Inc()
			c.logger.Warn("rerank provider returned malformed scores, falling through",
				zap.String("provider", scorer.Name()), zap.Int("scores", len(scores)))
			continue
		}
		metrics.RerankAttemptsTotal.WithLabelValues(scorer.Name(), "success").Inc()
		return scores, scorer.Name()
	}

	// Unreachable with the lexical terminal in place; still defined so the
	// chain cannot return a short slice.
	return make([]float64, len(passages)), "none"
}

func validScores(scores []float64, want int) bool {
	if len(scores) != want {
		return false
	}
	for _, s := range scores {
		if s < 0 || s > 1 {
			return false
		}
	}
	return true
}
