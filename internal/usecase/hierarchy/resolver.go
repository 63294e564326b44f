package hierarchy

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/helicase-ai/evidex/internal/domain"
	"github.com/helicase-ai/evidex/internal/metrics"
)

// Resolution is the assembled textual context for the top-ranked fragments.
// Scores are untouched; this stage only widens the text around the hits.
type Resolution struct {
	Context    string
	ParentHits int
	ChildHits  int
}

// Resolver expands child-level hits to their structural context (parent and
// siblings) within a total character budget.
type Resolver struct {
	corpus     domain.CorpusReader
	charBudget int
	logger     *zap.Logger
}

// New creates a resolver.
func New(corpus domain.CorpusReader, charBudget int, logger *zap.Logger) *Resolver {
	return &Resolver{corpus: corpus, charBudget: charBudget, logger: logger}
}

// Resolve walks the ranking in order and assembles context blocks. A hit
// with a parent counts as a child-level match and pulls in its parent and
// siblings; a hit without one counts as a parent-level match and contributes
// its own text. Every fragment's text appears at most once. Corpus lookup
// failures degrade to the hit's own text.
func (r *Resolver) Resolve(ctx context.Context, ranked []domain.RankedFragment) Resolution {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues("hierarchy").Observe(time.Since(start).Seconds())
	}()

	var res Resolution
	var sb strings.Builder
	included := map[string]struct{}{}

	appendText := func(id, text string) bool {
		if text == "" {
			return true
		}
		if _, ok := included[id]; ok {
			return true
		}
		sep := 0
		if sb.Len() > 0 {
			sep = 2
		}
		if sb.Len()+sep+len(text) > r.charBudget {
			return false
		}
		if sep > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(text)
		included[id] = struct{}{}
		return true
	}

	for _, frag := range ranked {
		if ctx.Err() != nil {
			break
		}

		if frag.ParentID == "" {
			res.ParentHits++
			if !appendText(frag.ID, frag.Text) {
				break
			}
			continue
		}

		res.ChildHits++
		if !appendText(frag.ID, frag.Text) {
			break
		}

		siblings, err := r.corpus.Siblings(ctx, frag.ID)
		if err != nil {
			r.logger.Warn("sibling lookup failed, keeping bare fragment",
				zap.String("fragment_id", frag.ID), zap.Error(err))
			continue
		}
		for _, sib := range siblings {
			// Budget exhaustion on a sibling is not terminal; later
			// top-ranked fragments may still be shorter.
			appendText(sib.ID, sib.Text)
		}
	}

	res.Context = sb.String()
	return res
}
