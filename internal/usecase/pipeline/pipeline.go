package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/helicase-ai/evidex/internal/domain"
	"github.com/helicase-ai/evidex/internal/metrics"
	"github.com/helicase-ai/evidex/internal/repository/ctxcache"
	"github.com/helicase-ai/evidex/internal/usecase/hierarchy"
)

// purposeTag namespaces pipeline cache keys.
const purposeTag = "pipeline"

// Collaborator interfaces, defined at the point of consumption.
type (
	// Expander produces the expansion list and routing parameters.
	Expander interface {
		Expand(q domain.Query) domain.ExpandedQuery
	}

	// Retriever fetches the merged candidate pool from the vector index.
	Retriever interface {
		Retrieve(ctx context.Context, eq domain.ExpandedQuery, docTypes []string, topK int) ([]domain.CandidateFragment, error)
	}

	// Booster raises candidate scores in place.
	Booster interface {
		Boost(candidates []domain.CandidateFragment, sourceDocIDs []string, routing domain.RoutingConfig)
	}

	// Reranker re-scores the pool and returns it sorted descending.
	Reranker interface {
		Rerank(ctx context.Context, query string, candidates []domain.CandidateFragment) []domain.RankedFragment
	}

	// Resolver assembles the textual context around the ranking.
	Resolver interface {
		Resolve(ctx context.Context, ranked []domain.RankedFragment) hierarchy.Resolution
	}

	// EvidenceScorer derives the gate decision from the ranking.
	EvidenceScorer interface {
		Score(ranked []domain.RankedFragment) domain.EvidenceDecision
	}

	// ContextCache memoizes final context packages.
	ContextCache interface {
		Get(ctx context.Context, key string) (domain.ContextPackage, bool)
		Set(ctx context.Context, key string, pkg domain.ContextPackage)
	}
)

// Service orchestrates one query through the full pipeline:
// expand, retrieve, boost, rerank, resolve, score.
type Service struct {
	expander   Expander
	retriever  Retriever
	booster    Booster
	reranker   Reranker
	resolver   Resolver
	evidence   EvidenceScorer
	cache      ContextCache
	topK       int
	charBudget int
	logger     *zap.Logger
}

// New creates the pipeline service.
func New(
	expander Expander,
	retriever Retriever,
	booster Booster,
	reranker Reranker,
	resolver Resolver,
	evidence EvidenceScorer,
	cache ContextCache,
	topK int,
	charBudget int,
	log *zap.Logger,
) *Service {
	return &Service{
		expander:   expander,
		retriever:  retriever,
		booster:    booster,
		reranker:   reranker,
		resolver:   resolver,
		evidence:   evidence,
		cache:      cache,
		topK:       topK,
		charBudget: charBudget,
		logger:     log,
	}
}

// Query runs the pipeline for one query. The only hard error is vector
// index unavailability; every other failure degrades inside its stage. An
// insufficient decision is a normal result: the caller must not invoke
// generation, and the package carries the refusal reason instead of context.
func (s *Service) Query(ctx context.Context, q domain.Query) (domain.ContextPackage, error) {
	start := time.Now()
	requestID := uuid.NewString()

	eq := s.expander.Expand(q)

	key := ctxcache.Key(purposeTag, ctxcache.KeyParams{
		Query:          q.Text,
		QueryType:      eq.Type,
		ExpansionCount: len(eq.Expansions),
		DocTypes:       q.DocTypes,
		Hierarchical:   true,
		CharBudget:     s.charBudget,
	})
	if pkg, ok := s.cache.Get(ctx, key); ok {
		pkg.RequestID = requestID
		return pkg, nil
	}

	candidates, err := s.retriever.Retrieve(ctx, eq, q.DocTypes, s.topK)
	if err != nil {
		return domain.ContextPackage{}, fmt.Errorf("retrieve candidates: %w", err)
	}

	pkg := domain.ContextPackage{
		RequestID: requestID,
		Query:     q.Text,
		QueryType: eq.Type,
	}

	if len(candidates) == 0 {
		pkg.Decision = s.evidence.Score(nil)
		s.cache.Set(ctx, key, pkg)
		return pkg, nil
	}

	s.booster.Boost(candidates, docIDs(candidates), eq.Routing)

	// Boosted scores pick the rerank pool; the reranker owns the final
	// ordering from here on.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].AdjustedScore() != candidates[j].AdjustedScore() {
			return candidates[i].AdjustedScore() > candidates[j].AdjustedScore()
		}
		return candidates[i].ID < candidates[j].ID
	})
	if len(candidates) > s.topK {
		candidates = candidates[:s.topK]
	}

	ranked := s.reranker.Rerank(ctx, eq.Original, candidates)

	pkg.Decision = s.evidence.Score(ranked)
	pkg.Fragments = ranked
	pkg.FragmentRefs = fragmentRefs(ranked)

	if pkg.Decision.Sufficient {
		res := s.resolver.Resolve(ctx, ranked)
		pkg.Context = res.Context
		pkg.ParentHits = res.ParentHits
		pkg.ChildHits = res.ChildHits
	}

	s.cache.Set(ctx, key, pkg)

	s.logger.Info("pipeline completed",
		zap.String("request_id", requestID),
		zap.String("query_type", string(eq.Type)),
		zap.Int("candidates", len(candidates)),
		zap.Bool("sufficient", pkg.Decision.Sufficient),
		zap.Float64("confidence", pkg.Decision.Confidence),
		zap.Duration("duration", time.Since(start)))

	metrics.StageDuration.WithLabelValues("pipeline").Observe(time.Since(start).Seconds())
	return pkg, nil
}

func docIDs(candidates []domain.CandidateFragment) []string {
	seen := map[string]struct{}{}
	var ids []string
	for _, c := range candidates {
		if _, ok := seen[c.DocumentID]; ok || c.DocumentID == "" {
			continue
		}
		seen[c.DocumentID] = struct{}{}
		ids = append(ids, c.DocumentID)
	}
	return ids
}

func fragmentRefs(ranked []domain.RankedFragment) []domain.FragmentRef {
	refs := make([]domain.FragmentRef, len(ranked))
	for i, r := range ranked {
		refs[i] = domain.FragmentRef{
			ID:         r.ID,
			DocumentID: r.DocumentID,
			DocType:    r.DocType,
			Section:    r.Section,
			Role:       r.Role,
			Score:      r.FinalScore,
			RankedBy:   r.RankedBy,
		}
	}
	return refs
}
