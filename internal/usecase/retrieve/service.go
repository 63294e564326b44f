package retrieve

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/helicase-ai/evidex/internal/db"
	"github.com/helicase-ai/evidex/internal/domain"
	"github.com/helicase-ai/evidex/internal/metrics"
)

var returnFields = []string{"text", "document_id", "doc_type", "section", "role", "parent_id"}

// Service fans a query's expansions out over the vector index and merges
// the results into a deduplicated candidate pool.
type Service struct {
	embedder      domain.Embedder
	searcher      db.Searcher
	indexName     string
	fragKeyPrefix string
	minScore      float64
	vectorTimeout time.Duration
	logger        *zap.Logger
}

// New creates a retrieval service. fragKeyPrefix is the store prefix of
// fragment keys, stripped from hits to recover fragment IDs.
func New(
	embedder domain.Embedder,
	searcher db.Searcher,
	indexName string,
	fragKeyPrefix string,
	minScore float64,
	vectorTimeout time.Duration,
	logger *zap.Logger,
) *Service {
	return &Service{
		embedder:      embedder,
		searcher:      searcher,
		indexName:     indexName,
		fragKeyPrefix: fragKeyPrefix,
		minScore:      minScore,
		vectorTimeout: vectorTimeout,
		logger:        logger,
	}
}

// expansionResult carries one expansion's outcome across the join.
type expansionResult struct {
	entries   []db.SearchEntry
	embedErr  error
	searchErr error
}

// Retrieve embeds each expansion concurrently, searches the index and merges
// the hits, keeping the highest raw score per fragment and discarding
// candidates below the score floor.
//
// Per-expansion failures degrade silently: an expansion that cannot be
// embedded or searched contributes nothing. The only hard error is total
// index unavailability, reported as domain.ErrIndexUnavailable when every
// search attempt failed.
func (s *Service) Retrieve(ctx context.Context, eq domain.ExpandedQuery, docTypes []string, topK int) ([]domain.CandidateFragment, error) {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues("retrieve").Observe(time.Since(start).Seconds())
	}()

	k := topK
	if eq.Routing.TopKMultiplier > 1 {
		k = topK * eq.Routing.TopKMultiplier
	}

	results := make([]expansionResult, len(eq.Expansions))

	var wg sync.WaitGroup
	for i, expansion := range eq.Expansions {
		wg.Add(1)
		go func(i int, text string) {
			defer wg.Done()
			results[i] = s.searchExpansion(ctx, text, docTypes, k)
		}(i, expansion)
	}
	wg.Wait()

	merged := map[string]domain.CandidateFragment{}
	var searchErrs, searchAttempts int
	var lastSearchErr error
	for _, r := range results {
		if r.embedErr != nil {
			s.logger.Warn("expansion embedding failed, skipping", zap.Error(r.embedErr))
			continue
		}
		searchAttempts++
		if r.searchErr != nil {
			searchErrs++
			lastSearchErr = r.searchErr
			continue
		}
		for _, entry := range r.entries {
			frag := s.fragmentFromEntry(entry)
			if frag.SourceScore < s.minScore {
				continue
			}
			if existing, ok := merged[frag.ID]; !ok || frag.SourceScore > existing.SourceScore {
				merged[frag.ID] = frag
			}
		}
	}

	if searchAttempts > 0 && searchErrs == searchAttempts {
		return nil, fmt.Errorf("%w: %w", domain.ErrIndexUnavailable, lastSearchErr)
	}

	candidates := make([]domain.CandidateFragment, 0, len(merged))
	for _, frag := range merged {
		candidates = append(candidates, frag)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].SourceScore != candidates[j].SourceScore {
			return candidates[i].SourceScore > candidates[j].SourceScore
		}
		return candidates[i].ID < candidates[j].ID
	})

	metrics.RetrievalCandidates.WithLabelValues(string(eq.Type)).Observe(float64(len(candidates)))
	return candidates, nil
}

func (s *Service) searchExpansion(ctx context.Context, text string, docTypes []string, k int) expansionResult {
	embedding, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return expansionResult{embedErr: err}
	}

	searchCtx, cancel := context.WithTimeout(ctx, s.vectorTimeout)
	defer cancel()

	res, err := s.searcher.SearchKNN(searchCtx, &db.KNNQuery{
		IndexName:    s.indexName,
		Vector:       embedding.Embedding,
		K:            k,
		DocTypes:     docTypes,
		ReturnFields: returnFields,
	})
	if err != nil {
		return expansionResult{searchErr: err}
	}
	return expansionResult{entries: res.Entries}
}

func (s *Service) fragmentFromEntry(entry db.SearchEntry) domain.CandidateFragment {
	return domain.CandidateFragment{
		ID:          strings.TrimPrefix(entry.Key, s.fragKeyPrefix),
		DocumentID:  entry.Fields["document_id"],
		DocType:     entry.Fields["doc_type"],
		Section:     entry.Fields["section"],
		Role:        domain.FragmentRole(entry.Fields["role"]),
		Text:        entry.Fields["text"],
		ParentID:    entry.Fields["parent_id"],
		SourceScore: entry.Score,
	}
}
