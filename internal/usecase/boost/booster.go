package boost

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/helicase-ai/evidex/internal/domain"
)

// Boost trail reasons.
const (
	ReasonRelatedDocument = "related_document"
	ReasonDocType         = "doc_type"
	ReasonSection         = "preferred_section"
	ReasonChunkType       = "preferred_chunk_type"
)

// Booster raises candidate scores using the document graph and the
// query-type routing preferences. Every increment lands on the candidate's
// boost trail; scores only move up and stay capped at the ceiling.
type Booster struct {
	graph           domain.GraphReader
	relatedDocBoost float64
	sectionBoost    float64
	chunkTypeBoost  float64
	maxRelatedDocs  int
	logger          *zap.Logger
}

// New creates a booster. The increments are empirically tuned values taken
// from configuration.
func New(
	graph domain.GraphReader,
	relatedDocBoost, sectionBoost, chunkTypeBoost float64,
	maxRelatedDocs int,
	logger *zap.Logger,
) *Booster {
	return &Booster{
		graph:           graph,
		relatedDocBoost: relatedDocBoost,
		sectionBoost:    sectionBoost,
		chunkTypeBoost:  chunkTypeBoost,
		maxRelatedDocs:  maxRelatedDocs,
		logger:          logger,
	}
}

// Boost mutates candidates in place. sourceDocIDs are the documents already
// represented in the pool; a candidate earns the cross-document increment
// when its document is a top graph neighbor of another pool document.
func (b *Booster) Boost(candidates []domain.CandidateFragment, sourceDocIDs []string, routing domain.RoutingConfig) {
	related := b.relatedSet(sourceDocIDs)

	for i := range candidates {
		c := &candidates[i]

		if _, ok := related[c.DocumentID]; ok {
			c.AddBoost(ReasonRelatedDocument, b.relatedDocBoost)
		}
		if containsFold(routing.BoostDocTypes, c.DocType) {
			c.AddBoost(ReasonDocType, routing.BoostAmount)
		}
		if sectionMatches(routing.PreferSections, c.Section) {
			c.AddBoost(ReasonSection, b.sectionBoost)
		}
		if roleMatches(routing.PreferChunkTypes, c.Role) {
			c.AddBoost(ReasonChunkType, b.chunkTypeBoost)
		}
	}
}

// relatedSet aggregates graph neighbors across the pool's documents and keeps
// the top maxRelatedDocs by shared-entity count. A document qualifies by being
// a neighbor of another pool document; being in the pool itself does not
// disqualify it.
func (b *Booster) relatedSet(sourceDocIDs []string) map[string]struct{} {
	if b.graph == nil || len(sourceDocIDs) == 0 {
		return nil
	}

	counts := map[string]int{}
	for _, id := range sourceDocIDs {
		for _, rel := range b.graph.RelatedDocuments(id, b.maxRelatedDocs) {
			if rel.DocumentID == id {
				continue
			}
			if c := rel.SharedCount(); c > counts[rel.DocumentID] {
				counts[rel.DocumentID] = c
			}
		}
	}
	if len(counts) == 0 {
		return nil
	}

	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if counts[ids[i]] != counts[ids[j]] {
			return counts[ids[i]] > counts[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if len(ids) > b.maxRelatedDocs {
		ids = ids[:b.maxRelatedDocs]
	}

	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func containsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}

func sectionMatches(preferred []string, section string) bool {
	if section == "" {
		return false
	}
	lower := strings.ToLower(section)
	for _, p := range preferred {
		if strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

func roleMatches(preferred []domain.FragmentRole, role domain.FragmentRole) bool {
	for _, p := range preferred {
		if p == role {
			return true
		}
	}
	return false
}
