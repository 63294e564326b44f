package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/helicase-ai/evidex/internal/db"
	"github.com/helicase-ai/evidex/internal/domain"
)

// store is the consumer interface for graph loading (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// documentRecord is the persisted shape of one graph node.
type documentRecord struct {
	DocType  string   `json:"doc_type"`
	Entities []string `json:"entities"`
}

// snapshot is an immutable view of the document graph. Lookups never mutate
// it; Reload builds a fresh one and swaps the pointer.
type snapshot struct {
	docs     map[string]documentRecord
	byEntity map[string][]string
}

// Repository serves entity-overlap relationships between documents from an
// in-memory snapshot loaded out of the key-value store.
type Repository struct {
	store    store
	graphKey string
	logger   *zap.Logger
	current  atomic.Pointer[snapshot]
}

// New creates an empty repository. Call Reload to populate it; until then
// every lookup returns no neighbors.
func New(s store, graphKey string, logger *zap.Logger) *Repository {
	r := &Repository{store: s, graphKey: graphKey, logger: logger}
	r.current.Store(&snapshot{
		docs:     map[string]documentRecord{},
		byEntity: map[string][]string{},
	})
	return r
}

// Reload fetches the graph JSON and atomically replaces the active snapshot.
// On failure the previous snapshot stays in place.
func (r *Repository) Reload(ctx context.Context) error {
	data, err := r.store.Get(ctx, r.graphKey)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			r.logger.Warn("Document graph key missing, keeping current snapshot",
				zap.String("key", r.graphKey))
			return nil
		}
		return fmt.Errorf("load document graph: %w", err)
	}

	var docs map[string]documentRecord
	if err := json.Unmarshal(data, &docs); err != nil {
		return fmt.Errorf("decode document graph: %w", err)
	}

	next := &snapshot{
		docs:     docs,
		byEntity: map[string][]string{},
	}
	for docID, rec := range docs {
		for _, entity := range rec.Entities {
			next.byEntity[entity] = append(next.byEntity[entity], docID)
		}
	}

	r.current.Store(next)
	r.logger.Info("Document graph reloaded",
		zap.Int("documents", len(next.docs)),
		zap.Int("entities", len(next.byEntity)))
	return nil
}

// Size returns the number of documents in the active snapshot.
func (r *Repository) Size() int {
	return len(r.current.Load().docs)
}

// RelatedDocuments returns up to maxResults documents sharing entities with
// docID, strongest overlap first. Ties break on document ID for stable
// output. An unknown docID yields an empty result, not an error.
func (r *Repository) RelatedDocuments(docID string, maxResults int) []domain.RelatedDocument {
	snap := r.current.Load()

	rec, ok := snap.docs[docID]
	if !ok || maxResults <= 0 {
		return nil
	}

	shared := map[string][]string{}
	for _, entity := range rec.Entities {
		for _, other := range snap.byEntity[entity] {
			if other == docID {
				continue
			}
			shared[other] = append(shared[other], entity)
		}
	}
	if len(shared) == 0 {
		return nil
	}

	related := make([]domain.RelatedDocument, 0, len(shared))
	for other, entities := range shared {
		related = append(related, domain.RelatedDocument{
			DocumentID:     other,
			DocType:        snap.docs[other].DocType,
			SharedEntities: entities,
		})
	}
	sort.Slice(related, func(i, j int) bool {
		if related[i].SharedCount() != related[j].SharedCount() {
			return related[i].SharedCount() > related[j].SharedCount()
		}
		return related[i].DocumentID < related[j].DocumentID
	})

	if len(related) > maxResults {
		related = related[:maxResults]
	}
	return related
}
