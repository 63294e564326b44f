package corpus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/helicase-ai/evidex/internal/db"
	"github.com/helicase-ai/evidex/internal/domain"
)

const fragmentKeyPrefix = "frag:"

// Repository reads corpus fragments from hash records written by the
// ingestion pipeline. Each fragment lives at "<prefix>frag:<id>" with the
// fields text, document_id, doc_type, section, role and parent_id; parents
// additionally carry a "children" field holding a JSON array of child IDs.
type Repository struct {
	store     db.HashStore
	keyPrefix string
}

// New creates a corpus repository.
func New(store db.HashStore, keyPrefix string) *Repository {
	return &Repository{store: store, keyPrefix: keyPrefix + fragmentKeyPrefix}
}

// Fragment loads a single fragment by ID.
// Returns domain.ErrFragmentNotFound when the hash is absent or empty.
func (r *Repository) Fragment(ctx context.Context, id string) (domain.CorpusFragment, error) {
	fields, err := r.store.HGetAll(ctx, r.keyPrefix+id)
	if err != nil {
		return domain.CorpusFragment{}, fmt.Errorf("load fragment %q: %w", id, err)
	}
	if len(fields) == 0 {
		return domain.CorpusFragment{}, domain.ErrFragmentNotFound
	}
	return fragmentFromFields(id, fields), nil
}

// Siblings returns the fragments sharing id's parent, parent first.
// A root fragment has no siblings. Missing sibling records are skipped.
func (r *Repository) Siblings(ctx context.Context, id string) ([]domain.CorpusFragment, error) {
	frag, err := r.Fragment(ctx, id)
	if err != nil {
		return nil, err
	}
	if frag.ParentID == "" {
		return nil, nil
	}

	parentFields, err := r.store.HGetAll(ctx, r.keyPrefix+frag.ParentID)
	if err != nil {
		return nil, fmt.Errorf("load parent %q: %w", frag.ParentID, err)
	}
	if len(parentFields) == 0 {
		return nil, nil
	}

	result := []domain.CorpusFragment{fragmentFromFields(frag.ParentID, parentFields)}

	childIDs := decodeChildren(parentFields["children"])
	keys := make([]string, 0, len(childIDs))
	ids := make([]string, 0, len(childIDs))
	for _, childID := range childIDs {
		if childID == id {
			continue
		}
		keys = append(keys, r.keyPrefix+childID)
		ids = append(ids, childID)
	}
	if len(keys) == 0 {
		return result, nil
	}

	siblings, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load siblings of %q: %w", id, err)
	}
	for i, fields := range siblings {
		if len(fields) == 0 {
			continue
		}
		result = append(result, fragmentFromFields(ids[i], fields))
	}
	return result, nil
}

func decodeChildren(raw string) []string {
	if raw == "" {
		return nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil
	}
	return ids
}

func fragmentFromFields(id string, fields map[string]string) domain.CorpusFragment {
	return domain.CorpusFragment{
		ID:         id,
		DocumentID: fields["document_id"],
		DocType:    fields["doc_type"],
		Section:    fields["section"],
		Role:       domain.FragmentRole(fields["role"]),
		Text:       fields["text"],
		ParentID:   fields["parent_id"],
	}
}
