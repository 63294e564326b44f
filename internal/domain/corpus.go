package domain

import "context"

// CorpusFragment is a stored unit of corpus text with its structural
// metadata, as written by the ingestion collaborator.
type CorpusFragment struct {
	ID         string
	DocumentID string
	DocType    string
	Section    string
	Role       FragmentRole
	Text       string
	ParentID   string
}

// CorpusReader provides fragment and structural lookups for hierarchy
// resolution.
type CorpusReader interface {
	Fragment(ctx context.Context, id string) (CorpusFragment, error)
	// Siblings returns the fragments sharing the given fragment's parent,
	// including the parent itself when one exists.
	Siblings(ctx context.Context, id string) ([]CorpusFragment, error)
}
