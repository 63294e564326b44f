package domain

// RelatedDocument is a graph neighbor sharing named entities with a source
// document.
type RelatedDocument struct {
	DocumentID     string   `json:"document_id"`
	DocType        string   `json:"doc_type,omitempty"`
	SharedEntities []string `json:"shared_entities"`
}

// SharedCount is the edge weight: how many entities the two documents share.
func (r RelatedDocument) SharedCount() int { return len(r.SharedEntities) }

// GraphReader exposes the offline-built document relationship graph.
type GraphReader interface {
	RelatedDocuments(docID string, maxResults int) []RelatedDocument
}
