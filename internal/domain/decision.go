package domain

// InsufficiencyReason explains why evidence was judged insufficient.
type InsufficiencyReason string

const (
	ReasonNone                   InsufficiencyReason = ""
	ReasonNoCandidates           InsufficiencyReason = "no_candidates"
	ReasonLowRetrievalConfidence InsufficiencyReason = "low_retrieval_confidence"
	ReasonNoStrongMatches        InsufficiencyReason = "no_strong_matches"
)

// EvidenceDecision gates whether answer generation should be attempted.
// Derived per request and attached to the context package, never persisted
// on its own.
type EvidenceDecision struct {
	Sufficient bool                `json:"sufficient"`
	Reason     InsufficiencyReason `json:"reason,omitempty"`
	Confidence float64             `json:"confidence"`
}

// ContextPackage is the pipeline's final product: the ranked evidence set a
// generation collaborator receives. When Decision.Sufficient is false the
// generation collaborator must not be invoked.
type ContextPackage struct {
	RequestID    string           `json:"request_id"`
	Query        string           `json:"query"`
	QueryType    QueryType        `json:"query_type"`
	Fragments    []RankedFragment `json:"-"`
	Context      string           `json:"context"`
	Decision     EvidenceDecision `json:"decision"`
	ParentHits   int              `json:"parent_hits"`
	ChildHits    int              `json:"child_hits"`
	FromCache    bool             `json:"from_cache"`
	FragmentRefs []FragmentRef    `json:"fragments"`
}

// FragmentRef is the serializable view of a ranked fragment.
type FragmentRef struct {
	ID         string       `json:"id"`
	DocumentID string       `json:"document_id"`
	DocType    string       `json:"doc_type,omitempty"`
	Section    string       `json:"section,omitempty"`
	Role       FragmentRole `json:"role,omitempty"`
	Score      float64      `json:"score"`
	RankedBy   string       `json:"ranked_by,omitempty"`
}
