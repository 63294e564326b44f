package domain

// FragmentRole is the structural role of a retrievable unit.
type FragmentRole string

const (
	RoleText  FragmentRole = "text"
	RoleTable FragmentRole = "table"
	RoleImage FragmentRole = "image_description"
)

// ScoreCeiling caps every adjusted score.
const ScoreCeiling = 1.0

// Boost is one applied score adjustment. Boosts are recorded rather than
// folded into a mutated float so the final value stays reconstructable
// regardless of application order.
type Boost struct {
	Reason string
	Delta  float64
}

// CandidateFragment is a retrieval hit flowing through the pipeline.
// Owned by a single request; never shared across requests.
type CandidateFragment struct {
	ID         string
	DocumentID string
	DocType    string
	Section    string
	Role       FragmentRole
	Text       string
	ParentID   string

	// SourceScore is the raw score from the originating signal.
	SourceScore float64

	boosts []Boost
}

// AddBoost appends a score adjustment. Negative deltas are ignored so the
// adjusted score is monotonically non-decreasing.
func (f *CandidateFragment) AddBoost(reason string, delta float64) {
	if delta <= 0 {
		return
	}
	f.boosts = append(f.boosts, Boost{Reason: reason, Delta: delta})
}

// AdjustedScore is the source score plus all boosts, capped at ScoreCeiling.
func (f *CandidateFragment) AdjustedScore() float64 {
	score := f.SourceScore
	for _, b := range f.boosts {
		score += b.Delta
	}
	if score > ScoreCeiling {
		return ScoreCeiling
	}
	return score
}

// Boosts returns the applied adjustments in application order.
func (f *CandidateFragment) Boosts() []Boost {
	return f.boosts
}

// RankedFragment is a candidate with its final rerank score and provenance.
type RankedFragment struct {
	CandidateFragment
	// FinalScore is the rerank score, always within [0,1].
	FinalScore float64
	// RankedBy names the provider that produced FinalScore.
	RankedBy string
}
