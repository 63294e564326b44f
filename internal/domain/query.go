package domain

// QueryType classifies a query for retrieval routing.
type QueryType string

const (
	// QueryComparison asks to compare two or more named products.
	QueryComparison QueryType = "comparison"
	// QueryLookup asks about a single named product.
	QueryLookup QueryType = "lookup"
	// QueryProtocol asks about treatment procedure or protocol.
	QueryProtocol QueryType = "protocol"
	// QueryGeneral is the default catch-all.
	QueryGeneral QueryType = "general"
)

// ExpansionTag records which expansion rule fired.
type ExpansionTag string

const (
	TagAbbreviation  ExpansionTag = "abbreviation"
	TagSynonym       ExpansionTag = "synonym"
	TagProductFamily ExpansionTag = "product-family"
	TagProtocolTerm  ExpansionTag = "protocol-term"
)

// Query is an immutable user question entering the pipeline.
type Query struct {
	Text     string
	TypeHint QueryType // optional; empty means detect
	DocTypes []string  // optional document-type filter
}

// ExpandedQuery is the output of query understanding.
// Expansions[0] is always the original query text as issued.
type ExpandedQuery struct {
	Original   string
	Expansions []string
	Tags       []ExpansionTag
	Type       QueryType
	Routing    RoutingConfig
}

// RoutingConfig carries per-query-type retrieval parameters.
type RoutingConfig struct {
	BoostDocTypes    []string
	BoostAmount      float64
	PreferSections   []string
	PreferChunkTypes []FragmentRole
	TopKMultiplier   int
}
