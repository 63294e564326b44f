package rerank

import (
	"context"
	"strings"
)

// LexicalScorer ranks passages by token-set Jaccard overlap with the query.
// It needs no external calls and never fails, making it the terminal
// fallback of the chain.
type LexicalScorer struct{}

// NewLexical creates the terminal lexical scorer.
func NewLexical() *LexicalScorer {
	return &LexicalScorer{}
}

// Name identifies the provider in metrics and rank attribution.
func (s *LexicalScorer) Name() string { return "lexical" }

// Score returns Jaccard overlap scores, naturally within [0,1].
func (s *LexicalScorer) Score(_ context.Context, query string, passages []string) ([]float64, error) {
	queryTokens := tokenSet(query)

	scores := make([]float64, len(passages))
	for i, passage := range passages {
		scores[i] = jaccard(queryTokens, tokenSet(passage))
	}
	return scores, nil
}

func tokenSet(text string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,;:!?()[]\"'")
		if tok != "" {
			set[tok] = struct{}{}
		}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var intersection int
	for tok := range a {
		if _, ok := b[tok]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}
