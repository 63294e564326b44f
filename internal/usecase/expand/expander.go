package expand

import (
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/helicase-ai/evidex/internal/domain"
)

// synonymsPerTerm caps substitutions for one matched thesaurus term.
const synonymsPerTerm = 2

// Expander turns a raw query into an ordered expansion list with routing
// parameters for retrieval.
type Expander struct {
	lex           *Lexicon
	maxExpansions int
	docTypeBoost  float64
	logger        *zap.Logger
}

// New creates an expander over the loaded lexicon.
func New(lex *Lexicon, maxExpansions int, docTypeBoost float64, logger *zap.Logger) *Expander {
	if maxExpansions <= 0 {
		maxExpansions = 5
	}
	return &Expander{
		lex:           lex,
		maxExpansions: maxExpansions,
		docTypeBoost:  docTypeBoost,
		logger:        logger,
	}
}

var abbrevPattern = regexp.MustCompile(`\b[A-Z]{2,}\b`)

// Expand applies the rules in fixed order: abbreviation expansion, type
// detection, type-specific expansion, truncation. The original query is
// always Expansions[0]. Empty lexicon tables make the matching rules no-ops;
// expansion never fails.
func (e *Expander) Expand(q domain.Query) domain.ExpandedQuery {
	var tags []domain.ExpansionTag

	// Abbreviations go first: every later rule keys off the expanded text.
	working := e.expandAbbreviations(q.Text)

	qtype := q.TypeHint
	if qtype == "" {
		qtype = e.detectType(working)
	}

	expansions := []string{q.Text}
	if working != q.Text {
		expansions = append(expansions, working)
		tags = append(tags, domain.TagAbbreviation)
	}

	var extra []string
	var extraTags []domain.ExpansionTag
	switch qtype {
	case domain.QueryComparison:
		extra, extraTags = e.expandComparison(working)
	case domain.QueryLookup:
		extra, extraTags = e.expandFamily(working)
	case domain.QueryProtocol:
		extra, extraTags = e.substitute(working, e.lex.Protocol, domain.TagProtocolTerm)
	default:
		extra, extraTags = e.substitute(working, e.lex.General, domain.TagSynonym)
	}
	expansions = append(expansions, extra...)
	tags = append(tags, extraTags...)

	expansions = dedupe(expansions)
	if len(expansions) > e.maxExpansions {
		expansions = expansions[:e.maxExpansions]
	}

	e.logger.Debug("query expanded",
		zap.String("type", string(qtype)),
		zap.Int("expansions", len(expansions)))

	return domain.ExpandedQuery{
		Original:   q.Text,
		Expansions: expansions,
		Tags:       tags,
		Type:       qtype,
		Routing:    e.routingFor(qtype),
	}
}

func (e *Expander) expandAbbreviations(text string) string {
	if len(e.lex.Abbreviations) == 0 {
		return text
	}
	return abbrevPattern.ReplaceAllStringFunc(text, func(token string) string {
		if full, ok := e.lex.Abbreviations[token]; ok {
			return full
		}
		return token
	})
}

// typeRules are evaluated in order, first match wins. Ordering matters:
// patterns earlier in the list may be literal substrings of later ones
// (e.g. "contraindication" contains "indication"), so the more specific
// rule must come first.
var typeRules = []struct {
	qtype    domain.QueryType
	patterns []string
}{
	{domain.QueryComparison, []string{" vs ", " vs. ", "versus", "compare", "difference between", "better than"}},
	{domain.QueryProtocol, []string{"how many sessions", "how often", "protocol", "procedure", "aftercare", "injection technique", "treatment interval", "sessions"}},
	{domain.QueryLookup, []string{"contraindication", "side effect", "adverse", "warning", "precaution", "indication", "composition", "storage", "shelf life"}},
}

func (e *Expander) detectType(text string) domain.QueryType {
	lower := " " + strings.ToLower(text) + " "
	for _, rule := range typeRules {
		for _, p := range rule.patterns {
			if strings.Contains(lower, p) {
				return rule.qtype
			}
		}
	}
	if len(e.findEntities(text)) >= 2 {
		return domain.QueryComparison
	}
	if len(e.findEntities(text)) == 1 {
		return domain.QueryLookup
	}
	return domain.QueryGeneral
}

// findEntities returns the product names from the family table mentioned in
// the text, in family-table key order first, then member order.
func (e *Expander) findEntities(text string) []string {
	lower := strings.ToLower(text)
	var found []string
	seen := map[string]struct{}{}
	add := func(name string) {
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			return
		}
		if strings.Contains(lower, key) {
			seen[key] = struct{}{}
			found = append(found, name)
		}
	}
	for _, base := range sortedKeys(e.lex.Families) {
		add(base)
		for _, m := range e.lex.Families[base] {
			add(m)
		}
	}
	return found
}

// sortedKeys keeps expansion output deterministic across runs.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// expandComparison emits a per-entity lookup variant for each mentioned
// product plus the joined comparison string.
func (e *Expander) expandComparison(text string) ([]string, []domain.ExpansionTag) {
	entities := e.findEntities(text)
	if len(entities) < 2 {
		return nil, nil
	}

	remainder := text
	for _, entity := range entities {
		remainder = removeFold(remainder, entity)
	}
	remainder = stripConnectives(remainder)

	var out []string
	var tags []domain.ExpansionTag
	for _, entity := range entities {
		out = append(out, strings.TrimSpace(entity+" "+remainder))
		tags = append(tags, domain.TagProductFamily)
	}
	out = append(out, strings.Join(entities, " ")+" comparison")
	tags = append(tags, domain.TagProductFamily)
	return out, tags
}

// expandFamily emits one variant per family member of the mentioned product.
func (e *Expander) expandFamily(text string) ([]string, []domain.ExpansionTag) {
	lower := strings.ToLower(text)
	for _, base := range sortedKeys(e.lex.Families) {
		if !strings.Contains(lower, strings.ToLower(base)) {
			continue
		}
		var out []string
		var tags []domain.ExpansionTag
		for _, member := range e.lex.Families[base] {
			if strings.EqualFold(member, base) {
				continue
			}
			out = append(out, replaceFold(text, base, member))
			tags = append(tags, domain.TagProductFamily)
		}
		return out, tags
	}
	return nil, nil
}

// substitute replaces matched thesaurus terms with their synonyms, up to
// synonymsPerTerm variants per matched term.
func (e *Expander) substitute(text string, table map[string][]string, tag domain.ExpansionTag) ([]string, []domain.ExpansionTag) {
	lower := strings.ToLower(text)
	var out []string
	var tags []domain.ExpansionTag
	for _, term := range sortedKeys(table) {
		if !strings.Contains(lower, strings.ToLower(term)) {
			continue
		}
		for i, syn := range table[term] {
			if i >= synonymsPerTerm {
				break
			}
			out = append(out, replaceFold(text, term, syn))
			tags = append(tags, tag)
		}
	}
	return out, tags
}

func (e *Expander) routingFor(t domain.QueryType) domain.RoutingConfig {
	switch t {
	case domain.QueryComparison:
		return domain.RoutingConfig{
			BoostDocTypes:  []string{"brochure"},
			BoostAmount:    e.docTypeBoost,
			PreferSections: []string{"indications", "comparison"},
			TopKMultiplier: 2,
		}
	case domain.QueryLookup:
		return domain.RoutingConfig{
			BoostDocTypes:  []string{"ifu"},
			BoostAmount:    e.docTypeBoost,
			PreferSections: []string{"contraindications", "indications", "composition", "warnings"},
			TopKMultiplier: 2,
		}
	case domain.QueryProtocol:
		return domain.RoutingConfig{
			BoostDocTypes:    []string{"protocol", "ifu"},
			BoostAmount:      e.docTypeBoost,
			PreferSections:   []string{"dosage", "administration", "protocol"},
			PreferChunkTypes: []domain.FragmentRole{domain.RoleTable},
			TopKMultiplier:   1,
		}
	default:
		return domain.RoutingConfig{TopKMultiplier: 1}
	}
}

// connectives are comparison filler words dropped from per-entity variants.
var connectives = map[string]struct{}{
	"vs": {}, "vs.": {}, "versus": {}, "compare": {}, "and": {}, "or": {}, "between": {},
}

func stripConnectives(s string) string {
	var kept []string
	for _, tok := range strings.Fields(s) {
		if _, ok := connectives[strings.ToLower(tok)]; ok {
			continue
		}
		kept = append(kept, tok)
	}
	return strings.Join(kept, " ")
}

// replaceFold replaces the first case-insensitive occurrence of old with repl.
func replaceFold(s, old, repl string) string {
	idx := strings.Index(strings.ToLower(s), strings.ToLower(old))
	if idx < 0 {
		return s
	}
	return s[:idx] + repl + s[idx+len(old):]
}

// removeFold removes the first case-insensitive occurrence of sub.
func removeFold(s, sub string) string {
	idx := strings.Index(strings.ToLower(s), strings.ToLower(sub))
	if idx < 0 {
		return s
	}
	return s[:idx] + s[idx+len(sub):]
}

func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := items[:0]
	for _, item := range items {
		key := strings.ToLower(strings.TrimSpace(item))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}
