package retrieve

import (
	"context"
	"errors"
	"os"
	"reflect"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/helicase-ai/evidex/internal/db"
	"github.com/helicase-ai/evidex/internal/domain"
	"github.com/helicase-ai/evidex/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterPipelineMetrics()
	os.Exit(m.Run())
}

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	if f.err != nil {
		return domain.EmbeddingResult{}, f.err
	}
	return domain.EmbeddingResult{Embedding: []float32{float32(len(text)), 0.5}}, nil
}

type fakeSearcher struct {
	mu      sync.Mutex
	entries []db.SearchEntry
	err     error
	queries []*db.KNNQuery
}

func (f *fakeSearcher) SearchKNN(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &db.SearchResult{Total: len(f.entries), Entries: f.entries}, nil
}

func entry(id string, score float64, docID string) db.SearchEntry {
	return db.SearchEntry{
		Key:   "evidex:frag:" + id,
		Score: score,
		Fields: map[string]string{
			"text":        "text of " + id,
			"document_id": docID,
			"doc_type":    "ifu",
			"section":     "contraindications",
			"role":        "text",
		},
	}
}

func newService(emb domain.Embedder, searcher db.Searcher) *Service {
	return New(emb, searcher, "idx:fragments", "evidex:frag:", 0.50, time.Second, zap.NewNop())
}

func expanded(expansions ...string) domain.ExpandedQuery {
	return domain.ExpandedQuery{
		Original:   expansions[0],
		Expansions: expansions,
		Type:       domain.QueryLookup,
		Routing:    domain.RoutingConfig{TopKMultiplier: 1},
	}
}

func TestRetrieve_MergesAndDedupes(t *testing.T) {
	searcher := &fakeSearcher{entries: []db.SearchEntry{
		entry("frag-1", 0.90, "doc-a"),
		entry("frag-2", 0.60, "doc-a"),
		entry("frag-1", 0.70, "doc-a"), // duplicate with lower score
	}}
	s := newService(&fakeEmbedder{}, searcher)

	got, err := s.Retrieve(context.Background(), expanded("q"), nil, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[0].ID != "frag-1" || got[0].SourceScore != 0.90 {
		t.Errorf("dedupe must keep the highest score, got %+v", got[0])
	}
	if got[1].ID != "frag-2" {
		t.Errorf("expected frag-2 second, got %+v", got[1])
	}
}

func TestRetrieve_ScoreFloor(t *testing.T) {
	searcher := &fakeSearcher{entries: []db.SearchEntry{
		entry("strong", 0.80, "doc-a"),
		entry("weak", 0.30, "doc-a"),
	}}
	s := newService(&fakeEmbedder{}, searcher)

	got, err := s.Retrieve(context.Background(), expanded("q"), nil, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "strong" {
		t.Errorf("expected weak match filtered out, got %+v", got)
	}
}

func TestRetrieve_TopKMultiplier(t *testing.T) {
	searcher := &fakeSearcher{}
	s := newService(&fakeEmbedder{}, searcher)

	eq := expanded("q")
	eq.Routing.TopKMultiplier = 2
	if _, err := s.Retrieve(context.Background(), eq, []string{"ifu"}, 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(searcher.queries) != 1 {
		t.Fatalf("expected 1 search, got %d", len(searcher.queries))
	}
	q := searcher.queries[0]
	if q.K != 20 {
		t.Errorf("expected K=20 with multiplier 2, got %d", q.K)
	}
	if !reflect.DeepEqual(q.DocTypes, []string{"ifu"}) {
		t.Errorf("doc type filter not forwarded: %v", q.DocTypes)
	}
}

func TestRetrieve_FanOutPerExpansion(t *testing.T) {
	searcher := &fakeSearcher{entries: []db.SearchEntry{entry("frag-1", 0.9, "doc-a")}}
	s := newService(&fakeEmbedder{}, searcher)

	_, err := s.Retrieve(context.Background(), expanded("a", "b", "c"), nil, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(searcher.queries) != 3 {
		t.Errorf("expected one search per expansion, got %d", len(searcher.queries))
	}
}

func TestRetrieve_Idempotent(t *testing.T) {
	searcher := &fakeSearcher{entries: []db.SearchEntry{
		entry("frag-1", 0.90, "doc-a"),
		entry("frag-2", 0.60, "doc-b"),
	}}
	s := newService(&fakeEmbedder{}, searcher)

	first, err := s.Retrieve(context.Background(), expanded("q", "q2"), nil, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := s.Retrieve(context.Background(), expanded("q", "q2"), nil, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("identical inputs produced different candidate sets:\n%+v\n%+v", first, second)
	}
}

func TestRetrieve_AllSearchesFail(t *testing.T) {
	searcher := &fakeSearcher{err: errors.New("connection refused")}
	s := newService(&fakeEmbedder{}, searcher)

	_, err := s.Retrieve(context.Background(), expanded("a", "b"), nil, 10)
	if !errors.Is(err, domain.ErrIndexUnavailable) {
		t.Errorf("expected ErrIndexUnavailable, got %v", err)
	}
}

func TestRetrieve_EmbedFailuresDegrade(t *testing.T) {
	s := newService(&fakeEmbedder{err: errors.New("provider down")}, &fakeSearcher{})

	got, err := s.Retrieve(context.Background(), expanded("a", "b"), nil, 10)
	if err != nil {
		t.Fatalf("embed failure must degrade, not error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no candidates, got %+v", got)
	}
}

func TestRetrieve_EmptyResult(t *testing.T) {
	s := newService(&fakeEmbedder{}, &fakeSearcher{})

	got, err := s.Retrieve(context.Background(), expanded("q"), nil, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty candidate set, got %+v", got)
	}
}
