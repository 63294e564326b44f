package graph

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/helicase-ai/evidex/internal/db"
)

type fakeStore struct {
	data map[string][]byte
	err  error
}

func (f *fakeStore) Get(_ context.Context, key string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func graphJSON(t *testing.T) []byte {
	t.Helper()
	docs := map[string]documentRecord{
		"doc-a": {DocType: "ifu", Entities: []string{"hyaluronic acid", "lidocaine", "needle 27g"}},
		"doc-b": {DocType: "brochure", Entities: []string{"hyaluronic acid", "lidocaine"}},
		"doc-c": {DocType: "ifu", Entities: []string{"hyaluronic acid"}},
		"doc-d": {DocType: "protocol", Entities: []string{"saline"}},
	}
	data, err := json.Marshal(docs)
	if err != nil {
		t.Fatalf("marshal graph: %v", err)
	}
	return data
}

func loadedRepo(t *testing.T) *Repository {
	t.Helper()
	s := &fakeStore{data: map[string][]byte{"graph:documents": graphJSON(t)}}
	r := New(s, "graph:documents", zap.NewNop())
	if err := r.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	return r
}

func TestRelatedDocuments_SortedByOverlap(t *testing.T) {
	r := loadedRepo(t)

	related := r.RelatedDocuments("doc-a", 5)
	if len(related) != 2 {
		t.Fatalf("expected 2 neighbors, got %d: %v", len(related), related)
	}
	if related[0].DocumentID != "doc-b" || related[0].SharedCount() != 2 {
		t.Errorf("expected doc-b with 2 shared entities first, got %+v", related[0])
	}
	if related[1].DocumentID != "doc-c" || related[1].SharedCount() != 1 {
		t.Errorf("expected doc-c with 1 shared entity second, got %+v", related[1])
	}
}

func TestRelatedDocuments_MaxResults(t *testing.T) {
	r := loadedRepo(t)

	related := r.RelatedDocuments("doc-a", 1)
	if len(related) != 1 {
		t.Fatalf("expected 1 result, got %d", len(related))
	}
	if related[0].DocumentID != "doc-b" {
		t.Errorf("truncation must keep the strongest neighbor, got %s", related[0].DocumentID)
	}
}

func TestRelatedDocuments_UnknownDocument(t *testing.T) {
	r := loadedRepo(t)
	if got := r.RelatedDocuments("doc-x", 5); got != nil {
		t.Errorf("expected nil for unknown document, got %v", got)
	}
}

func TestRelatedDocuments_NoOverlap(t *testing.T) {
	r := loadedRepo(t)
	if got := r.RelatedDocuments("doc-d", 5); got != nil {
		t.Errorf("expected nil for isolated document, got %v", got)
	}
}

func TestRelatedDocuments_BeforeLoad(t *testing.T) {
	r := New(&fakeStore{data: map[string][]byte{}}, "graph:documents", zap.NewNop())
	if got := r.RelatedDocuments("doc-a", 5); got != nil {
		t.Errorf("expected nil before load, got %v", got)
	}
}

func TestReload_MissingKeyKeepsSnapshot(t *testing.T) {
	r := loadedRepo(t)

	// Point the repo at a store without the key and reload.
	r.store = &fakeStore{data: map[string][]byte{}}
	if err := r.Reload(context.Background()); err != nil {
		t.Fatalf("missing key must not error: %v", err)
	}
	if r.Size() != 4 {
		t.Errorf("expected previous snapshot to survive, size=%d", r.Size())
	}
}

func TestReload_StoreErrorKeepsSnapshot(t *testing.T) {
	r := loadedRepo(t)

	r.store = &fakeStore{err: errors.New("connection refused")}
	if err := r.Reload(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(r.RelatedDocuments("doc-a", 5)) != 2 {
		t.Error("failed reload must not clear the active snapshot")
	}
}

func TestReload_InvalidJSONKeepsSnapshot(t *testing.T) {
	r := loadedRepo(t)

	r.store = &fakeStore{data: map[string][]byte{"graph:documents": []byte("{bad")}}
	if err := r.Reload(context.Background()); err == nil {
		t.Fatal("expected decode error")
	}
	if r.Size() != 4 {
		t.Errorf("expected previous snapshot to survive, size=%d", r.Size())
	}
}
