package corpus

import (
	"context"
	"errors"
	"testing"

	"github.com/helicase-ai/evidex/internal/domain"
)

type fakeHashStore struct {
	hashes map[string]map[string]string
	err    error
}

func (f *fakeHashStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.hashes[key], nil
}

func (f *fakeHashStore) HGetAllMulti(_ context.Context, keys []string) ([]map[string]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]map[string]string, len(keys))
	for i, key := range keys {
		out[i] = f.hashes[key]
	}
	return out, nil
}

func seededStore() *fakeHashStore {
	return &fakeHashStore{hashes: map[string]map[string]string{
		"evidex:frag:sec-1": {
			"text":        "Section 4.2 Contraindications",
			"document_id": "doc-a",
			"doc_type":    "ifu",
			"section":     "contraindications",
			"role":        "text",
			"children":    `["chunk-1","chunk-2","chunk-3"]`,
		},
		"evidex:frag:chunk-1": {
			"text":        "Do not use in patients with known hypersensitivity.",
			"document_id": "doc-a",
			"doc_type":    "ifu",
			"section":     "contraindications",
			"role":        "text",
			"parent_id":   "sec-1",
		},
		"evidex:frag:chunk-2": {
			"text":        "Not for use in areas with active skin infection.",
			"document_id": "doc-a",
			"doc_type":    "ifu",
			"section":     "contraindications",
			"role":        "table",
			"parent_id":   "sec-1",
		},
		"evidex:frag:root-1": {
			"text":        "Standalone summary fragment.",
			"document_id": "doc-b",
			"doc_type":    "brochure",
			"role":        "text",
		},
	}}
}

func TestFragment(t *testing.T) {
	r := New(seededStore(), "evidex:")

	frag, err := r.Fragment(context.Background(), "chunk-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if frag.ID != "chunk-2" || frag.ParentID != "sec-1" {
		t.Errorf("unexpected fragment: %+v", frag)
	}
	if frag.Role != domain.RoleTable {
		t.Errorf("expected table role, got %q", frag.Role)
	}
}

func TestFragment_NotFound(t *testing.T) {
	r := New(seededStore(), "evidex:")

	_, err := r.Fragment(context.Background(), "absent")
	if !errors.Is(err, domain.ErrFragmentNotFound) {
		t.Errorf("expected ErrFragmentNotFound, got %v", err)
	}
}

func TestSiblings_ParentFirst(t *testing.T) {
	r := New(seededStore(), "evidex:")

	got, err := r.Siblings(context.Background(), "chunk-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Parent, then chunk-2; chunk-3 has no record and is skipped,
	// chunk-1 itself is excluded.
	if len(got) != 2 {
		t.Fatalf("expected 2 fragments, got %d: %+v", len(got), got)
	}
	if got[0].ID != "sec-1" {
		t.Errorf("expected parent first, got %q", got[0].ID)
	}
	if got[1].ID != "chunk-2" {
		t.Errorf("expected sibling chunk-2, got %q", got[1].ID)
	}
}

func TestSiblings_RootFragment(t *testing.T) {
	r := New(seededStore(), "evidex:")

	got, err := r.Siblings(context.Background(), "root-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected no siblings for root fragment, got %+v", got)
	}
}

func TestSiblings_StoreError(t *testing.T) {
	r := New(&fakeHashStore{err: errors.New("connection refused")}, "evidex:")

	if _, err := r.Siblings(context.Background(), "chunk-1"); err == nil {
		t.Fatal("expected error")
	}
}
