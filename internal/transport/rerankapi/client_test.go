package rerankapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/helicase-ai/evidex/internal/domain"
)

func TestClient_Score(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rerank" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}

		var req rerankRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Query != "HA contraindications" || len(req.Documents) != 2 {
			t.Errorf("unexpected request: %+v", req)
		}

		// Results out of order to verify index alignment.
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"index": 1, "relevance_score": 0.91},
				{"index": 0, "relevance_score": 0.12},
			},
		})
	}))
	defer server.Close()

	c := NewClient(&Config{BaseURL: server.URL, APIKey: "test-key", Timeout: time.Second})

	scores, err := c.Score(context.Background(), "HA contraindications",
		[]string{"storage conditions", "do not use in patients with hypersensitivity"})
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if len(scores) != 2 {
		t.Fatalf("expected 2 scores, got %d", len(scores))
	}
	if scores[0] != 0.12 || scores[1] != 0.91 {
		t.Errorf("scores not aligned by index: %v", scores)
	}
}

func TestClient_Score_Empty(t *testing.T) {
	c := NewClient(&Config{BaseURL: "http://unused"})
	scores, err := c.Score(context.Background(), "query", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scores != nil {
		t.Errorf("expected nil scores, got %v", scores)
	}
}

func TestClient_Score_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream overloaded", http.StatusBadGateway)
	}))
	defer server.Close()

	c := NewClient(&Config{BaseURL: server.URL})

	_, err := c.Score(context.Background(), "query", []string{"a"})
	if !errors.Is(err, domain.ErrRerankProviderError) {
		t.Errorf("expected ErrRerankProviderError, got %v", err)
	}
}

func TestClient_Score_CountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{{"index": 0, "relevance_score": 0.5}},
		})
	}))
	defer server.Close()

	c := NewClient(&Config{BaseURL: server.URL})

	_, err := c.Score(context.Background(), "query", []string{"a", "b"})
	if !errors.Is(err, domain.ErrRerankProviderError) {
		t.Errorf("expected ErrRerankProviderError for count mismatch, got %v", err)
	}
}

func TestClient_Score_ConnectionRefused(t *testing.T) {
	c := NewClient(&Config{BaseURL: "http://127.0.0.1:1", Timeout: 100 * time.Millisecond})

	_, err := c.Score(context.Background(), "query", []string{"a"})
	if !errors.Is(err, domain.ErrRerankProviderError) {
		t.Errorf("expected ErrRerankProviderError, got %v", err)
	}
}
