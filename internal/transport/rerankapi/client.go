package rerankapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/helicase-ai/evidex/internal/domain"
)

// Client calls a hosted reranking API. The API scores each document for
// relevance to the query on a [0, 1] scale.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
}

// Config holds the reranking API settings.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// NewClient creates a reranking API client.
func NewClient(cfg *Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		http:    &http.Client{Timeout: timeout},
	}
}

// Name identifies the provider in metrics and rank attribution.
func (c *Client) Name() string { return "remote" }

type rerankRequest struct {
	Model     string   `json:"model,omitempty"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Score returns one relevance score per passage, aligned by index.
// All failures wrap domain.ErrRerankProviderError so the caller can fall
// back to the next provider.
func (c *Client) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	if len(passages) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(rerankRequest{
		Model:     c.model,
		Query:     query,
		Documents: passages,
	})
	if err != nil {
		return nil, fmt.Errorf("encode rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w: %w", domain.ErrRerankProviderError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("rerank API error %d: %s: %w",
			resp.StatusCode, string(snippet), domain.ErrRerankProviderError)
	}

	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w: %w", domain.ErrRerankProviderError, err)
	}
	if len(parsed.Results) != len(passages) {
		return nil, fmt.Errorf("rerank returned %d scores for %d passages: %w",
			len(parsed.Results), len(passages), domain.ErrRerankProviderError)
	}

	scores := make([]float64, len(passages))
	for _, r := range parsed.Results {
		if r.Index < 0 || r.Index >= len(scores) {
			return nil, fmt.Errorf("rerank returned out-of-range index %d: %w",
				r.Index, domain.ErrRerankProviderError)
		}
		scores[r.Index] = r.RelevanceScore
	}
	return scores, nil
}
