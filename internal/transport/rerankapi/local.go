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

// LocalClient calls a cross-encoder scoring sidecar. Unlike the hosted
// rerank API, the sidecar returns raw logits, not probabilities.
type LocalClient struct {
	endpoint string
	http     *http.Client
}

// NewLocalClient creates a sidecar client.
func NewLocalClient(endpoint string, timeout time.Duration) *LocalClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LocalClient{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
	}
}

type logitRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type logitResponse struct {
	Logits []float64 `json:"logits"`
}

// Logits returns one raw logit per passage, aligned by index.
func (c *LocalClient) Logits(ctx context.Context, query string, passages []string) ([]float64, error) {
	if len(passages) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(logitRequest{Query: query, Documents: passages})
	if err != nil {
		return nil, fmt.Errorf("encode score request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/score", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build score request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("score request failed: %w: %w", domain.ErrRerankProviderError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("cross-encoder error %d: %s: %w",
			resp.StatusCode, string(snippet), domain.ErrRerankProviderError)
	}

	var parsed logitResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode score response: %w: %w", domain.ErrRerankProviderError, err)
	}
	return parsed.Logits, nil
}
