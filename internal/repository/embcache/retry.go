package embcache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/helicase-ai/evidex/internal/domain"
)

// RetryingEmbedder retries a failed embed exactly once after a short backoff.
// The embedding gateway is the only external call that gets a retry; a second
// failure is returned as-is and handled by the caller as a cache-miss-
// equivalent failure.
type RetryingEmbedder struct {
	inner   domain.Embedder
	backoff time.Duration
	logger  *zap.Logger
}

// NewRetrying creates the retry decorator.
func NewRetrying(inner domain.Embedder, backoff time.Duration, logger *zap.Logger) *RetryingEmbedder {
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	return &RetryingEmbedder{inner: inner, backoff: backoff, logger: logger}
}

// Embed delegates to the inner embedder, retrying once on failure.
func (r *RetryingEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	result, err := r.inner.Embed(ctx, text)
	if err == nil {
		return result, nil
	}
	if ctx.Err() != nil {
		return domain.EmbeddingResult{}, err
	}

	r.logger.Warn("embedding failed, retrying once", zap.Error(err))

	select {
	case <-ctx.Done():
		return domain.EmbeddingResult{}, ctx.Err()
	case <-time.After(r.backoff):
	}

	return r.inner.Embed(ctx, text)
}
