package domain

import "errors"

var (
	// ErrIndexUnavailable signals that the vector index could not serve any
	// expansion query at all. This is the only pipeline failure surfaced to
	// callers as a hard error; everything else degrades.
	ErrIndexUnavailable = errors.New("vector index unavailable")
	// ErrFragmentNotFound signals a missing corpus fragment.
	ErrFragmentNotFound = errors.New("fragment not found")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrRerankProviderError signals a rerank provider failure. Consumed by the
	// provider chain, never surfaced.
	ErrRerankProviderError = errors.New("rerank provider error")
)
