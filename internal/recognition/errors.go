// Package recognition composes the embedding cache, vector index, and
// confidence scoring into the book recognition service.
package recognition

import "errors"

// Error kinds surfaced by Recognize. Everything else a caller can observe is
// expressed in the result status: quality failures are status "rejected", an
// empty index is a "no_match" result, and cache failures degrade silently to
// recomputing the embedding.
var (
	// ErrInvalidImage marks input the service will never retry: bytes that
	// do not decode, oversized uploads, degenerate embeddings.
	ErrInvalidImage = errors.New("invalid image")
	// ErrProviderUnavailable marks retryable failures of the embedding
	// model or the catalog. Recognize fails closed; no partial result is
	// fabricated.
	ErrProviderUnavailable = errors.New("provider unavailable")
)
