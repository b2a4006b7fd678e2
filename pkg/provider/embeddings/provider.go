// Package embeddings defines the Provider interface for vector embedding
// backends.
//
// An embeddings provider maps text to dense float32 vectors. The skill index
// uses these vectors to match resume skills against transcript fragments and
// to rank related skills for keyword boosting.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider is the abstraction over any text-embedding backend.
//
// Every vector returned by a single Provider instance has the same length,
// reported by Dimensions. Vectors from different Provider instances are only
// comparable when both use the same model.
type Provider interface {
	// Embed computes the embedding vector for a single text string. The text
	// is passed to the model verbatim; any model-specific prefixing is the
	// caller's responsibility.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch computes vectors for a slice of texts in one provider call.
	// The result has the same length and order as texts. On error the whole
	// result is nil; partial results are never returned.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed length of every vector this provider
	// produces.
	Dimensions() int

	// ModelID returns the backend model identifier, e.g.
	// "text-embedding-3-small". Used for logging and for checking that an
	// index was built with the same model it is queried with.
	ModelID() string
}
