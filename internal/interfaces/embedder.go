package interfaces

import "context"

// Embedder generates embedding vectors for query text. The vector index
// search path depends on this only; generation providers need not embed.
type Embedder interface {
	// Embed generates an embedding vector for the given text. The vector
	// dimensionality must match the index collection's configured size.
	Embed(ctx context.Context, text string) ([]float32, error)
}
