// Package embedder converts text into dense vector embeddings. Each backend
// implementation (OpenAI, Azure OpenAI, Ollama) talks plain HTTP — no
// additional SDK dependencies are required. The Fallback wrapper makes any
// backend resilient: on remote failure it substitutes deterministic
// hash-derived vectors so retrieval degrades instead of failing.
package embedder

import "context"

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
