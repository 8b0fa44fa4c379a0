package embedder

import (
	"context"
	"log/slog"
	"math"

	"github.com/readai-labs/readai-go/internal/logging"
)

// Fallback wraps an inner Embedder and guarantees that Embed never fails.
// When the inner embedder returns an error, each text is replaced by a
// deterministic pseudo-embedding derived from a character-code hash,
// L2-normalized to unit length. Retrieval quality degrades on a provider
// outage but the pipeline keeps running.
type Fallback struct {
	// inner is the real embedding backend, may be nil for offline-only use.
	inner Embedder
	// dimensions is the vector length produced by both the inner backend and
	// the hash fallback, so degraded and real vectors stay comparable in size.
	dimensions int
}

// NewFallback wraps inner so Embed never returns an error. dimensions must
// match the inner backend's output size (see DefaultDimensions).
func NewFallback(inner Embedder, dimensions int) *Fallback {
	if dimensions <= 0 {
		dimensions = defaultOpenAIDimensions
	}
	return &Fallback{inner: inner, dimensions: dimensions}
}

// Embed converts texts into embeddings, substituting hash-derived vectors for
// the whole batch when the inner embedder fails. The returned slice is always
// parallel to the input slice and the error is always nil.
func (f *Fallback) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.inner != nil {
		embeddings, err := f.inner.Embed(ctx, texts)
		if err == nil && len(embeddings) == len(texts) {
			return embeddings, nil
		}
		if err != nil {
			logging.FromContext(ctx).Warn("embedder: remote embedding failed, using hash fallback",
				slog.Int("texts", len(texts)),
				slog.String("error", err.Error()),
			)
		} else {
			logging.FromContext(ctx).Warn("embedder: remote embedding returned wrong batch size, using hash fallback",
				slog.Int("want", len(texts)),
				slog.Int("got", len(embeddings)),
			)
		}
	}

	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embeddings[i] = hashEmbedding(text, f.dimensions)
	}
	return embeddings, nil
}

// hashEmbedding derives a deterministic unit-length vector from the text's
// character codes. Equal texts always map to equal vectors, so degraded
// similarity search remains stable across calls. Empty text yields the zero
// vector, which cosine scoring treats as similarity 0.
func hashEmbedding(text string, dimensions int) []float32 {
	vec := make([]float32, dimensions)
	if text == "" {
		return vec
	}
	for i, r := range text {
		// Spread each rune across a position-dependent bucket so anagrams do
		// not collapse onto the same vector.
		idx := (int(r)*31 + i) % dimensions
		if idx < 0 {
			idx += dimensions
		}
		vec[idx] += float32(int(r)%97) / 97.0
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1.0 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}
