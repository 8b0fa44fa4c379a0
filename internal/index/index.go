// Package index provides per-book vector similarity search. A Store holds
// (text, metadata, embedding) entries; the default Memory implementation keeps
// them in process memory and is rebuilt from a book's chunk list on demand,
// while the Qdrant implementation persists them in an external collection.
// An Index couples a Store with an Embedder so callers search by plain text,
// and a Cache memoizes one Index per book for the process lifetime.
package index

import (
	"context"
	"fmt"
	"math"

	"github.com/readai-labs/readai-go/internal/embedder"
)

// Entry is one searchable unit inside a Store.
type Entry struct {
	// ChunkID is the stable identifier of the source chunk.
	ChunkID string
	// Page is the source page number of the chunk.
	Page int
	// Text is the retrievable passage text.
	Text string
	// Embedding is the pre-computed vector for Text.
	Embedding []float32
	// Metadata carries free-form chunk metadata (e.g. translation provenance).
	Metadata map[string]string
}

// Scored is an Entry paired with its similarity score for one query.
type Scored struct {
	Entry
	// Score is the cosine similarity against the query embedding, in [-1, 1].
	Score float32
}

// Store is the storage backend behind an Index. Implementations must be safe
// for concurrent use.
type Store interface {
	// Add appends entries to the store. Entries must carry embeddings.
	Add(ctx context.Context, entries []Entry) error

	// Search returns entries scored against queryEmbedding, sorted by
	// descending similarity, filtered to scores strictly above minScore,
	// truncated to topK.
	Search(ctx context.Context, queryEmbedding []float32, topK int, minScore float32) ([]Scored, error)

	// Len reports the number of stored entries.
	Len() int

	// Close releases any resources held by the store.
	Close() error
}

// Cosine computes the cosine similarity between two vectors. A zero-magnitude
// vector on either side yields 0 rather than NaN. Mismatched lengths compare
// over the shorter prefix.
func Cosine(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// Index couples a Store with an Embedder so callers can search by query text.
type Index struct {
	store Store
	emb   embedder.Embedder
}

// New returns an Index backed by the given store and embedder.
func New(store Store, emb embedder.Embedder) *Index {
	return &Index{store: store, emb: emb}
}

// Add embeds any entries missing an embedding, then stores the batch.
func (ix *Index) Add(ctx context.Context, entries []Entry) error {
	var missing []int
	for i, e := range entries {
		if len(e.Embedding) == 0 {
			missing = append(missing, i)
		}
	}
	if len(missing) > 0 {
		texts := make([]string, len(missing))
		for j, i := range missing {
			texts[j] = entries[i].Text
		}
		vecs, err := ix.emb.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("index: embed entries: %w", err)
		}
		if len(vecs) != len(missing) {
			return fmt.Errorf("index: expected %d embeddings, got %d", len(missing), len(vecs))
		}
		for j, i := range missing {
			entries[i].Embedding = vecs[j]
		}
	}
	return ix.store.Add(ctx, entries)
}

// Search embeds the query and runs a similarity search with the given floor.
// An empty index returns immediately without invoking the embedder.
func (ix *Index) Search(ctx context.Context, query string, topK int, minScore float32) ([]Scored, error) {
	if ix.store.Len() == 0 {
		return nil, nil
	}
	vecs, err := ix.emb.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("index: embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("index: expected 1 query embedding, got %d", len(vecs))
	}
	return ix.store.Search(ctx, vecs[0], topK, minScore)
}

// Len reports the number of stored entries.
func (ix *Index) Len() int { return ix.store.Len() }

// Close releases the underlying store.
func (ix *Index) Close() error { return ix.store.Close() }
