package index

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process Store using brute-force cosine similarity over all
// entries. It is the default backend: cheap to rebuild from a book's chunk
// list and discarded on process restart.
type Memory struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// Add appends entries to the store.
func (m *Memory) Add(_ context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entries...)
	return nil
}

// Search scores every entry against queryEmbedding, keeps scores strictly
// above minScore, and returns the top topK by descending similarity.
func (m *Memory) Search(_ context.Context, queryEmbedding []float32, topK int, minScore float32) ([]Scored, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if topK <= 0 {
		topK = 5
	}

	scored := make([]Scored, 0, len(m.entries))
	for _, e := range m.entries {
		score := Cosine(queryEmbedding, e.Embedding)
		if score > minScore {
			scored = append(scored, Scored{Entry: e, Score: score})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// Len reports the number of stored entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close is a no-op for the in-memory store.
func (m *Memory) Close() error { return nil }
