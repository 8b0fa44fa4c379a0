package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/readai-labs/readai-go/internal/book"
	"github.com/readai-labs/readai-go/internal/config"
	"github.com/readai-labs/readai-go/internal/embedder"
	"github.com/readai-labs/readai-go/internal/index"
	"github.com/readai-labs/readai-go/internal/store"
)

// openStore opens the local SQLite store. READAI_DB overrides the default
// path (~/.readai/readai.db).
func openStore(log *slog.Logger) (*store.SQLiteStore, error) {
	path := os.Getenv("READAI_DB")
	if path == "" {
		var err error
		path, err = store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve store path: %w", err)
		}
	}
	s, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	log.Info("store opened", slog.String("path", path))
	return s, nil
}

// buildEmbedder constructs the configured embedding backend wrapped in the
// hashing fallback, so retrieval and translation survive provider outages.
func buildEmbedder() (embedder.Embedder, int, error) {
	inner, err := embedder.NewFromEnv()
	if err != nil {
		return nil, 0, fmt.Errorf("initialise embedder: %w", err)
	}
	dims := embedder.DefaultDimensions(embedder.ResolvedBackend())
	if v, err := strconv.Atoi(os.Getenv("EMBEDDING_DIMENSIONS")); err == nil && v > 0 {
		dims = v
	}
	return embedder.NewFallback(inner, dims), dims, nil
}

// vectorConfigFromEnv resolves the vector index backend settings.
func vectorConfigFromEnv() *config.VectorConfig {
	port := 6334
	if v, err := strconv.Atoi(os.Getenv("QDRANT_PORT")); err == nil && v > 0 {
		port = v
	}
	return &config.VectorConfig{
		Backend: getEnvOrDefault("VECTOR_BACKEND", "memory"),
		Host:    getEnvOrDefault("QDRANT_HOST", "localhost"),
		Port:    port,
		APIKey:  os.Getenv("QDRANT_API_KEY"),
		TLS:     os.Getenv("QDRANT_TLS") == "true",
	}
}

// newIndexStoreFactory returns the per-book index storage constructor for the
// configured backend. Memory is the default; qdrant persists vectors in a
// per-book collection.
func newIndexStoreFactory(cfg *config.VectorConfig, dims int) func(ctx context.Context, bookID string) (index.Store, error) {
	if cfg.Backend != "qdrant" {
		return nil // rag.NewEngine defaults to the in-memory store
	}
	return func(ctx context.Context, bookID string) (index.Store, error) {
		return index.NewQdrant(ctx, cfg, bookID, dims)
	}
}

// pageCount returns the number of distinct pages across a book's chunks.
func pageCount(b *book.Book) int {
	pages := make(map[int]struct{}, len(b.Chunks))
	for _, c := range b.Chunks {
		pages[c.Page] = struct{}{}
	}
	return len(pages)
}

// getEnvOrDefault returns the environment value for key, or fallback if unset.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
