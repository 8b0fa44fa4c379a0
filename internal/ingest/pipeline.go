// Package ingest implements the book ingestion pipeline. It loads a
// pre-chunked book description from a JSON file, embeds every chunk in
// fixed-size sub-batches, and persists the book. Chunking itself happens
// upstream of this tool; the input file already carries page-aligned chunks.
// This pipeline is invoked by the `readai ingest` CLI command.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/readai-labs/readai-go/internal/book"
	"github.com/readai-labs/readai-go/internal/embedder"
	"github.com/readai-labs/readai-go/internal/store"
)

// bookFile is the on-disk JSON shape accepted by the pipeline.
type bookFile struct {
	ID       string            `json:"id,omitempty"`
	Title    string            `json:"title"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Chunks   []struct {
		Page     int               `json:"page"`
		Text     string            `json:"text"`
		Metadata map[string]string `json:"metadata,omitempty"`
	} `json:"chunks"`
}

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// EmbedBatchSize is how many chunk texts are embedded per call.
	// Defaults to 20 if zero.
	EmbedBatchSize int
}

// Pipeline orchestrates the load → embed → persist flow for one book file.
type Pipeline struct {
	// emb converts chunk texts into dense vector embeddings.
	emb embedder.Embedder

	// books persists the assembled book.
	books store.BookStore

	// cfg holds the resolved pipeline configuration.
	cfg *Config
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(emb embedder.Embedder, books store.BookStore, cfg *Config) (*Pipeline, error) {
	if emb == nil {
		return nil, fmt.Errorf("ingest: embedder must not be nil")
	}
	if books == nil {
		return nil, fmt.Errorf("ingest: book store must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = 20
	}
	return &Pipeline{emb: emb, books: books, cfg: cfg}, nil
}

// Ingest loads the book file at path, embeds its chunks, persists the book,
// and returns it. Progress is reported via the optional callback.
func (p *Pipeline) Ingest(ctx context.Context, path string, progress func(msg string)) (*book.Book, error) {
	if progress == nil {
		progress = func(string) {}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: read %s: %w", path, err)
	}

	var bf bookFile
	if err := json.Unmarshal(raw, &bf); err != nil {
		return nil, fmt.Errorf("ingest: parse %s: %w", path, err)
	}
	if bf.Title == "" {
		return nil, fmt.Errorf("ingest: %s: title is required", path)
	}
	if len(bf.Chunks) == 0 {
		return nil, fmt.Errorf("ingest: %s: no chunks", path)
	}

	b := &book.Book{
		ID:        bf.ID,
		Title:     bf.Title,
		Metadata:  bf.Metadata,
		CreatedAt: time.Now(),
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}

	texts := make([]string, len(bf.Chunks))
	for i, c := range bf.Chunks {
		texts[i] = c.Text
	}

	progress(fmt.Sprintf("embedding %d chunks", len(texts)))
	embeddings := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += p.cfg.EmbedBatchSize {
		end := start + p.cfg.EmbedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := p.emb.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("ingest: embed chunks %d-%d: %w", start, end-1, err)
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("ingest: embed chunks %d-%d: expected %d vectors, got %d", start, end-1, end-start, len(vecs))
		}
		copy(embeddings[start:], vecs)
		progress(fmt.Sprintf("embedded %d/%d chunks", end, len(texts)))
	}

	b.Chunks = make([]book.Chunk, len(bf.Chunks))
	for i, c := range bf.Chunks {
		b.Chunks[i] = book.Chunk{
			ID:        uuid.NewString(),
			BookID:    b.ID,
			Page:      c.Page,
			Text:      c.Text,
			Embedding: embeddings[i],
			Metadata:  c.Metadata,
		}
	}

	if err := p.books.SaveBook(ctx, b); err != nil {
		return nil, fmt.Errorf("ingest: save book: %w", err)
	}
	progress(fmt.Sprintf("ingested %q with %d chunks as %s", b.Title, len(b.Chunks), b.ID))
	return b, nil
}
