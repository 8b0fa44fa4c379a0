package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/readai-labs/readai-go/internal/store"
)

type countingEmbedder struct {
	calls atomic.Int64
}

func (c *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(1)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func writeBookFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "book.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write book file: %v", err)
	}
	return path
}

func Test_Ingest_RoundTrip(t *testing.T) {
	t.Parallel()

	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	emb := &countingEmbedder{}
	p, err := NewPipeline(emb, s, &Config{EmbedBatchSize: 2})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	path := writeBookFile(t, `{
		"title": "Sample",
		"metadata": {"author": "Anon"},
		"chunks": [
			{"page": 1, "text": "first"},
			{"page": 1, "text": "second"},
			{"page": 2, "text": "third"}
		]
	}`)

	b, err := p.Ingest(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if b.ID == "" {
		t.Error("book ID not assigned")
	}
	// 3 chunks in sub-batches of 2: 2 embed calls.
	if n := emb.calls.Load(); n != 2 {
		t.Errorf("embedder called %d times, want 2", n)
	}

	got, err := s.GetBook(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("get book: %v", err)
	}
	if got.Title != "Sample" || len(got.Chunks) != 3 {
		t.Errorf("persisted book = %q with %d chunks, want Sample with 3", got.Title, len(got.Chunks))
	}
	for i, c := range got.Chunks {
		if len(c.Embedding) == 0 {
			t.Errorf("chunks[%d] missing embedding", i)
		}
		if c.BookID != b.ID {
			t.Errorf("chunks[%d].BookID = %q, want %q", i, c.BookID, b.ID)
		}
	}
}

func Test_Ingest_RejectsInvalidInput(t *testing.T) {
	t.Parallel()

	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	p, err := NewPipeline(&countingEmbedder{}, s, nil)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	cases := []struct {
		name    string
		content string
	}{
		{"not json", "not json at all"},
		{"missing title", `{"chunks": [{"page": 1, "text": "x"}]}`},
		{"no chunks", `{"title": "Empty"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			path := writeBookFile(t, tc.content)
			if _, err := p.Ingest(context.Background(), path, nil); err == nil {
				t.Error("want error, got nil")
			}
		})
	}

	if _, err := p.Ingest(context.Background(), filepath.Join(t.TempDir(), "missing.json"), nil); err == nil {
		t.Error("missing file: want error, got nil")
	}
}
