package server

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/readai-labs/readai-go/internal/book"
	"github.com/readai-labs/readai-go/internal/logging"
	"github.com/readai-labs/readai-go/internal/rag"
	"github.com/readai-labs/readai-go/internal/store"
	"github.com/readai-labs/readai-go/internal/translate"
)

// fakeAsker implements the asker interface for handler tests. It replays the
// configured callback sequence and returns the configured result.
type fakeAsker struct {
	// result is returned when err is nil.
	result *rag.Result
	// err is returned as the error value.
	err error
	// tokens are emitted through OnToken before returning.
	tokens []string
	// gotHistory records the history passed to the last call.
	gotHistory []book.ChatMessage
}

func (f *fakeAsker) GenerateAnswer(ctx context.Context, b *book.Book, query string, history []book.ChatMessage, cb *rag.Callbacks) (*rag.Result, error) {
	f.gotHistory = history
	if f.err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, f.err
	}
	if cb != nil && cb.OnThought != nil {
		cb.OnThought(rag.ThoughtProcess{Stage: "init", Thought: "Answering.", Timestamp: time.Now()})
	}
	if cb != nil && cb.OnToolUse != nil {
		cb.OnToolUse(rag.ToolUse{ToolName: "vector_search", Timestamp: time.Now()})
	}
	for _, tok := range f.tokens {
		if cb != nil && cb.OnToken != nil {
			cb.OnToken(tok)
		}
	}
	if cb != nil && cb.OnDone != nil {
		cb.OnDone()
	}
	return f.result, nil
}

// fakeTranslator implements the bookTranslator interface for handler tests.
type fakeTranslator struct {
	// result is returned from every TranslateBook call.
	result translate.Result
	// progress reports are replayed through onProgress before returning.
	progress []translate.Progress
}

func (f *fakeTranslator) TranslateBook(_ context.Context, _ *book.Book, _ translate.Options, onProgress func(translate.Progress)) translate.Result {
	if onProgress != nil {
		for _, p := range f.progress {
			onProgress(p)
		}
	}
	return f.result
}

// newTestServer builds a *Server with fakes, a real in-memory store, and a
// fresh metrics registry.
func newTestServer(t *testing.T) (*Server, *store.SQLiteStore) {
	t.Helper()

	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	srv := &Server{
		asker:      &fakeAsker{result: &rag.Result{Answer: "ok"}},
		translator: &fakeTranslator{},
		lib:        s,
		cfg:        &Config{},
		log:        logging.Discard(),
		metrics:    newServerMetrics(prometheus.NewRegistry()),
	}
	return srv, s
}

// seedBook persists a small two-chunk book and returns it.
func seedBook(t *testing.T, s *store.SQLiteStore, id string) *book.Book {
	t.Helper()
	b := &book.Book{
		ID:    id,
		Title: "A Field Guide",
		Chunks: []book.Chunk{
			{ID: id + "-c1", BookID: id, Page: 1, Text: "The sky is blue."},
			{ID: id + "-c2", BookID: id, Page: 2, Text: "Water boils at 100C."},
		},
		Metadata:  map[string]string{"author": "Anon"},
		CreatedAt: time.Now(),
	}
	if err := s.SaveBook(context.Background(), b); err != nil {
		t.Fatalf("seed book: %v", err)
	}
	return b
}
