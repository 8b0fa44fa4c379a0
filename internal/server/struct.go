package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/readai-labs/readai-go/internal/book"
	"github.com/readai-labs/readai-go/internal/rag"
	"github.com/readai-labs/readai-go/internal/store"
	"github.com/readai-labs/readai-go/internal/translate"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	// Must be long enough for SSE answer and translation streams.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, slog.Default() is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives all Prometheus metric registrations. If nil,
	// a fresh registry is created so tests stay hermetic.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Must gather from MetricsRegistry.
	MetricsGatherer prometheus.Gatherer
}

// asker is the interface handleAsk calls to answer a reading question.
// *rag.Engine satisfies it; tests inject a fake.
type asker interface {
	GenerateAnswer(ctx context.Context, b *book.Book, query string, history []book.ChatMessage, cb *rag.Callbacks) (*rag.Result, error)
}

// bookTranslator is the interface handleTranslate calls to produce a derived
// book. *translate.Translator satisfies it; tests inject a fake.
type bookTranslator interface {
	TranslateBook(ctx context.Context, src *book.Book, opts translate.Options, onProgress func(translate.Progress)) translate.Result
}

// library is the persistence surface the handlers need: books plus per-book
// chat threads. *store.SQLiteStore satisfies it.
type library interface {
	store.BookStore
	store.ThreadStore
}

// Server is the HTTP server that exposes the answering and translation
// pipelines over a REST/SSE API.
type Server struct {
	// asker generates streamed answers for POST /api/ask.
	asker asker
	// translator runs batch translations for POST /api/translate.
	translator bookTranslator
	// lib persists books and chat threads.
	lib library
	// invalidate drops a book's cached vector index after deletion or
	// translation. May be nil.
	invalidate func(bookID string)
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the per-instance Prometheus instruments.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// askRequest is the JSON body for POST /api/ask.
type askRequest struct {
	// BookID identifies the book the question is about.
	BookID string `json:"bookId"`
	// Query is the reader's natural language question.
	Query string `json:"query"`
}

// translateRequest is the JSON body for POST /api/translate.
type translateRequest struct {
	// BookID identifies the source book.
	BookID string `json:"bookId"`
	// TargetLanguage is the language to translate into.
	TargetLanguage string `json:"targetLanguage"`
	// SourceLanguage is optional; empty means auto-detect.
	SourceLanguage string `json:"sourceLanguage,omitempty"`
}

// bookSummary is the JSON shape for book listings. Chunks are never inlined;
// clients fetch chunk counts instead.
type bookSummary struct {
	// ID is the book identifier.
	ID string `json:"id"`
	// Title is the book title.
	Title string `json:"title"`
	// Metadata carries provenance and arbitrary key/value pairs.
	Metadata map[string]string `json:"metadata,omitempty"`
	// ChunkCount is the number of stored chunks, when known.
	ChunkCount int `json:"chunkCount,omitempty"`
	// CreatedAt is when the book was ingested or derived.
	CreatedAt time.Time `json:"createdAt"`
}

// translateDone is the JSON payload of the final "result" SSE event on
// POST /api/translate. The derived book is reported by reference, never
// inlined into the stream.
type translateDone struct {
	// Success mirrors translate.Result.Success.
	Success bool `json:"success"`
	// BookID is the derived book's identifier when Success is true.
	BookID string `json:"bookId,omitempty"`
	// Title is the derived book's title when Success is true.
	Title string `json:"title,omitempty"`
	// TranslatedPageCount counts distinct fully-translated pages.
	TranslatedPageCount int `json:"translatedPageCount"`
	// Error describes the failure when Success is false.
	Error string `json:"error,omitempty"`
}
