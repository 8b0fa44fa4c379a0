package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/readai-labs/readai-go/internal/book"
	"github.com/readai-labs/readai-go/internal/logging"
	"github.com/readai-labs/readai-go/internal/store"
)

// handleListBooks handles GET /api/books. Chunk lists are never inlined.
func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := s.lib.ListBooks(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("books: list failed", slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	out := make([]bookSummary, 0, len(books))
	for _, b := range books {
		out = append(out, summarize(b))
	}
	writeJSON(w, r, http.StatusOK, out)
}

// handleGetBook handles GET /api/books/{id}.
func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	b, ok := s.loadBook(w, r, r.PathValue("id"))
	if !ok {
		return
	}
	writeJSON(w, r, http.StatusOK, summarize(b))
}

// handleDeleteBook handles DELETE /api/books/{id}. The book's cached vector
// index is dropped so a re-ingested book with the same ID starts fresh.
func (s *Server) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.lib.DeleteBook(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "book not found", http.StatusNotFound)
			return
		}
		logging.FromContext(r.Context()).Error("books: delete failed",
			slog.String("book_id", id), slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if s.invalidate != nil {
		s.invalidate(id)
	}
	w.WriteHeader(http.StatusNoContent)
}

// loadBook fetches a book and maps store errors to HTTP responses. Returns
// false when a response has already been written.
func (s *Server) loadBook(w http.ResponseWriter, r *http.Request, id string) (*book.Book, bool) {
	b, err := s.lib.GetBook(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "book not found", http.StatusNotFound)
			return nil, false
		}
		logging.FromContext(r.Context()).Error("books: load failed",
			slog.String("book_id", id), slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return nil, false
	}
	return b, true
}

// summarize converts a book into its listing shape.
func summarize(b *book.Book) bookSummary {
	return bookSummary{
		ID:         b.ID,
		Title:      b.Title,
		Metadata:   b.Metadata,
		ChunkCount: len(b.Chunks),
		CreatedAt:  b.CreatedAt,
	}
}

// writeJSON encodes payload as the JSON response body.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(r.Context()).Error("response encode failed", slog.Any("error", err))
	}
}
