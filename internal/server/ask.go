package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/readai-labs/readai-go/internal/book"
	"github.com/readai-labs/readai-go/internal/logging"
	"github.com/readai-labs/readai-go/internal/rag"
)

// handleAsk handles POST /api/ask. It streams the answering pipeline's
// milestones and answer tokens as SSE events (thought, tool, progress, token,
// result, done) and persists both sides of the exchange to the book's thread.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.BookID == "" || req.Query == "" {
		http.Error(w, "bookId and query are required", http.StatusBadRequest)
		return
	}

	b, ok := s.loadBook(w, r, req.BookID)
	if !ok {
		return
	}

	history, err := s.lib.Thread(r.Context(), req.BookID)
	if err != nil {
		// An unreadable thread degrades to a fresh conversation.
		log.Warn("ask: thread load failed", slog.String("book_id", req.BookID), slog.Any("error", err))
		history = nil
	}

	stream := newSSEStream(w, r)
	if stream == nil {
		return
	}

	s.metrics.askActiveStreams.Inc()
	defer s.metrics.askActiveStreams.Dec()
	start := time.Now()

	cb := &rag.Callbacks{
		OnThought:  func(tp rag.ThoughtProcess) { stream.event("thought", tp) },
		OnToolUse:  func(tu rag.ToolUse) { stream.event("tool", tu) },
		OnProgress: func(status string) { stream.event("progress", map[string]string{"status": status}) },
		OnToken:    func(delta string) { stream.event("token", map[string]string{"delta": delta}) },
	}

	res, err := s.asker.GenerateAnswer(r.Context(), b, req.Query, history, cb)
	if err != nil {
		outcome := "error"
		if r.Context().Err() != nil {
			outcome = "canceled"
		}
		s.metrics.askRequestsTotal.WithLabelValues(outcome).Inc()
		s.metrics.askDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
		stream.errorEvent(err.Error())
		return
	}

	s.appendExchange(r, req.BookID, req.Query, res)

	stream.event("result", res)
	stream.done()
	s.metrics.askRequestsTotal.WithLabelValues("ok").Inc()
	s.metrics.askDurationSeconds.WithLabelValues("ok").Observe(time.Since(start).Seconds())
}

// appendExchange persists the question and answer to the book's thread.
// Persistence is best effort: a failed write is logged, never surfaced to the
// client, since the answer has already streamed.
func (s *Server) appendExchange(r *http.Request, bookID, query string, res *rag.Result) {
	log := logging.FromContext(r.Context())
	now := time.Now()

	if err := s.lib.AppendMessage(r.Context(), bookID, book.ChatMessage{
		Role:      book.RoleUser,
		Content:   query,
		CreatedAt: now,
	}); err != nil {
		log.Warn("ask: persist user message failed", slog.Any("error", err))
		return
	}
	if err := s.lib.AppendMessage(r.Context(), bookID, book.ChatMessage{
		Role:      book.RoleAssistant,
		Content:   res.Answer,
		Pages:     citedPages(res.RelevantChunks),
		CreatedAt: now,
	}); err != nil {
		log.Warn("ask: persist assistant message failed", slog.Any("error", err))
	}
}

// citedPages returns the distinct page numbers of the given chunks, ascending.
func citedPages(chunks []book.Chunk) []int {
	seen := make(map[int]struct{}, len(chunks))
	var pages []int
	for _, c := range chunks {
		if _, ok := seen[c.Page]; ok {
			continue
		}
		seen[c.Page] = struct{}{}
		pages = append(pages, c.Page)
	}
	sort.Ints(pages)
	return pages
}
