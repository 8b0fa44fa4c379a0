package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/readai-labs/readai-go/internal/logging"
	"github.com/readai-labs/readai-go/internal/translate"
)

// handleTranslate handles POST /api/translate. It runs the batch translation
// pipeline and streams progress as SSE events, ending with a "result" event
// that references the derived book by ID.
func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req translateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.BookID == "" || req.TargetLanguage == "" {
		http.Error(w, "bookId and targetLanguage are required", http.StatusBadRequest)
		return
	}

	src, ok := s.loadBook(w, r, req.BookID)
	if !ok {
		return
	}

	stream := newSSEStream(w, r)
	if stream == nil {
		return
	}

	start := time.Now()
	opts := translate.Options{
		TargetLanguage: req.TargetLanguage,
		SourceLanguage: req.SourceLanguage,
	}

	// Progress callbacks are serialized by the translator, so writing the
	// stream from them is safe.
	res := s.translator.TranslateBook(r.Context(), src, opts, func(p translate.Progress) {
		stream.event("progress", p)
	})

	outcome := "ok"
	defer func() {
		s.metrics.translateRequestsTotal.WithLabelValues(outcome).Inc()
		s.metrics.translateDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	if !res.Success {
		outcome = "failed"
		if r.Context().Err() != nil {
			outcome = "canceled"
		}
		stream.event("result", translateDone{Success: false, Error: res.Error})
		stream.done()
		return
	}

	if err := s.lib.SaveBook(r.Context(), res.Book); err != nil {
		outcome = "error"
		log.Error("translate: save derived book failed",
			slog.String("book_id", res.Book.ID), slog.Any("error", err))
		stream.errorEvent("derived book could not be saved")
		return
	}

	log.Info("translate: derived book saved",
		slog.String("source_id", src.ID),
		slog.String("book_id", res.Book.ID),
		slog.Int("translated_pages", res.TranslatedPageCount),
	)
	stream.event("result", translateDone{
		Success:             true,
		BookID:              res.Book.ID,
		Title:               res.Book.Title,
		TranslatedPageCount: res.TranslatedPageCount,
	})
	stream.done()
}
