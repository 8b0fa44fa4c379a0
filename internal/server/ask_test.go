package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/readai-labs/readai-go/internal/book"
	"github.com/readai-labs/readai-go/internal/rag"
)

func postAsk(s *Server, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.handleAsk(w, req)
	return w
}

func TestHandleAsk_InvalidJSON(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	if w := postAsk(s, `not-json`); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleAsk_MissingFields(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	for _, body := range []string{`{"query":"why"}`, `{"bookId":"b1"}`, `{}`} {
		if w := postAsk(s, body); w.Code != http.StatusBadRequest {
			t.Errorf("body %s: expected 400, got %d", body, w.Code)
		}
	}
}

func TestHandleAsk_BookNotFound(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	if w := postAsk(s, `{"bookId":"missing","query":"why"}`); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

// TestHandleAsk_StreamsEvents verifies the full SSE event sequence for a
// successful answer: thought, tool, token, result, done.
func TestHandleAsk_StreamsEvents(t *testing.T) {
	t.Parallel()

	s, db := newTestServer(t)
	b := seedBook(t, db, "b1")
	s.asker = &fakeAsker{
		tokens: []string{"The sky ", "is blue."},
		result: &rag.Result{
			Answer:         "The sky is blue.",
			RelevantChunks: []book.Chunk{b.Chunks[0]},
		},
	}

	w := postAsk(s, `{"bookId":"b1","query":"what color is the sky?"}`)
	body := w.Body.String()

	for _, want := range []string{"event: thought", "event: tool", "event: token", "event: result", "event: done"} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in SSE body, got: %s", want, body)
		}
	}
	if !strings.Contains(body, `"delta":"The sky "`) {
		t.Errorf("expected first token delta in body, got: %s", body)
	}
	if !strings.Contains(body, "[DONE]") {
		t.Errorf("expected [DONE] sentinel in body, got: %s", body)
	}
}

// TestHandleAsk_PersistsExchange verifies that the question and answer land
// in the book's thread, with the assistant message carrying cited pages.
func TestHandleAsk_PersistsExchange(t *testing.T) {
	t.Parallel()

	s, db := newTestServer(t)
	b := seedBook(t, db, "b1")
	s.asker = &fakeAsker{
		result: &rag.Result{
			Answer:         "Blue [p. 1].",
			RelevantChunks: []book.Chunk{b.Chunks[0], b.Chunks[1], b.Chunks[0]},
		},
	}

	postAsk(s, `{"bookId":"b1","query":"what color?"}`)

	thread, err := db.Thread(context.Background(), "b1")
	if err != nil {
		t.Fatalf("thread: %v", err)
	}
	if len(thread) != 2 {
		t.Fatalf("expected 2 persisted messages, got %d", len(thread))
	}
	if thread[0].Role != book.RoleUser || thread[0].Content != "what color?" {
		t.Errorf("user message = %+v", thread[0])
	}
	if thread[1].Role != book.RoleAssistant || thread[1].Content != "Blue [p. 1]." {
		t.Errorf("assistant message = %+v", thread[1])
	}
	if fmt.Sprint(thread[1].Pages) != "[1 2]" {
		t.Errorf("cited pages = %v, want [1 2]", thread[1].Pages)
	}
}

// TestHandleAsk_ForwardsHistory verifies the existing thread reaches the
// answering pipeline.
func TestHandleAsk_ForwardsHistory(t *testing.T) {
	t.Parallel()

	s, db := newTestServer(t)
	seedBook(t, db, "b1")
	if err := db.AppendMessage(context.Background(), "b1", book.ChatMessage{
		Role: book.RoleUser, Content: "earlier question",
	}); err != nil {
		t.Fatalf("append: %v", err)
	}
	fa := &fakeAsker{result: &rag.Result{Answer: "ok"}}
	s.asker = fa

	postAsk(s, `{"bookId":"b1","query":"follow-up"}`)

	if len(fa.gotHistory) != 1 || fa.gotHistory[0].Content != "earlier question" {
		t.Errorf("forwarded history = %+v, want the earlier question", fa.gotHistory)
	}
}

// TestHandleAsk_PipelineError verifies that a pipeline failure is delivered
// in-band as an error event (the SSE headers are already on the wire).
func TestHandleAsk_PipelineError(t *testing.T) {
	t.Parallel()

	s, db := newTestServer(t)
	seedBook(t, db, "b1")
	s.asker = &fakeAsker{err: fmt.Errorf("model unavailable")}

	w := postAsk(s, `{"bookId":"b1","query":"why?"}`)
	body := w.Body.String()

	if !strings.Contains(body, "event: error") {
		t.Errorf("expected error event in body, got: %s", body)
	}
	if !strings.Contains(body, "model unavailable") {
		t.Errorf("expected error message in body, got: %s", body)
	}
	if strings.Contains(body, "event: done") {
		t.Errorf("done event must not follow an error, got: %s", body)
	}
}

func TestCitedPages(t *testing.T) {
	t.Parallel()

	chunks := []book.Chunk{{Page: 3}, {Page: 1}, {Page: 3}, {Page: 2}}
	got := citedPages(chunks)
	if fmt.Sprint(got) != "[1 2 3]" {
		t.Errorf("citedPages = %v, want [1 2 3]", got)
	}
	if citedPages(nil) != nil {
		t.Error("citedPages(nil) should be nil")
	}
}
