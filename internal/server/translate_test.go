package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/readai-labs/readai-go/internal/book"
	"github.com/readai-labs/readai-go/internal/translate"
)

func postTranslate(s *Server, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/translate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.handleTranslate(w, req)
	return w
}

func TestHandleTranslate_MissingFields(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	for _, body := range []string{`{"bookId":"b1"}`, `{"targetLanguage":"german"}`, `not-json`} {
		if w := postTranslate(s, body); w.Code != http.StatusBadRequest {
			t.Errorf("body %s: expected 400, got %d", body, w.Code)
		}
	}
}

func TestHandleTranslate_BookNotFound(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	if w := postTranslate(s, `{"bookId":"missing","targetLanguage":"german"}`); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

// TestHandleTranslate_Success verifies that progress events stream, the
// derived book is persisted, and the result event references it by ID.
func TestHandleTranslate_Success(t *testing.T) {
	t.Parallel()

	s, db := newTestServer(t)
	seedBook(t, db, "b1")

	derived := &book.Book{
		ID:    "b1-german-1700000000",
		Title: "A Field Guide (german)",
		Chunks: []book.Chunk{
			{ID: "d1", BookID: "b1-german-1700000000", Page: 1, Text: "Der Himmel ist blau."},
		},
		CreatedAt: time.Now(),
	}
	s.translator = &fakeTranslator{
		progress: []translate.Progress{
			{Completed: 1, Total: 2, Status: "translated batch"},
			{Completed: 2, Total: 2, Status: "complete"},
		},
		result: translate.Result{Success: true, Book: derived, TranslatedPageCount: 1},
	}

	w := postTranslate(s, `{"bookId":"b1","targetLanguage":"german"}`)
	body := w.Body.String()

	if got := strings.Count(body, "event: progress"); got != 2 {
		t.Errorf("expected 2 progress events, got %d in: %s", got, body)
	}
	if !strings.Contains(body, `"bookId":"b1-german-1700000000"`) {
		t.Errorf("expected derived book ID in result event, got: %s", body)
	}
	if !strings.Contains(body, "event: done") {
		t.Errorf("expected done event, got: %s", body)
	}

	saved, err := db.GetBook(context.Background(), derived.ID)
	if err != nil {
		t.Fatalf("derived book not persisted: %v", err)
	}
	if len(saved.Chunks) != 1 || saved.Chunks[0].Text != "Der Himmel ist blau." {
		t.Errorf("persisted derived book = %+v", saved.Chunks)
	}
}

// TestHandleTranslate_Failure verifies a failed run yields a result event
// with success:false and no persisted book.
func TestHandleTranslate_Failure(t *testing.T) {
	t.Parallel()

	s, db := newTestServer(t)
	seedBook(t, db, "b1")
	s.translator = &fakeTranslator{
		result: translate.Result{Success: false, Error: "translate: source book is missing or has no chunks"},
	}

	w := postTranslate(s, `{"bookId":"b1","targetLanguage":"german"}`)
	body := w.Body.String()

	if !strings.Contains(body, `"success":false`) {
		t.Errorf("expected success:false in result event, got: %s", body)
	}
	if !strings.Contains(body, "event: done") {
		t.Errorf("failed runs still end with a done event, got: %s", body)
	}

	books, err := db.ListBooks(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(books) != 1 {
		t.Errorf("expected only the source book persisted, got %d books", len(books))
	}
}

// erroringLibrary wraps the real store but fails every SaveBook call.
type erroringLibrary struct {
	library
}

func (e *erroringLibrary) SaveBook(_ context.Context, _ *book.Book) error {
	return errors.New("disk full")
}

func TestHandleTranslate_SaveError(t *testing.T) {
	t.Parallel()

	s, db := newTestServer(t)
	seedBook(t, db, "b1")
	s.translator = &fakeTranslator{
		result: translate.Result{Success: true, Book: &book.Book{ID: "d1", Title: "x"}, TranslatedPageCount: 1},
	}
	s.lib = &erroringLibrary{library: db}

	w := postTranslate(s, `{"bookId":"b1","targetLanguage":"german"}`)
	body := w.Body.String()

	if !strings.Contains(body, "event: error") {
		t.Errorf("expected error event when save fails, got: %s", body)
	}
}
