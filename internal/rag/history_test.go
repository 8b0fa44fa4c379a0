package rag

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/readai-labs/readai-go/internal/book"
)

// erroringEmbedder forces the keyword fallback path.
type erroringEmbedder struct{}

func (erroringEmbedder) Embed(_ context.Context, _ []string) ([][]float32, error) {
	return nil, errors.New("embedding outage")
}

func Test_HistorySearch_WindowBound(t *testing.T) {
	t.Parallel()

	// 200 messages; only the last 80 are searchable. The single relevant
	// message sits inside the window at full-history index 150.
	history := make([]book.ChatMessage, 200)
	for i := range history {
		history[i] = book.ChatMessage{Role: book.RoleUser, Content: fmt.Sprintf("filler %d", i)}
	}
	history[150].Content = "tell me about the sky"
	// A matching message outside the window must never be returned.
	history[10].Content = "the sky again, but too old"

	emb := &keywordEmbedder{}
	h := NewHistorySearch(emb, 80, 0.25)

	got := h.Search(ragTestCtx(), history, "What color is the sky?", 5)
	if len(got) != 1 {
		t.Fatalf("Search() returned %d snippets, want 1: %+v", len(got), got)
	}
	if got[0].Index != 150 {
		t.Errorf("snippet index = %d, want 150 (position in the full history)", got[0].Index)
	}
	if got[0].Content != "tell me about the sky" {
		t.Errorf("snippet content = %q", got[0].Content)
	}
}

func Test_HistorySearch_SingleBatchedEmbedCall(t *testing.T) {
	t.Parallel()

	history := []book.ChatMessage{
		{Role: book.RoleUser, Content: "about the sky"},
		{Role: book.RoleAssistant, Content: "about water"},
	}
	emb := &keywordEmbedder{}
	h := NewHistorySearch(emb, 80, 0.25)

	h.Search(ragTestCtx(), history, "sky?", 5)
	// Window messages plus the query, all in one batch.
	if n := emb.calls.Load(); n != 3 {
		t.Errorf("embedder saw %d texts, want 3 (2 messages + query)", n)
	}
}

func Test_HistorySearch_EmptyHistory(t *testing.T) {
	t.Parallel()

	h := NewHistorySearch(&keywordEmbedder{}, 80, 0.25)
	if got := h.Search(ragTestCtx(), nil, "anything", 5); got != nil {
		t.Errorf("Search() on empty history = %+v, want nil", got)
	}
}

func Test_HistorySearch_KeywordFallback(t *testing.T) {
	t.Parallel()

	history := []book.ChatMessage{
		{Role: book.RoleAssistant, Content: "The protagonist visits Paris in chapter two."},
		{Role: book.RoleUser, Content: "what happens in Paris?"},
		{Role: book.RoleAssistant, Content: "Nothing relevant here."},
	}
	h := NewHistorySearch(erroringEmbedder{}, 80, 0.25)

	got := h.Search(ragTestCtx(), history, "Paris", 5)
	if len(got) < 2 {
		t.Fatalf("Search() keyword fallback returned %d snippets, want at least 2: %+v", len(got), got)
	}
	// Both Paris messages contain the query as a substring; the user message
	// wins the role tiebreak.
	if got[0].Index != 1 {
		t.Errorf("top snippet index = %d, want 1 (user message favored on ties)", got[0].Index)
	}
	for _, sn := range got {
		if sn.Index == 2 {
			t.Errorf("irrelevant message ranked: %+v", sn)
		}
	}
}

func Test_HistorySearch_KeywordFallback_TokenOverlap(t *testing.T) {
	t.Parallel()

	history := []book.ChatMessage{
		{Role: book.RoleAssistant, Content: "the sky appears blue due to scattering"},
		{Role: book.RoleAssistant, Content: "water boils at one hundred degrees"},
	}
	h := NewHistorySearch(erroringEmbedder{}, 80, 0.25)

	got := h.Search(ragTestCtx(), history, "why is the sky blue", 5)
	if len(got) == 0 {
		t.Fatal("Search() returned no snippets, want the sky message via token overlap")
	}
	if got[0].Index != 0 {
		t.Errorf("top snippet index = %d, want 0", got[0].Index)
	}
}

func Test_HistorySearch_TopKTruncation(t *testing.T) {
	t.Parallel()

	history := make([]book.ChatMessage, 10)
	for i := range history {
		history[i] = book.ChatMessage{Role: book.RoleUser, Content: fmt.Sprintf("sky note %d", i)}
	}
	h := NewHistorySearch(&keywordEmbedder{}, 80, 0.25)

	got := h.Search(ragTestCtx(), history, "sky?", 3)
	if len(got) != 3 {
		t.Errorf("Search() returned %d snippets, want 3", len(got))
	}
}
