package rag

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/readai-labs/readai-go/internal/book"
	"github.com/readai-labs/readai-go/internal/embedder"
	"github.com/readai-labs/readai-go/internal/index"
	"github.com/readai-labs/readai-go/internal/logging"
)

// HistorySearch ranks prior chat turns against a query by embedding
// similarity, with a keyword-containment fallback when embeddings are
// unavailable. Only a bounded window of the most recent messages is ever
// considered; snippet indexes always refer to the full, unwindowed history.
type HistorySearch struct {
	emb embedder.Embedder
	// window bounds how many trailing messages are searchable.
	window int
	// floor is the minimum cosine similarity for a match.
	floor float32
}

// NewHistorySearch returns a HistorySearch over the last window messages with
// the given similarity floor. Defaults: window 80, floor 0.25.
func NewHistorySearch(emb embedder.Embedder, window int, floor float32) *HistorySearch {
	if window <= 0 {
		window = 80
	}
	if floor <= 0 {
		floor = 0.25
	}
	return &HistorySearch{emb: emb, window: window, floor: floor}
}

// Search returns the top k history messages most relevant to the query,
// ordered by descending score. It never returns an error: an embedding
// failure degrades to keyword scoring.
func (h *HistorySearch) Search(ctx context.Context, history []book.ChatMessage, query string, k int) []Snippet {
	if len(history) == 0 {
		return nil
	}
	if k <= 0 {
		k = 5
	}

	// Older history is excluded from search entirely, a hard cost bound.
	offset := 0
	windowed := history
	if len(history) > h.window {
		offset = len(history) - h.window
		windowed = history[offset:]
	}

	// One batched call embeds every windowed message plus the query.
	texts := make([]string, 0, len(windowed)+1)
	for _, m := range windowed {
		texts = append(texts, fmt.Sprintf("[%s] %s", m.Role, m.Content))
	}
	texts = append(texts, query)

	vecs, err := h.emb.Embed(ctx, texts)
	if err != nil || len(vecs) != len(texts) {
		logging.FromContext(ctx).Warn("rag: history embedding unavailable, using keyword scoring",
			slog.Any("error", err))
		return h.keywordSearch(windowed, offset, query, k)
	}

	queryVec := vecs[len(vecs)-1]
	snippets := make([]Snippet, 0, len(windowed))
	for i, m := range windowed {
		score := index.Cosine(queryVec, vecs[i])
		if score > h.floor {
			snippets = append(snippets, Snippet{
				Index:   offset + i,
				Role:    m.Role,
				Content: m.Content,
				Score:   score,
			})
		}
	}

	sort.SliceStable(snippets, func(i, j int) bool { return snippets[i].Score > snippets[j].Score })
	if len(snippets) > k {
		snippets = snippets[:k]
	}
	return snippets
}

// keywordSearch is the degraded ranking used when embeddings fail. Exact
// substring matches score highest, then token overlap, with a small tiebreak
// favoring user messages.
func (h *HistorySearch) keywordSearch(windowed []book.ChatMessage, offset int, query string, k int) []Snippet {
	queryLower := strings.ToLower(query)
	queryTokens := tokenize(queryLower)

	snippets := make([]Snippet, 0, len(windowed))
	for i, m := range windowed {
		contentLower := strings.ToLower(m.Content)

		var score float32
		if strings.Contains(contentLower, queryLower) {
			score = 1.0
		} else if len(queryTokens) > 0 {
			matched := 0
			for _, tok := range queryTokens {
				if strings.Contains(contentLower, tok) {
					matched++
				}
			}
			score = 0.5 * float32(matched) / float32(len(queryTokens))
		}
		if m.Role == book.RoleUser {
			score += 0.05
		}
		if score > 0.05 {
			snippets = append(snippets, Snippet{
				Index:   offset + i,
				Role:    m.Role,
				Content: m.Content,
				Score:   score,
			})
		}
	}

	sort.SliceStable(snippets, func(i, j int) bool { return snippets[i].Score > snippets[j].Score })
	if len(snippets) > k {
		snippets = snippets[:k]
	}
	return snippets
}

// tokenize splits lowercased text into word tokens, dropping short noise
// words.
func tokenize(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9') && r < 0x80
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) >= 3 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
