package rag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/readai-labs/readai-go/internal/book"
)

const synthesizerSystemPrompt = `You answer a reader's question about a book using ONLY the supplied context.

Rules:
1. Address each aspect of the question using only the passages and
   conversation snippets provided below.
2. Cite pages in [p. N] form, or [pp. N-M] for a range, after each claim
   drawn from a passage.
3. If the context is insufficient to answer part of the question, say so
   explicitly rather than guessing.
4. Respond in the same language as the question.`

// Synthesizer turns aggregated passages and chat snippets into a streamed,
// grounded answer.
type Synthesizer struct {
	model ChatModel
}

// NewSynthesizer returns a Synthesizer backed by the given model.
func NewSynthesizer(m ChatModel) *Synthesizer {
	return &Synthesizer{model: m}
}

// Run streams an answer for the query grounded in the given context. onToken
// receives each normalized delta in order; onDone fires exactly once when the
// stream ends cleanly. Either callback may be nil. The full accumulated text
// is returned regardless of how many deltas were non-empty.
func (s *Synthesizer) Run(
	ctx context.Context,
	query string,
	passages []book.Chunk,
	snippets []Snippet,
	onToken func(string),
	onDone func(),
) (string, error) {
	var ctxSB strings.Builder
	if len(passages) > 0 {
		ctxSB.WriteString("Book passages:\n")
		for _, c := range passages {
			fmt.Fprintf(&ctxSB, "[Page %d]: %s\n", c.Page, c.Text)
		}
	}
	if len(snippets) > 0 {
		ctxSB.WriteString("\nEarlier conversation snippets:\n")
		for _, sn := range snippets {
			fmt.Fprintf(&ctxSB, "[#%d %s]: %s\n", sn.Index, sn.Role, sn.Content)
		}
	}

	msgs := []*schema.Message{
		schema.SystemMessage(synthesizerSystemPrompt),
		schema.SystemMessage("Context:\n" + ctxSB.String()),
		schema.UserMessage(query),
	}

	sr, err := s.model.Stream(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("rag: synthesis stream failed: %w", err)
	}
	defer sr.Close()

	var norm deltaNormalizer
	for {
		msg, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return norm.text(), fmt.Errorf("rag: synthesis stream receive: %w", err)
		}
		if msg == nil || msg.Content == "" {
			continue
		}
		if delta := norm.feed(msg.Content); delta != "" && onToken != nil {
			onToken(delta)
		}
	}

	if onDone != nil {
		onDone()
	}
	return norm.text(), nil
}
