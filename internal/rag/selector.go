package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/readai-labs/readai-go/internal/book"
	"github.com/readai-labs/readai-go/internal/logging"
)

// ChatModel is the narrow generation interface the pipeline depends on.
// model.ToolCallingChatModel satisfies it; tests inject fakes.
type ChatModel interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
	Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error)
}

// Selection is the source-selection decision for one query.
type Selection struct {
	// UseBook enables retrieval over the book's vector index.
	UseBook bool `json:"useBook"`
	// UseChat enables search over prior chat history.
	UseChat bool `json:"useChat"`
	// Reason is the model's stated rationale, advisory only.
	Reason string `json:"reason"`
}

// defaultSelection is used whenever the selector call fails or its output is
// malformed. Consulting only the book is the safe under-selection.
var defaultSelection = Selection{
	UseBook: true,
	UseChat: false,
	Reason:  "default",
}

// selectorHistoryTurns is how many recent turns are shown to the selector.
const selectorHistoryTurns = 10

const selectorSystemPrompt = `You decide which sources are needed to answer a reader's question about a book.

Respond with ONLY a JSON object in this exact shape, no markdown fencing, no other text:
{"useBook": true, "useChat": false, "reason": "one short sentence"}

Defaults: useBook=true, useChat=false. Set useChat=true only when the question
clearly depends on continuity with the prior conversation (e.g. "what did you
just say about...", "expand on that"). Set useBook=false only when the question
is purely about the conversation itself and needs no book content.`

// Selector decides which sources to consult for a query.
type Selector struct {
	model ChatModel
}

// NewSelector returns a Selector backed by the given model.
func NewSelector(m ChatModel) *Selector {
	return &Selector{model: m}
}

// Decide classifies the query against the last few history turns. It never
// returns an error: on any failure the stated defaults apply.
func (s *Selector) Decide(ctx context.Context, query string, history []book.ChatMessage) Selection {
	turns := history
	if len(turns) > selectorHistoryTurns {
		turns = turns[len(turns)-selectorHistoryTurns:]
	}

	var sb strings.Builder
	for _, m := range turns {
		fmt.Fprintf(&sb, "[%s] %s\n", m.Role, m.Content)
	}

	user := fmt.Sprintf("Recent conversation:\n%s\nQuestion: %s", sb.String(), query)
	msg, err := s.model.Generate(ctx, []*schema.Message{
		schema.SystemMessage(selectorSystemPrompt),
		schema.UserMessage(user),
	})
	if err != nil {
		logging.FromContext(ctx).Warn("rag: source selection failed, using defaults", slog.Any("error", err))
		return defaultSelection
	}

	sel, ok := parseSelection(msg.Content)
	if !ok {
		logging.FromContext(ctx).Warn("rag: source selection returned malformed JSON, using defaults",
			slog.String("response", truncate(msg.Content, 200)))
		return defaultSelection
	}
	return sel
}

// truncate shortens s for log output.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
