package rag

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/readai-labs/readai-go/internal/book"
	"github.com/readai-labs/readai-go/internal/config"
	"github.com/readai-labs/readai-go/internal/embedder"
	"github.com/readai-labs/readai-go/internal/index"
	"github.com/readai-labs/readai-go/internal/logging"
)

// noContextAnswer is returned when retrieval produced nothing usable. It is a
// defined terminal state, not an error.
const noContextAnswer = "I could not find relevant information in the book or our conversation to answer that question. Try rephrasing it, or ask about a different part of the book."

// apologyFallback is the untranslated apology used when the orchestration
// chain fails and the localization call also fails.
const apologyFallback = "I'm sorry, something went wrong while answering your question. Please try again."

// Config holds the dependencies for constructing an Engine.
type Config struct {
	// ChatModel is the generation backend shared by all pipeline stages.
	ChatModel ChatModel
	// Embedder produces vectors for queries, chunks, and history messages.
	// Wrap it in embedder.NewFallback so retrieval survives provider outages.
	Embedder embedder.Embedder
	// Cache memoizes one vector index per book. Required.
	Cache *index.Cache
	// Tuning carries the retrieval knobs (floors, top-k, window sizes).
	Tuning config.RAGTuning
	// NewStore constructs the index storage backend for one book. Nil means
	// in-memory.
	NewStore func(ctx context.Context, bookID string) (index.Store, error)
}

// Engine sequences source selection, retrieval, history search, and answer
// synthesis for one question. Its public contract never surfaces provider
// errors: every run ends in a well-formed Result, except cancellation, which
// is returned as the context's error.
type Engine struct {
	model    ChatModel
	selector *Selector
	planner  *Planner
	history  *HistorySearch
	synth    *Synthesizer
	emb      embedder.Embedder
	cache    *index.Cache
	tuning   config.RAGTuning
	newStore func(ctx context.Context, bookID string) (index.Store, error)
}

// NewEngine constructs an Engine from the given config.
func NewEngine(cfg *Config) (*Engine, error) {
	if cfg.ChatModel == nil {
		return nil, fmt.Errorf("rag: ChatModel must not be nil")
	}
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("rag: Embedder must not be nil")
	}
	if cfg.Cache == nil {
		return nil, fmt.Errorf("rag: Cache must not be nil")
	}

	newStore := cfg.NewStore
	if newStore == nil {
		newStore = func(_ context.Context, _ string) (index.Store, error) {
			return index.NewMemory(), nil
		}
	}

	return &Engine{
		model:    cfg.ChatModel,
		selector: NewSelector(cfg.ChatModel),
		planner:  NewPlanner(cfg.ChatModel, cfg.Tuning.QueryVariants),
		history:  NewHistorySearch(cfg.Embedder, cfg.Tuning.HistoryWindow, cfg.Tuning.ChatFloor),
		synth:    NewSynthesizer(cfg.ChatModel),
		emb:      cfg.Embedder,
		cache:    cfg.Cache,
		tuning:   cfg.Tuning,
		newStore: newStore,
	}, nil
}

// run accumulates the trace for one GenerateAnswer call.
type run struct {
	cb       *Callbacks
	thoughts []ThoughtProcess
	toolUses []ToolUse
}

func (r *run) thought(stage, thought string) {
	tp := ThoughtProcess{Stage: stage, Thought: thought, Timestamp: time.Now()}
	r.thoughts = append(r.thoughts, tp)
	r.cb.thought(tp)
}

func (r *run) toolUse(name string, input map[string]any, output string) {
	tu := ToolUse{ToolName: name, Input: input, Output: output, Timestamp: time.Now()}
	r.toolUses = append(r.toolUses, tu)
	r.cb.toolUse(tu)
}

// GenerateAnswer answers a question about a book, optionally grounded in the
// book's chat history. Callbacks may be nil. The returned error is non-nil
// only on cancellation; every other failure is contained and reported inside
// the Result.
func (e *Engine) GenerateAnswer(ctx context.Context, b *book.Book, query string, history []book.ChatMessage, cb *Callbacks) (*Result, error) {
	r := &run{cb: cb}
	r.thought("init", fmt.Sprintf("Answering a question about %q.", b.Title))
	cb.progress("analyzing question")

	result, err := e.generate(ctx, r, b, query, history)
	if err != nil {
		if ctx.Err() != nil {
			// Cancellation is a distinct terminal state, never dressed up as
			// a complete result.
			return nil, ctx.Err()
		}
		logging.FromContext(ctx).Error("rag: orchestration failed", slog.Any("error", err))
		r.thought("error", "Something went wrong while answering; returning an apology.")
		answer := e.localizedApology(ctx, query)
		cb.token(answer)
		cb.done()
		return &Result{
			Answer:         answer,
			ThoughtProcess: r.thoughts,
			ToolUses:       r.toolUses,
			RelevantChunks: []book.Chunk{},
		}, nil
	}
	return result, nil
}

// generate is the fallible inner state machine. Any error it returns is
// converted by GenerateAnswer into the apology terminal state.
func (e *Engine) generate(ctx context.Context, r *run, b *book.Book, query string, history []book.ChatMessage) (*Result, error) {
	// Source selection always completes before any retrieval begins.
	sel := e.selector.Decide(ctx, query, history)
	r.toolUse("select_sources", map[string]any{"query": query},
		fmt.Sprintf("useBook=%t useChat=%t (%s)", sel.UseBook, sel.UseChat, sel.Reason))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var passages []book.Chunk
	if sel.UseBook {
		r.thought("query_analysis", "Expanding the question into diversified search queries.")
		chunks, err := e.retrieve(ctx, r, b, query)
		if err != nil {
			return nil, err
		}
		passages = chunks
		r.thought("retrieval_complete", fmt.Sprintf("Found %d relevant passages in the book.", len(passages)))
	}

	var snippets []Snippet
	if sel.UseChat && len(history) > 0 {
		r.cb.progress("searching conversation history")
		snippets = e.history.Search(ctx, history, query, e.tuning.TopK)
		r.toolUse("search_chat_history", map[string]any{"query": query},
			fmt.Sprintf("%d matching messages", len(snippets)))
		r.thought("chat_history", fmt.Sprintf("Considered earlier conversation; %d snippets relevant.", len(snippets)))
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	// With nothing retrieved there is nothing to synthesize from.
	if len(passages) == 0 && len(snippets) == 0 {
		r.thought("complete", "No relevant context found; answering with the standard notice.")
		r.cb.token(noContextAnswer)
		r.cb.done()
		return &Result{
			Answer:         noContextAnswer,
			ThoughtProcess: r.thoughts,
			ToolUses:       r.toolUses,
			RelevantChunks: []book.Chunk{},
			ChatSnippets:   snippets,
		}, nil
	}

	r.thought("synthesis", fmt.Sprintf("Composing an answer from %d passages and %d snippets.", len(passages), len(snippets)))
	r.cb.progress("writing answer")
	answer, err := e.synth.Run(ctx, query, passages, snippets, func(delta string) {
		r.cb.token(delta)
	}, func() {
		r.cb.done()
	})
	if err != nil {
		return nil, err
	}

	r.thought("complete", "Answer ready.")
	return &Result{
		Answer:         answer,
		ThoughtProcess: r.thoughts,
		ToolUses:       r.toolUses,
		RelevantChunks: passages,
		ChatSnippets:   snippets,
	}, nil
}

// retrieve runs the planner's queries against the book's cached vector index
// and returns the deduplicated union of matching passages.
func (e *Engine) retrieve(ctx context.Context, r *run, b *book.Book, query string) ([]book.Chunk, error) {
	r.cb.progress("indexing book")
	ix, err := e.cache.GetOrBuild(ctx, b.ID, func(ctx context.Context) (*index.Index, error) {
		return e.buildIndex(ctx, b)
	})
	if err != nil {
		return nil, fmt.Errorf("rag: build index for book %s: %w", b.ID, err)
	}

	queries := e.planner.Expand(ctx, query)
	r.thought("strategy", fmt.Sprintf("Searching the book with %d queries.", len(queries)))
	r.cb.progress("searching book")

	// Dedup is keyed by chunk ID, or a text prefix when the ID is absent, so
	// the final passage set is deterministic regardless of query order.
	seen := make(map[string]struct{})
	var passages []book.Chunk
	for _, q := range queries {
		scored, err := ix.Search(ctx, q, e.tuning.TopK, e.tuning.BookFloor)
		if err != nil {
			return nil, fmt.Errorf("rag: search %q: %w", q, err)
		}
		r.toolUse("vector_search", map[string]any{"query": q, "topK": e.tuning.TopK},
			fmt.Sprintf("%d passages above floor", len(scored)))

		for _, s := range scored {
			key := s.ChunkID
			if key == "" {
				key = textKey(s.Text)
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			passages = append(passages, book.Chunk{
				ID:       s.ChunkID,
				BookID:   b.ID,
				Page:     s.Page,
				Text:     s.Text,
				Metadata: s.Metadata,
			})
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return passages, nil
}

// buildIndex creates and populates a fresh index from the book's chunk list.
func (e *Engine) buildIndex(ctx context.Context, b *book.Book) (*index.Index, error) {
	store, err := e.newStore(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	ix := index.New(store, e.emb)

	entries := make([]index.Entry, 0, len(b.Chunks))
	for _, c := range b.Chunks {
		entries = append(entries, index.Entry{
			ChunkID:   c.ID,
			Page:      c.Page,
			Text:      c.Text,
			Embedding: c.Embedding,
			Metadata:  c.Metadata,
		})
	}
	if err := ix.Add(ctx, entries); err != nil {
		_ = ix.Close()
		return nil, err
	}
	return ix, nil
}

// localizedApology makes one best-effort attempt to rewrite the generic
// apology in the language of the user's question. Its failure is swallowed;
// the untranslated apology is always an acceptable outcome.
func (e *Engine) localizedApology(ctx context.Context, query string) string {
	msg, err := e.model.Generate(ctx, []*schema.Message{
		schema.SystemMessage("Rewrite the given apology in the same language as the user's question. Respond with the rewritten apology only."),
		schema.UserMessage(fmt.Sprintf("Question: %s\n\nApology: %s", query, apologyFallback)),
	})
	if err != nil || msg == nil || msg.Content == "" {
		return apologyFallback
	}
	return msg.Content
}

// textKey derives a dedup key from passage text when no chunk ID is present.
func textKey(text string) string {
	if len(text) > 64 {
		return text[:64]
	}
	return text
}

// Invalidate drops the cached vector index for a book. Call after deleting a
// book or replacing its chunks.
func (e *Engine) Invalidate(bookID string) {
	e.cache.Invalidate(bookID)
}
