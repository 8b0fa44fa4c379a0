package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/readai-labs/readai-go/internal/book"
	"github.com/readai-labs/readai-go/internal/config"
	"github.com/readai-labs/readai-go/internal/index"
	"github.com/readai-labs/readai-go/internal/logging"
	"github.com/readai-labs/readai-go/internal/provider"
	"github.com/readai-labs/readai-go/internal/rag"
	"github.com/readai-labs/readai-go/internal/store"
)

// NewAskCmd constructs the `readai ask` command, which answers a single
// question about an ingested book and streams the answer to stdout.
func NewAskCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "ask [book-id] [question]",
		Short: "Ask a question about an ingested book",
		Long: `Ask a natural language question about one of your ingested books.

The answer is grounded in the book's text and your past conversation about
it, with page citations like [p. 42]. The exchange is appended to the
book's chat thread so follow-up questions have context.

Examples:
  readai ask 3f2a... "why does the narrator distrust the sea?"
  readai ask --verbose 3f2a... "what happens in chapter three?"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)
			bookID, question := args[0], args[1]

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("ask: failed to initialise model provider: %w", err)
			}
			emb, dims, err := buildEmbedder()
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			db, err := openStore(log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer func() { _ = db.Close() }()

			b, err := db.GetBook(ctx, bookID)
			if err != nil {
				return fmt.Errorf("ask: load book %s: %w", bookID, err)
			}
			history, err := db.Thread(ctx, bookID)
			if err != nil {
				log.Warn("ask: thread load failed, starting fresh")
				history = nil
			}

			engine, err := rag.NewEngine(&rag.Config{
				ChatModel: chatModel,
				Embedder:  emb,
				Cache:     index.NewCache(),
				Tuning:    config.RAGTuningFromEnv(),
				NewStore:  newIndexStoreFactory(vectorConfigFromEnv(), dims),
			})
			if err != nil {
				return fmt.Errorf("ask: failed to initialise engine: %w", err)
			}

			cb := &rag.Callbacks{
				OnToken: func(delta string) { fmt.Print(delta) },
				OnDone:  func() { fmt.Println() },
			}
			if verbose {
				cb.OnThought = func(tp rag.ThoughtProcess) {
					fmt.Fprintf(os.Stderr, "[%s] %s\n", tp.Stage, tp.Thought)
				}
				cb.OnToolUse = func(tu rag.ToolUse) {
					fmt.Fprintf(os.Stderr, "[tool:%s] %s\n", tu.ToolName, tu.Output)
				}
			}

			res, err := engine.GenerateAnswer(ctx, b, question, history, cb)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			persistExchange(ctx, db, bookID, question, res, log)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print the reasoning trace to stderr")

	return cmd
}

// persistExchange appends the question and answer to the book's thread.
// Failures are logged, never fatal: the answer has already been printed.
func persistExchange(ctx context.Context, db store.ThreadStore, bookID, question string, res *rag.Result, log *slog.Logger) {
	now := time.Now()
	pages := make([]int, 0, len(res.RelevantChunks))
	seen := map[int]struct{}{}
	for _, c := range res.RelevantChunks {
		if _, ok := seen[c.Page]; !ok {
			seen[c.Page] = struct{}{}
			pages = append(pages, c.Page)
		}
	}
	sort.Ints(pages)

	if err := db.AppendMessage(ctx, bookID, book.ChatMessage{Role: book.RoleUser, Content: question, CreatedAt: now}); err != nil {
		log.Warn("ask: persist user message failed", slog.Any("error", err))
		return
	}
	if err := db.AppendMessage(ctx, bookID, book.ChatMessage{Role: book.RoleAssistant, Content: res.Answer, Pages: pages, CreatedAt: now}); err != nil {
		log.Warn("ask: persist assistant message failed", slog.Any("error", err))
	}
}
