package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/readai-labs/readai-go/internal/index"
	"github.com/readai-labs/readai-go/internal/logging"
)

// NewBooksCmd constructs the `readai books` command group for inspecting and
// managing the local library.
func NewBooksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "books",
		Short: "List or delete books in the local library",
	}

	cmd.AddCommand(newBooksListCmd(), newBooksDeleteCmd())
	return cmd
}

func newBooksListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all ingested books, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			db, err := openStore(log)
			if err != nil {
				return fmt.Errorf("books: %w", err)
			}
			defer func() { _ = db.Close() }()

			books, err := db.ListBooks(ctx)
			if err != nil {
				return fmt.Errorf("books: list: %w", err)
			}
			if len(books) == 0 {
				fmt.Println("no books ingested yet")
				return nil
			}
			for _, b := range books {
				fmt.Printf("%s  %s  (%s)\n", b.ID, b.Title, b.CreatedAt.Format("2006-01-02"))
			}
			return nil
		},
	}
}

func newBooksDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [book-id]",
		Short: "Delete a book, its chat thread, and its vector index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)
			bookID := args[0]

			db, err := openStore(log)
			if err != nil {
				return fmt.Errorf("books: %w", err)
			}
			defer func() { _ = db.Close() }()

			if err := db.DeleteBook(ctx, bookID); err != nil {
				return fmt.Errorf("books: delete %s: %w", bookID, err)
			}
			dropVectorCollection(ctx, bookID)

			fmt.Printf("deleted book %s\n", bookID)
			return nil
		},
	}
}

// dropVectorCollection best-effort removes the book's qdrant collection when
// the qdrant backend is configured. Memory indexes die with the process.
func dropVectorCollection(ctx context.Context, bookID string) {
	cfg := vectorConfigFromEnv()
	if cfg.Backend != "qdrant" {
		return
	}
	if err := index.DropQdrantCollection(ctx, cfg, bookID); err != nil {
		logging.FromContext(ctx).Warn("books: drop vector collection failed", slog.Any("error", err))
	}
}
