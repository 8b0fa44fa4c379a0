package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/readai-labs/readai-go/internal/ingest"
	"github.com/readai-labs/readai-go/internal/logging"
)

// NewIngestCmd constructs the `readai ingest` command, which loads a
// pre-chunked book file, embeds its chunks, and stores the book locally.
func NewIngestCmd() *cobra.Command {
	var batchSize int

	cmd := &cobra.Command{
		Use:   "ingest [book.json]",
		Short: "Ingest a pre-chunked book file into the local library",
		Long: `Ingest a book from a pre-chunked JSON file.

The file carries the title, optional metadata, and a list of page-aligned
chunks. Every chunk is embedded with the configured embedding backend
(EMBEDDING_PROVIDER / MODEL_PROVIDER, default ollama) and the book is
persisted to the local SQLite library.

Expected file shape:
  {
    "title": "The Sea Journal",
    "metadata": {"author": "..."},
    "chunks": [
      {"page": 1, "text": "..."},
      {"page": 2, "text": "..."}
    ]
  }

Examples:
  readai ingest ./books/sea-journal.json
  EMBEDDING_PROVIDER=openai readai ingest ./books/sea-journal.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			emb, _, err := buildEmbedder()
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			db, err := openStore(log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer func() { _ = db.Close() }()

			pipeline, err := ingest.NewPipeline(emb, db, &ingest.Config{EmbedBatchSize: batchSize})
			if err != nil {
				return fmt.Errorf("ingest: failed to create pipeline: %w", err)
			}

			b, err := pipeline.Ingest(ctx, args[0], func(msg string) {
				log.Info(msg)
			})
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			fmt.Printf("ingested %q: %d chunks across %d pages, book ID %s\n",
				b.Title, len(b.Chunks), pageCount(b), b.ID)
			return nil
		},
	}

	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Chunks embedded per call (default: 20)")

	return cmd
}
