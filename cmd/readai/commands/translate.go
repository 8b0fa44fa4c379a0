package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/readai-labs/readai-go/internal/config"
	"github.com/readai-labs/readai-go/internal/logging"
	"github.com/readai-labs/readai-go/internal/provider"
	"github.com/readai-labs/readai-go/internal/translate"
)

// NewTranslateCmd constructs the `readai translate` command, which translates
// an ingested book into another language and stores the result as a new
// derived book.
func NewTranslateCmd() *cobra.Command {
	var targetLang string
	var sourceLang string

	cmd := &cobra.Command{
		Use:   "translate [book-id]",
		Short: "Translate an ingested book into another language",
		Long: `Translate every chunk of an ingested book into the target language.

The translation runs in concurrent batches and produces a new derived book
with the same page alignment as the source. Batches that fail keep the
original text, so a partial provider outage degrades quality rather than
aborting the run.

Examples:
  readai translate 3f2a... --to german
  readai translate 3f2a... --to french --from english`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)
			bookID := args[0]

			if targetLang == "" {
				return fmt.Errorf("translate: --to is required")
			}

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("translate: failed to initialise model provider: %w", err)
			}
			emb, _, err := buildEmbedder()
			if err != nil {
				return fmt.Errorf("translate: %w", err)
			}

			db, err := openStore(log)
			if err != nil {
				return fmt.Errorf("translate: %w", err)
			}
			defer func() { _ = db.Close() }()

			src, err := db.GetBook(ctx, bookID)
			if err != nil {
				return fmt.Errorf("translate: load book %s: %w", bookID, err)
			}

			tr := translate.New(chatModel, emb, config.TranslateTuningFromEnv())

			res := tr.TranslateBook(ctx, src, translate.Options{
				TargetLanguage: targetLang,
				SourceLanguage: sourceLang,
			}, func(p translate.Progress) {
				log.Info("translation progress",
					slog.Int("completed", p.Completed),
					slog.Int("total", p.Total),
					slog.String("status", p.Status),
				)
			})

			if !res.Success {
				return fmt.Errorf("translate: %s", res.Error)
			}
			if err := db.SaveBook(ctx, res.Book); err != nil {
				return fmt.Errorf("translate: save derived book: %w", err)
			}

			fmt.Printf("translated %q into %s: %d/%d pages, new book ID %s\n",
				src.Title, targetLang, res.TranslatedPageCount, pageCount(src), res.Book.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&targetLang, "to", "", "Target language (required)")
	cmd.Flags().StringVar(&sourceLang, "from", "", "Source language (default: auto-detect)")

	return cmd
}
