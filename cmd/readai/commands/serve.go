package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/qdrant/go-client/qdrant"
	"github.com/spf13/cobra"

	"github.com/readai-labs/readai-go/internal/config"
	"github.com/readai-labs/readai-go/internal/index"
	"github.com/readai-labs/readai-go/internal/logging"
	"github.com/readai-labs/readai-go/internal/provider"
	"github.com/readai-labs/readai-go/internal/rag"
	"github.com/readai-labs/readai-go/internal/server"
	"github.com/readai-labs/readai-go/internal/store"
	"github.com/readai-labs/readai-go/internal/tracing"
	"github.com/readai-labs/readai-go/internal/translate"
)

// NewServeCmd constructs the `readai serve` command, which starts the HTTP
// server exposing the answering and translation pipelines over SSE.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ReadAI HTTP/SSE server",
		Long: `Start the ReadAI HTTP server on localhost.

The server exposes POST /api/ask and POST /api/translate as SSE streams,
plus book management, health, readiness, and Prometheus metrics endpoints.

Examples:
  readai serve
  readai serve --port 9090
  MODEL_PROVIDER=openai readai serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Langfuse tracing is opt-in, a no-op when the keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			providerCfg := provider.ConfigFromEnv()
			chatModel, err := provider.New(ctx, providerCfg)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise model provider: %w", err)
			}
			log.Info("provider initialised", slog.String("provider", string(providerCfg.Backend)))

			emb, dims, err := buildEmbedder()
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			db, err := openStore(log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer func() { _ = db.Close() }()

			vectorCfg := vectorConfigFromEnv()
			cache := index.NewCache()

			engine, err := rag.NewEngine(&rag.Config{
				ChatModel: chatModel,
				Embedder:  emb,
				Cache:     cache,
				Tuning:    config.RAGTuningFromEnv(),
				NewStore:  newIndexStoreFactory(vectorCfg, dims),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to initialise engine: %w", err)
			}

			translator := translate.New(chatModel, emb, config.TranslateTuningFromEnv())

			pingers := buildPingers(db, vectorCfg, log)

			srv, err := server.New(engine, translator, db, engine.Invalidate, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: pingers,
				APIKey:  os.Getenv("READAI_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}

// buildPingers assembles the readiness probes for the configured stack:
// always the local store, the Ollama endpoint when it backs embeddings or
// chat, and Qdrant when it backs the vector index.
func buildPingers(db *store.SQLiteStore, vectorCfg *config.VectorConfig, log *slog.Logger) []server.Pinger {
	pingers := []server.Pinger{server.NewStorePinger(db)}

	if getEnvOrDefault("MODEL_PROVIDER", "ollama") == "ollama" ||
		getEnvOrDefault("EMBEDDING_PROVIDER", "") == "ollama" {
		base := getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434")
		pingers = append(pingers, server.NewHTTPPinger("ollama", base+"/api/tags"))
	}

	if vectorCfg.Backend == "qdrant" {
		client, err := qdrant.NewClient(&qdrant.Config{
			Host:   vectorCfg.Host,
			Port:   vectorCfg.Port,
			APIKey: vectorCfg.APIKey,
			UseTLS: vectorCfg.TLS,
		})
		if err != nil {
			log.Warn("serve: qdrant pinger unavailable", slog.Any("error", err))
		} else {
			pingers = append(pingers, server.NewQdrantPinger(client))
		}
	}

	return pingers
}
