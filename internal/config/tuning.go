package config

import (
	"os"
	"strconv"
)

// Default pipeline tuning values. These are empirical constants carried over
// from production use; every one of them can be overridden via env or YAML.
const (
	// DefaultBookFloor is the minimum cosine similarity for book passages.
	DefaultBookFloor float32 = 0.3
	// DefaultChatFloor is the minimum cosine similarity for chat snippets.
	DefaultChatFloor float32 = 0.25
	// DefaultTopK is the per-query passage count.
	DefaultTopK = 5
	// DefaultQueryVariants is the number of planner-generated query variants.
	DefaultQueryVariants = 3
	// DefaultHistoryWindow bounds how many recent chat messages are searched.
	DefaultHistoryWindow = 80
	// DefaultBatchSize is the translation batch size in chunks.
	DefaultBatchSize = 5
	// DefaultMaxConcurrency is the number of translation batches in flight.
	DefaultMaxConcurrency = 10
	// DefaultEmbedBatchSize is the embedding regeneration sub-batch size.
	DefaultEmbedBatchSize = 20
)

// RAGTuning is the resolved tuning for the question-answering pipeline.
type RAGTuning struct {
	// BookFloor is the minimum cosine similarity for book passages.
	BookFloor float32
	// ChatFloor is the minimum cosine similarity for chat-history snippets.
	ChatFloor float32
	// TopK is the number of passages retrieved per search query.
	TopK int
	// QueryVariants is the number of planner-generated query variants.
	QueryVariants int
	// HistoryWindow bounds how many recent chat messages are searched.
	HistoryWindow int
}

// RAGTuningFromEnv resolves RAG tuning from environment variables,
// falling back to the package defaults.
func RAGTuningFromEnv() RAGTuning {
	return RAGTuning{
		BookFloor:     envFloat32("RAG_BOOK_FLOOR", DefaultBookFloor),
		ChatFloor:     envFloat32("RAG_CHAT_FLOOR", DefaultChatFloor),
		TopK:          envInt("RAG_TOP_K", DefaultTopK),
		QueryVariants: envInt("RAG_QUERY_VARIANTS", DefaultQueryVariants),
		HistoryWindow: envInt("RAG_HISTORY_WINDOW", DefaultHistoryWindow),
	}
}

// TranslateTuning is the resolved tuning for the batch translation engine.
type TranslateTuning struct {
	// BatchSize is the number of chunks translated per model call.
	BatchSize int
	// MaxConcurrency is the number of batches allowed in flight at once.
	MaxConcurrency int
	// EmbedBatchSize is the sub-batch size for embedding regeneration.
	EmbedBatchSize int
}

// TranslateTuningFromEnv resolves translation tuning from environment
// variables, falling back to the package defaults.
func TranslateTuningFromEnv() TranslateTuning {
	return TranslateTuning{
		BatchSize:      envInt("TRANSLATE_BATCH_SIZE", DefaultBatchSize),
		MaxConcurrency: envInt("TRANSLATE_MAX_CONCURRENCY", DefaultMaxConcurrency),
		EmbedBatchSize: envInt("TRANSLATE_EMBED_BATCH_SIZE", DefaultEmbedBatchSize),
	}
}

// envInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// envFloat32 returns the float32 value of the named environment variable,
// or fallback if the variable is unset, empty, or not parseable.
func envFloat32(key string, fallback float32) float32 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return float32(f)
		}
	}
	return fallback
}
