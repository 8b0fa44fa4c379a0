// Package translate implements parallel batch translation of a book's chunks.
// Chunks are grouped into contiguous batches, each batch is translated in one
// model call using a strict delimiter protocol, and batches run under a
// bounded concurrency gate. Failures degrade per batch to the original text;
// the overall call reports a structured result, never an error.
package translate

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/readai-labs/readai-go/internal/book"
	"github.com/readai-labs/readai-go/internal/config"
	"github.com/readai-labs/readai-go/internal/embedder"
	"github.com/readai-labs/readai-go/internal/logging"
)

// delimiter separates translated segments in the model response. The parser
// depends on this exact framing, so the prompt forbids any other commentary.
const delimiter = "<<<SEGMENT_BREAK>>>"

// Generator is the narrow generation interface the translator depends on.
// model.ToolCallingChatModel satisfies it; tests inject fakes.
type Generator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// Options configures one translation run. Zero values fall back to the
// configured defaults.
type Options struct {
	// TargetLanguage is the language to translate into. Required.
	TargetLanguage string
	// SourceLanguage is the source language, or empty for auto-detection.
	SourceLanguage string
	// BatchSize is how many chunks go into one model call.
	BatchSize int
	// MaxConcurrency bounds how many batches are in flight at once.
	MaxConcurrency int
	// EmbedBatchSize is the embedding regeneration sub-batch size.
	EmbedBatchSize int
}

// Progress is one progress report during a run. Completed counts chunks and
// only ever increases.
type Progress struct {
	// Completed is the number of chunks processed so far.
	Completed int `json:"completed"`
	// Total is the total chunk count.
	Total int `json:"total"`
	// Status is short human-readable status text.
	Status string `json:"status"`
	// LastPage is the page number of the most recently completed batch.
	LastPage int `json:"lastPage,omitempty"`
}

// Result is the structured outcome of one translation run. Callers must check
// Success rather than expecting an error.
type Result struct {
	// Success reports whether a derived book was produced.
	Success bool `json:"success"`
	// Book is the derived, translated book. Nil when Success is false.
	Book *book.Book `json:"book,omitempty"`
	// Error describes the failure when Success is false.
	Error string `json:"error,omitempty"`
	// TranslatedPageCount is the number of distinct pages whose batches
	// translated successfully.
	TranslatedPageCount int `json:"translatedPageCount"`
}

// Translator translates books batch by batch.
type Translator struct {
	model  Generator
	emb    embedder.Embedder
	tuning config.TranslateTuning
}

// New returns a Translator using the given generation model and embedder.
// Wrap the embedder in embedder.NewFallback so regeneration cannot fail.
func New(m Generator, emb embedder.Embedder, tuning config.TranslateTuning) *Translator {
	return &Translator{model: m, emb: emb, tuning: tuning}
}

// TranslateBook translates every chunk of src into the target language and
// assembles a derived book. onProgress may be nil. Batches that fail keep
// their original text; only a missing or empty source book, or cancellation,
// yields Success=false.
func (t *Translator) TranslateBook(ctx context.Context, src *book.Book, opts Options, onProgress func(Progress)) Result {
	if src == nil || len(src.Chunks) == 0 {
		return Result{Success: false, Error: "translate: source book is missing or has no chunks"}
	}
	if opts.TargetLanguage == "" {
		return Result{Success: false, Error: "translate: target language is required"}
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = t.tuning.BatchSize
	}
	maxConcurrency := opts.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = t.tuning.MaxConcurrency
	}
	embedBatchSize := opts.EmbedBatchSize
	if embedBatchSize <= 0 {
		embedBatchSize = t.tuning.EmbedBatchSize
	}

	started := time.Now()
	total := len(src.Chunks)

	// Output is written positionally so the final chunk order equals the
	// input order regardless of batch completion order.
	texts := make([]string, total)
	batchCount := (total + batchSize - 1) / batchSize
	batchOK := make([]bool, batchCount)

	report := newReporter(total, onProgress)
	report.send(0, fmt.Sprintf("translating %d chunks in %d batches", total, batchCount), 0)

	// Channel semaphore: a batch starts as soon as a slot frees up.
	sem := make(chan struct{}, maxConcurrency)
	var wg sync.WaitGroup
	for b := 0; b < batchCount; b++ {
		if ctx.Err() != nil {
			break
		}
		start := b * batchSize
		end := start + batchSize
		if end > total {
			end = total
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(b, start, end int) {
			defer wg.Done()
			defer func() { <-sem }()

			batch := src.Chunks[start:end]
			translated, err := t.translateBatch(ctx, batch, opts)
			if err != nil {
				// Failure is isolated to this batch: its chunks keep the
				// original text.
				logging.FromContext(ctx).Warn("translate: batch failed, keeping original text",
					slog.Int("batch", b), slog.Any("error", err))
				for i, c := range batch {
					texts[start+i] = c.Text
				}
			} else {
				batchOK[b] = true
				copy(texts[start:], translated)
			}

			report.add(end-start, fmt.Sprintf("batch %d/%d done", b+1, batchCount), batch[len(batch)-1].Page)
		}(b, start, end)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return Result{Success: false, Error: fmt.Sprintf("translate: cancelled: %v", err)}
	}

	// Regenerate embeddings for the (possibly partially translated) texts in
	// fixed-size sub-batches.
	report.send(total, "regenerating embeddings", 0)
	embeddings := t.regenerateEmbeddings(ctx, texts, embedBatchSize)

	derived := t.assemble(src, opts, texts, embeddings, started)
	report.send(total, "translation complete", 0)

	return Result{
		Success:             true,
		Book:                derived,
		TranslatedPageCount: countTranslatedPages(src.Chunks, batchOK, batchSize),
	}
}

// translateBatch translates one contiguous chunk batch in a single model
// call. Short responses are applied positionally; unmatched chunks keep their
// original text.
func (t *Translator) translateBatch(ctx context.Context, batch []book.Chunk, opts Options) ([]string, error) {
	var sb strings.Builder
	for i, c := range batch {
		fmt.Fprintf(&sb, "[SEGMENT %d]\n%s\n[END SEGMENT %d]\n", i+1, c.Text, i+1)
	}

	source := opts.SourceLanguage
	if source == "" {
		source = "the source language (detect it)"
	}
	system := fmt.Sprintf(`You are a literary translator. Translate each segment below from %s into %s.

Rules:
1. Return exactly %d translations in the same order as the segments.
2. Separate consecutive translations with the token %s on its own line.
3. Preserve the internal formatting, line breaks, and punctuation style of
   each segment.
4. Output the translations only. No segment markers, numbering, or commentary.`,
		source, opts.TargetLanguage, len(batch), delimiter)

	msg, err := t.model.Generate(ctx, []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(sb.String()),
	})
	if err != nil {
		return nil, fmt.Errorf("translate: batch generate: %w", err)
	}

	parts := parseBatchResponse(msg.Content)
	out := make([]string, len(batch))
	for i, c := range batch {
		if i < len(parts) && parts[i] != "" {
			out[i] = parts[i]
		} else {
			// Graceful partial degradation for short responses.
			out[i] = c.Text
		}
	}
	if len(parts) < len(batch) {
		logging.FromContext(ctx).Warn("translate: batch response short, keeping originals for the tail",
			slog.Int("want", len(batch)), slog.Int("got", len(parts)))
	}
	return out, nil
}

// segmentMarker matches stray [SEGMENT i] / [END SEGMENT i] markers a model
// may echo back despite instructions.
var segmentMarker = regexp.MustCompile(`(?m)^\[(?:END )?SEGMENT \d+\]\s*$`)

// parseBatchResponse splits a batch response on the delimiter and strips any
// echoed segment markers.
func parseBatchResponse(raw string) []string {
	parts := strings.Split(raw, delimiter)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = segmentMarker.ReplaceAllString(p, "")
		p = strings.TrimSpace(p)
		out = append(out, p)
	}
	// A trailing delimiter produces one empty tail part; drop it.
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return out
}

// regenerateEmbeddings embeds texts in fixed-size sub-batches. A sub-batch
// failure leaves nil embeddings for its chunks; the index builder re-embeds
// lazily later.
func (t *Translator) regenerateEmbeddings(ctx context.Context, texts []string, embedBatchSize int) [][]float32 {
	embeddings := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := t.emb.Embed(ctx, texts[start:end])
		if err != nil || len(vecs) != end-start {
			logging.FromContext(ctx).Warn("translate: embedding sub-batch failed",
				slog.Int("start", start), slog.Any("error", err))
			continue
		}
		copy(embeddings[start:], vecs)
	}
	return embeddings
}

// assemble builds the derived book with provenance metadata linking back to
// the source.
func (t *Translator) assemble(src *book.Book, opts Options, texts []string, embeddings [][]float32, started time.Time) *book.Book {
	langCode := strings.ToLower(strings.ReplaceAll(opts.TargetLanguage, " ", "-"))
	derived := &book.Book{
		ID:    fmt.Sprintf("%s-%s-%d", src.ID, langCode, started.Unix()),
		Title: fmt.Sprintf("%s (%s)", src.Title, opts.TargetLanguage),
		Metadata: map[string]string{
			"translated_from": src.ID,
			"source_language": orAuto(opts.SourceLanguage),
			"target_language": opts.TargetLanguage,
			"translated_at":   started.UTC().Format(time.RFC3339),
			"duration":        time.Since(started).Round(time.Millisecond).String(),
		},
		CreatedAt: time.Now(),
	}

	derived.Chunks = make([]book.Chunk, len(src.Chunks))
	for i, c := range src.Chunks {
		meta := map[string]string{
			"translated_from_chunk": c.ID,
			"target_language":       opts.TargetLanguage,
		}
		for k, v := range c.Metadata {
			if _, taken := meta[k]; !taken {
				meta[k] = v
			}
		}
		derived.Chunks[i] = book.Chunk{
			ID:        uuid.NewString(),
			BookID:    derived.ID,
			Page:      c.Page,
			Text:      texts[i],
			Embedding: embeddings[i],
			Metadata:  meta,
		}
	}
	return derived
}

// countTranslatedPages counts the distinct pages whose batches all succeeded.
func countTranslatedPages(chunks []book.Chunk, batchOK []bool, batchSize int) int {
	pages := make(map[int]bool)
	for i, c := range chunks {
		if batchOK[i/batchSize] {
			pages[c.Page] = true
		}
	}
	return len(pages)
}

func orAuto(lang string) string {
	if lang == "" {
		return "auto"
	}
	return lang
}

// reporter serializes progress callbacks and keeps the completed count
// monotonically increasing under concurrent batch completion.
type reporter struct {
	mu        sync.Mutex
	completed int
	total     int
	fn        func(Progress)
}

func newReporter(total int, fn func(Progress)) *reporter {
	return &reporter{total: total, fn: fn}
}

// add advances the completed count by n and reports. Count update and
// callback happen under one lock so reports stay monotonic.
func (r *reporter) add(n int, status string, lastPage int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed += n
	if r.fn != nil {
		r.fn(Progress{Completed: r.completed, Total: r.total, Status: status, LastPage: lastPage})
	}
}

// send reports an absolute milestone without changing the running count.
func (r *reporter) send(completed int, status string, lastPage int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fn != nil {
		r.fn(Progress{Completed: completed, Total: r.total, Status: status, LastPage: lastPage})
	}
}
