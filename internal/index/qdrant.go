package index

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/qdrant/go-client/qdrant"

	"github.com/readai-labs/readai-go/internal/config"
)

// Qdrant is a Store backed by a Qdrant collection. One collection is used per
// book so deleting a book maps to dropping its collection. Enabled with
// VECTOR_BACKEND=qdrant; the in-memory store remains the default.
type Qdrant struct {
	client     *qdrant.Client
	collection string
	count      atomic.Int64
}

// NewQdrant connects to the Qdrant instance described by cfg and ensures the
// per-book collection exists, creating it with cosine distance if necessary.
func NewQdrant(ctx context.Context, cfg *config.VectorConfig, bookID string, vectorSize int) (*Qdrant, error) {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.TLS,
	})
	if err != nil {
		return nil, fmt.Errorf("index: failed to create qdrant client: %w", err)
	}

	s := &Qdrant{
		client:     client,
		collection: "readai_book_" + bookID,
	}
	if err := s.ensureCollection(ctx, uint64(vectorSize)); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Qdrant) ensureCollection(ctx context.Context, vectorSize uint64) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("index: failed to check collection existence: %w", err)
	}
	if exists {
		count, err := s.client.Count(ctx, &qdrant.CountPoints{CollectionName: s.collection})
		if err != nil {
			return fmt.Errorf("index: failed to count collection %q: %w", s.collection, err)
		}
		s.count.Store(int64(count))
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     vectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("index: failed to create collection %q: %w", s.collection, err)
	}
	return nil
}

// Add upserts entries with their embeddings into the collection.
func (s *Qdrant) Add(ctx context.Context, entries []Entry) error {
	points := make([]*qdrant.PointStruct, 0, len(entries))
	for _, e := range entries {
		payload := map[string]interface{}{
			"chunk_id": e.ChunkID,
			"page":     int64(e.Page),
			"text":     e.Text,
		}
		for k, v := range e.Metadata {
			payload["meta_"+k] = v
		}

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(e.ChunkID),
			Vectors: qdrant.NewVectors(e.Embedding...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("index: qdrant upsert failed: %w", err)
	}
	s.count.Add(int64(len(entries)))
	return nil
}

// Search performs a cosine similarity search with a server-side score floor.
func (s *Qdrant) Search(ctx context.Context, queryEmbedding []float32, topK int, minScore float32) ([]Scored, error) {
	if topK <= 0 {
		topK = 5
	}
	limit := uint64(topK)
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(queryEmbedding...),
		Limit:          &limit,
		ScoreThreshold: &minScore,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("index: qdrant search failed: %w", err)
	}

	scored := make([]Scored, 0, len(results))
	for _, r := range results {
		// ScoreThreshold is inclusive; the floor contract is strict.
		if r.Score <= minScore {
			continue
		}
		e := Entry{
			ChunkID:  r.Id.GetUuid(),
			Metadata: make(map[string]string),
		}
		if p := r.Payload; p != nil {
			if v, ok := p["chunk_id"]; ok && v.GetStringValue() != "" {
				e.ChunkID = v.GetStringValue()
			}
			if v, ok := p["page"]; ok {
				e.Page = int(v.GetIntegerValue())
			}
			if v, ok := p["text"]; ok {
				e.Text = v.GetStringValue()
			}
			for k, v := range p {
				if len(k) > 5 && k[:5] == "meta_" {
					e.Metadata[k[5:]] = v.GetStringValue()
				}
			}
		}
		scored = append(scored, Scored{Entry: e, Score: r.Score})
	}
	return scored, nil
}

// Len reports the locally tracked point count for the collection.
func (s *Qdrant) Len() int {
	return int(s.count.Load())
}

// Close closes the underlying Qdrant gRPC connection.
func (s *Qdrant) Close() error {
	return s.client.Close()
}

// DropQdrantCollection removes a book's collection. Used when a book is
// deleted so orphaned vectors do not accumulate.
func DropQdrantCollection(ctx context.Context, cfg *config.VectorConfig, bookID string) error {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 6334
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.TLS,
	})
	if err != nil {
		return fmt.Errorf("index: failed to create qdrant client: %w", err)
	}
	defer client.Close()

	if err := client.DeleteCollection(ctx, "readai_book_"+bookID); err != nil {
		return fmt.Errorf("index: failed to drop collection for book %q: %w", bookID, err)
	}
	return nil
}
