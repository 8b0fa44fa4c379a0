package embedder

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/readai-labs/readai-go/internal/logging"
)

// failingEmbedder always returns an error, simulating a provider outage.
type failingEmbedder struct{}

func (failingEmbedder) Embed(_ context.Context, _ []string) ([][]float32, error) {
	return nil, errors.New("remote unavailable")
}

// staticEmbedder returns a fixed vector per text, simulating a healthy backend.
type staticEmbedder struct {
	calls int
}

func (s *staticEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	s.calls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func testCtx() context.Context {
	return logging.WithLogger(context.Background(), logging.Discard())
}

func TestFallbackPassesThroughHealthyBackend(t *testing.T) {
	t.Parallel()

	inner := &staticEmbedder{}
	f := NewFallback(inner, 3)

	got, err := f.Embed(testCtx(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed() unexpected error: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("inner embedder calls = %d, want 1", inner.calls)
	}
	if len(got) != 2 {
		t.Fatalf("Embed() returned %d vectors, want 2", len(got))
	}
	if got[0][0] != 1 {
		t.Errorf("Embed() did not pass through inner vectors: %v", got[0])
	}
}

func TestFallbackNeverErrors(t *testing.T) {
	t.Parallel()

	f := NewFallback(failingEmbedder{}, 64)

	got, err := f.Embed(testCtx(), []string{"hello", "world", ""})
	if err != nil {
		t.Fatalf("Embed() must never return an error, got: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Embed() returned %d vectors, want 3", len(got))
	}
	for i, vec := range got {
		if len(vec) != 64 {
			t.Errorf("vector %d has %d dimensions, want 64", i, len(vec))
		}
	}
}

func TestFallbackDeterministic(t *testing.T) {
	t.Parallel()

	f := NewFallback(failingEmbedder{}, 128)

	first, _ := f.Embed(testCtx(), []string{"the same text", "another text"})
	second, _ := f.Embed(testCtx(), []string{"the same text", "another text"})

	for i := range first {
		for j := range first[i] {
			if first[i][j] != second[i][j] {
				t.Fatalf("vector %d differs between calls at dim %d: %v vs %v",
					i, j, first[i][j], second[i][j])
			}
		}
	}

	// Different texts must map to different vectors.
	same := true
	for j := range first[0] {
		if first[0][j] != first[1][j] {
			same = false
			break
		}
	}
	if same {
		t.Error("distinct texts produced identical fallback vectors")
	}
}

func TestFallbackVectorsAreUnitLength(t *testing.T) {
	t.Parallel()

	f := NewFallback(failingEmbedder{}, 256)

	got, _ := f.Embed(testCtx(), []string{"normalize me", "короткий текст"})
	for i, vec := range got {
		var norm float64
		for _, v := range vec {
			norm += float64(v) * float64(v)
		}
		if math.Abs(math.Sqrt(norm)-1.0) > 1e-4 {
			t.Errorf("vector %d has L2 norm %f, want 1.0", i, math.Sqrt(norm))
		}
	}
}

func TestFallbackEmptyTextYieldsZeroVector(t *testing.T) {
	t.Parallel()

	f := NewFallback(failingEmbedder{}, 32)

	got, _ := f.Embed(testCtx(), []string{""})
	for j, v := range got[0] {
		if v != 0 {
			t.Fatalf("empty text vector has non-zero value %f at dim %d", v, j)
		}
	}
}

func TestFallbackPreservesBatchOrder(t *testing.T) {
	t.Parallel()

	f := NewFallback(failingEmbedder{}, 128)
	texts := []string{"alpha", "beta", "gamma", "delta"}

	batch, _ := f.Embed(testCtx(), texts)
	for i, text := range texts {
		single, _ := f.Embed(testCtx(), []string{text})
		for j := range single[0] {
			if batch[i][j] != single[0][j] {
				t.Fatalf("batch vector %d (%q) differs from single-text embed at dim %d", i, text, j)
			}
		}
	}
}
