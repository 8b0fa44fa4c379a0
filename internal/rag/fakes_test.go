package rag

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/readai-labs/readai-go/internal/logging"
)

// fakeModel is a scriptable ChatModel. generateFn and streamFragments drive
// the responses; call counters let tests assert which stages ran.
type fakeModel struct {
	generateFn      func(msgs []*schema.Message) (*schema.Message, error)
	streamFragments []string
	streamErr       error
	generateCalls   atomic.Int64
	streamCalls     atomic.Int64
}

func (f *fakeModel) Generate(_ context.Context, msgs []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.generateCalls.Add(1)
	if f.generateFn != nil {
		return f.generateFn(msgs)
	}
	return schema.AssistantMessage("", nil), nil
}

func (f *fakeModel) Stream(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	f.streamCalls.Add(1)
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	out := make([]*schema.Message, 0, len(f.streamFragments))
	for _, frag := range f.streamFragments {
		out = append(out, schema.AssistantMessage(frag, nil))
	}
	return schema.StreamReaderFromArray(out), nil
}

// routingGenerate dispatches on the system prompt so one fake can serve the
// selector, planner, and apology stages in a single run.
func routingGenerate(selection, plannerLines string) func(msgs []*schema.Message) (*schema.Message, error) {
	return func(msgs []*schema.Message) (*schema.Message, error) {
		if len(msgs) == 0 {
			return schema.AssistantMessage("", nil), nil
		}
		system := msgs[0].Content
		switch {
		case strings.Contains(system, "which sources"):
			return schema.AssistantMessage(selection, nil), nil
		case strings.Contains(system, "diversified"):
			return schema.AssistantMessage(plannerLines, nil), nil
		default:
			return schema.AssistantMessage("", nil), nil
		}
	}
}

// keywordEmbedder maps texts onto axis-aligned vectors by keyword so tests
// get predictable similarity without a real model.
type keywordEmbedder struct {
	calls atomic.Int64
}

func (k *keywordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	k.calls.Add(int64(len(texts)))
	out := make([][]float32, len(texts))
	for i, t := range texts {
		lower := strings.ToLower(t)
		switch {
		case strings.Contains(lower, "sky"):
			out[i] = []float32{1, 0, 0}
		case strings.Contains(lower, "water") || strings.Contains(lower, "boil"):
			out[i] = []float32{0, 1, 0}
		case strings.Contains(lower, "paris") || strings.Contains(lower, "france"):
			out[i] = []float32{0, 0, 1}
		default:
			out[i] = []float32{0, 0, 0}
		}
	}
	return out, nil
}

func ragTestCtx() context.Context {
	return logging.WithLogger(context.Background(), logging.Discard())
}
