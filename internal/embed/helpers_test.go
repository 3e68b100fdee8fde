package embed

import (
	"context"
	"sync/atomic"
)

// mockEmbedder counts calls and returns a deterministic vector per text.
type mockEmbedder struct {
	model     string
	callCount atomic.Int32
	embedFn   func(ctx context.Context, text string) ([]float32, error)
	closed    atomic.Bool
}

func newMockEmbedder() *mockEmbedder {
	return &mockEmbedder{model: "mock-model"}
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.callCount.Add(1)
	if m.embedFn != nil {
		return m.embedFn(ctx, text)
	}
	return []float32{float32(len(text)), 1, 0}, nil
}

func (m *mockEmbedder) ModelName() string { return m.model }

func (m *mockEmbedder) Close() error {
	m.closed.Store(true)
	return nil
}

// probingEmbedder is a mockEmbedder with a readiness check.
type probingEmbedder struct {
	*mockEmbedder
	probeErr error
}

func (p *probingEmbedder) Probe(context.Context) error { return p.probeErr }
