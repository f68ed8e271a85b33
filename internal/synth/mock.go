package synth

import (
	"context"
	"fmt"
	"time"
)

type mockSynth struct{}

// NewMockSynth produces deterministic placeholder bytes, for development
// and tests without a synthesis backend.
func NewMockSynth() Synthesizer {
	return &mockSynth{}
}

func (m *mockSynth) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(10 * time.Millisecond):
	}
	return []byte(fmt.Sprintf("MP3:%s:%d", req.Voice.Name, len(req.Text))), nil
}
