package synth

import (
	"context"
	"time"
)

type mockSynth struct {
	delay time.Duration
}

// NewMockSynth returns a Synthesizer producing a short burst of silence per request.
func NewMockSynth(delay time.Duration) Synthesizer {
	return &mockSynth{delay: delay}
}

func (m *mockSynth) Synthesize(ctx context.Context, req Request) Outcome {
	select {
	case <-ctx.Done():
		return Failed(ctx.Err().Error())
	case <-time.After(m.delay):
	}
	// 10ms of silence per input byte, capped at two seconds of 24kHz mono 16-bit audio.
	samples := len(req.Text) * 240
	if samples > 48000 {
		samples = 48000
	}
	return Succeeded(make([]byte, samples*2), "audio/L16;codec=pcm;rate=24000")
}
