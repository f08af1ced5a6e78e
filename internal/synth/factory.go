package synth

import (
	"fmt"
	"time"

	"github.com/loqalabs/loqa-voicebatch/internal/config"
)

// New builds the backend selected by cfg.Mode.
func New(cfg config.SynthConfig, retryAfter time.Duration) (Synthesizer, error) {
	switch cfg.Mode {
	case "gemini":
		return NewGeminiSynth(GeminiConfig{
			Endpoint:   cfg.Endpoint,
			APIKey:     cfg.APIKey,
			Timeout:    time.Duration(cfg.TimeoutSeconds) * time.Second,
			RetryAfter: retryAfter,
		}), nil
	case "exec":
		return NewExecSynth(cfg.Command, retryAfter)
	case "mock":
		return NewMockSynth(50 * time.Millisecond), nil
	default:
		return nil, fmt.Errorf("unsupported synth mode %q", cfg.Mode)
	}
}
