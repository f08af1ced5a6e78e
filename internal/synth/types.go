package synth

import (
	"context"
	"strings"
	"time"
)

// Request describes one synthesis call.
type Request struct {
	Model string
	Voice string
	// Style is the resolved performance directive; empty means none is sent.
	Style string
	Text  string
}

type Kind int

const (
	Success Kind = iota
	RateLimited
	Failure
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case RateLimited:
		return "rate_limited"
	default:
		return "failure"
	}
}

// Outcome is the classified result of exactly one exchange with a backend.
type Outcome struct {
	Kind Kind
	// Audio holds the raw payload on Success; MIMEType is the backend's container hint.
	Audio      []byte
	MIMEType   string
	RetryAfter time.Duration
	Reason     string
}

func Succeeded(audio []byte, mimeType string) Outcome {
	return Outcome{Kind: Success, Audio: audio, MIMEType: mimeType}
}

func Limited(after time.Duration) Outcome {
	return Outcome{Kind: RateLimited, RetryAfter: after}
}

func Failed(reason string) Outcome {
	return Outcome{Kind: Failure, Reason: reason}
}

// Synthesizer is the contract for producing audio. Implementations perform one exchange per
// call and never retry on their own.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) Outcome
}

// ResolveStyle picks the directive sent with a request: a non-empty custom style wins over the
// preset tag.
func ResolveStyle(customStyle, styleTag string) string {
	if custom := strings.TrimSpace(customStyle); custom != "" {
		return custom
	}
	return strings.TrimSpace(styleTag)
}

// Prompt builds the text actually sent to the model. Without a leading instruction the model
// answers in text instead of speaking, hence the "Say:" fallback.
func Prompt(style, text string) string {
	if style != "" {
		return style + ": " + text
	}
	return "Say: " + text
}
