// Package styles drafts voice style directions and tags scripts for performance using a text
// model.
package styles

import (
	"context"
	"errors"
)

type Kind string

const (
	KindRefine   Kind = "refine"
	KindVariants Kind = "variants"
	KindUpgrade  Kind = "upgrade"
)

// Turn is one message of a refinement conversation. Role is "user" or "model".
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Prompt is a complete text-generation request.
type Prompt struct {
	Kind        Kind
	Model       string
	System      string
	Turns       []Turn
	Temperature float64
}

// Generator is a pluggable text backend.
type Generator interface {
	Complete(ctx context.Context, p Prompt) (string, error)
}

var (
	ErrDescriptionRequired = errors.New("description is required")
	ErrScriptRequired      = errors.New("script is required")
	ErrEmptyResponse       = errors.New("model returned no text")
	ErrUnparseableStyles   = errors.New("failed to parse styles from model response")
	ErrDisabled            = errors.New("style generation is disabled")
)

func lastUserTurn(turns []Turn) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == "user" {
			return turns[i].Content
		}
	}
	return ""
}
