package styles

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

type mockGenerator struct{}

// NewMockGenerator returns canned, deterministic completions.
func NewMockGenerator() Generator { return mockGenerator{} }

func (mockGenerator) Complete(ctx context.Context, p Prompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	subject := strings.TrimSpace(lastUserTurn(p.Turns))
	switch p.Kind {
	case KindVariants:
		out := make([]string, 10)
		for i := range out {
			out[i] = fmt.Sprintf("Variation %d of %s.", i+1, subject)
		}
		data, err := json.Marshal(out)
		if err != nil {
			return "", err
		}
		return "```json\n" + string(data) + "\n```", nil
	case KindUpgrade:
		return "[casual] " + subject, nil
	default:
		return "Calm narrator delivering " + subject + ".", nil
	}
}
