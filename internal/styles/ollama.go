package styles

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type ollamaGenerator struct {
	endpoint string
	model    string
}

// NewOllamaGenerator talks to a local Ollama server. model overrides the per-prompt model when
// set, since Ollama model names differ from hosted ones.
func NewOllamaGenerator(endpoint, model string) Generator {
	return &ollamaGenerator{endpoint: strings.TrimRight(endpoint, "/"), model: model}
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	System  string        `json:"system,omitempty"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
}

type ollamaStreamResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func (g *ollamaGenerator) Complete(ctx context.Context, p Prompt) (string, error) {
	model := g.model
	if model == "" {
		model = p.Model
	}
	payload := ollamaRequest{
		Model:   model,
		Prompt:  flattenTurns(p.Turns),
		System:  p.System,
		Stream:  true,
		Options: ollamaOptions{Temperature: p.Temperature},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("ollama returned status %s", resp.Status)
	}

	scanner := bufio.NewScanner(resp.Body)
	var sb strings.Builder
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var chunk ollamaStreamResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			return "", err
		}
		sb.WriteString(chunk.Response)
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// flattenTurns renders a conversation for completion-style backends.
func flattenTurns(turns []Turn) string {
	if len(turns) == 1 {
		return turns[0].Content
	}
	var sb strings.Builder
	for _, t := range turns {
		role := "User"
		if t.Role == "model" {
			role = "Assistant"
		}
		fmt.Fprintf(&sb, "%s: %s\n\n", role, t.Content)
	}
	sb.WriteString("Assistant:")
	return sb.String()
}
