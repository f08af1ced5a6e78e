package styles

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/mattn/go-shellwords"
)

type execGenerator struct {
	cmd []string
}

type execRequest struct {
	Kind        Kind    `json:"kind"`
	Model       string  `json:"model"`
	System      string  `json:"system"`
	Messages    []Turn  `json:"messages"`
	Temperature float64 `json:"temperature"`
}

type execResponse struct {
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

// NewExecGenerator runs command once per prompt, writing the prompt as JSON to stdin.
func NewExecGenerator(command string) (Generator, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse styles command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("styles command empty")
	}
	return &execGenerator{cmd: args}, nil
}

func (g *execGenerator) Complete(ctx context.Context, p Prompt) (string, error) {
	input, err := json.Marshal(execRequest{
		Kind:        p.Kind,
		Model:       p.Model,
		System:      p.System,
		Messages:    p.Turns,
		Temperature: p.Temperature,
	})
	if err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, g.cmd[0], g.cmd[1:]...)
	cmd.Stdin = bytes.NewReader(input)
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("styles exec command failed: %w", err)
	}

	var resp execResponse
	if err := json.Unmarshal(output, &resp); err != nil {
		return "", fmt.Errorf("decode styles exec response: %w", err)
	}
	if resp.Error != "" {
		return "", fmt.Errorf("styles exec command: %s", resp.Error)
	}
	return resp.Content, nil
}
