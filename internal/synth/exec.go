package synth

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
)

// execSynth delegates synthesis to an external command speaking JSON over stdin/stdout.
type execSynth struct {
	cmd        []string
	retryAfter time.Duration
}

type execRequest struct {
	Model string `json:"model"`
	Voice string `json:"voice"`
	Style string `json:"style,omitempty"`
	Text  string `json:"text"`
}

type execResponse struct {
	PCMBase64    string `json:"pcm_base64"`
	MIMEType     string `json:"mime_type,omitempty"`
	Error        string `json:"error,omitempty"`
	RateLimited  bool   `json:"rate_limited,omitempty"`
	RetryAfterMS int    `json:"retry_after_ms,omitempty"`
}

func NewExecSynth(command string, retryAfter time.Duration) (Synthesizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse synth command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("synth command empty")
	}
	if retryAfter <= 0 {
		retryAfter = DefaultRetryAfter
	}
	return &execSynth{cmd: args, retryAfter: retryAfter}, nil
}

func (e *execSynth) Synthesize(ctx context.Context, req Request) Outcome {
	data, err := json.Marshal(execRequest{Model: req.Model, Voice: req.Voice, Style: req.Style, Text: req.Text})
	if err != nil {
		return Failed(fmt.Sprintf("encode request: %v", err))
	}

	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	cmd.Stdin = bytes.NewReader(data)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && stderr.Len() > 0 {
			return Failed(fmt.Sprintf("synth command failed: %s", strings.TrimSpace(stderr.String())))
		}
		return Failed(fmt.Sprintf("synth command failed: %v", err))
	}

	var resp execResponse
	if err := json.Unmarshal(output, &resp); err != nil {
		return Failed(fmt.Sprintf("decode synth command output: %v", err))
	}
	if resp.RateLimited {
		if resp.RetryAfterMS > 0 {
			return Limited(time.Duration(resp.RetryAfterMS) * time.Millisecond)
		}
		return Limited(e.retryAfter)
	}
	if resp.Error != "" {
		return Failed(resp.Error)
	}
	if resp.PCMBase64 == "" {
		return Failed("no audio returned from synth command")
	}
	pcm, err := base64.StdEncoding.DecodeString(resp.PCMBase64)
	if err != nil {
		return Failed(fmt.Sprintf("decode audio payload: %v", err))
	}
	return Succeeded(pcm, resp.MIMEType)
}
