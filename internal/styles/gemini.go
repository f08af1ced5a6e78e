package styles

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type geminiGenerator struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewGeminiGenerator returns a Generator backed by the generateContent REST endpoint.
func NewGeminiGenerator(endpoint, apiKey string, timeout time.Duration) Generator {
	return &geminiGenerator{
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiTextRequest struct {
	SystemInstruction *geminiContent  `json:"system_instruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  struct {
		ResponseModalities []string `json:"responseModalities"`
		Temperature        float64  `json:"temperature"`
	} `json:"generationConfig"`
}

type geminiTextResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

type geminiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (g *geminiGenerator) Complete(ctx context.Context, p Prompt) (string, error) {
	payload := geminiTextRequest{}
	if p.System != "" {
		payload.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: p.System}}}
	}
	for _, t := range p.Turns {
		payload.Contents = append(payload.Contents, geminiContent{Role: t.Role, Parts: []geminiPart{{Text: t.Content}}})
	}
	payload.GenerationConfig.ResponseModalities = []string{"TEXT"}
	payload.GenerationConfig.Temperature = p.Temperature

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	url := fmt.Sprintf("%s/models/%s:generateContent", g.endpoint, p.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("network error contacting style endpoint: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read style response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var env geminiError
		msg := strings.TrimSpace(string(respBody))
		if json.Unmarshal(respBody, &env) == nil && env.Error.Message != "" {
			msg = env.Error.Message
		}
		return "", fmt.Errorf("style generation error: %s: %s", resp.Status, msg)
	}

	var decoded geminiTextResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return "", fmt.Errorf("decode style response: %w", err)
	}
	if len(decoded.Candidates) == 0 {
		return "", ErrEmptyResponse
	}
	var sb strings.Builder
	for _, part := range decoded.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}
