package synth

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultRetryAfter applies when a 429 carries no usable delay.
const DefaultRetryAfter = 10 * time.Second

type GeminiConfig struct {
	Endpoint   string
	APIKey     string
	Timeout    time.Duration
	RetryAfter time.Duration
	HTTPClient *http.Client
}

type geminiSynth struct {
	endpoint   string
	apiKey     string
	retryAfter time.Duration
	httpClient *http.Client
}

// NewGeminiSynth returns a Synthesizer backed by the generateContent REST endpoint.
func NewGeminiSynth(cfg GeminiConfig) Synthesizer {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	retryAfter := cfg.RetryAfter
	if retryAfter <= 0 {
		retryAfter = DefaultRetryAfter
	}
	return &geminiSynth{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:     cfg.APIKey,
		retryAfter: retryAfter,
		httpClient: client,
	}
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiSpeechRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiSpeechGenerateCfg `json:"generationConfig"`
}

type geminiSpeechGenerateCfg struct {
	ResponseModalities []string           `json:"responseModalities"`
	SpeechConfig       geminiSpeechConfig `json:"speechConfig"`
}

type geminiSpeechConfig struct {
	VoiceConfig struct {
		PrebuiltVoiceConfig struct {
			VoiceName string `json:"voiceName"`
		} `json:"prebuiltVoiceConfig"`
	} `json:"voiceConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

type geminiErrorEnvelope struct {
	Error struct {
		Code    int               `json:"code"`
		Message string            `json:"message"`
		Status  string            `json:"status"`
		Details []json.RawMessage `json:"details"`
	} `json:"error"`
}

type geminiErrorDetail struct {
	Type       string `json:"@type"`
	RetryDelay string `json:"retryDelay"`
}

func (g *geminiSynth) Synthesize(ctx context.Context, req Request) Outcome {
	payload := geminiSpeechRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: Prompt(req.Style, req.Text)}}}},
	}
	payload.GenerationConfig.ResponseModalities = []string{"AUDIO"}
	payload.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName = req.Voice

	body, err := json.Marshal(payload)
	if err != nil {
		return Failed(fmt.Sprintf("encode request: %v", err))
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", g.endpoint, req.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Failed(fmt.Sprintf("create request: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return Failed(fmt.Sprintf("network error contacting synthesis endpoint: %v", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Failed(fmt.Sprintf("read response: %v", err))
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return Limited(g.retryDelay(resp.Header, respBody))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Failed(fmt.Sprintf("synthesis error: %s: %s", resp.Status, errorMessage(respBody)))
	}

	var decoded geminiResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return Failed(fmt.Sprintf("decode response: %v", err))
	}
	inline := firstInlineData(decoded)
	if inline == nil || inline.Data == "" {
		return Failed("no audio returned from synthesis endpoint")
	}
	audio, err := base64.StdEncoding.DecodeString(inline.Data)
	if err != nil {
		return Failed(fmt.Sprintf("decode audio payload: %v", err))
	}
	return Succeeded(audio, inline.MIMEType)
}

func firstInlineData(resp geminiResponse) *geminiInlineData {
	if len(resp.Candidates) == 0 {
		return nil
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.InlineData != nil {
			return part.InlineData
		}
	}
	return nil
}

// retryDelay prefers the RetryInfo detail of the error body, then a Retry-After header.
func (g *geminiSynth) retryDelay(header http.Header, body []byte) time.Duration {
	if d, ok := ParseRetryInfo(body); ok {
		return d
	}
	if v := strings.TrimSpace(header.Get("Retry-After")); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return g.retryAfter
}

// ParseRetryInfo extracts the retryDelay of a google.rpc.RetryInfo error detail.
func ParseRetryInfo(body []byte) (time.Duration, bool) {
	var env geminiErrorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return 0, false
	}
	for _, raw := range env.Error.Details {
		var detail geminiErrorDetail
		if err := json.Unmarshal(raw, &detail); err != nil {
			continue
		}
		if detail.RetryDelay == "" || !strings.HasSuffix(detail.Type, "RetryInfo") {
			continue
		}
		d, err := time.ParseDuration(detail.RetryDelay)
		if err != nil || d < 0 {
			return 0, false
		}
		return d, true
	}
	return 0, false
}

func errorMessage(body []byte) string {
	var env geminiErrorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Message != "" {
		return env.Error.Message
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return "empty response body"
	}
	return msg
}
