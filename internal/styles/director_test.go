package styles

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/loqalabs/loqa-voicebatch/internal/config"
	"github.com/stretchr/testify/require"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type recordingGenerator struct {
	reply  string
	err    error
	prompt Prompt
}

func (r *recordingGenerator) Complete(_ context.Context, p Prompt) (string, error) {
	r.prompt = p
	return r.reply, r.err
}

func director(gen Generator) *Director {
	return NewDirector(gen, config.Default().Styles, newLogger())
}

func TestParseStyleList(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want []string
		err  error
	}{
		{"plain", `["a", "b"]`, []string{"a", "b"}, nil},
		{"fenced", "```json\n[\" a \", \"\", \"b\"]\n```", []string{"a", "b"}, nil},
		{"bare fence", "```\n[\"x\"]\n```", []string{"x"}, nil},
		{"object", `{"styles": ["a"]}`, nil, ErrUnparseableStyles},
		{"empty array", `[]`, nil, ErrUnparseableStyles},
		{"prose", `Here are some styles`, nil, ErrUnparseableStyles},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseStyleList(tc.raw)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				require.Equal(t, "failed to parse styles from model response", err.Error())
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestParseStyleListCapsAtTen(t *testing.T) {
	items := make([]string, 14)
	for i := range items {
		items[i] = "style"
	}
	data, _ := json.Marshal(items)
	got, err := ParseStyleList(string(data))
	require.NoError(t, err)
	require.Len(t, got, MaxVariants)
}

func TestRefineSendsHistory(t *testing.T) {
	gen := &recordingGenerator{reply: "\"Warm radio host.\"\n"}
	d := director(gen)

	out, err := d.Refine(context.Background(), "  make it slower ", []Turn{
		{Role: "user", Content: "jazz radio host"},
		{Role: "model", Content: "Warm radio host."},
	})
	require.NoError(t, err)
	require.Equal(t, "Warm radio host.", out)
	require.Equal(t, KindRefine, gen.prompt.Kind)
	require.Equal(t, "gemini-2.5-flash", gen.prompt.Model)
	require.Len(t, gen.prompt.Turns, 3)
	require.Equal(t, Turn{Role: "user", Content: "make it slower"}, gen.prompt.Turns[2])
	require.Contains(t, gen.prompt.System, "120 words")
}

func TestRefineValidation(t *testing.T) {
	d := director(&recordingGenerator{reply: "x"})
	_, err := d.Refine(context.Background(), "   ", nil)
	require.ErrorIs(t, err, ErrDescriptionRequired)

	_, err = d.Refine(context.Background(), "hi", []Turn{{Role: "system", Content: "x"}})
	require.Error(t, err)
}

func TestEmptyReplyIsAnError(t *testing.T) {
	d := director(&recordingGenerator{reply: "  \n"})
	_, err := d.Refine(context.Background(), "hi", nil)
	require.ErrorIs(t, err, ErrEmptyResponse)
}

func TestUpgradeKeepsScriptAsUserTurn(t *testing.T) {
	gen := &recordingGenerator{reply: "[casual] Hello there."}
	d := director(gen)

	out, err := d.Upgrade(context.Background(), "Hello there.", "dry and deadpan")
	require.NoError(t, err)
	require.Equal(t, "[casual] Hello there.", out)
	require.Equal(t, "Hello there.", gen.prompt.Turns[0].Content)
	require.Contains(t, gen.prompt.System, "dry and deadpan")
	require.Equal(t, upgradeTemperature, gen.prompt.Temperature)

	_, err = d.Upgrade(context.Background(), " ", "")
	require.ErrorIs(t, err, ErrScriptRequired)
}

func TestMockVariantsRoundTrip(t *testing.T) {
	d := director(NewMockGenerator())
	got, err := d.Variants(context.Background(), "cheerful barista")
	require.NoError(t, err)
	require.Len(t, got, 10)
	require.Contains(t, got[0], "cheerful barista")
}

func TestGeminiGenerator(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/models/gemini-3-flash-preview:generateContent", r.URL.Path)
		require.Equal(t, "k", r.Header.Get("x-goog-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"[\"one\","},{"text":"\"two\"]"}]}}]}`))
	}))
	defer srv.Close()

	d := director(NewGeminiGenerator(srv.URL, "k", 5*time.Second))
	got, err := d.Variants(context.Background(), "news anchor")
	require.NoError(t, err)
	require.Equal(t, []string{"one", "two"}, got)

	cfg := captured["generationConfig"].(map[string]any)
	require.Equal(t, []any{"TEXT"}, cfg["responseModalities"])
	require.InDelta(t, 1.2, cfg["temperature"], 0.0001)
	require.NotNil(t, captured["system_instruction"])
}

func TestGeminiGeneratorError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"API key not valid"}}`))
	}))
	defer srv.Close()

	gen := NewGeminiGenerator(srv.URL, "bad", time.Second)
	_, err := gen.Complete(context.Background(), Prompt{Model: "m", Turns: []Turn{{Role: "user", Content: "x"}}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "API key not valid")
}

func TestOllamaGeneratorStreams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)
		var req ollamaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "llama3.2", req.Model)
		require.True(t, req.Stream)
		_, _ = w.Write([]byte("{\"response\":\"Warm \"}\n{\"response\":\"host.\",\"done\":true}\n"))
	}))
	defer srv.Close()

	gen := NewOllamaGenerator(srv.URL, "llama3.2")
	out, err := gen.Complete(context.Background(), Prompt{Model: "gemini-2.5-flash", Turns: []Turn{{Role: "user", Content: "x"}}})
	require.NoError(t, err)
	require.Equal(t, "Warm host.", out)
}

func TestExecGenerator(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "styles.sh")
	body := "#!/bin/sh\ncat >/dev/null\necho '{\"content\":\"Gravelly pirate captain.\"}'\n"
	require.NoError(t, os.WriteFile(script, []byte(body), 0o755))

	gen, err := NewExecGenerator(script)
	require.NoError(t, err)
	out, err := director(gen).Refine(context.Background(), "pirate", nil)
	require.NoError(t, err)
	require.Equal(t, "Gravelly pirate captain.", out)
}

func TestNewGeneratorModes(t *testing.T) {
	cfg := config.Default().Styles
	for _, mode := range []string{"gemini", "ollama", "mock"} {
		cfg.Mode = mode
		_, err := NewGenerator(cfg, "k", time.Second)
		require.NoError(t, err, mode)
	}
	cfg.Mode = "exec"
	cfg.Command = ""
	_, err := NewGenerator(cfg, "", time.Second)
	require.Error(t, err)

	cfg.Mode = "carrier-pigeon"
	_, err = NewGenerator(cfg, "", time.Second)
	require.True(t, err != nil && strings.Contains(err.Error(), "unsupported"))
	require.False(t, errors.Is(err, ErrDisabled))
}
