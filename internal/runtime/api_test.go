package runtime

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/loqalabs/loqa-voicebatch/internal/batch"
	"github.com/loqalabs/loqa-voicebatch/internal/config"
	"github.com/loqalabs/loqa-voicebatch/internal/history"
	"github.com/loqalabs/loqa-voicebatch/internal/studio"
	"github.com/loqalabs/loqa-voicebatch/internal/styles"
	"github.com/loqalabs/loqa-voicebatch/internal/synth"
	"github.com/stretchr/testify/require"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestServer(t *testing.T, withStyles bool) (*httptest.Server, *history.Store) {
	t.Helper()
	log := newLogger()
	store, err := history.Open(context.Background(), config.HistoryConfig{Path: filepath.Join(t.TempDir(), "history.db")}, log)
	require.NoError(t, err)

	sch := batch.NewScheduler(synth.NewMockSynth(0), batch.Options{}, log)
	svc := studio.NewService(context.Background(), sch, store, nil, log)
	t.Cleanup(svc.Close)

	var director *styles.Director
	if withStyles {
		director = styles.NewDirector(styles.NewMockGenerator(), config.Default().Styles, log)
	}
	mux := http.NewServeMux()
	NewAPI(svc, store, director, nil, log).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, store
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func doRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestBatchEndpointPersistsHistory(t *testing.T) {
	srv, store := newTestServer(t, false)

	resp := postJSON(t, srv.URL+"/api/batches", batch.Request{
		Voices:   []string{"Kore", "Puck", "Charon"},
		Variants: []batch.Variant{{Tag: "[whispering]"}},
		Text:     "Hello world",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[batchResponse](t, resp)
	require.NotEmpty(t, body.BatchID)
	require.Len(t, body.Jobs, 3)
	for _, j := range body.Jobs {
		require.Equal(t, "succeeded", j.Status)
		wav, err := base64.StdEncoding.DecodeString(j.Audio)
		require.NoError(t, err)
		require.Equal(t, "RIFF", string(wav[:4]))
	}

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 3, n)
}

func TestBatchEndpointValidation(t *testing.T) {
	srv, _ := newTestServer(t, false)

	resp := postJSON(t, srv.URL+"/api/batches", batch.Request{Voices: []string{"Kore"}, Text: strings.Repeat("x", 4001)})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeBody[map[string]string](t, resp)
	require.Contains(t, body["error"], "text is too long")

	resp = postJSON(t, srv.URL+"/api/batches", batch.Request{Voices: []string{"Nobody"}, Text: "Hi"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	bad, err := http.Post(srv.URL+"/api/batches", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer bad.Body.Close()
	require.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestSpeakEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, false)

	resp := postJSON(t, srv.URL+"/api/tts", studio.SpeakRequest{Voice: "Kore", StyleTag: "[sarcasm]", Text: "Sure."})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[speakResponse](t, resp)
	require.Equal(t, "audio/wav", body.MIMEType)
	require.NotEmpty(t, body.AudioContent)
}

func TestHistoryEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, false)
	resp := postJSON(t, srv.URL+"/api/batches", batch.Request{Voices: []string{"Kore", "Puck"}, Text: "Hello"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	list := decodeBody[map[string][]history.Entry](t, doRequest(t, http.MethodGet, srv.URL+"/api/history"))
	entries := list["entries"]
	require.Len(t, entries, 2)

	audioResp := doRequest(t, http.MethodGet, srv.URL+"/api/history/"+entries[0].ID+"/audio")
	require.Equal(t, http.StatusOK, audioResp.StatusCode)
	require.Equal(t, "audio/wav", audioResp.Header.Get("Content-Type"))
	require.Contains(t, audioResp.Header.Get("Content-Disposition"), "tts-"+entries[0].Voice+"-")
	data, err := io.ReadAll(audioResp.Body)
	require.NoError(t, err)
	require.Equal(t, "RIFF", string(data[:4]))

	require.Equal(t, http.StatusNotFound, doRequest(t, http.MethodGet, srv.URL+"/api/history/missing/audio").StatusCode)

	require.Equal(t, http.StatusNoContent, doRequest(t, http.MethodDelete, srv.URL+"/api/history/"+entries[0].ID).StatusCode)
	require.Equal(t, http.StatusNoContent, doRequest(t, http.MethodDelete, srv.URL+"/api/history/missing").StatusCode)
	list = decodeBody[map[string][]history.Entry](t, doRequest(t, http.MethodGet, srv.URL+"/api/history"))
	require.Len(t, list["entries"], 1)

	require.Equal(t, http.StatusNoContent, doRequest(t, http.MethodDelete, srv.URL+"/api/history").StatusCode)
	list = decodeBody[map[string][]history.Entry](t, doRequest(t, http.MethodGet, srv.URL+"/api/history"))
	require.Empty(t, list["entries"])
}

func TestStyleEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, true)

	resp := postJSON(t, srv.URL+"/api/styles/refine", map[string]any{"description": "sleepy cat"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, decodeBody[map[string]string](t, resp)["style"], "sleepy cat")

	resp = postJSON(t, srv.URL+"/api/styles/variants", map[string]any{"description": "sleepy cat"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, decodeBody[map[string][]string](t, resp)["styles"], 10)

	resp = postJSON(t, srv.URL+"/api/scripts/upgrade", map[string]any{"script": "Buy now."})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "[casual] Buy now.", decodeBody[map[string]string](t, resp)["taggedScript"])

	resp = postJSON(t, srv.URL+"/api/styles/refine", map[string]any{"description": " "})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStyleEndpointsDisabled(t *testing.T) {
	srv, _ := newTestServer(t, false)
	resp := postJSON(t, srv.URL+"/api/styles/variants", map[string]any{"description": "x"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, styles.ErrDisabled.Error(), decodeBody[map[string]string](t, resp)["error"])
}

func TestHealthAndReady(t *testing.T) {
	rt := New(config.Default(), newLogger())

	rec := httptest.NewRecorder()
	rt.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	rt.handleReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rt.ready.Store(true)
	rec = httptest.NewRecorder()
	rt.handleReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}
