package runtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/loqalabs/loqa-voicebatch/internal/batch"
	"github.com/loqalabs/loqa-voicebatch/internal/history"
	"github.com/loqalabs/loqa-voicebatch/internal/studio"
	"github.com/loqalabs/loqa-voicebatch/internal/styles"
)

// maxBodyBytes bounds request bodies; text is further limited by batch validation.
const maxBodyBytes = 1 << 20

// HistoryStore is the subset of the history store served over HTTP.
type HistoryStore interface {
	List(ctx context.Context) ([]history.Entry, error)
	Get(ctx context.Context, id string) (history.Entry, error)
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error
}

// Playback is the coordinator surface driven by clients that render artifacts.
type Playback interface {
	Track(id string)
	Started(id string)
	Stopped(id string)
	Unregister(id string)
	Current() string
}

// API serves the studio over HTTP.
type API struct {
	studio   *studio.Service
	history  HistoryStore
	styles   *styles.Director
	playback Playback
	log      *slog.Logger
}

// NewAPI wires the handlers. director may be nil when style generation is disabled, and
// playback may be nil when the bus is off.
func NewAPI(svc *studio.Service, store HistoryStore, director *styles.Director, playback Playback, log *slog.Logger) *API {
	return &API{
		studio:   svc,
		history:  store,
		styles:   director,
		playback: playback,
		log:      log.With(slog.String("component", "http-api")),
	}
}

func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/tts", a.handleSpeak)
	mux.HandleFunc("POST /api/batches", a.handleBatch)
	mux.HandleFunc("GET /api/history", a.handleListHistory)
	mux.HandleFunc("DELETE /api/history", a.handleClearHistory)
	mux.HandleFunc("DELETE /api/history/{id}", a.handleDeleteHistory)
	mux.HandleFunc("GET /api/history/{id}/audio", a.handleHistoryAudio)
	mux.HandleFunc("POST /api/styles/refine", a.handleRefine)
	mux.HandleFunc("POST /api/styles/variants", a.handleVariants)
	mux.HandleFunc("POST /api/scripts/upgrade", a.handleUpgrade)
	mux.HandleFunc("GET /api/playback", a.handlePlaybackCurrent)
	mux.HandleFunc("POST /api/playback/{id}/started", a.handlePlaybackStarted)
	mux.HandleFunc("POST /api/playback/{id}/stopped", a.handlePlaybackStopped)
}

type speakResponse struct {
	ID             string `json:"id"`
	AudioContent   string `json:"audioContent"`
	MIMEType       string `json:"mimeType"`
	PersistWarning string `json:"persist_warning,omitempty"`
}

func (a *API) handleSpeak(w http.ResponseWriter, r *http.Request) {
	var req studio.SpeakRequest
	if !decode(w, r, &req) {
		return
	}
	job, report, err := a.studio.Speak(r.Context(), req)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	a.track(job)
	writeJSON(w, http.StatusOK, speakResponse{
		ID:             job.ID,
		AudioContent:   base64.StdEncoding.EncodeToString(job.Artifact.Data),
		MIMEType:       job.Artifact.MIMEType,
		PersistWarning: report.PersistWarning,
	})
}

type jobView struct {
	ID         string `json:"id"`
	Voice      string `json:"voice"`
	Model      string `json:"model"`
	StyleLabel string `json:"style_label,omitempty"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	MIMEType   string `json:"mime_type,omitempty"`
	Audio      string `json:"audio,omitempty"`
}

type batchResponse struct {
	BatchID        string    `json:"batch_id"`
	Jobs           []jobView `json:"jobs"`
	PersistWarning string    `json:"persist_warning,omitempty"`
}

func (a *API) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batch.Request
	if !decode(w, r, &req) {
		return
	}
	report, err := a.studio.Generate(r.Context(), req)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	resp := batchResponse{BatchID: report.Result.BatchID, PersistWarning: report.PersistWarning}
	for _, j := range report.Result.Jobs {
		v := jobView{
			ID:         j.ID,
			Voice:      j.Spec.Voice,
			Model:      j.Spec.Model,
			StyleLabel: j.Spec.StyleLabel,
			Status:     string(j.Status),
			Error:      j.Err,
		}
		if j.Artifact != nil {
			v.MIMEType = j.Artifact.MIMEType
			v.Audio = base64.StdEncoding.EncodeToString(j.Artifact.Data)
			a.track(j)
		}
		resp.Jobs = append(resp.Jobs, v)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleListHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := a.history.List(r.Context())
	if err != nil {
		a.log.Error("list history failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (a *API) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := a.history.Clear(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := a.history.Delete(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if a.playback != nil {
		a.playback.Unregister(id)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleHistoryAudio(w http.ResponseWriter, r *http.Request) {
	entry, err := a.history.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.Header().Set("Content-Type", entry.MIMEType)
	w.Header().Set("Content-Length", strconv.Itoa(len(entry.Audio)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", entry.FileName()))
	_, _ = w.Write(entry.Audio)
}

type refineRequest struct {
	Description string        `json:"description"`
	History     []styles.Turn `json:"history"`
}

func (a *API) handleRefine(w http.ResponseWriter, r *http.Request) {
	if !a.stylesEnabled(w) {
		return
	}
	var req refineRequest
	if !decode(w, r, &req) {
		return
	}
	style, err := a.styles.Refine(r.Context(), req.Description, req.History)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"style": style})
}

func (a *API) handleVariants(w http.ResponseWriter, r *http.Request) {
	if !a.stylesEnabled(w) {
		return
	}
	var req refineRequest
	if !decode(w, r, &req) {
		return
	}
	list, err := a.styles.Variants(r.Context(), req.Description)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"styles": list})
}

type upgradeRequest struct {
	Script string `json:"script"`
	Style  string `json:"style"`
}

func (a *API) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if !a.stylesEnabled(w) {
		return
	}
	var req upgradeRequest
	if !decode(w, r, &req) {
		return
	}
	tagged, err := a.styles.Upgrade(r.Context(), req.Script, req.Style)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"taggedScript": tagged})
}

// track hands a rendered job to the playback coordinator.
func (a *API) track(j *batch.Job) {
	if a.playback != nil && j.Artifact != nil {
		a.playback.Track(j.ID)
	}
}

func (a *API) playbackEnabled(w http.ResponseWriter) bool {
	if a.playback == nil {
		writeError(w, http.StatusNotFound, errors.New("playback coordination requires the bus"))
		return false
	}
	return true
}

func (a *API) handlePlaybackCurrent(w http.ResponseWriter, _ *http.Request) {
	if !a.playbackEnabled(w) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"current": a.playback.Current()})
}

func (a *API) handlePlaybackStarted(w http.ResponseWriter, r *http.Request) {
	if !a.playbackEnabled(w) {
		return
	}
	a.playback.Started(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handlePlaybackStopped(w http.ResponseWriter, r *http.Request) {
	if !a.playbackEnabled(w) {
		return
	}
	a.playback.Stopped(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) stylesEnabled(w http.ResponseWriter) bool {
	if a.styles == nil {
		writeError(w, http.StatusNotFound, styles.ErrDisabled)
		return false
	}
	return true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, batch.ErrTextRequired),
		errors.Is(err, batch.ErrTextTooLong),
		errors.Is(err, batch.ErrNoVoices),
		errors.Is(err, batch.ErrUnknownVoice),
		errors.Is(err, batch.ErrUnknownModel),
		errors.Is(err, styles.ErrDescriptionRequired),
		errors.Is(err, styles.ErrScriptRequired):
		return http.StatusBadRequest
	case errors.Is(err, history.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, studio.ErrNoAudio):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
