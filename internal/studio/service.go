// Package studio connects the batch scheduler to the history store and the bus.
package studio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loqalabs/loqa-voicebatch/internal/batch"
	"github.com/loqalabs/loqa-voicebatch/internal/bus"
	"github.com/loqalabs/loqa-voicebatch/internal/history"
	"github.com/loqalabs/loqa-voicebatch/internal/protocol"
	"github.com/nats-io/nats.go"
)

// DoneStream retains batch summaries when the bus has JetStream.
const DoneStream = "VOICEBATCH_DONE"

// ErrClosed is reported to bus requests that arrive while the studio shuts down.
var ErrClosed = errors.New("studio is shutting down")

// HistoryWriter persists successful jobs.
type HistoryWriter interface {
	InsertAll(ctx context.Context, entries []history.Entry) error
}

// Report is the outcome of a completed batch. PersistWarning is set when audio was produced
// but could not be saved.
type Report struct {
	Result         *batch.Result
	PersistWarning string
}

type Service struct {
	scheduler *batch.Scheduler
	store     HistoryWriter
	bus       *bus.Client
	sub       *nats.Subscription
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.Mutex
	closing   bool
	wg        sync.WaitGroup
	logger    *slog.Logger
}

// NewService builds a studio. store and busClient may be nil.
func NewService(parent context.Context, scheduler *batch.Scheduler, store HistoryWriter, busClient *bus.Client, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		scheduler: scheduler,
		store:     store,
		bus:       busClient,
		ctx:       ctx,
		cancel:    cancel,
		logger:    log.With(slog.String("component", "studio")),
	}
}

// Start subscribes to batch requests. It is a no-op without a bus.
func (s *Service) Start() error {
	if s.bus == nil {
		return nil
	}
	if err := s.bus.EnsureStream(DoneStream, []string{protocol.SubjectBatchDonePrefix + ".>"}, 7*24*time.Hour); err != nil {
		s.logger.Info("batch summaries will not be retained", slogError(err))
	}
	sub, err := s.bus.Conn().Subscribe(protocol.SubjectBatchRequest, s.handleRequest)
	if err != nil {
		return err
	}
	s.sub = sub
	return nil
}

// Close stops accepting requests and waits for accepted batches to finish.
func (s *Service) Close() {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	if s.sub != nil {
		_ = s.sub.Unsubscribe()
	}
	s.wg.Wait()
	s.cancel()
}

// acquire counts one accepted batch unless Close has begun. The count and the closing check
// share s.mu so no batch is added once Close is waiting.
func (s *Service) acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Service) Healthy() bool { return s.bus == nil || s.sub != nil }

// Generate runs req to completion and persists the successes.
func (s *Service) Generate(ctx context.Context, req batch.Request, observers ...batch.Observer) (*Report, error) {
	res, err := s.scheduler.Plan(req)
	if err != nil {
		return nil, err
	}
	return s.complete(ctx, res, observers...), nil
}

func (s *Service) complete(ctx context.Context, res *batch.Result, observers ...batch.Observer) *Report {
	s.scheduler.Execute(ctx, res, observers...)
	report := &Report{Result: res}
	if err := s.persist(context.WithoutCancel(ctx), res); err != nil {
		s.logger.Warn("failed to persist batch",
			slog.String("batch_id", res.BatchID),
			slogError(err))
		report.PersistWarning = fmt.Sprintf("audio generated but not saved to history: %v", err)
	}
	return report
}

func (s *Service) persist(ctx context.Context, res *batch.Result) error {
	if s.store == nil {
		return nil
	}
	succeeded := res.Succeeded()
	entries := make([]history.Entry, 0, len(succeeded))
	for _, j := range succeeded {
		entries = append(entries, EntryFor(j))
	}
	return s.store.InsertAll(ctx, entries)
}

// EntryFor copies a succeeded job into a history entry. The entry owns its own audio buffer.
func EntryFor(j *batch.Job) history.Entry {
	e := history.Entry{
		ID:          j.ID,
		Voice:       j.Spec.Voice,
		Model:       j.Spec.Model,
		ModelLabel:  j.Spec.ModelLabel,
		StyleTag:    j.Spec.StyleTag,
		StyleLabel:  j.Spec.StyleLabel,
		CustomStyle: j.Spec.CustomStyle,
		Text:        j.Spec.Text,
		CreatedAt:   j.FinishedAt,
	}
	if j.Artifact != nil {
		art := j.Artifact.Clone()
		e.Audio = art.Data
		e.MIMEType = art.MIMEType
	}
	return e
}

func (s *Service) handleRequest(msg *nats.Msg) {
	if !s.acquire() {
		s.reply(msg, protocol.BatchAccepted{Error: ErrClosed.Error()})
		return
	}
	res, ok := s.accept(msg)
	if !ok {
		s.wg.Done()
		return
	}
	go func() {
		defer s.wg.Done()
		report := s.complete(s.ctx, res, s.publishStatus)
		s.publishDone(report)
	}()
}

// accept validates a bus request and replies with the planned job ids.
func (s *Service) accept(msg *nats.Msg) (*batch.Result, bool) {
	var req protocol.BatchRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode batch request", slogError(err))
		s.reply(msg, protocol.BatchAccepted{Error: "invalid batch request"})
		return nil, false
	}

	res, err := s.scheduler.Plan(FromProtocol(req))
	if err != nil {
		s.reply(msg, protocol.BatchAccepted{Error: err.Error()})
		return nil, false
	}
	s.reply(msg, protocol.BatchAccepted{BatchID: res.BatchID, JobIDs: jobIDs(res.Jobs)})
	return res, true
}

func (s *Service) reply(msg *nats.Msg, v protocol.BatchAccepted) {
	if msg.Reply == "" {
		return
	}
	if err := bus.Respond(msg, v); err != nil {
		s.logger.Warn("failed to reply to batch request", slogError(err))
	}
}

func (s *Service) publishStatus(evt batch.Event) {
	if err := s.bus.PublishJSON(protocol.JobStatusSubject(evt.BatchID), StatusEvent(evt)); err != nil {
		s.logger.Warn("failed to publish job status", slogError(err))
	}
}

func (s *Service) publishDone(report *Report) {
	done := protocol.BatchDone{
		BatchID:        report.Result.BatchID,
		Succeeded:      jobIDs(report.Result.Succeeded()),
		Failed:         jobIDs(report.Result.Failed()),
		PersistWarning: report.PersistWarning,
	}
	if err := s.bus.PublishJSON(protocol.BatchDoneSubject(done.BatchID), done); err != nil {
		s.logger.Warn("failed to publish batch summary", slogError(err))
	}
}

// StatusEvent renders a scheduler event for the bus.
func StatusEvent(evt batch.Event) protocol.JobStatusEvent {
	out := protocol.JobStatusEvent{
		BatchID:    evt.BatchID,
		JobID:      evt.JobID,
		Voice:      evt.Spec.Voice,
		Model:      evt.Spec.Model,
		StyleLabel: evt.Spec.StyleLabel,
		Status:     string(evt.Status),
		Error:      evt.Err,
		Timestamp:  evt.Timestamp,
	}
	if evt.Artifact != nil {
		out.MIMEType = evt.Artifact.MIMEType
		out.AudioBytes = len(evt.Artifact.Data)
	}
	return out
}

// FromProtocol converts a bus request into a scheduler request.
func FromProtocol(req protocol.BatchRequest) batch.Request {
	out := batch.Request{Model: req.Model, Voices: req.Voices, Text: req.Text}
	for _, v := range req.Variants {
		out.Variants = append(out.Variants, batch.Variant{Tag: v.Tag, Label: v.Label, CustomStyle: v.CustomStyle})
	}
	return out
}

func jobIDs(jobs []*batch.Job) []string {
	ids := make([]string, 0, len(jobs))
	for _, j := range jobs {
		ids = append(ids, j.ID)
	}
	return ids
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
