package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-voicebatch/internal/audio"
	"github.com/loqalabs/loqa-voicebatch/internal/synth"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// DefaultConcurrency is the ceiling on simultaneously running jobs.
const DefaultConcurrency = 5

// Observer receives status transitions. Observers are called from worker goroutines and
// must be safe for concurrent use.
type Observer func(Event)

// Scheduler runs batches of jobs through the retry policy and the transcoder.
type Scheduler struct {
	synth       synth.Synthesizer
	concurrency int
	maxBytes    int
	log         *slog.Logger
	clock       func() time.Time
	newID       func() string
	tracer      trace.Tracer

	started   metric.Int64Counter
	completed metric.Int64Counter
	running   metric.Int64UpDownCounter
}

type Options struct {
	Concurrency  int
	MaxTextBytes int
}

// NewScheduler wraps s with the single-retry policy. Zero options select the defaults.
func NewScheduler(s synth.Synthesizer, opts Options, log *slog.Logger) *Scheduler {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.MaxTextBytes <= 0 {
		opts.MaxTextBytes = DefaultMaxTextBytes
	}
	sch := &Scheduler{
		synth:       synth.NewRetrier(s, log),
		concurrency: opts.Concurrency,
		maxBytes:    opts.MaxTextBytes,
		log:         log.With(slog.String("component", "batch-scheduler")),
		clock:       time.Now,
		newID:       uuid.NewString,
		tracer:      otel.Tracer("github.com/loqalabs/loqa-voicebatch/batch"),
	}
	if err := sch.initMetrics(); err != nil {
		sch.log.Warn("failed to initialize metrics", slogError(err))
	}
	return sch
}

func (s *Scheduler) initMetrics() error {
	meter := otel.Meter("github.com/loqalabs/loqa-voicebatch/batch")
	started, err := meter.Int64Counter("voicebatch.jobs.started", metric.WithDescription("Jobs dequeued by a worker"))
	if err != nil {
		return err
	}
	completed, err := meter.Int64Counter("voicebatch.jobs.completed", metric.WithDescription("Jobs reaching a terminal status"))
	if err != nil {
		return err
	}
	running, err := meter.Int64UpDownCounter("voicebatch.jobs.running", metric.WithDescription("Jobs currently running"))
	if err != nil {
		return err
	}
	s.started, s.completed, s.running = started, completed, running
	return nil
}

// Submit validates and expands req, then runs it. Validation failures return before any job
// is created.
func (s *Scheduler) Submit(ctx context.Context, req Request, observers ...Observer) (*Result, error) {
	res, err := s.Plan(req)
	if err != nil {
		return nil, err
	}
	s.Execute(ctx, res, observers...)
	return res, nil
}

// Plan validates and expands req into pending jobs without starting them.
func (s *Scheduler) Plan(req Request) (*Result, error) {
	specs, err := Expand(req, s.maxBytes)
	if err != nil {
		return nil, err
	}
	return s.Prepare(specs), nil
}

// Prepare creates the pending job records for specs without starting them.
func (s *Scheduler) Prepare(specs []JobSpec) *Result {
	res := &Result{BatchID: s.newID(), Jobs: make([]*Job, len(specs))}
	for i, spec := range specs {
		res.Jobs[i] = &Job{ID: s.newID(), BatchID: res.BatchID, Spec: spec, Status: StatusPending}
	}
	return res
}

// Run executes specs to completion and returns once every job is terminal.
func (s *Scheduler) Run(ctx context.Context, specs []JobSpec, observers ...Observer) *Result {
	res := s.Prepare(specs)
	s.Execute(ctx, res, observers...)
	return res
}

// Execute drives the pending jobs of res. Cancelling ctx does not abort running jobs;
// in-flight calls run to completion.
func (s *Scheduler) Execute(ctx context.Context, res *Result, observers ...Observer) {
	ctx = context.WithoutCancel(ctx)
	publish := func(j *Job) {
		evt := j.event(s.clock().UTC())
		for _, obs := range observers {
			obs(evt)
		}
	}

	q := newQueue(res.Jobs)
	for _, j := range res.Jobs {
		publish(j)
	}

	workers := min(s.concurrency, len(res.Jobs))
	s.log.Info("batch started",
		slog.String("batch_id", res.BatchID),
		slog.Int("jobs", len(res.Jobs)),
		slog.Int("workers", workers))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, ok := q.dequeue()
				if !ok {
					return
				}
				s.process(ctx, job, publish)
			}
		}()
	}
	wg.Wait()

	s.log.Info("batch finished",
		slog.String("batch_id", res.BatchID),
		slog.Int("succeeded", len(res.Succeeded())),
		slog.Int("failed", len(res.Failed())))
}

func (s *Scheduler) process(ctx context.Context, job *Job, publish func(*Job)) {
	ctx, span := s.tracer.Start(ctx, "voicebatch.job",
		trace.WithAttributes(
			attribute.String("job.id", job.ID),
			attribute.String("batch.id", job.BatchID),
			attribute.String("voice", job.Spec.Voice),
			attribute.String("model", job.Spec.Model),
		))
	defer span.End()

	job.Status = StatusRunning
	publish(job)
	if s.started != nil {
		s.started.Add(ctx, 1)
		s.running.Add(ctx, 1)
	}

	out := s.synth.Synthesize(ctx, job.Spec.request())
	switch out.Kind {
	case synth.Success:
		art, err := audio.FromPayload(out.Audio, out.MIMEType)
		if err != nil {
			s.fail(job, fmt.Sprintf("malformed audio payload: %v", err))
		} else {
			job.Artifact = &art
			job.Status = StatusSucceeded
		}
	case synth.RateLimited:
		s.fail(job, synth.RateLimitMessage)
	default:
		s.fail(job, out.Reason)
	}
	job.FinishedAt = s.clock().UTC()

	if job.Status == StatusFailed {
		span.SetStatus(codes.Error, job.Err)
		s.log.Warn("job failed",
			slog.String("job_id", job.ID),
			slog.String("voice", job.Spec.Voice),
			slog.String("error", job.Err))
	}
	if s.completed != nil {
		s.running.Add(ctx, -1)
		s.completed.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(job.Status))))
	}
	publish(job)
}

func (s *Scheduler) fail(job *Job, reason string) {
	if reason == "" {
		reason = "synthesis failed"
	}
	job.Status = StatusFailed
	job.Err = reason
}

// queue hands each job to exactly one worker.
type queue struct {
	mu   sync.Mutex
	jobs []*Job
	next int
}

func newQueue(jobs []*Job) *queue {
	return &queue{jobs: jobs}
}

func (q *queue) dequeue() (*Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.next >= len(q.jobs) {
		return nil, false
	}
	j := q.jobs[q.next]
	q.next++
	return j, true
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
