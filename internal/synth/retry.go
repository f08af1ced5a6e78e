package synth

import (
	"context"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// RateLimitMessage is the failure reason when the single retry is rate limited again.
const RateLimitMessage = "rate limit exceeded, try again shortly"

// Retrier wraps a Synthesizer with one rate-limit-aware retry. Its Synthesize never returns a
// RateLimited outcome.
type Retrier struct {
	next    Synthesizer
	log     *slog.Logger
	sleep   func(context.Context, time.Duration) error
	retries metric.Int64Counter
}

func NewRetrier(next Synthesizer, log *slog.Logger) *Retrier {
	r := &Retrier{
		next:  next,
		log:   log.With(slog.String("component", "synth-retry")),
		sleep: sleepContext,
	}
	counter, err := otel.Meter("github.com/loqalabs/loqa-voicebatch/synth").Int64Counter(
		"voicebatch.synth.retries",
		metric.WithDescription("Synthesis calls retried after a rate limit"),
	)
	if err != nil {
		r.log.Warn("failed to initialize metrics", slogError(err))
	} else {
		r.retries = counter
	}
	return r
}

func (r *Retrier) Synthesize(ctx context.Context, req Request) Outcome {
	out := r.next.Synthesize(ctx, req)
	if out.Kind != RateLimited {
		return out
	}

	wait := roundUpSeconds(out.RetryAfter)
	r.log.Info("rate limited, retrying once",
		slog.String("voice", req.Voice),
		slog.Duration("wait", wait))
	if r.retries != nil {
		r.retries.Add(ctx, 1)
	}
	if err := r.sleep(ctx, wait); err != nil {
		return Failed(err.Error())
	}

	out = r.next.Synthesize(ctx, req)
	if out.Kind == RateLimited {
		return Failed(RateLimitMessage)
	}
	return out
}

func roundUpSeconds(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(math.Ceil(d.Seconds())) * time.Second
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
