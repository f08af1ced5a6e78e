package batch

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/loqalabs/loqa-voicebatch/internal/audio"
	"github.com/loqalabs/loqa-voicebatch/internal/synth"
	"github.com/stretchr/testify/require"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeSynth counts calls and concurrent callers and answers from a per-voice script.
type fakeSynth struct {
	delay   time.Duration
	script  map[string][]synth.Outcome
	mu      sync.Mutex
	served  map[string]int
	calls   atomic.Int64
	active  atomic.Int64
	maxSeen atomic.Int64
}

func (f *fakeSynth) Synthesize(_ context.Context, req synth.Request) synth.Outcome {
	f.calls.Add(1)
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		cur := f.maxSeen.Load()
		if n <= cur || f.maxSeen.CompareAndSwap(cur, n) {
			break
		}
	}
	time.Sleep(f.delay)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.served == nil {
		f.served = make(map[string]int)
	}
	outs := f.script[req.Voice]
	i := f.served[req.Voice]
	f.served[req.Voice]++
	if i < len(outs) {
		return outs[i]
	}
	return synth.Succeeded(make([]byte, 480), "audio/L16;codec=pcm;rate=24000")
}

func specsFor(voices ...string) []JobSpec {
	specs := make([]JobSpec, 0, len(voices))
	for _, v := range voices {
		specs = append(specs, JobSpec{Voice: v, Model: "gemini-2.5-flash-tts", Text: "Hello world"})
	}
	return specs
}

func manyVoices(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("voice-%02d", i)
	}
	return out
}

func TestRunRespectsConcurrencyCeiling(t *testing.T) {
	for _, k := range []int{1, 3, 5, 12} {
		t.Run(fmt.Sprintf("k=%d", k), func(t *testing.T) {
			fake := &fakeSynth{delay: 20 * time.Millisecond}
			sch := NewScheduler(fake, Options{Concurrency: 5}, newLogger())

			res := sch.Run(context.Background(), specsFor(manyVoices(k)...))

			require.Len(t, res.Jobs, k)
			require.LessOrEqual(t, fake.maxSeen.Load(), int64(min(5, k)))
			require.EqualValues(t, k, fake.calls.Load(), "each job dequeued exactly once")
			for _, j := range res.Jobs {
				require.True(t, j.Status.Terminal())
			}
		})
	}
}

func TestRunPublishesOrderedTransitions(t *testing.T) {
	fake := &fakeSynth{
		delay: 5 * time.Millisecond,
		script: map[string][]synth.Outcome{
			"voice-01": {synth.Failed("synthesis error: 500: boom")},
			"voice-03": {synth.Limited(0), synth.Succeeded(make([]byte, 8), "audio/pcm")},
		},
	}
	sch := NewScheduler(fake, Options{Concurrency: 2}, newLogger())
	var col Collector

	res := sch.Run(context.Background(), specsFor(manyVoices(6)...), col.Observe)

	transitions := col.Transitions()
	require.Len(t, transitions, 6)
	for _, j := range res.Jobs {
		got := transitions[j.ID]
		require.Len(t, got, 3, "job %s", j.ID)
		require.Equal(t, StatusPending, got[0])
		require.Equal(t, StatusRunning, got[1])
		require.Equal(t, j.Status, got[2])
		require.True(t, got[2].Terminal())
	}
}

func TestRunRateLimitedTwiceFails(t *testing.T) {
	fake := &fakeSynth{script: map[string][]synth.Outcome{
		"Kore": {synth.Limited(0), synth.Limited(0)},
	}}
	sch := NewScheduler(fake, Options{}, newLogger())

	res := sch.Run(context.Background(), specsFor("Kore"))

	job := res.Jobs[0]
	require.Equal(t, StatusFailed, job.Status)
	require.Equal(t, "rate limit exceeded, try again shortly", job.Err)
	require.Nil(t, job.Artifact)
	require.EqualValues(t, 2, fake.calls.Load())
}

func TestRunRateLimitedThenSuccess(t *testing.T) {
	fake := &fakeSynth{script: map[string][]synth.Outcome{
		"Kore": {synth.Limited(0), synth.Succeeded(make([]byte, 100), "audio/pcm")},
	}}
	sch := NewScheduler(fake, Options{}, newLogger())

	res := sch.Run(context.Background(), specsFor("Kore"))

	job := res.Jobs[0]
	require.Equal(t, StatusSucceeded, job.Status)
	require.NotNil(t, job.Artifact)
	require.Len(t, job.Artifact.Data, audio.HeaderSize+100)
	require.Empty(t, job.Err)
}

func TestRunFailureDoesNotAbortSiblings(t *testing.T) {
	fake := &fakeSynth{script: map[string][]synth.Outcome{
		"Puck": {synth.Failed("network error contacting synthesis endpoint: refused")},
	}}
	sch := NewScheduler(fake, Options{}, newLogger())

	res := sch.Run(context.Background(), specsFor("Kore", "Puck", "Charon"))

	require.Len(t, res.Succeeded(), 2)
	require.Len(t, res.Failed(), 1)
	require.Contains(t, res.Failed()[0].Err, "network error")
}

func TestRunMalformedPayloadFailsJob(t *testing.T) {
	fake := &fakeSynth{script: map[string][]synth.Outcome{
		"Kore": {synth.Succeeded([]byte{1, 2, 3}, "audio/pcm")},
	}}
	sch := NewScheduler(fake, Options{}, newLogger())

	res := sch.Run(context.Background(), specsFor("Kore"))

	require.Equal(t, StatusFailed, res.Jobs[0].Status)
	require.Contains(t, res.Jobs[0].Err, "malformed audio payload")
}

func TestRunPassesContainersThrough(t *testing.T) {
	mp3 := []byte{0xff, 0xfb, 0x90, 0x64}
	fake := &fakeSynth{script: map[string][]synth.Outcome{
		"Kore": {synth.Succeeded(mp3, "audio/mpeg")},
	}}
	sch := NewScheduler(fake, Options{}, newLogger())

	res := sch.Run(context.Background(), specsFor("Kore"))

	require.Equal(t, StatusSucceeded, res.Jobs[0].Status)
	require.Equal(t, audio.MIMETypeMPEG, res.Jobs[0].Artifact.MIMEType)
	require.Equal(t, mp3, res.Jobs[0].Artifact.Data)
}

func TestSubmitThreeVoicesScenario(t *testing.T) {
	fake := &fakeSynth{delay: 2 * time.Millisecond}
	sch := NewScheduler(fake, Options{}, newLogger())

	res, err := sch.Submit(context.Background(), Request{
		Voices:   []string{"Kore", "Puck", "Charon"},
		Variants: []Variant{{Tag: "[whispering]"}},
		Text:     "Hello world",
	})
	require.NoError(t, err)
	require.Len(t, res.Jobs, 3)

	ids := map[string]bool{}
	for _, j := range res.Jobs {
		require.False(t, ids[j.ID], "job ids must be unique")
		ids[j.ID] = true
		switch j.Status {
		case StatusSucceeded:
			require.Equal(t, "RIFF", string(j.Artifact.Data[:4]))
			require.EqualValues(t, len(j.Artifact.Data)-audio.HeaderSize, binary.LittleEndian.Uint32(j.Artifact.Data[40:44]))
		case StatusFailed:
			require.NotEmpty(t, j.Err)
		default:
			t.Fatalf("job %s not terminal: %s", j.ID, j.Status)
		}
	}
}

func TestSubmitRejectsOversizedTextBeforeDispatch(t *testing.T) {
	fake := &fakeSynth{}
	sch := NewScheduler(fake, Options{}, newLogger())
	var col Collector

	res, err := sch.Submit(context.Background(), Request{
		Voices: []string{"Kore", "Puck"},
		Text:   strings.Repeat("x", 4001),
	}, col.Observe)

	require.ErrorIs(t, err, ErrTextTooLong)
	require.Nil(t, res)
	require.Zero(t, fake.calls.Load())
	require.Empty(t, col.Events())
}

func TestRunIgnoresCallerCancellation(t *testing.T) {
	fake := &fakeSynth{delay: 10 * time.Millisecond}
	sch := NewScheduler(fake, Options{Concurrency: 1}, newLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := sch.Run(ctx, specsFor("Kore", "Puck"))
	require.Len(t, res.Succeeded(), 2)
}

func TestChannelObserver(t *testing.T) {
	fake := &fakeSynth{}
	sch := NewScheduler(fake, Options{}, newLogger())
	ch := make(chan Event)
	done := make(chan []Event)
	go func() {
		var got []Event
		for evt := range ch {
			got = append(got, evt)
		}
		done <- got
	}()

	sch.Run(context.Background(), specsFor("Kore", "Puck"), ChannelObserver(ch))
	close(ch)

	require.Len(t, <-done, 6)
}
