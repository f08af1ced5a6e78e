// Package batch expands voice × style selections into synthesis jobs and runs them under a
// concurrency ceiling.
package batch

import (
	"time"

	"github.com/loqalabs/loqa-voicebatch/internal/audio"
	"github.com/loqalabs/loqa-voicebatch/internal/synth"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transitions can follow s.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// JobSpec is the immutable description of one synthesis request.
type JobSpec struct {
	Voice       string `json:"voice"`
	Model       string `json:"model"`
	ModelLabel  string `json:"model_label,omitempty"`
	StyleTag    string `json:"style_tag,omitempty"`
	StyleLabel  string `json:"style_label,omitempty"`
	CustomStyle string `json:"custom_style,omitempty"`
	Text        string `json:"text"`
}

// Directive is the style actually sent to the synthesizer.
func (s JobSpec) Directive() string {
	return synth.ResolveStyle(s.CustomStyle, s.StyleTag)
}

func (s JobSpec) request() synth.Request {
	return synth.Request{Model: s.Model, Voice: s.Voice, Style: s.Directive(), Text: s.Text}
}

// Job is the execution record of one JobSpec. Only the worker that dequeued a job mutates it,
// and only until it reaches a terminal status.
type Job struct {
	ID         string
	BatchID    string
	Spec       JobSpec
	Status     Status
	Artifact   *audio.Artifact
	Err        string
	FinishedAt time.Time
}

// Event is one published status transition.
type Event struct {
	BatchID   string          `json:"batch_id"`
	JobID     string          `json:"job_id"`
	Spec      JobSpec         `json:"spec"`
	Status    Status          `json:"status"`
	Artifact  *audio.Artifact `json:"-"`
	Err       string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

func (j *Job) event(now time.Time) Event {
	return Event{
		BatchID:   j.BatchID,
		JobID:     j.ID,
		Spec:      j.Spec,
		Status:    j.Status,
		Artifact:  j.Artifact,
		Err:       j.Err,
		Timestamp: now,
	}
}

// Result is returned once every job of a batch is terminal.
type Result struct {
	BatchID string
	Jobs    []*Job
}

func (r *Result) Succeeded() []*Job {
	var out []*Job
	for _, j := range r.Jobs {
		if j.Status == StatusSucceeded {
			out = append(out, j)
		}
	}
	return out
}

func (r *Result) Failed() []*Job {
	var out []*Job
	for _, j := range r.Jobs {
		if j.Status == StatusFailed {
			out = append(out, j)
		}
	}
	return out
}
