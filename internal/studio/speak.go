package studio

import (
	"context"
	"errors"
	"fmt"

	"github.com/loqalabs/loqa-voicebatch/internal/batch"
)

// ErrNoAudio wraps the failure reason of a single-shot request.
var ErrNoAudio = errors.New("synthesis failed")

// SpeakRequest is a one-voice, one-style request.
type SpeakRequest struct {
	Model       string `json:"model,omitempty"`
	Voice       string `json:"voice"`
	StyleTag    string `json:"style_tag,omitempty"`
	CustomStyle string `json:"custom_style,omitempty"`
	Text        string `json:"text"`
}

// Speak runs a single-job batch through the same scheduler and retry policy as Generate.
func (s *Service) Speak(ctx context.Context, req SpeakRequest) (*batch.Job, *Report, error) {
	breq := batch.Request{Model: req.Model, Voices: []string{req.Voice}, Text: req.Text}
	if req.StyleTag != "" || req.CustomStyle != "" {
		breq.Variants = []batch.Variant{{Tag: req.StyleTag, CustomStyle: req.CustomStyle}}
	}
	report, err := s.Generate(ctx, breq)
	if err != nil {
		return nil, nil, err
	}
	job := report.Result.Jobs[0]
	if job.Status != batch.StatusSucceeded {
		return job, report, fmt.Errorf("%w: %s", ErrNoAudio, job.Err)
	}
	return job, report, nil
}
