package batch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/loqalabs/loqa-voicebatch/internal/catalog"
)

// DefaultMaxTextBytes is the encoded-size ceiling for the text of a batch.
const DefaultMaxTextBytes = 4000

var (
	ErrTextRequired = errors.New("text is required")
	ErrTextTooLong  = errors.New("text is too long")
	ErrNoVoices     = errors.New("at least one voice must be selected")
	ErrUnknownVoice = errors.New("unknown voice")
	ErrUnknownModel = errors.New("unknown model")
)

// Variant is one style column of a batch: a preset tag or a free-text custom style.
type Variant struct {
	Tag         string `json:"tag,omitempty"`
	Label       string `json:"label,omitempty"`
	CustomStyle string `json:"custom_style,omitempty"`
}

// Request is a batch as submitted by a caller.
type Request struct {
	Model    string    `json:"model"`
	Voices   []string  `json:"voices"`
	Variants []Variant `json:"variants,omitempty"`
	Text     string    `json:"text"`
}

// Validate rejects a request before any job exists. maxBytes <= 0 selects DefaultMaxTextBytes.
func Validate(req Request, maxBytes int) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxTextBytes
	}
	if strings.TrimSpace(req.Text) == "" {
		return ErrTextRequired
	}
	if n := len(req.Text); n > maxBytes {
		return fmt.Errorf("%w: %d bytes exceeds the %d byte limit", ErrTextTooLong, n, maxBytes)
	}
	if len(req.Voices) == 0 {
		return ErrNoVoices
	}
	for _, v := range req.Voices {
		if _, ok := catalog.LookupVoice(v); !ok {
			return fmt.Errorf("%w: %q", ErrUnknownVoice, v)
		}
	}
	if req.Model != "" {
		if _, ok := catalog.LookupModel(req.Model); !ok {
			return fmt.Errorf("%w: %q", ErrUnknownModel, req.Model)
		}
	}
	return nil
}

// Expand validates req and returns the cross product of voices and variants, voices outermost.
// An empty variant list yields one unstyled column.
func Expand(req Request, maxBytes int) ([]JobSpec, error) {
	if err := Validate(req, maxBytes); err != nil {
		return nil, err
	}
	model := catalog.DefaultModel()
	if req.Model != "" {
		model, _ = catalog.LookupModel(req.Model)
	}
	variants := req.Variants
	if len(variants) == 0 {
		variants = []Variant{{}}
	}

	specs := make([]JobSpec, 0, len(req.Voices)*len(variants))
	for _, voice := range req.Voices {
		for _, v := range variants {
			specs = append(specs, JobSpec{
				Voice:       voice,
				Model:       model.ID,
				ModelLabel:  model.Label,
				StyleTag:    v.Tag,
				StyleLabel:  variantLabel(v),
				CustomStyle: strings.TrimSpace(v.CustomStyle),
				Text:        req.Text,
			})
		}
	}
	return specs, nil
}

func variantLabel(v Variant) string {
	if v.Label != "" {
		return v.Label
	}
	if strings.TrimSpace(v.CustomStyle) != "" {
		return "Custom"
	}
	if p, ok := catalog.PresetByTag(v.Tag); ok {
		return p.Label
	}
	return v.Tag
}
