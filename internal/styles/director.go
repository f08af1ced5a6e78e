package styles

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/loqalabs/loqa-voicebatch/internal/config"
)

//go:embed prompts/refine.txt
var refinePrompt string

//go:embed prompts/variants.txt
var variantsPrompt string

//go:embed prompts/upgrade.txt
var upgradePrompt string

// MaxVariants caps the number of styles returned by Variants.
const MaxVariants = 10

const (
	variantsTemperature = 1.2
	upgradeTemperature  = 0.7
)

// Director turns descriptions into style directions and scripts into tagged scripts.
type Director struct {
	gen          Generator
	model        string
	variantModel string
	temperature  float64
	log          *slog.Logger
}

func NewDirector(gen Generator, cfg config.StylesConfig, log *slog.Logger) *Director {
	return &Director{
		gen:          gen,
		model:        cfg.Model,
		variantModel: cfg.VariantModel,
		temperature:  cfg.Temperature,
		log:          log.With(slog.String("component", "styles")),
	}
}

// NewGenerator builds the backend selected by cfg.Mode.
func NewGenerator(cfg config.StylesConfig, apiKey string, timeout time.Duration) (Generator, error) {
	switch cfg.Mode {
	case "gemini":
		return NewGeminiGenerator(cfg.Endpoint, apiKey, timeout), nil
	case "ollama":
		return NewOllamaGenerator(cfg.Endpoint, ""), nil
	case "exec":
		return NewExecGenerator(cfg.Command)
	case "mock", "":
		return NewMockGenerator(), nil
	default:
		return nil, fmt.Errorf("unsupported styles mode %q", cfg.Mode)
	}
}

// Refine returns one style direction for description, continuing history when given.
func (d *Director) Refine(ctx context.Context, description string, history []Turn) (string, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return "", ErrDescriptionRequired
	}
	turns := make([]Turn, 0, len(history)+1)
	for _, t := range history {
		if t.Role != "user" && t.Role != "model" {
			return "", fmt.Errorf("invalid history role %q", t.Role)
		}
		turns = append(turns, t)
	}
	turns = append(turns, Turn{Role: "user", Content: description})

	out, err := d.complete(ctx, Prompt{
		Kind:        KindRefine,
		Model:       d.model,
		System:      refinePrompt,
		Turns:       turns,
		Temperature: d.temperature,
	})
	if err != nil {
		return "", err
	}
	return stripQuotes(out), nil
}

// Variants returns up to MaxVariants contrasting style directions for description.
func (d *Director) Variants(ctx context.Context, description string) ([]string, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, ErrDescriptionRequired
	}
	out, err := d.complete(ctx, Prompt{
		Kind:        KindVariants,
		Model:       d.variantModel,
		System:      variantsPrompt,
		Turns:       []Turn{{Role: "user", Content: description}},
		Temperature: variantsTemperature,
	})
	if err != nil {
		return nil, err
	}
	return ParseStyleList(out)
}

// Upgrade adds performance tags to script without changing its words. style, when set, is the
// direction the tagged script will be read with.
func (d *Director) Upgrade(ctx context.Context, script, style string) (string, error) {
	if strings.TrimSpace(script) == "" {
		return "", ErrScriptRequired
	}
	system := upgradePrompt
	if style = strings.TrimSpace(style); style != "" {
		system += "\nThe script will be read with this style instruction, so choose tags that suit it:\n" + style + "\n"
	}
	return d.complete(ctx, Prompt{
		Kind:        KindUpgrade,
		Model:       d.variantModel,
		System:      system,
		Turns:       []Turn{{Role: "user", Content: script}},
		Temperature: upgradeTemperature,
	})
}

func (d *Director) complete(ctx context.Context, p Prompt) (string, error) {
	start := time.Now()
	out, err := d.gen.Complete(ctx, p)
	if err != nil {
		d.log.Warn("style generation failed", slog.String("kind", string(p.Kind)), slog.String("error", err.Error()))
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", ErrEmptyResponse
	}
	d.log.Debug("style generation completed",
		slog.String("kind", string(p.Kind)),
		slog.Duration("latency", time.Since(start)))
	return out, nil
}

// ParseStyleList decodes a JSON array of strings, tolerating a surrounding code fence.
// Blank entries are dropped and at most MaxVariants are kept.
func ParseStyleList(raw string) ([]string, error) {
	cleaned := stripFence(strings.TrimSpace(raw))
	var items []any
	if err := json.Unmarshal([]byte(cleaned), &items); err != nil {
		return nil, ErrUnparseableStyles
	}
	styles := make([]string, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		s := strings.TrimSpace(fmt.Sprint(item))
		if s == "" {
			continue
		}
		styles = append(styles, s)
		if len(styles) == MaxVariants {
			break
		}
	}
	if len(styles) == 0 {
		return nil, ErrUnparseableStyles
	}
	return styles, nil
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func stripQuotes(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}
