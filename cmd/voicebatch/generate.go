package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/loqalabs/loqa-voicebatch/internal/audio"
	"github.com/loqalabs/loqa-voicebatch/internal/batch"
	"github.com/loqalabs/loqa-voicebatch/internal/history"
	"github.com/loqalabs/loqa-voicebatch/internal/studio"
	"github.com/loqalabs/loqa-voicebatch/internal/synth"
)

func runGenerate(args []string) error {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	var (
		configPath, voices, tags, custom, model, text, file, outDir string
		noHistory, verbose                                          bool
		concurrency                                                 int
	)
	fs.StringVar(&configPath, "config", "", "Path to configuration file")
	fs.StringVar(&voices, "voices", "", "Comma separated voice names")
	fs.StringVar(&tags, "styles", "", "Comma separated style tags, e.g. [whispering],[sarcasm]")
	fs.StringVar(&custom, "custom", "", "Free-text style direction, added as its own column")
	fs.StringVar(&model, "model", "", "Model id (defaults to the first catalog model)")
	fs.StringVar(&text, "text", "", "Text to speak")
	fs.StringVar(&file, "file", "", "Read text from file, - for stdin")
	fs.StringVar(&outDir, "out", ".", "Directory for generated audio")
	fs.BoolVar(&noHistory, "no-history", false, "Do not save results to history")
	fs.BoolVar(&verbose, "v", false, "Verbose logging")
	fs.IntVar(&concurrency, "concurrency", 0, "Override batch.concurrency")
	_ = fs.Parse(args)

	cfg, err := loadConfig(configPath, true)
	if err != nil {
		return err
	}
	log := newLogger(cfg, verbose)

	body, err := readText(text, file, os.Stdin)
	if err != nil {
		return err
	}
	req := batch.Request{Model: model, Voices: splitList(voices), Text: body}
	for _, tag := range splitList(tags) {
		req.Variants = append(req.Variants, batch.Variant{Tag: tag})
	}
	if custom != "" {
		req.Variants = append(req.Variants, batch.Variant{CustomStyle: custom})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store studio.HistoryWriter
	if !noHistory {
		s, err := history.Open(ctx, cfg.History, log)
		if err != nil {
			return err
		}
		store = s
	}
	backend, err := synth.New(cfg.Synth, time.Duration(cfg.Batch.DefaultRetryAfter)*time.Millisecond)
	if err != nil {
		return err
	}
	if concurrency <= 0 {
		concurrency = cfg.Batch.Concurrency
	}
	sch := batch.NewScheduler(backend, batch.Options{Concurrency: concurrency, MaxTextBytes: cfg.Batch.MaxTextBytes}, log)
	svc := studio.NewService(ctx, sch, store, nil, log)
	defer svc.Close()

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	report, err := svc.Generate(ctx, req, printEvent)
	if err != nil {
		return err
	}

	for _, j := range report.Result.Succeeded() {
		// Jobs of one voice can share a millisecond; name by job id.
		name := fmt.Sprintf("tts-%s-%s%s", j.Spec.Voice, j.ID[:8], audio.Extension(j.Artifact.MIMEType))
		path := filepath.Join(outDir, name)
		if err := os.WriteFile(path, j.Artifact.Data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		fmt.Printf("%s\t%s\t%s\n", j.Spec.Voice, j.Spec.StyleLabel, path)
	}
	for _, j := range report.Result.Failed() {
		fmt.Printf("%s\t%s\tFAILED: %s\n", j.Spec.Voice, j.Spec.StyleLabel, j.Err)
	}
	if report.PersistWarning != "" {
		fmt.Fprintln(os.Stderr, "warning:", report.PersistWarning)
	}
	if len(report.Result.Succeeded()) == 0 {
		return fmt.Errorf("all %d jobs failed", len(report.Result.Jobs))
	}
	return nil
}

func printEvent(evt batch.Event) {
	if evt.Status == batch.StatusPending {
		return
	}
	line := fmt.Sprintf("[%s] %-12s %-14s %s", evt.Timestamp.Local().Format("15:04:05"), evt.Spec.Voice, evt.Spec.StyleLabel, evt.Status)
	if evt.Err != "" {
		line += ": " + evt.Err
	}
	fmt.Fprintln(os.Stderr, line)
}
