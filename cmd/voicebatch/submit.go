package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/loqalabs/loqa-voicebatch/internal/bus"
	"github.com/loqalabs/loqa-voicebatch/internal/protocol"
	"github.com/nats-io/nats.go"
)

func runSubmit(args []string) error {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	var (
		configPath, voices, tags, custom, model, text, file string
		timeout                                             time.Duration
	)
	fs.StringVar(&configPath, "config", "", "Path to configuration file")
	fs.StringVar(&voices, "voices", "", "Comma separated voice names")
	fs.StringVar(&tags, "styles", "", "Comma separated style tags")
	fs.StringVar(&custom, "custom", "", "Free-text style direction")
	fs.StringVar(&model, "model", "", "Model id")
	fs.StringVar(&text, "text", "", "Text to speak")
	fs.StringVar(&file, "file", "", "Read text from file, - for stdin")
	fs.DurationVar(&timeout, "timeout", 5*time.Minute, "How long to wait for the batch to finish")
	_ = fs.Parse(args)

	cfg, err := loadConfig(configPath, false)
	if err != nil {
		return err
	}
	body, err := readText(text, file, os.Stdin)
	if err != nil {
		return err
	}
	req := protocol.BatchRequest{Model: model, Voices: splitList(voices), Text: body}
	for _, tag := range splitList(tags) {
		req.Variants = append(req.Variants, protocol.Variant{Tag: tag})
	}
	if custom != "" {
		req.Variants = append(req.Variants, protocol.Variant{CustomStyle: custom})
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client, err := bus.Connect(ctx, cfg.Bus, newLogger(cfg, false))
	if err != nil {
		return err
	}
	defer client.Close()

	// Subscribe before requesting so pending events are not missed.
	statusSub, err := client.Conn().SubscribeSync(protocol.SubjectJobStatusPrefix + ".>")
	if err != nil {
		return err
	}
	defer statusSub.Unsubscribe()
	doneSub, err := client.Conn().SubscribeSync(protocol.SubjectBatchDonePrefix + ".>")
	if err != nil {
		return err
	}
	defer doneSub.Unsubscribe()

	var accepted protocol.BatchAccepted
	if err := client.RequestJSON(ctx, protocol.SubjectBatchRequest, req, &accepted); err != nil {
		return err
	}
	if accepted.Error != "" {
		return fmt.Errorf("batch rejected: %s", accepted.Error)
	}
	fmt.Fprintf(os.Stderr, "batch %s accepted with %d jobs\n", accepted.BatchID, len(accepted.JobIDs))

	summary, err := followBatch(ctx, statusSub, doneSub, accepted.BatchID, os.Stderr)
	if err != nil {
		return err
	}
	fmt.Printf("succeeded=%d failed=%d\n", len(summary.Succeeded), len(summary.Failed))
	if summary.PersistWarning != "" {
		fmt.Fprintln(os.Stderr, "warning:", summary.PersistWarning)
	}
	return nil
}

const followPoll = 50 * time.Millisecond

// followBatch writes a line per status event of batchID until the batch summary arrives.
// The daemon publishes every status event before the summary on one connection, so they are
// already queued on statusSub once the summary is read.
func followBatch(ctx context.Context, statusSub, doneSub *nats.Subscription, batchID string, w io.Writer) (protocol.BatchDone, error) {
	for {
		if err := ctx.Err(); err != nil {
			return protocol.BatchDone{}, fmt.Errorf("stopped waiting for batch %s: %w", batchID, err)
		}
		if err := drainStatus(statusSub, batchID, w); err != nil {
			return protocol.BatchDone{}, err
		}
		msg, err := doneSub.NextMsg(followPoll)
		if errors.Is(err, nats.ErrTimeout) {
			continue
		}
		if err != nil {
			return protocol.BatchDone{}, fmt.Errorf("read batch summary: %w", err)
		}
		var summary protocol.BatchDone
		if json.Unmarshal(msg.Data, &summary) != nil || summary.BatchID != batchID {
			continue
		}
		return summary, drainStatus(statusSub, batchID, w)
	}
}

func drainStatus(sub *nats.Subscription, batchID string, w io.Writer) error {
	for {
		msg, err := sub.NextMsg(time.Millisecond)
		if errors.Is(err, nats.ErrTimeout) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read job status: %w", err)
		}
		var evt protocol.JobStatusEvent
		if json.Unmarshal(msg.Data, &evt) != nil || evt.BatchID != batchID {
			continue
		}
		line := fmt.Sprintf("%-12s %-14s %s", evt.Voice, evt.StyleLabel, evt.Status)
		if evt.Error != "" {
			line += ": " + evt.Error
		}
		fmt.Fprintln(w, line)
	}
}
