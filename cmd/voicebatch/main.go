package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/loqalabs/loqa-voicebatch/internal/config"
)

var version = "0.1.0-dev"

const usage = `usage: voicebatch <command> [flags]

commands:
  generate   synthesize text for every voice and style locally
  submit     send a batch to a running voicebatchd over NATS
  history    list | delete <id> | clear | export <id>
  styles     refine | variants | upgrade
  voices     list the voice catalog
  version    print the version`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "generate":
		err = runGenerate(os.Args[2:])
	case "submit":
		err = runSubmit(os.Args[2:])
	case "history":
		err = runHistory(os.Args[2:])
	case "styles":
		err = runStyles(os.Args[2:])
	case "voices":
		runVoices(os.Stdout)
	case "version":
		fmt.Println(version)
	case "help", "-h", "--help":
		fmt.Println(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s\n", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads path (or only defaults and environment when empty). needKey=false tolerates
// a missing API key for commands that never call the hosted API.
func loadConfig(path string, needKey bool) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil && !needKey && errors.Is(err, config.ErrMissingAPIKey) {
		return cfg, nil
	}
	return cfg, err
}

func newLogger(cfg config.Config, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		switch strings.ToLower(cfg.Telemetry.LogLevel) {
		case "debug":
			level = slog.LevelDebug
		default:
			level = slog.LevelInfo
		}
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// splitList parses a comma separated flag value, dropping blanks.
func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func readText(text, file string, stdin io.Reader) (string, error) {
	switch {
	case text != "" && file != "":
		return "", errors.New("use either -text or -file, not both")
	case text != "":
		return text, nil
	case file == "-":
		data, err := io.ReadAll(stdin)
		return string(data), err
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read text file: %w", err)
		}
		return string(data), nil
	default:
		return "", errors.New("-text or -file is required")
	}
}
