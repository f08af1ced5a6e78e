package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/loqalabs/loqa-voicebatch/internal/history"
)

func runHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	var configPath, outDir string
	fs.StringVar(&configPath, "config", "", "Path to configuration file")
	fs.StringVar(&outDir, "out", ".", "Directory for exported audio")
	_ = fs.Parse(args)

	rest := fs.Args()
	if len(rest) == 0 {
		return errors.New("expected list, delete <id>, clear or export <id>")
	}

	cfg, err := loadConfig(configPath, false)
	if err != nil {
		return err
	}
	ctx := context.Background()
	store, err := history.Open(ctx, cfg.History, newLogger(cfg, false))
	if err != nil {
		return err
	}

	switch rest[0] {
	case "list":
		entries, err := store.List(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tCREATED\tVOICE\tMODEL\tSTYLE\tBYTES\tTEXT")
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
				e.ID, e.CreatedAt.Local().Format("2006-01-02 15:04:05"), e.Voice, e.ModelLabel,
				e.StyleLabel, len(e.Audio), preview(e.Text, 40))
		}
		return tw.Flush()
	case "delete":
		if len(rest) < 2 {
			return errors.New("history delete requires an id")
		}
		return store.Delete(ctx, rest[1])
	case "clear":
		return store.Clear(ctx)
	case "export":
		if len(rest) < 2 {
			return errors.New("history export requires an id")
		}
		entry, err := store.Get(ctx, rest[1])
		if err != nil {
			return err
		}
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return err
		}
		path := filepath.Join(outDir, entry.FileName())
		if err := os.WriteFile(path, entry.Audio, 0o644); err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	default:
		return fmt.Errorf("unknown history command %q", rest[0])
	}
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
