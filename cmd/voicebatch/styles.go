package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/loqalabs/loqa-voicebatch/internal/styles"
)

func runStyles(args []string) error {
	fs := flag.NewFlagSet("styles", flag.ExitOnError)
	var configPath, text, file, style string
	fs.StringVar(&configPath, "config", "", "Path to configuration file")
	fs.StringVar(&text, "text", "", "Description (refine, variants) or script (upgrade)")
	fs.StringVar(&file, "file", "", "Read input from file, - for stdin")
	fs.StringVar(&style, "style", "", "Style the upgraded script will be read with")
	_ = fs.Parse(args)

	rest := fs.Args()
	if len(rest) == 0 {
		return errors.New("expected refine, variants or upgrade")
	}
	cfg, err := loadConfig(configPath, true)
	if err != nil {
		return err
	}
	if !cfg.Styles.Enabled {
		return styles.ErrDisabled
	}
	input, err := readText(text, file, os.Stdin)
	if err != nil {
		return err
	}

	gen, err := styles.NewGenerator(cfg.Styles, cfg.Synth.APIKey, time.Duration(cfg.Synth.TimeoutSeconds)*time.Second)
	if err != nil {
		return err
	}
	director := styles.NewDirector(gen, cfg.Styles, newLogger(cfg, false))
	ctx := context.Background()

	switch rest[0] {
	case "refine":
		out, err := director.Refine(ctx, input, nil)
		if err != nil {
			return err
		}
		fmt.Println(out)
	case "variants":
		list, err := director.Variants(ctx, input)
		if err != nil {
			return err
		}
		for i, s := range list {
			fmt.Printf("%2d. %s\n", i+1, s)
		}
	case "upgrade":
		out, err := director.Upgrade(ctx, input, style)
		if err != nil {
			return err
		}
		fmt.Println(out)
	default:
		return fmt.Errorf("unknown styles command %q", rest[0])
	}
	return nil
}
