package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/loqalabs/loqa-voicebatch/internal/catalog"
)

func runVoices(w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VOICE\tGENDER")
	for _, v := range catalog.Voices() {
		fmt.Fprintf(tw, "%s\t%s\n", v.Name, v.Gender)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "MODEL\tLABEL\tDESCRIPTION")
	for _, m := range catalog.Models() {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", m.ID, m.Label, m.Description)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "STYLE\tTAG")
	for _, p := range catalog.Presets() {
		fmt.Fprintf(tw, "%s\t%s\n", p.Label, p.Tag)
	}
	_ = tw.Flush()
}
