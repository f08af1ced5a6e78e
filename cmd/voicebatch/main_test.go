package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestSplitList(t *testing.T) {
	got := splitList(" Kore, ,Puck,")
	if len(got) != 2 || got[0] != "Kore" || got[1] != "Puck" {
		t.Fatalf("unexpected split %q", got)
	}
	if splitList("") != nil {
		t.Fatalf("expected nil for empty input")
	}
}

func TestReadText(t *testing.T) {
	if _, err := readText("a", "b", nil); err == nil {
		t.Fatalf("expected error when both -text and -file are set")
	}
	if _, err := readText("", "", nil); err == nil {
		t.Fatalf("expected error when no input is given")
	}
	got, err := readText("", "-", strings.NewReader("from stdin"))
	if err != nil || got != "from stdin" {
		t.Fatalf("unexpected stdin read %q (%v)", got, err)
	}
}

func TestPreview(t *testing.T) {
	if got := preview("héllo world", 5); got != "héll…" {
		t.Fatalf("unexpected preview %q", got)
	}
	if got := preview("short", 40); got != "short" {
		t.Fatalf("unexpected preview %q", got)
	}
}

func TestRunVoicesListsCatalog(t *testing.T) {
	var buf bytes.Buffer
	runVoices(&buf)
	out := buf.String()
	for _, want := range []string{"Kore", "Puck", "gemini-2.5-pro-tts", "[whispering]"} {
		if !strings.Contains(out, want) {
			t.Fatalf("voices output missing %q", want)
		}
	}
}
