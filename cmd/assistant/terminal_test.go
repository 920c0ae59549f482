package main

import (
	"bytes"
	"strings"
	"testing"

	"OverlayAssistant/internal/service/events"
)

func TestTerminalPrintsOnlyNewText(t *testing.T) {
	var out, errOut bytes.Buffer
	term := newTerminal(&out, &errOut)

	term.Notify(events.Status, "Processing...")
	for _, cumulative := range []string{"Hel", "Hello", "Hello", "Hello, world"} {
		term.Notify(events.StreamingDelta, cumulative)
	}
	term.Notify(events.ResponseComplete, "Hello, world")
	term.Notify(events.StreamingDelta, "Next")
	term.Notify(events.Status, "Error: Rate limit exceeded. Please try again later.")

	if got := out.String(); got != "Hello, world\nNext" {
		t.Fatalf("stdout = %q", got)
	}
	for _, want := range []string{"Processing...", "Rate limit exceeded"} {
		if !strings.Contains(errOut.String(), want) {
			t.Errorf("stderr missing %q: %q", want, errOut.String())
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"multi\nline   text", 20, "multi line text"},
		{"привет мир", 5, "прив…"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
