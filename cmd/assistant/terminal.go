package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"OverlayAssistant/internal/provider"
	"OverlayAssistant/internal/service/events"

	"github.com/charmbracelet/lipgloss"
)

var (
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#7C3AED")).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

// terminal печатает ответ по мере стрима в out, статусы в errOut.
type terminal struct {
	out, errOut io.Writer

	mu      sync.Mutex
	printed int
}

var _ events.Notifier = (*terminal)(nil)

func newTerminal(out, errOut io.Writer) *terminal {
	return &terminal{out: out, errOut: errOut}
}

func (t *terminal) Notify(channel events.Channel, payload any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch channel {
	case events.StreamingDelta:
		text, _ := payload.(string)
		if len(text) > t.printed {
			fmt.Fprint(t.out, text[t.printed:])
			t.printed = len(text)
		}
	case events.ResponseComplete:
		if t.printed > 0 {
			fmt.Fprintln(t.out)
		}
		t.printed = 0
	case events.Status:
		msg := fmt.Sprint(payload)
		switch {
		case strings.HasPrefix(msg, "Error"):
			fmt.Fprintln(t.errOut, errorStyle.Render(msg))
		case strings.HasPrefix(msg, "Warning"):
			fmt.Fprintln(t.errOut, warningStyle.Render(msg))
		default:
			fmt.Fprintln(t.errOut, statusStyle.Render("• "+msg))
		}
	case events.ModelInfo:
		if info, ok := payload.(provider.ModelInfo); ok {
			fmt.Fprintln(t.errOut, mutedStyle.Render(fmt.Sprintf("models: code=%s (%v) vision=%s (%v)",
				info.CodeModel, info.HasCode, info.VisionModel, info.HasVision)))
		}
	}
}
