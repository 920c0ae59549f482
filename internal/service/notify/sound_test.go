package notify

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"OverlayAssistant/internal/service/events"

	"go.uber.org/zap/zaptest"
)

type fakePlayer struct {
	mu      sync.Mutex
	formats []string
	bodies  []string
}

func (p *fakePlayer) Play(format string, r io.ReadCloser) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.formats = append(p.formats, format)
	p.bodies = append(p.bodies, string(b))
	return nil
}

func TestSoundNotifierPlaysOnResponseComplete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ding.WAV")
	if err := os.WriteFile(path, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}
	ply := &fakePlayer{}
	n := NewSoundNotifier(zaptest.NewLogger(t).Sugar(), path, ply)

	tests := []struct {
		name    string
		channel events.Channel
		payload any
	}{
		{"status is ignored", events.Status, "Ready"},
		{"delta is ignored", events.StreamingDelta, "partial"},
		{"empty response is ignored", events.ResponseComplete, "  "},
		{"full response plays", events.ResponseComplete, "done"},
	}
	for _, tt := range tests {
		n.Notify(tt.channel, tt.payload)
		n.Wait()
	}

	if len(ply.formats) != 1 || ply.formats[0] != "wav" || ply.bodies[0] != "RIFF" {
		t.Fatalf("unexpected plays: %v %v", ply.formats, ply.bodies)
	}
}

func TestSoundNotifierMissingFile(t *testing.T) {
	n := NewSoundNotifier(zaptest.NewLogger(t).Sugar(), filepath.Join(t.TempDir(), "none.mp3"), &fakePlayer{})
	if err := n.Play(); err == nil {
		t.Fatal("expected error for missing sound file")
	}
}

func TestSpeakerPlayerRejectsUnknownFormat(t *testing.T) {
	err := NewSpeakerPlayer(0).Play("ogg", io.NopCloser(nil))
	if err != ErrUnsupportedFormat {
		t.Fatalf("err = %v", err)
	}
}
