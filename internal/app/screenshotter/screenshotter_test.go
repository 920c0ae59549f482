package screenshotter

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"OverlayAssistant/internal/config"

	"go.uber.org/zap/zaptest"
)

func fakeScreen(w, h int) func() (image.Image, error) {
	return func() (image.Image, error) {
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				img.Set(x, y, color.RGBA{uint8(x), uint8(y), 128, 255})
			}
		}
		return img, nil
	}
}

func TestCaptureDownscales(t *testing.T) {
	s := New(config.CaptureConfig{MaxWidth: 640, Quality: 80}, zaptest.NewLogger(t).Sugar())
	s.grab = fakeScreen(1920, 1080)

	out, err := s.Capture(context.Background())
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if out.Width != 640 || out.Height != 360 {
		t.Fatalf("size = %dx%d, want 640x360", out.Width, out.Height)
	}
	if out.MimeType != "image/jpeg" || len(out.Data) == 0 {
		t.Fatalf("unexpected output %+v", out.MimeType)
	}
}

func TestCaptureSavesDebugCopy(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "old.jpg")
	if err := os.WriteFile(stale, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}

	s := New(config.CaptureConfig{DebugDir: dir, DebugTTL: time.Minute}, zaptest.NewLogger(t).Sugar())
	s.grab = fakeScreen(100, 50)
	s.now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }

	if _, err := s.Capture(context.Background()); err != nil {
		t.Fatalf("capture: %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatal("stale debug frame must be removed")
	}
	if _, err := os.Stat(filepath.Join(dir, "2024-05-01_10-00-00.000.jpg")); err != nil {
		t.Fatalf("debug frame not saved: %v", err)
	}
}

func TestCaptureErrors(t *testing.T) {
	s := New(config.CaptureConfig{}, zaptest.NewLogger(t).Sugar())
	s.grab = func() (image.Image, error) { return nil, ErrNoDisplays }
	if _, err := s.Capture(context.Background()); !errors.Is(err, ErrNoDisplays) {
		t.Fatalf("err = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Capture(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}
