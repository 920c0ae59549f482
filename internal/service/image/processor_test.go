package image

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func gradientPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			v := uint8(60 + x*120/max(1, w-1))
			img.Set(x, y, color.RGBA{R: v, G: v / 2, B: 255 - v, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestProcessDownscales(t *testing.T) {
	p := NewProcessor(100, 80)
	out, err := p.Process(gradientPNG(t, 400, 200))
	if err != nil {
		t.Fatal(err)
	}
	if out.Width != 100 || out.Height != 50 {
		t.Fatalf("size = %dx%d", out.Width, out.Height)
	}
	if out.MimeType != "image/jpeg" || out.SizeBytes != len(out.Data) {
		t.Fatalf("unexpected result %+v", out)
	}
}

func TestProcessRejectsGarbage(t *testing.T) {
	_, err := NewProcessor(0, 0).Process([]byte("not an image"))
	if !errors.Is(err, ErrInvalidImage) {
		t.Fatalf("err = %v", err)
	}
}

func TestDataURLRoundTrip(t *testing.T) {
	data := gradientPNG(t, 8, 8)
	url := DataURL(data)
	if !strings.HasPrefix(url, "data:image/png;base64,") {
		t.Fatalf("url prefix = %q", url[:30])
	}
	back, err := DecodeBase64(url)
	if err != nil || !bytes.Equal(back, data) {
		t.Fatalf("decode failed: %v", err)
	}
	raw, err := DecodeBase64(RawBase64(data))
	if err != nil || !bytes.Equal(raw, data) {
		t.Fatalf("raw decode failed: %v", err)
	}
}

func TestDecodeBase64Invalid(t *testing.T) {
	for _, in := range []string{"data:image/png;base64", "%%%"} {
		if _, err := DecodeBase64(in); !errors.Is(err, ErrInvalidImage) {
			t.Errorf("DecodeBase64(%q) err = %v", in, err)
		}
	}
}

func TestPrepareForOCRBinarizes(t *testing.T) {
	out, err := PrepareForOCR(gradientPNG(t, 64, 16))
	if err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatal(err)
	}
	b := img.Bounds()
	if b.Dx() != 64 || b.Dy() != 16 {
		t.Fatalf("size changed: %v", b)
	}
	var black, white int
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g := color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y
			switch g {
			case 0:
				black++
			case 255:
				white++
			default:
				t.Fatalf("pixel (%d,%d) = %d, want 0 or 255", x, y, g)
			}
		}
	}
	if black == 0 || white == 0 {
		t.Fatalf("expected both colors after threshold, black=%d white=%d", black, white)
	}
}

func TestCleanerRemovesStaleImages(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "old.jpg")
	fresh := filepath.Join(dir, "fresh.jpg")
	other := filepath.Join(dir, "notes.txt")
	for _, p := range []string{old, fresh, other} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(other, past, past); err != nil {
		t.Fatal(err)
	}

	c := NewCleaner(zaptest.NewLogger(t).Sugar())
	if n := c.Clean(dir, time.Minute); n != 1 {
		t.Fatalf("removed = %d, want 1", n)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatal("old image must be removed")
	}
	for _, p := range []string{fresh, other} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("%s must stay: %v", p, err)
		}
	}
}
