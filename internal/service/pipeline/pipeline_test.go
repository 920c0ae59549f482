package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"OverlayAssistant/internal/ai"

	"go.uber.org/zap/zaptest"
)

type fakeOCR struct {
	text  string
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (f *fakeOCR) Recognize(ctx context.Context, _ []byte) (string, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.text, f.err
}

// slowDescriber отвечает после задержки, чтобы проверить параллельность проходов.
type slowDescriber struct {
	text        string
	delay       time.Duration
	instruction string
}

func (s *slowDescriber) Describe(_ context.Context, instruction string, _ []byte) (string, error) {
	s.instruction = instruction
	time.Sleep(s.delay)
	return s.text, nil
}

var longOCR = strings.Repeat("Given an array of integers nums ", 3)

func TestExtractCombinesBothSections(t *testing.T) {
	p := New(&fakeOCR{text: longOCR}, ai.NewStubDescriber("Two Sum, easy"), 50, zaptest.NewLogger(t).Sugar())

	out, err := p.Extract(context.Background(), []byte("img"), "")
	if err != nil {
		t.Fatal(err)
	}
	want := OCRSectionHeader + "\n" + strings.TrimSpace(longOCR) + "\n\n" + VisionSectionHeader + "\nTwo Sum, easy\n\n"
	if out != want {
		t.Fatalf("out = %q", out)
	}
}

func TestExtractSkipsShortOCR(t *testing.T) {
	p := New(&fakeOCR{text: "tiny"}, ai.NewStubDescriber("desc"), 50, zaptest.NewLogger(t).Sugar())
	out, err := p.Extract(context.Background(), []byte("img"), "")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, OCRSectionHeader) {
		t.Fatal("short OCR text must be dropped")
	}
	if !strings.HasPrefix(out, VisionSectionHeader) {
		t.Fatalf("out = %q", out)
	}
}

func TestExtractOCRFailureContinues(t *testing.T) {
	p := New(&fakeOCR{err: errors.New("tesseract crashed")}, ai.NewStubDescriber("desc"), 50, zaptest.NewLogger(t).Sugar())
	out, err := p.Extract(context.Background(), []byte("img"), "")
	if err != nil {
		t.Fatal(err)
	}
	if out != VisionSectionHeader+"\ndesc\n\n" {
		t.Fatalf("out = %q", out)
	}
}

func TestExtractVisionFailureUsesPlaceholder(t *testing.T) {
	vision := &ai.StubDescriber{Err: errors.New("llava not loaded")}
	p := New(&fakeOCR{text: longOCR}, vision, 50, zaptest.NewLogger(t).Sugar())
	out, err := p.Extract(context.Background(), []byte("img"), "")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, OCRSectionHeader) || !strings.Contains(out, VisionSectionHeader+"\n"+VisionFailedPlaceholder) {
		t.Fatalf("out = %q", out)
	}
}

func TestExtractBothFail(t *testing.T) {
	vision := &ai.StubDescriber{Err: errors.New("down")}
	p := New(&fakeOCR{err: errors.New("down")}, vision, 50, zaptest.NewLogger(t).Sugar())
	_, err := p.Extract(context.Background(), []byte("img"), "")
	if !errors.Is(err, ErrNothingExtracted) {
		t.Fatalf("err = %v", err)
	}
}

func TestExtractWithoutOCR(t *testing.T) {
	p := New(nil, ai.NewStubDescriber("desc"), 50, zaptest.NewLogger(t).Sugar())
	out, err := p.Extract(context.Background(), []byte("img"), "")
	if err != nil || !strings.Contains(out, "desc") {
		t.Fatalf("out = %q err = %v", out, err)
	}
}

func TestExtractRunsPassesConcurrently(t *testing.T) {
	const d = 150 * time.Millisecond
	ocr := &fakeOCR{text: longOCR, delay: d}
	vision := &slowDescriber{text: "desc", delay: d}
	p := New(ocr, vision, 50, zaptest.NewLogger(t).Sugar())

	start := time.Now()
	if _, err := p.Extract(context.Background(), []byte("img"), "which approach?"); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed >= 2*d {
		t.Fatalf("passes ran sequentially: %v", elapsed)
	}
	if !strings.HasSuffix(vision.instruction, "User question: which approach?") {
		t.Fatalf("question hint not forwarded: %q", vision.instruction)
	}
}

func TestExtractWithNilLogger(t *testing.T) {
	vision := &ai.StubDescriber{Err: errors.New("down")}
	p := New(&fakeOCR{err: errors.New("down")}, vision, 50, nil)
	if _, err := p.Extract(context.Background(), []byte("img"), ""); !errors.Is(err, ErrNothingExtracted) {
		t.Fatalf("err = %v", err)
	}
}
