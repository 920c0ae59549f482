package pipeline

import (
	"context"
	"errors"
	"strings"

	"OverlayAssistant/internal/ai"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// VisionFailedPlaceholder подставляется вместо описания, если vision-модель не ответила.
const VisionFailedPlaceholder = "Could not analyze the image"

// Заголовки секций объединённого результата.
const (
	OCRSectionHeader    = "=== EXACT OCR TEXT ==="
	VisionSectionHeader = "=== VISION MODEL DESCRIPTION ==="
)

// VisionInstruction фиксированная инструкция для vision-модели.
const VisionInstruction = "This is a screenshot of a programming problem. Extract as precisely as possible: " +
	"1. The problem number (for example, 1658) " +
	"2. The problem title " +
	"3. The problem statement " +
	"4. Input/output examples " +
	"5. Constraints"

// ErrNothingExtracted оба прохода распознавания завершились ошибкой.
var ErrNothingExtracted = errors.New("image analysis failed: both OCR and vision passes failed")

// Recognizer извлекает текст из картинки (OCR).
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// Pipeline двухпроходное распознавание: OCR и vision-модель параллельно, результат объединяется.
type Pipeline struct {
	ocr           Recognizer
	vision        ai.Describer
	minOCRTextLen int
	logger        *zap.SugaredLogger
}

// New создаёт пайплайн. ocr может быть nil — тогда работает только vision-проход.
func New(ocr Recognizer, vision ai.Describer, minOCRTextLen int, logger *zap.SugaredLogger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Pipeline{ocr: ocr, vision: vision, minOCRTextLen: minOCRTextLen, logger: logger}
}

// Extract запускает оба прохода одновременно и дожидается обоих.
// Ошибка возвращается только если не сработал ни один проход.
func (p *Pipeline) Extract(ctx context.Context, image []byte, questionHint string) (string, error) {
	var (
		ocrText, description string
		ocrErr, visionErr    error
	)

	// ошибки проходов не отменяют друг друга, поэтому горутины всегда возвращают nil
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if p.ocr == nil {
			ocrErr = errors.New("ocr is not configured")
			return nil
		}
		ocrText, ocrErr = p.ocr.Recognize(gctx, image)
		return nil
	})
	g.Go(func() error {
		instruction := VisionInstruction
		if q := strings.TrimSpace(questionHint); q != "" {
			instruction += "\n\nUser question: " + q
		}
		description, visionErr = p.vision.Describe(gctx, instruction, image)
		return nil
	})
	_ = g.Wait()

	if ocrErr != nil {
		p.logger.Warnw("OCR pass failed, continuing with vision only", "error", ocrErr)
		ocrText = ""
	}
	if visionErr != nil {
		p.logger.Warnw("Vision pass failed", "error", visionErr)
	}
	if ocrErr != nil && visionErr != nil {
		return "", errors.Join(ErrNothingExtracted, ocrErr, visionErr)
	}
	if visionErr != nil || strings.TrimSpace(description) == "" {
		description = VisionFailedPlaceholder
	}

	return combine(strings.TrimSpace(ocrText), description, p.minOCRTextLen), nil
}

func combine(ocrText, description string, minOCRTextLen int) string {
	var b strings.Builder
	if len([]rune(ocrText)) > minOCRTextLen {
		b.WriteString(OCRSectionHeader)
		b.WriteString("\n")
		b.WriteString(ocrText)
		b.WriteString("\n\n")
	}
	b.WriteString(VisionSectionHeader)
	b.WriteString("\n")
	b.WriteString(description)
	b.WriteString("\n\n")
	return b.String()
}
