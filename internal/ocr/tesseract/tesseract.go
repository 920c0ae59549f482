package tesseract

import (
	"context"
	"fmt"
	"strings"
	"sync"

	imgsvc "OverlayAssistant/internal/service/image"

	"github.com/otiai10/gosseract/v2"
	"go.uber.org/zap"
)

// Whitelist символы, которые распознаёт OCR: латиница, цифры и пунктуация задач.
const Whitelist = `ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789 .:!?[]()+-=<>{}"'`

// Recognizer распознаёт текст через tesseract. Клиент tesseract не потокобезопасен,
// поэтому вызовы сериализуются.
type Recognizer struct {
	mu       sync.Mutex
	language string
	logger   *zap.SugaredLogger
}

func New(language string, logger *zap.SugaredLogger) *Recognizer {
	if language == "" {
		language = "eng"
	}
	return &Recognizer{language: language, logger: logger}
}

// Recognize предобрабатывает картинку и возвращает распознанный текст.
func (r *Recognizer) Recognize(ctx context.Context, data []byte) (string, error) {
	prepared, err := imgsvc.PrepareForOCR(data)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(r.language); err != nil {
		return "", fmt.Errorf("tesseract language: %w", err)
	}
	if err := client.SetWhitelist(Whitelist); err != nil {
		return "", fmt.Errorf("tesseract whitelist: %w", err)
	}
	if err := client.SetImageFromBytes(prepared); err != nil {
		return "", fmt.Errorf("tesseract image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract: %w", err)
	}
	text = strings.TrimSpace(text)
	r.logger.Debugw("OCR finished", "chars", len(text))
	return text, nil
}
