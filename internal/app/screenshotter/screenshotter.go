package screenshotter

import (
	"context"
	"errors"
	"image"
	"image/draw"
	"os"
	"path/filepath"
	"time"

	"OverlayAssistant/internal/config"
	imgsvc "OverlayAssistant/internal/service/image"

	"github.com/kbinani/screenshot"
	"go.uber.org/zap"
)

// ErrNoDisplays не найдено ни одного активного монитора.
var ErrNoDisplays = errors.New("no active displays detected")

// Screenshotter снимает весь экран по запросу и готовит кадр к отправке модели.
type Screenshotter struct {
	cfg       config.CaptureConfig
	processor *imgsvc.Processor
	cleaner   *imgsvc.Cleaner
	logger    *zap.SugaredLogger

	grab func() (image.Image, error)
	now  func() time.Time
}

func New(cfg config.CaptureConfig, logger *zap.SugaredLogger) *Screenshotter {
	return &Screenshotter{
		cfg:       cfg,
		processor: imgsvc.NewProcessor(cfg.MaxWidth, cfg.Quality),
		cleaner:   imgsvc.NewCleaner(logger),
		logger:    logger,
		grab:      grabDisplays,
		now:       time.Now,
	}
}

// Capture снимает объединение всех мониторов и возвращает уменьшенный JPEG.
// Если задан DebugDir, копия кадра сохраняется туда.
func (s *Screenshotter) Capture(ctx context.Context) (imgsvc.ProcessedImage, error) {
	if err := ctx.Err(); err != nil {
		return imgsvc.ProcessedImage{}, err
	}
	canvas, err := s.grab()
	if err != nil {
		s.logger.Errorw("Failed to capture screen", "error", err)
		return imgsvc.ProcessedImage{}, err
	}
	out, err := s.processor.ProcessImage(canvas)
	if err != nil {
		s.logger.Errorw("Failed to encode screenshot", "error", err)
		return imgsvc.ProcessedImage{}, err
	}
	s.logger.Infow("Screenshot captured", "width", out.Width, "height", out.Height, "bytes", out.SizeBytes)
	s.saveDebug(out.Data)
	return out, nil
}

// RunCleanup периодически удаляет старые отладочные кадры. Блокирующий метод.
func (s *Screenshotter) RunCleanup(ctx context.Context) {
	if s.cfg.DebugDir == "" || s.cfg.DebugTTL <= 0 {
		return
	}
	t := time.NewTicker(max(time.Minute, s.cfg.DebugTTL/2))
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Infow("Screenshot cleanup stopped", "reason", ctx.Err())
			return
		case <-t.C:
			s.cleaner.Clean(s.cfg.DebugDir, s.cfg.DebugTTL)
		}
	}
}

func (s *Screenshotter) saveDebug(data []byte) {
	if s.cfg.DebugDir == "" {
		return
	}
	if err := os.MkdirAll(s.cfg.DebugDir, 0o755); err != nil {
		s.logger.Warnw("Failed to create debug dir for screenshots", "dir", s.cfg.DebugDir, "error", err)
		return
	}
	s.cleaner.Clean(s.cfg.DebugDir, s.cfg.DebugTTL)

	name := s.now().Format("2006-01-02_15-04-05.000") + ".jpg"
	full := filepath.Join(s.cfg.DebugDir, name)
	if err := os.WriteFile(full, data, 0o644); err != nil {
		s.logger.Warnw("Failed to save debug screenshot", "path", full, "error", err)
	}
}

// grabDisplays склеивает все мониторы в один холст.
func grabDisplays() (image.Image, error) {
	n := screenshot.NumActiveDisplays()
	if n <= 0 {
		return nil, ErrNoDisplays
	}

	union := image.Rect(0, 0, 0, 0)
	for i := range n {
		b := screenshot.GetDisplayBounds(i)
		if i == 0 {
			union = b
			continue
		}
		union = union.Union(b)
	}

	canvas := image.NewRGBA(union)
	var errs []error
	for i := range n {
		b := screenshot.GetDisplayBounds(i)
		img, err := screenshot.CaptureRect(b)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		// Копируем в холст со смещением
		dstPoint := image.Pt(b.Min.X-union.Min.X, b.Min.Y-union.Min.Y)
		dstRect := image.Rectangle{Min: dstPoint, Max: dstPoint.Add(b.Size())}
		draw.Draw(canvas, dstRect, img, image.Point{}, draw.Src)
	}
	if len(errs) == n {
		return nil, errors.Join(errs...)
	}
	return canvas, nil
}
