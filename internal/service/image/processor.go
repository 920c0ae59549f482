package image

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png"
	"net/http"
	"strings"

	"github.com/disintegration/imaging"
)

const (
	defaultMaxWidth     = 1280
	defaultMaxSizeBytes = 1 * 1024 * 1024
	defaultQuality      = 90
)

// Параметры предобработки под OCR.
const (
	ocrContrastPercent = 10.0 // линейный множитель 1.1
	ocrSharpenSigma    = 1.0
	ocrThreshold       = 128
)

// ErrInvalidImage данные не удалось декодировать как изображение.
var ErrInvalidImage = errors.New("invalid image data")

type ProcessedImage struct {
	Data      []byte
	Width     int
	Height    int
	SizeBytes int
	MimeType  string
}

// Processor нормализует картинки перед отправкой модели: уменьшает ширину и перекодирует в JPEG.
type Processor struct {
	maxWidth    int
	maxSizeByte int
	quality     int
}

func NewProcessor(maxWidth, quality int) *Processor {
	if maxWidth <= 0 {
		maxWidth = defaultMaxWidth
	}
	if quality <= 0 || quality > 100 {
		quality = defaultQuality
	}
	return &Processor{
		maxWidth:    maxWidth,
		maxSizeByte: defaultMaxSizeBytes,
		quality:     quality,
	}
}

// Process декодирует данные и возвращает JPEG не шире maxWidth и не больше лимита по размеру.
func (p *Processor) Process(data []byte) (ProcessedImage, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return ProcessedImage{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return p.ProcessImage(img)
}

// ProcessImage то же, что Process, для уже декодированного изображения (например, скриншота).
func (p *Processor) ProcessImage(img image.Image) (ProcessedImage, error) {
	origBounds := img.Bounds()
	origWidth := origBounds.Dx()
	origHeight := origBounds.Dy()
	if origWidth == 0 || origHeight == 0 {
		return ProcessedImage{}, fmt.Errorf("invalid image size: %dx%d", origWidth, origHeight)
	}

	resizedWidth := min(origWidth, p.maxWidth)
	resizedHeight := max(1, origHeight*resizedWidth/origWidth)

	var encoded []byte
	for {
		resized := image.Image(img)
		if resizedWidth != origWidth {
			resized = imaging.Resize(img, resizedWidth, resizedHeight, imaging.Lanczos)
		}
		var err error
		encoded, err = encodeJPEG(resized, p.quality)
		if err != nil {
			return ProcessedImage{}, err
		}

		if len(encoded) <= p.maxSizeByte {
			break
		}

		if resizedWidth <= 320 {
			return ProcessedImage{}, fmt.Errorf("image exceeds max size %d bytes even after downscale", p.maxSizeByte)
		}

		resizedWidth = max(1, int(float64(resizedWidth)*0.9))
		resizedHeight = max(1, origHeight*resizedWidth/origWidth)
	}

	return ProcessedImage{
		Data:      encoded,
		Width:     resizedWidth,
		Height:    resizedHeight,
		SizeBytes: len(encoded),
		MimeType:  "image/jpeg",
	}, nil
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DataURL кодирует картинку в data URL с MIME-типом, определённым по содержимому.
func DataURL(data []byte) string {
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// RawBase64 картинка в base64 без префикса data URL (формат Ollama).
func RawBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeBase64 принимает data URL или чистый base64 и возвращает байты картинки.
func DecodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		comma := strings.IndexByte(s, ',')
		if comma < 0 {
			return nil, fmt.Errorf("%w: malformed data url", ErrInvalidImage)
		}
		s = s[comma+1:]
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return data, nil
}

// PrepareForOCR готовит картинку к распознаванию текста: оттенки серого, растяжение уровней,
// контраст x1.1, резкость (sigma=1) и бинаризация по порогу 128. Результат в PNG.
func PrepareForOCR(data []byte) ([]byte, error) {
	src, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	img := imaging.Grayscale(src)
	img = normalizeLevels(img)
	img = imaging.AdjustContrast(img, ocrContrastPercent)
	img = imaging.Sharpen(img, ocrSharpenSigma)
	bin := threshold(img, ocrThreshold)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, bin, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode ocr image: %w", err)
	}
	return buf.Bytes(), nil
}

// normalizeLevels растягивает яркость серого изображения на весь диапазон 0..255.
func normalizeLevels(img *image.NRGBA) *image.NRGBA {
	lo, hi := uint8(255), uint8(0)
	for i := 0; i < len(img.Pix); i += 4 {
		v := img.Pix[i]
		lo = min(lo, v)
		hi = max(hi, v)
	}
	if hi <= lo {
		return img
	}
	scale := 255.0 / float64(hi-lo)
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		stretch := func(v uint8) uint8 { return uint8(float64(v-lo)*scale + 0.5) }
		return color.NRGBA{R: stretch(c.R), G: stretch(c.G), B: stretch(c.B), A: c.A}
	})
}

func threshold(img *image.NRGBA, level uint8) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := img.NRGBAAt(x, y)
			if c.R >= level {
				out.SetGray(x, y, color.Gray{Y: 255})
			} else {
				out.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}
	return out
}
