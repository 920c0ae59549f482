package provider

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"

	imgsvc "OverlayAssistant/internal/service/image"
	"OverlayAssistant/internal/service/events"
	"OverlayAssistant/internal/service/stream"

	"go.uber.org/zap"
)

// Значения по умолчанию для локального инференса.
const (
	DefaultOllamaEndpoint = "http://localhost:11434"
	DefaultOllamaModel    = "deepseek-coder:6.7b"
	DefaultVisionModel    = "llava:7b"
)

// LocalInferenceSession сессия с локальным сервером Ollama (/api/chat, NDJSON).
// Картинки проходят через пайплайн распознавания.
type LocalInferenceSession struct {
	core
}

var _ Session = (*LocalInferenceSession)(nil)

func NewLocalInferenceSession(deps Deps) *LocalInferenceSession {
	s := &LocalInferenceSession{}
	s.init(LocalInference, deps)
	s.tr = &ollamaTransport{client: s.deps.HTTPClient, logger: s.deps.Logger, notifier: s.deps.Notifier}
	return s
}

// ListModels возвращает модели, установленные на сервере Ollama.
func (s *LocalInferenceSession) ListModels(ctx context.Context, endpoint string) ([]string, error) {
	return ListOllamaModels(ctx, s.deps.HTTPClient, endpoint)
}

// ModelInfo сведения о моделях, отправляемые в UI после рукопожатия.
type ModelInfo struct {
	CodeModel   string   `json:"codeModel"`
	VisionModel string   `json:"visionModel"`
	HasCode     bool     `json:"hasCode"`
	HasVision   bool     `json:"hasVision"`
	Available   []string `json:"available"`
}

type ollamaTransport struct {
	client   *http.Client
	logger   *zap.SugaredLogger
	notifier events.Notifier
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaTags struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

func ollamaEndpoint(cfg Config) string {
	if e := strings.TrimRight(cfg.Endpoint, "/"); e != "" {
		return e
	}
	return DefaultOllamaEndpoint
}

func ollamaModel(cfg Config) string {
	if cfg.Model != "" {
		return cfg.Model
	}
	return DefaultOllamaModel
}

// ListOllamaModels запрашивает /api/tags.
func ListOllamaModels(ctx context.Context, client *http.Client, endpoint string) ([]string, error) {
	if client == nil {
		client = http.DefaultClient
	}
	endpoint = strings.TrimRight(endpoint, "/")
	if endpoint == "" {
		endpoint = DefaultOllamaEndpoint
	}
	var tags ollamaTags
	status, err := getJSON(ctx, client, endpoint+"/api/tags", &tags)
	if err != nil {
		if status == 0 {
			return nil, &TransportError{Message: "Ollama server is not available at " + endpoint + ". Make sure Ollama is running.", Err: err}
		}
		return nil, &TransportError{Status: status, Message: err.Error(), Err: err}
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// hasModel сравнивает имена с учётом тега :latest.
func hasModel(available []string, name string) bool {
	if name == "" {
		return false
	}
	base := strings.TrimSuffix(name, ":latest")
	return slices.ContainsFunc(available, func(a string) bool {
		return a == name || strings.TrimSuffix(a, ":latest") == base
	})
}

func (t *ollamaTransport) handshake(ctx context.Context, cfg Config) error {
	available, err := ListOllamaModels(ctx, t.client, ollamaEndpoint(cfg))
	if err != nil {
		return err
	}
	info := ModelInfo{
		CodeModel:   ollamaModel(cfg),
		VisionModel: cfg.VisionModel,
		Available:   available,
	}
	info.HasCode = hasModel(available, info.CodeModel)
	info.HasVision = hasModel(available, info.VisionModel)
	t.notifier.Notify(events.ModelInfo, info)

	if !info.HasCode {
		t.logger.Warnw("Code model is not installed", "model", info.CodeModel)
		t.notifier.Notify(events.Status, fmt.Sprintf("Warning: model %s not found. Run: ollama pull %s", info.CodeModel, info.CodeModel))
	}
	if info.VisionModel != "" && !info.HasVision {
		t.logger.Warnw("Vision model is not installed", "model", info.VisionModel)
		t.notifier.Notify(events.Status, fmt.Sprintf("Warning: vision model %s not found. Run: ollama pull %s", info.VisionModel, info.VisionModel))
	}
	return nil
}

func (t *ollamaTransport) nativeVision(Config) bool { return false }

func (t *ollamaTransport) readyMessage(cfg Config) string {
	return "Connected to Ollama (" + ollamaModel(cfg) + ")"
}

func (t *ollamaTransport) complete(ctx context.Context, cfg Config, msgs []Message, onUpdate func(string)) (string, error) {
	endpoint := ollamaEndpoint(cfg)
	model := ollamaModel(cfg)

	req := ollamaChatRequest{Model: model, Stream: true, Options: map[string]any{"top_p": 0.9}}
	if cfg.Temperature > 0 {
		req.Options["temperature"] = cfg.Temperature
	}
	if cfg.NumPredict > 0 {
		req.Options["num_predict"] = cfg.NumPredict
	}
	for _, m := range msgs {
		om := ollamaMessage{Role: m.Role, Content: m.Content}
		for _, img := range m.Images {
			om.Images = append(om.Images, imgsvc.RawBase64(img))
		}
		req.Messages = append(req.Messages, om)
	}

	return streamCall{
		client:   t.client,
		method:   http.MethodPost,
		url:      endpoint + "/api/chat",
		body:     req,
		framing:  stream.NDJSON,
		logger:   t.logger,
		onUpdate: onUpdate,
		statusErr: func(status int, body []byte) error {
			return ollamaStatusError(model, status, body)
		},
		connErr: func(err error) error {
			return &TransportError{Message: "Ollama server is not available at " + endpoint + ". Make sure Ollama is running.", Err: err}
		},
	}.do(ctx)
}

func ollamaStatusError(model string, status int, body []byte) error {
	switch {
	case status == http.StatusNotFound:
		return &TransportError{Status: status, Message: fmt.Sprintf("Model %s not found. Run: ollama pull %s", model, model)}
	case status >= 500:
		msg := "Ollama server is not available. Make sure Ollama is running."
		if d := errorDetail(body); d != "" {
			msg += " (" + d + ")"
		}
		return &TransportError{Status: status, Message: msg}
	default:
		return statusError("Ollama", status, body)
	}
}

// Completer потоковое завершение диалога без состояния сессии. Используется локальным прокси.
type Completer interface {
	Complete(ctx context.Context, msgs []Message, onUpdate func(string)) (string, error)
}

type boundCompleter struct {
	tr  transport
	cfg Config
}

func (b boundCompleter) Complete(ctx context.Context, msgs []Message, onUpdate func(string)) (string, error) {
	return b.tr.complete(ctx, b.cfg, msgs, onUpdate)
}

// NewOllamaCompleter возвращает Completer поверх Ollama с фиксированной конфигурацией.
func NewOllamaCompleter(client *http.Client, cfg Config, logger *zap.SugaredLogger) Completer {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	cfg.Kind = LocalInference
	return boundCompleter{tr: &ollamaTransport{client: client, logger: logger, notifier: events.Nop}, cfg: cfg}
}
