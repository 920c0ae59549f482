package provider

import (
	"context"
	"net/http"
	"strings"

	imgsvc "OverlayAssistant/internal/service/image"
	"OverlayAssistant/internal/service/stream"

	"go.uber.org/zap"
)

// Значения по умолчанию для облачного провайдера.
const (
	DefaultCloudEndpoint = "https://api.deepseek.com"
	DefaultCloudModel    = "deepseek-chat"
	DefaultCloudName     = "DeepSeek"
)

// CloudAPISession сессия с облачным OpenAI-совместимым API (chat/completions, SSE).
type CloudAPISession struct {
	core
}

var _ Session = (*CloudAPISession)(nil)

func NewCloudAPISession(deps Deps) *CloudAPISession {
	s := &CloudAPISession{}
	s.init(CloudAPI, deps)
	s.tr = &cloudTransport{client: s.deps.HTTPClient, logger: s.deps.Logger}
	return s
}

type cloudTransport struct {
	client *http.Client
	logger *zap.SugaredLogger
}

// contentPart элемент составного сообщения с картинкой.
type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

func (t *cloudTransport) handshake(_ context.Context, cfg Config) error {
	if strings.TrimSpace(cfg.Credential) == "" {
		return &ValidationError{Err: ErrMissingCredential}
	}
	return nil
}

func (t *cloudTransport) nativeVision(cfg Config) bool { return cfg.NativeVision }

func (t *cloudTransport) readyMessage(cfg Config) string {
	return "Connected to " + cloudName(cfg)
}

func (t *cloudTransport) complete(ctx context.Context, cfg Config, msgs []Message, onUpdate func(string)) (string, error) {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = DefaultCloudEndpoint
	}
	model := cfg.Model
	if model == "" {
		model = DefaultCloudModel
	}

	req := chatRequest{Model: model, Stream: true, MaxTokens: cfg.NumPredict}
	if cfg.Temperature > 0 {
		req.Temperature = &cfg.Temperature
	}
	for _, m := range msgs {
		req.Messages = append(req.Messages, toChatMessage(m))
	}

	name := cloudName(cfg)
	return streamCall{
		client:   t.client,
		method:   http.MethodPost,
		url:      endpoint + "/chat/completions",
		headers:  map[string]string{"Authorization": "Bearer " + cfg.Credential, "Accept": "text/event-stream"},
		body:     req,
		framing:  stream.SSE,
		logger:   t.logger,
		onUpdate: onUpdate,
		statusErr: func(status int, body []byte) error {
			return statusError(name, status, body)
		},
		connErr: func(err error) error {
			return &TransportError{Message: "Cannot connect to " + name + ": " + err.Error(), Err: err}
		},
	}.do(ctx)
}

func toChatMessage(m Message) chatMessage {
	if len(m.Images) == 0 {
		return chatMessage{Role: m.Role, Content: m.Content}
	}
	parts := []contentPart{{Type: "text", Text: m.Content}}
	for _, img := range m.Images {
		parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: imgsvc.DataURL(img)}})
	}
	return chatMessage{Role: m.Role, Content: parts}
}

func cloudName(cfg Config) string {
	if cfg.ProviderName != "" {
		return cfg.ProviderName
	}
	return DefaultCloudName
}
