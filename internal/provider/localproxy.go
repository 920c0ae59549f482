package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	imgsvc "OverlayAssistant/internal/service/image"
	"OverlayAssistant/internal/service/stream"

	"go.uber.org/zap"
)

// DefaultProxyEndpoint адрес локального прокси по умолчанию.
const DefaultProxyEndpoint = "http://localhost:3000"

// Маршруты локального прокси.
const (
	ProxyHealthPath = "/api/health"
	ProxyChatPath   = "/api/chat"
	ProxyImagePath  = "/api/image"
)

// ProxyMessage сообщение в запросах к прокси.
type ProxyMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ProxyChatRequest тело POST /api/chat.
type ProxyChatRequest struct {
	Messages []ProxyMessage `json:"messages"`
	Stream   bool           `json:"stream"`
}

// ProxyImageRequest тело POST /api/image. Прокси сам распознаёт картинку и решает задачу.
type ProxyImageRequest struct {
	Messages            []ProxyMessage `json:"messages"`
	ImageData           string         `json:"imageData"`
	Question            string         `json:"question,omitempty"`
	ProgrammingLanguage string         `json:"programmingLanguage,omitempty"`
	ResponseLanguage    string         `json:"responseLanguage,omitempty"`
	Stream              bool           `json:"stream"`
}

// ProxyHealth ответ GET /api/health.
type ProxyHealth struct {
	Status      string `json:"status"`
	Model       string `json:"model"`
	VisionModel string `json:"visionModel"`
	HasOCR      bool   `json:"hasOCR"`
}

// LocalProxySession сессия через локальный HTTP-прокси. Картинки уходят прокси напрямую.
type LocalProxySession struct {
	core
}

var _ Session = (*LocalProxySession)(nil)

func NewLocalProxySession(deps Deps) *LocalProxySession {
	s := &LocalProxySession{}
	s.init(LocalProxy, deps)
	s.tr = &proxyTransport{client: s.deps.HTTPClient, logger: s.deps.Logger}
	return s
}

type proxyTransport struct {
	client *http.Client
	logger *zap.SugaredLogger
}

func proxyEndpoint(cfg Config) string {
	if e := strings.TrimRight(cfg.Endpoint, "/"); e != "" {
		return e
	}
	return DefaultProxyEndpoint
}

func (t *proxyTransport) handshake(ctx context.Context, cfg Config) error {
	endpoint := proxyEndpoint(cfg)
	var health ProxyHealth
	status, err := getJSON(ctx, t.client, endpoint+ProxyHealthPath, &health)
	if err != nil {
		if status == 0 {
			return &TransportError{Message: "Local server is not available at " + endpoint + ". Start it with: assistant serve", Err: err}
		}
		return &TransportError{Status: status, Message: err.Error(), Err: err}
	}
	if health.Status != "ok" {
		return &TransportError{Status: status, Message: fmt.Sprintf("Local server is not ready: %s", health.Status)}
	}
	t.logger.Infow("Local proxy is healthy", "endpoint", endpoint, "model", health.Model, "vision", health.VisionModel)
	return nil
}

func (t *proxyTransport) nativeVision(Config) bool { return true }

func (t *proxyTransport) readyMessage(cfg Config) string {
	return "Connected to local server " + proxyEndpoint(cfg)
}

func (t *proxyTransport) complete(ctx context.Context, cfg Config, msgs []Message, onUpdate func(string)) (string, error) {
	endpoint := proxyEndpoint(cfg)
	headers := map[string]string{"Accept": "application/x-ndjson"}
	if cfg.Credential != "" {
		headers["Authorization"] = "Bearer " + cfg.Credential
	}
	call := streamCall{
		client:   t.client,
		method:   http.MethodPost,
		headers:  headers,
		framing:  stream.NDJSON,
		logger:   t.logger,
		onUpdate: onUpdate,
		statusErr: func(status int, body []byte) error {
			return statusError("local server", status, body)
		},
		connErr: func(err error) error {
			return &TransportError{Message: "Local server is not available at " + endpoint, Err: err}
		},
	}

	last := msgs[len(msgs)-1]
	if len(last.Images) == 0 {
		call.url = endpoint + ProxyChatPath
		call.body = ProxyChatRequest{Messages: toProxyMessages(msgs), Stream: true}
		return call.do(ctx)
	}

	call.url = endpoint + ProxyImagePath
	call.body = ProxyImageRequest{
		Messages:            toProxyMessages(msgs[:len(msgs)-1]),
		ImageData:           imgsvc.DataURL(last.Images[0]),
		Question:            last.Content,
		ProgrammingLanguage: cfg.ProgrammingLanguage,
		ResponseLanguage:    cfg.ResponseLanguage,
		Stream:              true,
	}
	return call.do(ctx)
}

func toProxyMessages(msgs []Message) []ProxyMessage {
	out := make([]ProxyMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ProxyMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

// FromProxyMessages переводит сообщения прокси во внутренний формат.
func FromProxyMessages(msgs []ProxyMessage) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, Message{Role: m.Role, Content: m.Content})
	}
	return out
}
