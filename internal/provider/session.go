package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"OverlayAssistant/internal/service/conversation"
	"OverlayAssistant/internal/service/events"
	"OverlayAssistant/internal/service/prompt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Kind вид провайдера.
type Kind string

const (
	CloudAPI       Kind = "cloud-api"
	LocalProxy     Kind = "local-proxy"
	LocalInference Kind = "local-inference"
)

// ParseKind разбирает имя провайдера из настроек или запроса UI.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case CloudAPI, LocalProxy, LocalInference:
		return k, nil
	case "deepseek", "cloud":
		return CloudAPI, nil
	case "local", "proxy":
		return LocalProxy, nil
	case "ollama":
		return LocalInference, nil
	default:
		return "", fmt.Errorf("unknown provider kind %q", s)
	}
}

// Config параметры подключения сессии. Не меняются до закрытия сессии.
type Config struct {
	Kind                Kind
	Credential          string // API-ключ облака или токен локального прокси
	Endpoint            string // Базовый URL
	Model               string
	VisionModel         string
	NativeVision        bool   // Модель принимает картинки напрямую
	ProviderName        string // Имя для сообщений об ошибках
	ProgrammingLanguage string
	ResponseLanguage    string
	Temperature         float64
	NumPredict          int
}

// Message сообщение запроса к модели. Images заполняется только для моделей с vision.
type Message struct {
	Role    string
	Content string
	Images  [][]byte
}

// Extractor превращает картинку в текстовое описание задачи.
type Extractor interface {
	Extract(ctx context.Context, image []byte, questionHint string) (string, error)
}

// TurnSink сохраняет завершённые реплики во внешнее хранилище.
type TurnSink interface {
	PersistTurn(ctx context.Context, sessionID conversation.SessionID, turn conversation.Turn) error
}

// Session общий контракт всех провайдеров.
type Session interface {
	Kind() Kind
	Initialize(ctx context.Context, cfg Config, spec prompt.Spec) error
	SendText(ctx context.Context, text string) (string, error)
	SendImage(ctx context.Context, image []byte, question string) (string, error)
	Close() error
	State() State
	Store() *conversation.Store
}

// Deps общие зависимости сессий.
type Deps struct {
	HTTPClient    *http.Client
	Prompts       *prompt.Assembler
	Pipeline      Extractor
	Notifier      events.Notifier
	Sink          TurnSink
	Logger        *zap.SugaredLogger
	MinImageBytes int
}

// transport отличает провайдеров друг от друга: рукопожатие, формат запроса и кадров ответа.
type transport interface {
	handshake(ctx context.Context, cfg Config) error
	complete(ctx context.Context, cfg Config, msgs []Message, onUpdate func(string)) (string, error)
	nativeVision(cfg Config) bool
	readyMessage(cfg Config) string
}

// core общая логика сессии: машина состояний, сборка сообщений, стрим и запись реплик.
type core struct {
	kind  Kind
	tr    transport
	deps  Deps
	store *conversation.Store

	mu           sync.Mutex
	state        State
	cfg          Config
	systemPrompt string
}

func (c *core) init(kind Kind, deps Deps) {
	if deps.HTTPClient == nil {
		deps.HTTPClient = http.DefaultClient
	}
	if deps.Notifier == nil {
		deps.Notifier = events.Nop
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop().Sugar()
	}
	if deps.Prompts == nil {
		deps.Prompts = prompt.MustDefault()
	}
	c.kind = kind
	c.deps = deps
	c.store = conversation.New()
	c.state = Idle
}

func (c *core) Kind() Kind { return c.kind }

func (c *core) Store() *conversation.Store { return c.store }

func (c *core) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Initialize проверяет подключение, собирает системный промпт и начинает новую сессию.
func (c *core) Initialize(ctx context.Context, cfg Config, spec prompt.Spec) error {
	c.mu.Lock()
	switch st := c.state; {
	case st == Initializing:
		c.mu.Unlock()
		return &StateError{Err: ErrInitInProgress, State: st}
	case st.sending():
		c.mu.Unlock()
		return &StateError{Err: ErrBusy, State: st}
	}
	c.state = Initializing
	c.mu.Unlock()

	cfg.Kind = c.kind
	c.deps.Notifier.Notify(events.SessionInitializing, true)
	c.deps.Logger.Infow("Initializing session", "provider", c.kind, "model", cfg.Model, "profile", spec.Profile)

	if err := c.tr.handshake(ctx, cfg); err != nil {
		c.mu.Lock()
		if c.state == Initializing {
			c.state = Idle
		}
		c.mu.Unlock()
		c.deps.Logger.Warnw("Session initialization failed", "provider", c.kind, "error", err)
		c.deps.Notifier.Notify(events.Status, "Error: "+err.Error())
		c.deps.Notifier.Notify(events.SessionInitializing, false)
		return err
	}

	systemPrompt := c.deps.Prompts.Build(spec)

	c.mu.Lock()
	if st := c.state; st != Initializing {
		c.mu.Unlock()
		c.deps.Logger.Warnw("Session closed before initialization finished", "provider", c.kind, "state", st.String())
		c.deps.Notifier.Notify(events.SessionInitializing, false)
		return &StateError{Err: ErrClosedDuringInit, State: st}
	}
	c.cfg = cfg
	c.systemPrompt = systemPrompt
	c.state = Ready
	id := c.store.Reset()
	c.mu.Unlock()

	c.deps.Logger.Infow("Session ready", "provider", c.kind, "session", id.String())
	c.deps.Notifier.Notify(events.Status, c.tr.readyMessage(cfg))
	c.deps.Notifier.Notify(events.SessionInitializing, false)
	return nil
}

// SendText отправляет текст вместе с историей и возвращает полный ответ.
func (c *core) SendText(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", &ValidationError{Err: ErrEmptyInput}
	}
	cfg, sys, err := c.begin(SendingText)
	if err != nil {
		return "", err
	}
	defer c.finish()

	msgs := c.messages(sys, Message{Role: conversation.RoleUser, Content: text})
	return c.exchange(ctx, cfg, msgs, text, false)
}

// SendImage отправляет картинку: напрямую, если модель умеет vision, иначе через пайплайн распознавания.
func (c *core) SendImage(ctx context.Context, image []byte, question string) (string, error) {
	if len(image) <= c.deps.MinImageBytes {
		return "", &ValidationError{Err: ErrImageTooSmall}
	}
	cfg, sys, err := c.begin(SendingImage)
	if err != nil {
		return "", err
	}
	defer c.finish()

	question = strings.TrimSpace(question)
	if c.tr.nativeVision(cfg) {
		content := question
		if content == "" {
			content = prompt.NativeImageQuestion
		}
		msgs := c.messages(sys, Message{Role: conversation.RoleUser, Content: content, Images: [][]byte{image}})
		return c.exchange(ctx, cfg, msgs, content, true)
	}

	if c.deps.Pipeline == nil {
		err := &ValidationError{Err: ErrNoPipeline}
		c.deps.Notifier.Notify(events.Status, "Error: "+err.Error())
		return "", err
	}
	c.deps.Notifier.Notify(events.Status, "Analyzing image...")
	extracted, err := c.deps.Pipeline.Extract(ctx, image, question)
	if err != nil {
		c.deps.Logger.Errorw("Image analysis failed", "provider", c.kind, "error", err)
		c.deps.Notifier.Notify(events.Status, "Error: "+err.Error())
		return "", err
	}
	problem := prompt.BuildProblem(prompt.Problem{
		Extracted:           extracted,
		Question:            question,
		ProgrammingLanguage: cfg.ProgrammingLanguage,
		ResponseLanguage:    cfg.ResponseLanguage,
	})
	label := question
	if label == "" {
		label = prompt.DefaultImageQuestion
	}
	msgs := c.messages(sys, Message{Role: conversation.RoleUser, Content: problem})
	return c.exchange(ctx, cfg, msgs, label, true)
}

// Close забывает ключ, модель и системный промпт. История остаётся доступной для чтения.
func (c *core) Close() error {
	c.mu.Lock()
	c.cfg = Config{Kind: c.kind}
	c.systemPrompt = ""
	c.state = Closed
	c.mu.Unlock()

	c.deps.Logger.Infow("Session closed", "provider", c.kind)
	c.deps.Notifier.Notify(events.Status, "Session closed")
	return nil
}

func (c *core) begin(st State) (Config, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Ready {
		return Config{}, "", &StateError{Err: ErrNoActiveSession, State: c.state}
	}
	c.state = st
	return c.cfg, c.systemPrompt, nil
}

func (c *core) finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	// закрытая во время запроса сессия остаётся закрытой
	if c.state.sending() {
		c.state = Ready
	}
}

func (c *core) messages(systemPrompt string, last Message) []Message {
	history := c.store.MessageList()
	msgs := make([]Message, 0, len(history)+2)
	if systemPrompt != "" {
		msgs = append(msgs, Message{Role: conversation.RoleSystem, Content: systemPrompt})
	}
	for _, m := range history {
		msgs = append(msgs, Message{Role: m.Role, Content: m.Content})
	}
	return append(msgs, last)
}

// exchange выполняет потоковый запрос, транслирует накопленный текст в UI и записывает реплику.
func (c *core) exchange(ctx context.Context, cfg Config, msgs []Message, transcription string, hasImage bool) (string, error) {
	reqID := uuid.NewString()
	log := c.deps.Logger.With("provider", c.kind, "request", reqID)
	log.Infow("Sending request", "messages", len(msgs), "image", hasImage)
	c.deps.Notifier.Notify(events.Status, "Processing...")

	full, err := c.tr.complete(ctx, cfg, msgs, func(cumulative string) {
		c.deps.Notifier.Notify(events.StreamingDelta, cumulative)
	})
	if err != nil {
		log.Errorw("Request failed", "error", err)
		c.deps.Notifier.Notify(events.Status, "Error: "+err.Error())
		return "", err
	}
	full = strings.TrimSpace(full)
	log.Infow("Response received", "chars", len(full))

	if full != "" {
		turn, err := c.store.Append(transcription, full, hasImage)
		if err != nil {
			log.Warnw("Turn was not recorded", "error", err)
		} else if c.deps.Sink != nil {
			if err := c.deps.Sink.PersistTurn(ctx, c.store.SessionID(), turn); err != nil {
				log.Warnw("Failed to persist turn", "error", err)
			}
		}
	}

	c.deps.Notifier.Notify(events.ResponseComplete, full)
	c.deps.Notifier.Notify(events.Status, "Ready")
	return full, nil
}
