package coordinator

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"OverlayAssistant/internal/config"
	"OverlayAssistant/internal/provider"
	"OverlayAssistant/internal/service/conversation"
	"OverlayAssistant/internal/service/events"
	imgsvc "OverlayAssistant/internal/service/image"
	"OverlayAssistant/internal/service/prompt"

	"go.uber.org/zap"
)

// Preferences пользовательские настройки, которыми дополняется запрос инициализации.
type Preferences struct {
	Profile             string `yaml:"profile" json:"profile"`
	CustomPrompt        string `yaml:"customPrompt" json:"customPrompt"`
	Language            string `yaml:"selectedLanguage" json:"selectedLanguage"`
	ProgrammingLanguage string `yaml:"selectedProgrammingLanguage" json:"selectedProgrammingLanguage"`
	SearchEnabled       bool   `yaml:"searchEnabled" json:"searchEnabled"`
	Provider            string `yaml:"provider" json:"provider"`
	Credential          string `yaml:"apiKey" json:"-"`
}

// PreferencesSource источник настроек (get-preferences).
type PreferencesSource interface {
	Preferences() Preferences
}

// InitRequest аргументы инициализации от UI. Пустые поля берутся из настроек и конфигурации.
type InitRequest struct {
	ProviderKind        string `json:"provider"`
	Credential          string `json:"credential"` // API-ключ облака или адрес локального сервера
	CustomPrompt        string `json:"customPrompt"`
	Profile             string `json:"profile"`
	Language            string `json:"language"`
	ProgrammingLanguage string `json:"programmingLanguage"`
}

// Result единый ответ операций отправки.
type Result struct {
	Success  bool   `json:"success"`
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}

// SessionData текущая сессия для UI.
type SessionData struct {
	SessionID string              `json:"sessionId"`
	History   []conversation.Turn `json:"history"`
}

// NewSessionResult ответ StartNewSession.
type NewSessionResult struct {
	Success   bool   `json:"success"`
	SessionID string `json:"sessionId"`
}

// SessionFactory создаёт сессию провайдера.
type SessionFactory func(kind provider.Kind, deps provider.Deps) (provider.Session, error)

// Coordinator единственная точка входа для UI: выбирает провайдера, держит одну активную сессию,
// не допускает параллельных инициализаций и выстраивает отправки в очередь.
type Coordinator struct {
	cfg     *config.Config
	deps    provider.Deps
	prefs   PreferencesSource
	factory SessionFactory
	logger  *zap.SugaredLogger

	initializing atomic.Bool

	mu     sync.RWMutex
	active provider.Session
	idle   *conversation.Store

	// слот отправки; ожидающие отправители обслуживаются в порядке прихода
	slot chan struct{}
}

// New создаёт координатор. prefs может быть nil.
func New(cfg *config.Config, deps provider.Deps, prefs PreferencesSource) *Coordinator {
	if deps.Notifier == nil {
		deps.Notifier = events.Nop
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop().Sugar()
	}
	if cfg == nil {
		cfg = config.Defaults()
	}
	if deps.MinImageBytes == 0 {
		deps.MinImageBytes = cfg.Pipeline.MinImageBytes
	}
	return &Coordinator{
		cfg:     cfg,
		deps:    deps,
		prefs:   prefs,
		factory: provider.New,
		logger:  deps.Logger,
		idle:    conversation.New(),
		slot:    make(chan struct{}, 1),
	}
}

// WithFactory подменяет создание сессий. Для тестов и встраивания.
func (c *Coordinator) WithFactory(f SessionFactory) *Coordinator {
	c.factory = f
	return c
}

// Initialize создаёт или переинициализирует активную сессию.
func (c *Coordinator) Initialize(ctx context.Context, req InitRequest) bool {
	if !c.initializing.CompareAndSwap(false, true) {
		c.logger.Warnw("Initialization rejected: another one is in progress")
		c.deps.Notifier.Notify(events.Status, "Error: "+provider.ErrInitInProgress.Error())
		return false
	}
	defer c.initializing.Store(false)

	req = c.withPreferences(req)
	kindName := req.ProviderKind
	if kindName == "" {
		kindName = c.cfg.Provider
	}
	kind, err := provider.ParseKind(kindName)
	if err != nil {
		c.logger.Errorw("Unknown provider", "provider", kindName, "error", err)
		c.deps.Notifier.Notify(events.Status, "Error: "+err.Error())
		return false
	}

	// не меняем сессию посреди отправки
	release, err := c.acquire(ctx)
	if err != nil {
		return false
	}
	defer release()

	c.mu.RLock()
	sess := c.active
	c.mu.RUnlock()
	if sess == nil || sess.Kind() != kind {
		sess, err = c.factory(kind, c.deps)
		if err != nil {
			c.logger.Errorw("Failed to create session", "provider", kind, "error", err)
			c.deps.Notifier.Notify(events.Status, "Error: "+err.Error())
			return false
		}
	}

	spec := prompt.Spec{
		Profile:            req.Profile,
		CustomInstructions: prompt.WithLanguageSettings(req.CustomPrompt, req.ProgrammingLanguage, req.Language),
		SearchToolEnabled:  c.searchEnabled(),
	}
	if err := sess.Initialize(ctx, c.providerConfig(kind, req), spec); err != nil {
		return false
	}

	c.mu.Lock()
	c.active = sess
	c.mu.Unlock()
	return true
}

// SendText отправляет текст в активную сессию.
func (c *Coordinator) SendText(ctx context.Context, text string) Result {
	if strings.TrimSpace(text) == "" {
		return failure(provider.ErrEmptyInput)
	}
	return c.send(ctx, func(s provider.Session) (string, error) { return s.SendText(ctx, text) })
}

// SendImage отправляет картинку с необязательным вопросом.
func (c *Coordinator) SendImage(ctx context.Context, image []byte, question string) Result {
	return c.send(ctx, func(s provider.Session) (string, error) { return s.SendImage(ctx, image, question) })
}

// SendImageBase64 принимает картинку в base64 или data URL.
func (c *Coordinator) SendImageBase64(ctx context.Context, data, question string) Result {
	image, err := imgsvc.DecodeBase64(data)
	if err != nil {
		c.logger.Warnw("Invalid image payload", "error", err)
		return failure(imgsvc.ErrInvalidImage)
	}
	return c.SendImage(ctx, image, question)
}

func (c *Coordinator) send(ctx context.Context, fn func(provider.Session) (string, error)) Result {
	sess := c.current()
	if sess == nil {
		return failure(provider.ErrNoActiveSession)
	}
	release, err := c.acquire(ctx)
	if err != nil {
		return failure(err)
	}
	defer release()

	// сессия могла смениться, пока ждали очередь
	sess = c.current()
	resp, err := fn(sess)
	if err != nil {
		return failure(err)
	}
	return Result{Success: true, Response: resp}
}

// Close закрывает активную сессию. История остаётся доступной.
func (c *Coordinator) Close() Result {
	sess := c.current()
	if sess == nil {
		return Result{Success: true}
	}
	if err := sess.Close(); err != nil {
		return failure(err)
	}
	return Result{Success: true}
}

// CurrentSession возвращает идентификатор и историю текущей сессии.
func (c *Coordinator) CurrentSession() SessionData {
	snap := c.store().Snapshot()
	return SessionData{SessionID: snap.SessionID.String(), History: snap.Turns}
}

// StartNewSession начинает новую историю, не трогая подключение.
func (c *Coordinator) StartNewSession() NewSessionResult {
	id := c.store().Reset()
	c.logger.Infow("New session started", "session", id.String())
	return NewSessionResult{Success: true, SessionID: id.String()}
}

// Ready активная сессия готова принимать запросы.
func (c *Coordinator) Ready() bool {
	sess := c.current()
	return sess != nil && sess.State() == provider.Ready
}

// Initializing идёт инициализация.
func (c *Coordinator) Initializing() bool { return c.initializing.Load() }

// ListModels модели локального инференс-сервера.
func (c *Coordinator) ListModels(ctx context.Context) ([]string, error) {
	return provider.ListOllamaModels(ctx, c.deps.HTTPClient, c.cfg.Ollama.URL)
}

func (c *Coordinator) current() provider.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

func (c *Coordinator) store() *conversation.Store {
	if sess := c.current(); sess != nil {
		return sess.Store()
	}
	return c.idle
}

func (c *Coordinator) acquire(ctx context.Context) (func(), error) {
	select {
	case c.slot <- struct{}{}:
		return func() { <-c.slot }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Coordinator) searchEnabled() bool {
	if c.prefs != nil && c.prefs.Preferences().SearchEnabled {
		return true
	}
	return c.cfg.SearchEnabled
}

// withPreferences дополняет пустые поля запроса пользовательскими настройками.
func (c *Coordinator) withPreferences(req InitRequest) InitRequest {
	var p Preferences
	if c.prefs != nil {
		p = c.prefs.Preferences()
	}
	req.ProviderKind = firstNonEmpty(req.ProviderKind, p.Provider)
	req.Profile = firstNonEmpty(req.Profile, p.Profile, c.cfg.Profile)
	req.CustomPrompt = firstNonEmpty(req.CustomPrompt, p.CustomPrompt)
	req.Language = firstNonEmpty(req.Language, p.Language, c.cfg.ResponseLanguage)
	req.ProgrammingLanguage = firstNonEmpty(req.ProgrammingLanguage, p.ProgrammingLanguage, c.cfg.ProgrammingLanguage)
	if req.Credential == "" && p.Credential != "" {
		req.Credential = p.Credential
	}
	return req
}

func (c *Coordinator) providerConfig(kind provider.Kind, req InitRequest) provider.Config {
	pc := provider.Config{
		Kind:                kind,
		ProgrammingLanguage: req.ProgrammingLanguage,
		ResponseLanguage:    req.Language,
	}
	switch kind {
	case provider.CloudAPI:
		pc.Credential = firstNonEmpty(req.Credential, c.cfg.Cloud.APIKey)
		pc.Endpoint = c.cfg.Cloud.BaseURL
		pc.Model = c.cfg.Cloud.Model
		pc.NativeVision = c.cfg.Cloud.NativeVision
		pc.ProviderName = c.cfg.Cloud.ProviderName
	case provider.LocalProxy:
		pc.Endpoint = firstNonEmpty(req.Credential, c.cfg.Proxy.URL)
		pc.Credential = c.cfg.Server.AuthToken
	case provider.LocalInference:
		pc.Endpoint = firstNonEmpty(req.Credential, c.cfg.Ollama.URL)
		pc.Model = c.cfg.Ollama.Model
		pc.VisionModel = c.cfg.Ollama.VisionModel
		pc.Temperature = c.cfg.Ollama.Temperature
		pc.NumPredict = c.cfg.Ollama.NumPredict
	}
	return pc
}

func failure(err error) Result {
	return Result{Success: false, Error: err.Error()}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
