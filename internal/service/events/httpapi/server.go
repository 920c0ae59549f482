package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"OverlayAssistant/internal/config"
	"OverlayAssistant/internal/provider"
	"OverlayAssistant/internal/service/conversation"
	"OverlayAssistant/internal/service/coordinator"
	"OverlayAssistant/internal/service/events"
	imgsvc "OverlayAssistant/internal/service/image"

	"go.uber.org/zap"
)

// Boundary операции координатора, доступные по HTTP.
type Boundary interface {
	Initialize(ctx context.Context, req coordinator.InitRequest) bool
	SendText(ctx context.Context, text string) coordinator.Result
	SendImage(ctx context.Context, image []byte, question string) coordinator.Result
	SendImageBase64(ctx context.Context, data, question string) coordinator.Result
	Close() coordinator.Result
	CurrentSession() coordinator.SessionData
	StartNewSession() coordinator.NewSessionResult
	Ready() bool
	ListModels(ctx context.Context) ([]string, error)
}

// Capturer снимает экран.
type Capturer interface {
	Capture(ctx context.Context) (imgsvc.ProcessedImage, error)
}

// HistoryReader читает сохранённые реплики.
type HistoryReader interface {
	Sessions(ctx context.Context, limit int) ([]conversation.Summary, error)
	History(ctx context.Context, sessionID conversation.SessionID) ([]conversation.Turn, error)
}

// Options зависимости сервера. Nil-зависимость отключает соответствующие маршруты (501).
type Options struct {
	Coordinator Boundary
	Completer   provider.Completer // /api/chat и /api/image
	Extractor   provider.Extractor // распознавание для /api/image
	Capturer    Capturer           // /api/capture
	History     HistoryReader      // /api/history
	Hub         http.Handler       // /ws
	Health      provider.ProxyHealth

	ProgrammingLanguage string
	ResponseLanguage    string
	CaptureQuestion     string
}

// Server HTTP-мост между UI и координатором, одновременно локальный прокси для LocalProxySession.
type Server struct {
	cfg     config.ServerConfig
	opts    Options
	srv     *http.Server
	logger  *zap.SugaredLogger
	running atomic.Bool
	addr    atomic.Value
}

var _ events.Server = (*Server)(nil)

func New(cfg config.ServerConfig, opts Options, logger *zap.SugaredLogger) *Server {
	if cfg.BindAddr == "" {
		cfg.BindAddr = "127.0.0.1:3000"
	}
	s := &Server{cfg: cfg, opts: opts, logger: logger}
	s.addr.Store(cfg.BindAddr)

	s.srv = &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		// ответы стримятся дольше любого разумного таймаута записи
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler маршруты сервера. Отдельно от Start для тестов.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)

	mux.HandleFunc("POST /api/session/initialize", s.handleInitialize)
	mux.HandleFunc("POST /api/session/message", s.handleMessage)
	mux.HandleFunc("POST /api/session/image", s.handleImage)
	mux.HandleFunc("POST /api/session/close", s.handleClose)
	mux.HandleFunc("POST /api/session/new", s.handleNewSession)
	mux.HandleFunc("GET /api/session", s.handleSession)
	mux.HandleFunc("POST /api/capture", s.handleCapture)

	mux.HandleFunc("POST /api/chat", s.handleProxyChat)
	mux.HandleFunc("POST /api/image", s.handleProxyImage)

	mux.HandleFunc("GET /api/models", s.handleModels)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	if s.opts.Hub != nil {
		mux.Handle("GET /ws", s.opts.Hub)
	}

	return s.withAuth(s.withLogging(mux))
}

func (s *Server) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return nil
	}
	ln, err := net.Listen("tcp", s.cfg.BindAddr)
	if err != nil {
		s.running.Store(false)
		return err
	}
	s.addr.Store(ln.Addr().String())

	go func() {
		s.logger.Infow("HTTP server listening", "addr", s.Addr())
		if err := s.srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) && err != nil {
			s.logger.Errorw("HTTP server stopped with error", "error", err)
		} else {
			s.logger.Infow("HTTP server stopped")
		}
	}()

	go func() {
		<-ctx.Done()
		_ = s.Stop(context.WithoutCancel(ctx))
	}()
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeoutCause(ctx, 5*time.Second, errors.New("http server shutdown timeout"))
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warnw("graceful shutdown error", "error", err)
		return s.srv.Close()
	}
	return nil
}

// Addr фактический адрес после Start (важно для порта 0).
func (s *Server) Addr() string { return s.addr.Load().(string) }

func (s *Server) withAuth(next http.Handler) http.Handler {
	if s.cfg.AuthToken == "" {
		return next
	}
	want := "Bearer " + s.cfg.AuthToken
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/health" ||
			r.Header.Get("Authorization") == want ||
			r.URL.Query().Get("token") == s.cfg.AuthToken {
			next.ServeHTTP(w, r)
			return
		}
		s.logger.Warnw("Unauthorized request", "remote", r.RemoteAddr, "path", r.URL.Path)
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
	})
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debugw("HTTP request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr, "took", time.Since(start).String())
	})
}
