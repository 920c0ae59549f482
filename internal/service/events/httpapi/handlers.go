package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"OverlayAssistant/internal/provider"
	"OverlayAssistant/internal/service/conversation"
	"OverlayAssistant/internal/service/coordinator"
	imgsvc "OverlayAssistant/internal/service/image"
	"OverlayAssistant/internal/service/prompt"
)

// maxBody ограничение тела запроса: скриншоты в base64 бывают крупными.
const maxBody = 32 << 20

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type messageRequest struct {
	Text string `json:"text"`
}

type imageRequest struct {
	ImageData string `json:"imageData"`
	Question  string `json:"question"`
}

type captureRequest struct {
	Question string `json:"question"`
}

type initializeResponse struct {
	Success bool `json:"success"`
	Ready   bool `json:"ready"`
}

type modelsResponse struct {
	Models []string `json:"models"`
}

type ndjsonFrame struct {
	Message *ndjsonMessage `json:"message,omitempty"`
	Done    bool           `json:"done"`
	Error   string         `json:"error,omitempty"`
}

type ndjsonMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(v); err != nil {
		s.logger.Warnw("Bad request body", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return false
	}
	return true
}

func (s *Server) notImplemented(w http.ResponseWriter, what string) {
	writeJSON(w, http.StatusNotImplemented, errorBody{Error: what + " is not configured"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	h := s.opts.Health
	h.Status = "ok"
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	if s.opts.Coordinator == nil {
		s.notImplemented(w, "session coordinator")
		return
	}
	var req coordinator.InitRequest
	// пустое тело допустимо: всё берётся из настроек
	if r.ContentLength != 0 {
		if !s.decode(w, r, &req) {
			return
		}
	}
	ok := s.opts.Coordinator.Initialize(r.Context(), req)
	writeJSON(w, http.StatusOK, initializeResponse{Success: ok, Ready: s.opts.Coordinator.Ready()})
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	if s.opts.Coordinator == nil {
		s.notImplemented(w, "session coordinator")
		return
	}
	var req messageRequest
	if !s.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Coordinator.SendText(r.Context(), req.Text))
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	if s.opts.Coordinator == nil {
		s.notImplemented(w, "session coordinator")
		return
	}
	var req imageRequest
	if !s.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Coordinator.SendImageBase64(r.Context(), req.ImageData, req.Question))
}

func (s *Server) handleClose(w http.ResponseWriter, _ *http.Request) {
	if s.opts.Coordinator == nil {
		s.notImplemented(w, "session coordinator")
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Coordinator.Close())
}

func (s *Server) handleNewSession(w http.ResponseWriter, _ *http.Request) {
	if s.opts.Coordinator == nil {
		s.notImplemented(w, "session coordinator")
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Coordinator.StartNewSession())
}

func (s *Server) handleSession(w http.ResponseWriter, _ *http.Request) {
	if s.opts.Coordinator == nil {
		s.notImplemented(w, "session coordinator")
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Coordinator.CurrentSession())
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	if s.opts.Coordinator == nil || s.opts.Capturer == nil {
		s.notImplemented(w, "screen capture")
		return
	}
	var req captureRequest
	if r.ContentLength != 0 && !s.decode(w, r, &req) {
		return
	}
	shot, err := s.opts.Capturer.Capture(r.Context())
	if err != nil {
		writeJSON(w, http.StatusOK, coordinator.Result{Error: "Screen capture failed: " + err.Error()})
		return
	}
	q := strings.TrimSpace(req.Question)
	if q == "" {
		q = s.opts.CaptureQuestion
	}
	writeJSON(w, http.StatusOK, s.opts.Coordinator.SendImage(r.Context(), shot.Data, q))
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	if s.opts.Coordinator == nil {
		s.notImplemented(w, "session coordinator")
		return
	}
	models, err := s.opts.Coordinator.ListModels(r.Context())
	if err != nil {
		writeJSON(w, http.StatusBadGateway, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, modelsResponse{Models: models})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.opts.History == nil {
		s.notImplemented(w, "history storage")
		return
	}
	raw := r.URL.Query().Get("session")
	if raw == "" {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		sessions, err := s.opts.History.Sessions(r.Context(), limit)
		if err != nil {
			s.logger.Errorw("Failed to list sessions", "error", err)
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
			return
		}
		if sessions == nil {
			sessions = []conversation.Summary{}
		}
		writeJSON(w, http.StatusOK, sessions)
		return
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid session id"})
		return
	}
	turns, err := s.opts.History.History(r.Context(), conversation.SessionID(id))
	if err != nil {
		s.logger.Errorw("Failed to read history", "session", raw, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}
	if turns == nil {
		turns = []conversation.Turn{}
	}
	writeJSON(w, http.StatusOK, coordinator.SessionData{SessionID: raw, History: turns})
}

// handleProxyChat завершает диалог целиком присланной истории, без состояния сессии.
func (s *Server) handleProxyChat(w http.ResponseWriter, r *http.Request) {
	if s.opts.Completer == nil {
		s.notImplemented(w, "completion backend")
		return
	}
	var req provider.ProxyChatRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Messages) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "messages are required"})
		return
	}
	s.complete(w, r, provider.FromProxyMessages(req.Messages), req.Stream)
}

// handleProxyImage распознаёт картинку, собирает промпт решения задачи и завершает диалог.
func (s *Server) handleProxyImage(w http.ResponseWriter, r *http.Request) {
	if s.opts.Completer == nil || s.opts.Extractor == nil {
		s.notImplemented(w, "image analysis")
		return
	}
	var req provider.ProxyImageRequest
	if !s.decode(w, r, &req) {
		return
	}
	image, err := imgsvc.DecodeBase64(req.ImageData)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: imgsvc.ErrInvalidImage.Error()})
		return
	}
	extracted, err := s.opts.Extractor.Extract(r.Context(), image, req.Question)
	if err != nil {
		s.logger.Errorw("Image analysis failed", "error", err)
		writeJSON(w, http.StatusBadGateway, errorBody{Error: err.Error()})
		return
	}
	problem := prompt.BuildProblem(prompt.Problem{
		Extracted:           extracted,
		Question:            req.Question,
		ProgrammingLanguage: firstNonEmpty(req.ProgrammingLanguage, s.opts.ProgrammingLanguage),
		ResponseLanguage:    firstNonEmpty(req.ResponseLanguage, s.opts.ResponseLanguage),
	})
	msgs := append(provider.FromProxyMessages(req.Messages), provider.Message{Role: conversation.RoleUser, Content: problem})
	s.complete(w, r, msgs, req.Stream)
}

// complete стримит ответ в NDJSON (дельтами) или отдаёт его одним JSON.
func (s *Server) complete(w http.ResponseWriter, r *http.Request, msgs []provider.Message, streaming bool) {
	if !streaming {
		full, err := s.opts.Completer.Complete(r.Context(), msgs, func(string) {})
		if err != nil {
			writeJSON(w, upstreamStatus(err), errorBody{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, coordinator.Result{Success: true, Response: full})
		return
	}

	rc := http.NewResponseController(w)
	enc := json.NewEncoder(w)
	started := false
	sent := 0
	start := func() {
		if started {
			return
		}
		started = true
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.WriteHeader(http.StatusOK)
	}

	_, err := s.opts.Completer.Complete(r.Context(), msgs, func(cumulative string) {
		if len(cumulative) <= sent {
			return
		}
		start()
		delta := cumulative[sent:]
		sent = len(cumulative)
		_ = enc.Encode(ndjsonFrame{Message: &ndjsonMessage{Role: conversation.RoleAssistant, Content: delta}})
		_ = rc.Flush()
	})
	if err != nil {
		s.logger.Warnw("Proxy completion failed", "path", r.URL.Path, "error", err)
		if !started {
			writeJSON(w, upstreamStatus(err), errorBody{Error: err.Error()})
			return
		}
		_ = enc.Encode(ndjsonFrame{Done: true, Error: err.Error()})
		_ = rc.Flush()
		return
	}
	start()
	_ = enc.Encode(ndjsonFrame{Done: true})
	_ = rc.Flush()
}

func upstreamStatus(err error) int {
	var te *provider.TransportError
	if errors.As(err, &te) && te.Status >= 400 {
		return te.Status
	}
	return http.StatusBadGateway
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
