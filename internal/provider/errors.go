package provider

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	// ErrEmptyInput пустой текст запроса.
	ErrEmptyInput = errors.New("Message cannot be empty")
	// ErrImageTooSmall картинка меньше минимального размера, скорее всего обрезана.
	ErrImageTooSmall = errors.New("Image buffer too small")
	// ErrNoActiveSession отправка без готовой сессии.
	ErrNoActiveSession = errors.New("No active session")
	// ErrInitInProgress повторная инициализация во время текущей.
	ErrInitInProgress = errors.New("Session initialization already in progress")
	// ErrClosedDuringInit сессию закрыли, пока шла инициализация.
	ErrClosedDuringInit = errors.New("Session was closed during initialization")
	// ErrBusy инициализация во время отправки запроса.
	ErrBusy = errors.New("Session is busy with another request")
	// ErrMissingCredential не задан ключ API.
	ErrMissingCredential = errors.New("API key is required")
	// ErrNoPipeline нет пайплайна распознавания для модели без vision.
	ErrNoPipeline = errors.New("Image analysis is not configured")
)

// ValidationError ошибка входных данных, сеть не трогалась.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

// StateError операция недопустима в текущем состоянии сессии.
type StateError struct {
	Err   error
	State State
}

func (e *StateError) Error() string { return e.Err.Error() }
func (e *StateError) Unwrap() error { return e.Err }

// TransportError сетевая ошибка или неуспешный HTTP-статус. Status=0 — до ответа сервера.
type TransportError struct {
	Status  int
	Message string
	Err     error
}

func (e *TransportError) Error() string { return e.Message }
func (e *TransportError) Unwrap() error { return e.Err }

// statusError сопоставляет HTTP-статус облачного API понятному пользователю сообщению.
func statusError(providerName string, status int, body []byte) *TransportError {
	if providerName == "" {
		providerName = "API"
	}
	var msg string
	switch status {
	case http.StatusPaymentRequired:
		msg = fmt.Sprintf("Insufficient Balance. Please top up your %s account.", providerName)
	case http.StatusUnauthorized:
		msg = fmt.Sprintf("Invalid API key. Please check your %s API key.", providerName)
	case http.StatusTooManyRequests:
		msg = "Rate limit exceeded. Please try again later."
	default:
		msg = fmt.Sprintf("HTTP error %d", status)
		if detail := errorDetail(body); detail != "" {
			msg += ": " + detail
		}
	}
	return &TransportError{Status: status, Message: msg}
}

// errorDetail достаёт текст ошибки из тела ответа: {"error":{"message":...}} или {"error":"..."}.
func errorDetail(body []byte) string {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return ""
	}
	for _, path := range []string{"error.message", "error", "message"} {
		if r := gjson.GetBytes(body, path); r.Exists() && r.Type == gjson.String {
			return strings.TrimSpace(r.String())
		}
	}
	return ""
}
