package events

import (
	"context"

	"go.uber.org/zap"
)

// Channel имя канала уведомлений для UI.
type Channel string

const (
	// Status строка статуса: "Ready", "Processing...", "Error: ...".
	Status Channel = "status"
	// StreamingDelta накопленный текст ответа после очередной дельты.
	StreamingDelta Channel = "streaming-delta"
	// SessionInitializing флаг идущей инициализации сессии.
	SessionInitializing Channel = "session-initializing"
	// ResponseComplete полный ответ после окончания стрима.
	ResponseComplete Channel = "response-complete"
	// ModelInfo сведения о моделях локального инференса.
	ModelInfo Channel = "model-info"
)

// Notifier доставляет уведомления в UI. Вызовы одного запроса идут синхронно и по порядку.
type Notifier interface {
	Notify(channel Channel, payload any)
}

// NotifierFunc адаптер функции к Notifier.
type NotifierFunc func(channel Channel, payload any)

func (f NotifierFunc) Notify(channel Channel, payload any) { f(channel, payload) }

// Nop отбрасывает все уведомления.
var Nop Notifier = NotifierFunc(func(Channel, any) {})

// Multi рассылает уведомление всем получателям по порядку.
type Multi []Notifier

func (m Multi) Notify(channel Channel, payload any) {
	for _, n := range m {
		if n != nil {
			n.Notify(channel, payload)
		}
	}
}

// Server описывает HTTP-сервис, запускаемый в фоне.
type Server interface {
	// Start запускает сервер в отдельной горутине и немедленно возвращается.
	// Должен реагировать на отмену контекста и завершать работу.
	Start(ctx context.Context) error

	// Stop инициирует graceful shutdown с использованием контекста.
	Stop(ctx context.Context) error

	// Addr возвращает адрес, на котором слушает сервер.
	Addr() string
}

// LogNotifier пишет уведомления в лог. Дельты стрима не логируются, чтобы не засорять вывод.
func LogNotifier(logger *zap.SugaredLogger) Notifier {
	return NotifierFunc(func(channel Channel, payload any) {
		switch channel {
		case StreamingDelta:
			return
		case ResponseComplete:
			if s, ok := payload.(string); ok {
				logger.Debugw("Notification", "channel", channel, "chars", len(s))
				return
			}
		}
		logger.Debugw("Notification", "channel", channel, "payload", payload)
	})
}
