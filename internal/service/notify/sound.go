package notify

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"OverlayAssistant/internal/service/events"

	"go.uber.org/zap"
)

// SoundNotifier проигрывает короткий звук, когда модель закончила ответ.
// Подключается к шине событий как events.Notifier.
type SoundNotifier struct {
	logger *zap.SugaredLogger
	path   string
	ply    Player

	// звук не накладывается сам на себя; лишние уведомления пропускаются
	busy sync.Mutex
	wg   sync.WaitGroup
}

var _ events.Notifier = (*SoundNotifier)(nil)

// NewSoundNotifier создаёт нотификатор. Пустой путь — sound/notification.mp3 рядом с бинарём
// или в текущей директории.
func NewSoundNotifier(logger *zap.SugaredLogger, path string, ply Player) *SoundNotifier {
	if strings.TrimSpace(path) == "" {
		path = resolveDefault(filepath.Join("sound", "notification.mp3"))
	}
	if ply == nil {
		ply = NewSpeakerPlayer(0)
	}
	return &SoundNotifier{logger: logger, path: path, ply: ply}
}

func resolveDefault(def string) string {
	if exe, err := os.Executable(); err == nil {
		cand := filepath.Join(filepath.Dir(exe), def)
		if _, statErr := os.Stat(cand); statErr == nil {
			return cand
		}
	}
	return filepath.FromSlash(def)
}

// Notify реагирует только на response-complete с непустым ответом.
func (n *SoundNotifier) Notify(channel events.Channel, payload any) {
	if channel != events.ResponseComplete {
		return
	}
	if text, _ := payload.(string); strings.TrimSpace(text) == "" {
		return
	}
	if !n.busy.TryLock() {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer n.busy.Unlock()
		_ = n.Play()
	}()
}

// Play синхронно проигрывает звук. Ошибки логируются и возвращаются.
func (n *SoundNotifier) Play() error {
	f, err := os.Open(n.path)
	if err != nil {
		n.logger.Warnw("Failed to open notification sound", "path", n.path, "error", err)
		return err
	}
	defer f.Close()

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(n.path), "."))
	if ext == "" {
		ext = "mp3"
	}
	if err := n.ply.Play(ext, f); err != nil {
		n.logger.Warnw("Failed to play notification sound", "path", n.path, "error", err)
		return err
	}
	return nil
}

// Wait дожидается окончания текущего звука.
func (n *SoundNotifier) Wait() { n.wg.Wait() }
