package preferences

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"OverlayAssistant/internal/service/coordinator"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const debounceDelay = 100 * time.Millisecond

// Store пользовательские настройки в YAML-файле. Изменения файла подхватываются через Watch.
type Store struct {
	path   string
	logger *zap.SugaredLogger

	mu    sync.RWMutex
	prefs coordinator.Preferences
}

var _ coordinator.PreferencesSource = (*Store)(nil)

// Load читает файл настроек. Отсутствующий файл не ошибка.
func Load(path string, logger *zap.SugaredLogger) (*Store, error) {
	s := &Store{path: path, logger: logger}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Preferences текущие настройки.
func (s *Store) Preferences() coordinator.Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs
}

// Save записывает настройки в файл.
func (s *Store) Save(p coordinator.Preferences) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create preferences dir: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	s.mu.Lock()
	s.prefs = p
	s.mu.Unlock()
	return nil
}

func (s *Store) reload() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read preferences: %w", err)
	}
	var p coordinator.Preferences
	if err := yaml.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("failed to parse preferences %s: %w", s.path, err)
	}
	s.mu.Lock()
	s.prefs = p
	s.mu.Unlock()
	return nil
}

// Watch следит за файлом настроек и перечитывает его после изменений. Блокирующий метод.
func (s *Store) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	// следим за директорией: редакторы часто заменяют файл целиком
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		return err
	}
	name := filepath.Clean(s.path)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != name || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceDelay, func() {
				if err := s.reload(); err != nil {
					s.logger.Warnw("Failed to reload preferences", "path", s.path, "error", err)
					return
				}
				s.logger.Infow("Preferences reloaded", "path", s.path)
			})
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Warnw("Preferences watcher error", "error", err)
		}
	}
}
