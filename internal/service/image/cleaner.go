package image

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Cleaner удаляет старые отладочные кадры по TTL в заданной директории.
type Cleaner struct {
	logger *zap.SugaredLogger
	now    func() time.Time
}

func NewCleaner(logger *zap.SugaredLogger) *Cleaner { return &Cleaner{logger: logger, now: time.Now} }

// Clean удаляет файлы изображений старше ttl из dir и возвращает число удалённых.
func (c *Cleaner) Clean(dir string, ttl time.Duration) int {
	if ttl <= 0 || dir == "" {
		return 0
	}

	deadline := c.now().Add(-ttl)
	exts := []string{".jpg", ".jpeg", ".png"}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			c.logger.Warnw("Failed to read directory for cleanup", "dir", dir, "error", err)
		}
		return 0
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		lower := strings.ToLower(name)
		if slices.IndexFunc(exts, func(ext string) bool { return strings.HasSuffix(lower, ext) }) == -1 {
			continue
		}
		fi, statErr := e.Info()
		if statErr != nil {
			c.logger.Warnw("Failed to stat file during cleanup", "name", name, "error", statErr)
			continue
		}
		if fi.ModTime().Before(deadline) {
			full := filepath.Join(dir, name)
			if err := os.Remove(full); err != nil {
				c.logger.Warnw("Failed to remove stale image", "path", full, "error", err)
				continue
			}
			removed++
		}
	}
	if removed > 0 {
		c.logger.Debugw("Stale images removed", "dir", dir, "removed", removed)
	}
	return removed
}
