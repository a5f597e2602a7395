// Package retention removes recordings older than the configured age.
// Invoked once at process shutdown; independent of the monitoring core.
package retention

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Sweep deletes regular files in dir older than maxAge and returns how many
// were removed. Errors on individual files are logged and skipped.
func Sweep(dir string, maxAge time.Duration, logger *slog.Logger) int {
	if maxAge <= 0 {
		return 0
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if logger != nil && !os.IsNotExist(err) {
			logger.Warn("retention sweep skipped", "dir", dir, "err", err)
		}
		return 0
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil {
			if logger != nil {
				logger.Warn("retention delete failed", "path", path, "err", err)
			}
			continue
		}
		removed++
	}
	if logger != nil && removed > 0 {
		logger.Info("retention sweep removed old recordings", "dir", dir, "removed", removed)
	}
	return removed
}
