package chat

import (
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the rule table whenever the file at path changes.
// A failed reload logs a warning and keeps the previous rules. The
// returned func stops the watcher.
func (m *Matcher) Watch(path string, logger *slog.Logger) (func() error, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: editors often replace the file wholesale,
	// which drops a watch registered on the file itself.
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return nil, err
	}
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(path) {
					continue
				}
				if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
					continue
				}
				if err := m.LoadFile(path); err != nil {
					logger.Warn("chat rules reload failed", "path", path, "error", err)
					continue
				}
				logger.Info("chat rules reloaded", "path", path)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("chat rules watcher error", "error", err)
			}
		}
	}()
	return w.Close, nil
}
