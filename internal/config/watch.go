package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mkoppen/subwarden/internal/logger"
)

const debounceDelay = 200 * time.Millisecond

// Watch re-merges the settings layers whenever one of the settings files
// changes and hands the result to onChange. Malformed updates are logged
// and skipped; the previous settings stay in effect. Returns once the
// watcher is installed; watching stops when ctx is cancelled.
func Watch(ctx context.Context, workspace string, sessionOverride []byte, onChange func(*Settings)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	watched := make(map[string]bool)
	addFile := func(path string) {
		if path == "" {
			return
		}
		// Watch the directory: editors replace files on save, and a watch
		// on the old inode would go stale.
		dir := filepath.Dir(path)
		if err := watcher.Add(dir); err != nil {
			logger.Debug("not watching %s: %v", dir, err)
			return
		}
		watched[path] = true
	}

	if userPath, err := UserSettingsPath(); err == nil {
		addFile(userPath)
	}
	if workspace != "" {
		addFile(ProjectSettingsPath(workspace))
	}

	go func() {
		defer watcher.Close()

		var debounce *time.Timer
		var debounceC <-chan time.Time

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !watched[event.Name] {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if debounce == nil {
					debounce = time.NewTimer(debounceDelay)
					debounceC = debounce.C
				} else {
					debounce.Reset(debounceDelay)
				}

			case <-debounceC:
				debounce = nil
				debounceC = nil
				s, err := Load(workspace, sessionOverride)
				if err != nil {
					logger.Warn("settings reload failed, keeping previous settings: %v", err)
					continue
				}
				logger.Info("settings reloaded")
				onChange(s)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("settings watcher error: %v", err)

			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}
