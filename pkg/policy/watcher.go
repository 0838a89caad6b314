package policy

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch monitors the definitions directory and reloads definitions when
// files change. It returns when ctx is cancelled. Events are debounced
// because editors typically emit several per save.
func (m *Manager) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(m.defsDir); err != nil {
		return err
	}
	m.logger.Info("watching policy definitions", "dir", m.defsDir)

	var debounce *time.Timer
	debounceCh := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(200*time.Millisecond, func() {
				select {
				case debounceCh <- struct{}{}:
				default:
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			m.logger.Error("policy watcher error", "error", err)

		case <-debounceCh:
			if err := m.ReloadDefinitions(); err != nil {
				m.logger.Error("failed to reload policy definitions", "error", err)
			} else {
				m.logger.Info("policy definitions reloaded")
			}
		}
	}
}
