/*
Package session
File: watch.go
Description:
    Catalog hot reload. A changed catalog file is validated, then applied to
    every live session; an invalid one is rejected.
*/

package session

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/everforgeworks/idle-tycoon/internal/game"
)

// ReloadCatalogFile reads the catalog at path and applies it to every live
// session. A catalog that fails to load or validate is rejected and the
// current one stays in place.
func (m *Manager) ReloadCatalogFile(path string) error {
	c, err := game.LoadCatalog(path)
	if err != nil {
		m.logger.Error("catalog reload rejected", zap.String("path", path), zap.Error(err))
		return err
	}
	for _, id := range c.DanglingManagers() {
		m.logger.Warn("manager upgrade targets unknown business", zap.String("upgrade_id", id))
	}
	m.ReloadCatalog(c)
	return nil
}

// WatchCatalog reloads the catalog file whenever it changes, until ctx is
// done. Bursts of events (editors often write, rename and chmod in quick
// succession) collapse into a single reload after debounce.
func (m *Manager) WatchCatalog(ctx context.Context, path string, debounce time.Duration) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("catalog watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: a rename-over replaces the file's inode.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("catalog watcher: %w", err)
	}
	name := filepath.Clean(path)

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	m.logger.Info("watching catalog", zap.String("path", path))
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			m.logger.Warn("catalog watcher error", zap.Error(err))

		case <-timer.C:
			_ = m.ReloadCatalogFile(path)
		}
	}
}
