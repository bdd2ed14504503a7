package monitor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/genricoloni/rfpresence/internal/domain"
	"go.uber.org/zap"
)

// FileMonitor watches a JSON file the page bridge rewrites on every change
type FileMonitor struct {
	lifecycle
	logger *zap.Logger
	path   string
}

// NewFileMonitor creates a monitor for the status file at path
func NewFileMonitor(logger *zap.Logger, path string) *FileMonitor {
	return &FileMonitor{
		lifecycle: lifecycle{events: make(chan domain.StatusUpdate, 10)},
		logger:    logger,
		path:      filepath.Clean(path),
	}
}

// Start watches the file until the context is cancelled or Stop is called
func (m *FileMonitor) Start(ctx context.Context) error {
	runCtx, ok := m.begin(ctx)
	if !ok {
		return nil
	}
	defer m.wg.Done()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: bridges usually replace the file atomically
	dir := filepath.Dir(m.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	m.logger.Info("File monitor started", zap.String("path", m.path))
	m.read()

	for {
		select {
		case <-runCtx.Done():
			m.logger.Info("File monitor stopped")
			return runCtx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != m.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				m.read()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			m.logger.Warn("File watcher error", zap.Error(err))
		}
	}
}

// read publishes the current file content; a missing file means no status
func (m *FileMonitor) read() {
	data, err := os.ReadFile(m.path)
	if errors.Is(err, fs.ErrNotExist) {
		m.publish(m.logger, m.path, nil)
		return
	}
	if err != nil {
		m.logger.Warn("Failed to read status file", zap.String("path", m.path), zap.Error(err))
		return
	}
	m.publish(m.logger, m.path, data)
}

// Stop gracefully stops the monitor
func (m *FileMonitor) Stop(ctx context.Context) error {
	if m.end() {
		m.logger.Info("File monitor shutdown complete")
	}
	return nil
}

// Events returns a read-only channel that emits StatusUpdate
func (m *FileMonitor) Events() <-chan domain.StatusUpdate {
	return m.events
}
