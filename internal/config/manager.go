package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/agentmux/agentmux/internal/observability"
)

// reloadDebounce coalesces the burst of fs events editors emit on save.
const reloadDebounce = 500 * time.Millisecond

// Manager watches a config file and reloads it on change. The current
// config is held behind an atomic pointer so readers never block on a
// reload in progress. An invalid new file is logged and discarded; the
// previous config stays active.
type Manager struct {
	path    string
	current atomic.Pointer[Config]
	watcher *fsnotify.Watcher
	logger  *observability.Logger

	mu        sync.Mutex
	callbacks []func(*Config)

	stop      chan struct{}
	closeOnce sync.Once
}

// NewManager loads path and starts watching it for changes.
func NewManager(path string, logger *observability.Logger) (*Manager, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: creating watcher: %w", err)
	}
	// Watch the directory: editors replace files on save, which would
	// drop a watch on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("config: watching %s: %w", filepath.Dir(path), err)
	}

	m := &Manager{
		path:    path,
		watcher: watcher,
		logger:  logger,
		stop:    make(chan struct{}),
	}
	m.current.Store(cfg)

	go m.watchLoop()
	return m, nil
}

// Current returns the active configuration. Never nil.
func (m *Manager) Current() *Config {
	return m.current.Load()
}

// OnChange registers a callback invoked with each successfully reloaded
// config. Callbacks run on the watch goroutine and must not block.
func (m *Manager) OnChange(fn func(*Config)) {
	m.mu.Lock()
	m.callbacks = append(m.callbacks, fn)
	m.mu.Unlock()
}

func (m *Manager) watchLoop() {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	var pending <-chan time.Time
	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(m.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			pending = timer.C

		case <-pending:
			pending = nil
			m.reload()

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn("config watcher error", "error", err)

		case <-m.stop:
			return
		}
	}
}

func (m *Manager) reload() {
	cfg, err := Load(m.path)
	if err != nil {
		m.logger.Warn("config reload failed, keeping previous config", "path", m.path, "error", err)
		return
	}

	m.current.Store(cfg)
	m.logger.Info("config reloaded", "path", m.path)

	m.mu.Lock()
	callbacks := make([]func(*Config), len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.mu.Unlock()

	for _, fn := range callbacks {
		fn(cfg)
	}
}

// Close stops the watcher.
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		close(m.stop)
		err = m.watcher.Close()
	})
	return err
}
