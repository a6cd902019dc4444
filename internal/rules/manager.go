package rules

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/smazurov/udevd/internal/metrics"
)

// Manager owns the current rule list and keeps it fresh by watching
// its source directories for changes. Readers call Snapshot once per
// event and hold the returned List for that event's duration; a
// concurrent reload swaps the underlying pointer without disturbing
// snapshots already handed out. The debounced fsnotify loop has the
// same shape as config.Watcher's; the pointer swap is this type's own.
type Manager struct {
	dirs     []string
	debounce time.Duration
	logger   *slog.Logger
	current  atomic.Pointer[List]
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

// NewManager loads rules from dirs and starts watching them for
// changes. A failed initial load starts the manager with an empty
// rule list rather than failing construction.
func NewManager(dirs []string, logger *slog.Logger) *Manager {
	m := &Manager{
		dirs:     dirs,
		debounce: 200 * time.Millisecond,
		logger:   logger,
		done:     make(chan struct{}),
	}

	initial, err := ParseDirectories(dirs)
	if err != nil {
		logger.Warn("initial rule load failed, starting empty", "error", err)
		initial = List{}
	}
	m.store(initial)

	if err := m.startWatch(); err != nil {
		logger.Warn("rule directory watch failed, hot reload disabled", "error", err)
	}

	return m
}

func (m *Manager) store(l List) {
	m.current.Store(&l)
}

// Snapshot returns the current rule list. The returned List is
// immutable; hold it for the duration of one event's processing.
func (m *Manager) Snapshot() List {
	return *m.current.Load()
}

func (m *Manager) startWatch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for _, dir := range m.dirs {
		if err := w.Add(dir); err != nil {
			w.Close()
			return err
		}
	}
	m.watcher = w
	go m.watch()
	return nil
}

func (m *Manager) watch() {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-m.done:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				if timer != nil {
					timer.Stop()
				}
				timer = time.NewTimer(m.debounce)
				timerC = timer.C
			}

		case <-timerC:
			m.reload()
			timerC = nil

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn("rule directory watch error", "error", err)
		}
	}
}

func (m *Manager) reload() {
	rules, err := ParseDirectories(m.dirs)
	if err != nil {
		m.logger.Warn("rule reload failed, retaining previous rule list", "error", err)
		return
	}
	m.store(rules)
	metrics.RuleReloads.Inc()
	m.logger.Info("rules reloaded", "count", len(rules))
}

// Close stops the directory watch and releases its resources.
func (m *Manager) Close() error {
	close(m.done)
	if m.watcher != nil {
		return m.watcher.Close()
	}
	return nil
}
