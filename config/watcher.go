package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/meridianhq/meridian/logger"
)

// RulesWatcher watches the rules file for changes and triggers reload
// callbacks, letting operators retune decay factors and reliability weights
// without restarting the daemon.
type RulesWatcher struct {
	rulesPath      string
	watcher        *fsnotify.Watcher
	callbacks      []RulesReloadCallback
	mu             sync.RWMutex
	debounceTimer  *time.Timer
	debouncePeriod time.Duration
	done           chan struct{}
}

// RulesReloadCallback is called when the rules file is reloaded.
// Receives the new rules and returns any error.
type RulesReloadCallback func(*RulesFile) error

// NewRulesWatcher creates a new rules file watcher
func NewRulesWatcher(rulesPath string) (*RulesWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	if err := watcher.Add(rulesPath); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch rules file %s: %w", rulesPath, err)
	}

	rw := &RulesWatcher{
		rulesPath:      rulesPath,
		watcher:        watcher,
		callbacks:      make([]RulesReloadCallback, 0),
		debouncePeriod: 500 * time.Millisecond, // Debounce rapid file changes
		done:           make(chan struct{}),
	}

	return rw, nil
}

// OnReload registers a callback to be called when the rules file is reloaded
func (rw *RulesWatcher) OnReload(callback RulesReloadCallback) {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	rw.callbacks = append(rw.callbacks, callback)
}

// Start begins watching the rules file
func (rw *RulesWatcher) Start() {
	go rw.loop()
	logger.Infow("Rules watcher started", "path", rw.rulesPath)
}

// Stop closes the watcher
func (rw *RulesWatcher) Stop() error {
	close(rw.done)
	return rw.watcher.Close()
}

func (rw *RulesWatcher) loop() {
	for {
		select {
		case <-rw.done:
			return
		case event, ok := <-rw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			rw.scheduleReload()
		case err, ok := <-rw.watcher.Errors:
			if !ok {
				return
			}
			logger.Warnw("Rules watcher error", "error", err)
		}
	}
}

// scheduleReload debounces bursts of write events into a single reload
func (rw *RulesWatcher) scheduleReload() {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.debounceTimer != nil {
		rw.debounceTimer.Stop()
	}
	rw.debounceTimer = time.AfterFunc(rw.debouncePeriod, rw.reload)
}

func (rw *RulesWatcher) reload() {
	rules, err := LoadRules(rw.rulesPath)
	if err != nil {
		// Keep the previous rules on a bad edit; the operator sees the
		// parse error and fixes the file
		logger.Warnw("Rules reload failed, keeping previous rules",
			"path", rw.rulesPath,
			"error", err,
		)
		return
	}

	rw.mu.RLock()
	callbacks := make([]RulesReloadCallback, len(rw.callbacks))
	copy(callbacks, rw.callbacks)
	rw.mu.RUnlock()

	for _, cb := range callbacks {
		if err := cb(rules); err != nil {
			logger.Warnw("Rules reload callback failed", "error", err)
		}
	}

	logger.Infow("Rules reloaded", "path", rw.rulesPath)
}
