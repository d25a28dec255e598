package config

import (
	"context"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/ftl/cellbroadcast/cb"
)

const (
	reloadDebounce     = 250 * time.Millisecond
	restartBackoffBase = 500 * time.Millisecond
	restartBackoffMax  = 30 * time.Second
)

// Manager holds the current configuration and reloads it when the file changes. The Manager provides the
// runtime settings of the message handling.
type Manager struct {
	path string
	log  zerolog.Logger

	mu          sync.RWMutex
	current     *Config
	subscribers []func(*Config)
}

// NewManager loads the configuration file.
func NewManager(path string, log zerolog.Logger) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Manager{path: path, log: log, current: cfg}, nil
}

// NewStaticManager serves the given configuration. It cannot be reloaded.
func NewStaticManager(cfg *Config) *Manager {
	return &Manager{current: cfg, log: zerolog.Nop()}
}

// WithLogger replaces the logger used to report reloads.
func (m *Manager) WithLogger(log zerolog.Logger) *Manager {
	m.log = log
	return m
}

// Get returns the current configuration. The result must not be modified.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Subscribe registers a callback that is called with every newly loaded configuration.
func (m *Manager) Subscribe(callback func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, callback)
}

// Reload reads the configuration file again. An invalid file keeps the current configuration.
func (m *Manager) Reload() error {
	if m.path == "" {
		return nil
	}
	cfg, err := Load(m.path)
	if err != nil {
		return err
	}
	m.commit(cfg)
	return nil
}

func (m *Manager) commit(cfg *Config) {
	m.mu.Lock()
	m.current = cfg
	subscribers := append([]func(*Config){}, m.subscribers...)
	m.mu.Unlock()

	for _, callback := range subscribers {
		callback(cfg)
	}
}

// Watch reloads the configuration whenever the file changes, until ctx is done. Bursts of file events are
// debounced. If the watcher breaks, it is restarted with backoff.
func (m *Manager) Watch(ctx context.Context) error {
	if m.path == "" {
		<-ctx.Done()
		return nil
	}
	dir := filepath.Dir(m.path)
	file := filepath.Base(m.path)

	var timerLock sync.Mutex
	var timer *time.Timer
	debounce := func() {
		timerLock.Lock()
		defer timerLock.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(reloadDebounce, func() {
			if ctx.Err() != nil {
				return
			}
			err := m.Reload()
			if err != nil {
				m.log.Warn().Err(err).Str("path", m.path).Msg("configuration rejected")
				return
			}
			m.log.Info().Str("path", m.path).Msg("configuration reloaded")
		})
	}
	defer func() {
		timerLock.Lock()
		defer timerLock.Unlock()
		if timer != nil {
			timer.Stop()
		}
	}()

	backoff := restartBackoffBase
	for {
		if ctx.Err() != nil {
			return nil
		}

		err := m.watchOnce(ctx, dir, file, debounce)
		if err == nil {
			return nil
		}
		m.log.Warn().Err(err).Str("dir", dir).Dur("backoff", backoff).Msg("configuration watcher failed")

		wait := backoff + time.Duration(rand.Int63n(int64(backoff/2)+1))
		backoff = min(2*backoff, restartBackoffMax)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// watchOnce returns nil when ctx is done and an error when the watcher broke.
func (m *Manager) watchOnce(ctx context.Context, dir, file string, changed func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return err
	}
	m.log.Debug().Str("dir", dir).Str("file", file).Msg("watching configuration")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return fsnotify.ErrClosed
			}
			if !strings.EqualFold(filepath.Base(event.Name), file) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				changed()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return fsnotify.ErrClosed
			}
			if err == fsnotify.ErrEventOverflow {
				changed()
				continue
			}
			m.log.Warn().Err(err).Msg("configuration watcher error")
		}
	}
}

func (m *Manager) AreaInfoChannels(slot int) []cb.MessageIdentifier {
	s, ok := m.Get().Slot(slot)
	if !ok {
		return nil
	}
	return s.MessageIdentifiers()
}

func (m *Manager) AreaInfoReceivers() []string {
	receivers := m.Get().AreaInfo.Receivers
	result := make([]string, 0, len(receivers))
	for _, receiver := range receivers {
		result = append(result, strings.TrimSpace(receiver.Name))
	}
	return result
}

func (m *Manager) ResetDuplicateDetectionOnPowerCycle() bool {
	return m.Get().Dedup.ResetOnPowerCycle
}

func (m *Manager) DuplicateWindow() time.Duration {
	return m.Get().Dedup.Window
}

func (m *Manager) DefaultMaximumWaitTime() time.Duration {
	return m.Get().Geofence.DefaultMaximumWaitTime
}

// ReceiverURL returns the webhook URL of the named area info receiver.
func (m *Manager) ReceiverURL(name string) (string, bool) {
	for _, receiver := range m.Get().AreaInfo.Receivers {
		if strings.TrimSpace(receiver.Name) == name {
			return receiver.URL, true
		}
	}
	return "", false
}
