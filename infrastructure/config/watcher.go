package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ConfigWatcher watches a JSON policy overlay file for changes, letting an
// operator adjust per-domain cache policy (TTLs, Tier 4 bounds, lock TTL)
// without a process restart.
type ConfigWatcher struct {
	path     string
	watcher  *fsnotify.Watcher
	current  *DynamicConfig
	mu       sync.RWMutex
	onChange []func(*DynamicConfig)
	logger   *zap.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
}

// DynamicConfig is the runtime-changeable part of cache configuration: a
// set of per-domain policy overrides layered on top of the process-wide
// PolicyDefaults, plus feature toggles.
type DynamicConfig struct {
	Features Features                 `json:"features"`
	Overlays map[string]PolicyOverlay `json:"overlays"`
	Metadata ConfigMetadata           `json:"metadata"`
}

// Features holds runtime-toggleable feature flags.
type Features struct {
	EnableCircuitBreaker bool `json:"enableCircuitBreaker"`
	EnableTracing        bool `json:"enableTracing"`
}

// PolicyOverlay overrides a subset of PolicyDefaults for one cache domain.
// Zero values mean "inherit the process default" — a domain wanting an
// explicit zero must not be expressible here, which is acceptable since
// HardSec/LockTTLSec must be positive anyway. JitterPercent is range-checked
// on load but ResolvePolicy does not apply it; jitter stays the engine-wide
// setting.
type PolicyOverlay struct {
	HardSec          int `json:"hardSec,omitempty"`
	SoftSec          int `json:"softSec,omitempty"`
	Tier4PauseMs     int `json:"tier4PauseMs,omitempty"`
	Tier4MaxAttempts int `json:"tier4MaxAttempts,omitempty"`
	LockTTLSec       int `json:"lockTTLSec,omitempty"`
	JitterPercent    int `json:"jitterPercent,omitempty"`
}

// ConfigMetadata holds metadata about the overlay file.
type ConfigMetadata struct {
	Version   string    `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
	UpdatedBy string    `json:"updatedBy"`
}

// debounceWindow collapses bursts of fsnotify events (editors commonly
// write a file in several syscalls) into a single reload.
const debounceWindow = 100 * time.Millisecond

// NewConfigWatcher loads configPath and starts an fsnotify watch on it and
// its containing directory (so editors that save via rename-into-place
// are still picked up).
func NewConfigWatcher(configPath string, logger *zap.Logger) (*ConfigWatcher, error) {
	initial, err := loadConfigFromFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("load initial overlay config: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(configPath); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch overlay file %q: %w", configPath, err)
	}
	if dir := filepath.Dir(configPath); dir != "" {
		if err := fsw.Add(dir); err != nil {
			logger.Warn("config watcher: could not watch overlay directory, rename-based saves may be missed",
				zap.String("dir", dir), zap.Error(err))
		}
	}

	return &ConfigWatcher{
		path:    configPath,
		watcher: fsw,
		current: initial,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}, nil
}

// Start runs the watch loop in a background goroutine. Stop must be
// called to release the underlying fsnotify watcher.
func (w *ConfigWatcher) Start() {
	go w.watchLoop()
	w.logger.Info("config watcher started", zap.String("path", w.path))
}

// Stop ends the watch loop and closes the fsnotify watcher. Safe to call
// more than once.
func (w *ConfigWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.watcher.Close()
		w.logger.Info("config watcher stopped", zap.String("path", w.path))
	})
}

func (w *ConfigWatcher) watchLoop() {
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceWindow, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher: fsnotify error", zap.Error(err))
		}
	}
}

func (w *ConfigWatcher) reload() {
	next, err := loadConfigFromFile(w.path)
	if err != nil {
		w.logger.Error("config watcher: reload failed, keeping current overlay", zap.Error(err))
		return
	}
	if err := validateOverlayConfig(next); err != nil {
		w.logger.Error("config watcher: rejected invalid overlay, keeping current", zap.Error(err))
		return
	}

	w.mu.Lock()
	previous := w.current
	w.current = next
	handlers := append([]func(*DynamicConfig){}, w.onChange...)
	w.mu.Unlock()

	logOverlayDiff(w.logger, previous, next)
	for _, handler := range handlers {
		go handler(next)
	}
	w.logger.Info("config watcher: overlay reloaded", zap.String("version", next.Metadata.Version))
}

func validateOverlayConfig(cfg *DynamicConfig) error {
	for domain, overlay := range cfg.Overlays {
		if overlay.HardSec < 0 {
			return fmt.Errorf("overlay %q: hardSec cannot be negative", domain)
		}
		if overlay.SoftSec < 0 || (overlay.HardSec > 0 && overlay.SoftSec > overlay.HardSec) {
			return fmt.Errorf("overlay %q: softSec must be between 0 and hardSec", domain)
		}
		if overlay.LockTTLSec < 0 || overlay.LockTTLSec > 300 {
			return fmt.Errorf("overlay %q: lockTTLSec must be between 0 and 300", domain)
		}
		if overlay.JitterPercent < 0 || overlay.JitterPercent > 100 {
			return fmt.Errorf("overlay %q: jitterPercent must be between 0 and 100", domain)
		}
	}
	return nil
}

func logOverlayDiff(logger *zap.Logger, previous, next *DynamicConfig) {
	var changes []string
	if previous.Features.EnableCircuitBreaker != next.Features.EnableCircuitBreaker {
		changes = append(changes, fmt.Sprintf("EnableCircuitBreaker: %v -> %v",
			previous.Features.EnableCircuitBreaker, next.Features.EnableCircuitBreaker))
	}
	if previous.Features.EnableTracing != next.Features.EnableTracing {
		changes = append(changes, fmt.Sprintf("EnableTracing: %v -> %v",
			previous.Features.EnableTracing, next.Features.EnableTracing))
	}
	for domain, overlay := range next.Overlays {
		if existing, ok := previous.Overlays[domain]; !ok || existing != overlay {
			changes = append(changes, fmt.Sprintf("overlay[%s] changed", domain))
		}
	}
	for domain := range previous.Overlays {
		if _, ok := next.Overlays[domain]; !ok {
			changes = append(changes, fmt.Sprintf("overlay[%s] removed", domain))
		}
	}
	if len(changes) > 0 {
		logger.Info("config watcher: overlay changes detected", zap.Strings("changes", changes))
	}
}

// OnChange registers a callback invoked (in its own goroutine) after every
// successful reload.
func (w *ConfigWatcher) OnChange(handler func(*DynamicConfig)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, handler)
}

// GetCurrent returns the most recently loaded overlay configuration.
func (w *ConfigWatcher) GetCurrent() *DynamicConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// GetFeatures returns the current feature flags.
func (w *ConfigWatcher) GetFeatures() Features {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current.Features
}

// Overlay returns the policy overlay for domain, and whether one exists.
func (w *ConfigWatcher) Overlay(domain string) (PolicyOverlay, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	overlay, ok := w.current.Overlays[domain]
	return overlay, ok
}

func loadConfigFromFile(path string) (*DynamicConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read overlay file: %w", err)
	}

	var cfg DynamicConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse overlay JSON: %w", err)
	}

	if cfg.Overlays == nil {
		cfg.Overlays = make(map[string]PolicyOverlay)
	}
	if cfg.Metadata.Version == "" {
		cfg.Metadata.Version = "1.0.0"
	}
	cfg.Metadata.UpdatedAt = time.Now()

	return &cfg, nil
}

// SaveConfig writes config to the watched path via a write-to-temp-then-
// os.Rename swap, so a concurrent reload never observes a partially
// written file.
func (w *ConfigWatcher) SaveConfig(cfg *DynamicConfig) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	cfg.Metadata.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal overlay config: %w", err)
	}

	tmpPath := w.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write temp overlay file: %w", err)
	}
	if err := os.Rename(tmpPath, w.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp overlay file into place: %w", err)
	}

	w.current = cfg
	return nil
}
