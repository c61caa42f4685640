package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"cachecore/domain/policy"
)

// DynamicConfigManager manages runtime configuration with hot-reload
// support: a static Config loaded once from the environment, layered with
// a DynamicConfig overlay file that can change a domain's policy or a
// feature flag without a restart.
type DynamicConfigManager struct {
	staticConfig *Config
	watcher      *ConfigWatcher
	store        ConfigStore

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.RWMutex
	callbacks []ConfigChangeCallback

	logger *zap.Logger
}

// ConfigChangeCallback is called when configuration changes.
type ConfigChangeCallback func(oldConfig, newConfig *DynamicConfig)

// ConfigStore is an alternate persistence backend for DynamicConfig
// (e.g. a DynamoDB-backed store), for deployments that don't want to
// manage an overlay file on disk.
type ConfigStore interface {
	Load(ctx context.Context) (*DynamicConfig, error)
	Save(ctx context.Context, config *DynamicConfig) error
	Watch(ctx context.Context, onChange func(*DynamicConfig)) error
}

// NewDynamicConfigManager creates a new dynamic configuration manager. If
// configPath is empty, the manager operates on staticConfig alone with no
// hot reload.
func NewDynamicConfigManager(staticConfig *Config, configPath string, logger *zap.Logger) (*DynamicConfigManager, error) {
	ctx, cancel := context.WithCancel(context.Background())

	var watcher *ConfigWatcher
	if configPath != "" {
		w, err := NewConfigWatcher(configPath, logger)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to create config watcher: %w", err)
		}
		watcher = w
	}

	manager := &DynamicConfigManager{
		staticConfig: staticConfig,
		watcher:      watcher,
		ctx:          ctx,
		cancel:       cancel,
		callbacks:    make([]ConfigChangeCallback, 0),
		logger:       logger,
	}

	if watcher != nil {
		watcher.OnChange(func(newConfig *DynamicConfig) {
			manager.handleConfigChange(newConfig)
		})
	}

	return manager, nil
}

// Start begins watching for configuration changes.
func (m *DynamicConfigManager) Start() error {
	if m.watcher != nil {
		m.watcher.Start()
	}
	go m.healthCheckLoop()
	m.logger.Info("dynamic configuration manager started")
	return nil
}

// Stop stops the configuration manager.
func (m *DynamicConfigManager) Stop() {
	m.cancel()
	if m.watcher != nil {
		m.watcher.Stop()
	}
	m.logger.Info("dynamic configuration manager stopped")
}

func (m *DynamicConfigManager) healthCheckLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.performHealthCheck()
		}
	}
}

func (m *DynamicConfigManager) performHealthCheck() {
	if m.watcher == nil {
		return
	}
	current := m.watcher.GetCurrent()
	if err := validateOverlayConfig(current); err != nil {
		m.logger.Error("configuration health check failed", zap.Error(err))
	}
}

func (m *DynamicConfigManager) handleConfigChange(newConfig *DynamicConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	oldEnableCB := m.staticConfig.EnableCircuitBreaker
	m.staticConfig.EnableCircuitBreaker = newConfig.Features.EnableCircuitBreaker
	m.staticConfig.EnableTracing = newConfig.Features.EnableTracing

	if oldEnableCB != newConfig.Features.EnableCircuitBreaker {
		m.logger.Info("circuit breaker feature toggled",
			zap.Bool("enabled", newConfig.Features.EnableCircuitBreaker),
		)
	}

	for _, callback := range m.callbacks {
		go callback(nil, newConfig)
	}
}

// OnChange registers a callback for configuration changes.
func (m *DynamicConfigManager) OnChange(callback ConfigChangeCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, callback)
}

// GetConfig returns the current merged static configuration.
func (m *DynamicConfigManager) GetConfig() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.staticConfig
}

// GetDynamicConfig returns the current dynamic configuration, synthesizing
// an empty one from static defaults if no watcher is configured.
func (m *DynamicConfigManager) GetDynamicConfig() *DynamicConfig {
	if m.watcher == nil {
		return &DynamicConfig{
			Features: Features{
				EnableCircuitBreaker: m.staticConfig.EnableCircuitBreaker,
				EnableTracing:        m.staticConfig.EnableTracing,
			},
			Overlays: map[string]PolicyOverlay{},
		}
	}
	return m.watcher.GetCurrent()
}

// IsFeatureEnabled checks if a named feature is enabled.
func (m *DynamicConfigManager) IsFeatureEnabled(feature string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	switch feature {
	case "circuit_breaker":
		return m.staticConfig.EnableCircuitBreaker
	case "tracing":
		return m.staticConfig.EnableTracing
	case "metrics":
		return m.staticConfig.EnableMetrics
	default:
		return false
	}
}

// ResolvePolicy merges the static PolicyDefaults with domain's overlay (if
// any) and returns a validated domain/policy.GetPolicy, ready to pass to
// an Engine.Get call.
func (m *DynamicConfigManager) ResolvePolicy(domain string, refreshMode policy.RefreshMode, failMode policy.FailMode) (policy.GetPolicy, error) {
	m.mu.RLock()
	defaults := m.staticConfig.Policy
	m.mu.RUnlock()

	hardSec, softSec := defaults.HardSec, defaults.SoftSec
	tier4Pause, tier4Max := defaults.Tier4PauseMs, defaults.Tier4MaxAttempts
	lockTTL := defaults.LockTTLSec

	if m.watcher != nil {
		if overlay, ok := m.watcher.Overlay(domain); ok {
			if overlay.HardSec > 0 {
				hardSec = overlay.HardSec
			}
			if overlay.SoftSec > 0 {
				softSec = overlay.SoftSec
			}
			if overlay.Tier4PauseMs > 0 {
				tier4Pause = overlay.Tier4PauseMs
			}
			if overlay.Tier4MaxAttempts > 0 {
				tier4Max = overlay.Tier4MaxAttempts
			}
			if overlay.LockTTLSec > 0 {
				lockTTL = overlay.LockTTLSec
			}
		}
	}

	p, err := policy.NewGetPolicy(hardSec, softSec, refreshMode, failMode)
	if err != nil {
		return policy.GetPolicy{}, err
	}
	return p.WithTier4(tier4Pause, tier4Max).WithLockTTL(lockTTL), nil
}
