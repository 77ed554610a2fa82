package config

import (
	"context"
	"os"
	"sort"
	"sync"
	"time"

	"collabchat/internal/models"

	"github.com/sirupsen/logrus"
)

// DefaultWatchInterval is how often the watcher polls the file's mtime
const DefaultWatchInterval = 5 * time.Second

// ConfigWatcher polls a configuration file and reloads it when it changes.
// Only settings that are safe to change at runtime are picked up by
// callbacks; listeners and database handles keep their startup values.
type ConfigWatcher struct {
	configPath string
	interval   time.Duration
	logger     *logrus.Logger
	mu         sync.RWMutex
	config     *models.Config
	callbacks  []func(*models.Config)
}

// NewConfigWatcher creates a watcher polling every DefaultWatchInterval
func NewConfigWatcher(configPath string, logger *logrus.Logger) *ConfigWatcher {
	return &ConfigWatcher{
		configPath: configPath,
		interval:   DefaultWatchInterval,
		logger:     logger,
		callbacks:  make([]func(*models.Config), 0),
	}
}

// SetInterval changes the poll interval. It must be called before Start.
func (cw *ConfigWatcher) SetInterval(d time.Duration) {
	if d > 0 {
		cw.interval = d
	}
}

// Start loads the file and then polls it until ctx is done
func (cw *ConfigWatcher) Start(ctx context.Context) error {
	cfg, err := LoadConfig(cw.configPath)
	if err != nil {
		return err
	}

	cw.mu.Lock()
	cw.config = cfg
	cw.mu.Unlock()

	stat, err := os.Stat(cw.configPath)
	if err != nil {
		return err
	}
	lastModTime := stat.ModTime()

	cw.logger.WithFields(logrus.Fields{
		"path":     cw.configPath,
		"interval": cw.interval,
	}).Info("Configuration watcher started")

	ticker := time.NewTicker(cw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cw.logger.Info("Configuration watcher stopping")
			return nil

		case <-ticker.C:
			stat, err := os.Stat(cw.configPath)
			if err != nil {
				cw.logger.WithError(err).Error("Failed to stat configuration file")
				continue
			}

			if !stat.ModTime().Equal(lastModTime) {
				cw.logger.Debug("Configuration file changed")
				lastModTime = stat.ModTime()

				// Let the writer finish before reading
				time.Sleep(cw.interval / 10)
				cw.reloadConfig()
			}
		}
	}
}

// GetConfig returns the current configuration, nil before Start
func (cw *ConfigWatcher) GetConfig() *models.Config {
	cw.mu.RLock()
	defer cw.mu.RUnlock()
	return cw.config
}

// OnConfigChange registers a callback to be called when configuration changes
func (cw *ConfigWatcher) OnConfigChange(callback func(*models.Config)) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.callbacks = append(cw.callbacks, callback)
}

// reloadConfig keeps the previous configuration when the new file is invalid
func (cw *ConfigWatcher) reloadConfig() {
	newConfig, err := LoadConfig(cw.configPath)
	if err != nil {
		cw.logger.WithError(err).Error("Failed to reload configuration, keeping previous")
		return
	}

	cw.mu.Lock()
	oldConfig := cw.config
	cw.config = newConfig
	callbacks := make([]func(*models.Config), len(cw.callbacks))
	copy(callbacks, cw.callbacks)
	cw.mu.Unlock()

	cw.logger.Info("Configuration reloaded successfully")

	for _, callback := range callbacks {
		go func(cb func(*models.Config)) {
			defer func() {
				if r := recover(); r != nil {
					cw.logger.WithField("panic", r).Error("Config change callback panicked")
				}
			}()
			cb(newConfig)
		}(callback)
	}

	cw.logConfigChanges(oldConfig, newConfig)
}

func (cw *ConfigWatcher) logConfigChanges(old, new *models.Config) {
	if old == nil {
		return
	}

	if old.LogLevel != new.LogLevel {
		cw.logger.WithFields(logrus.Fields{
			"old": old.LogLevel,
			"new": new.LogLevel,
		}).Info("Log level changed")
	}

	if old.Gateway.EventRateLimit != new.Gateway.EventRateLimit ||
		old.Gateway.EventRateWindowSec != new.Gateway.EventRateWindowSec {
		cw.logger.WithFields(logrus.Fields{
			"old_limit":      old.Gateway.EventRateLimit,
			"new_limit":      new.Gateway.EventRateLimit,
			"old_window_sec": old.Gateway.EventRateWindowSec,
			"new_window_sec": new.Gateway.EventRateWindowSec,
		}).Info("Event rate limit changed")
	}

	if old.Server.RateLimitPerMinute != new.Server.RateLimitPerMinute {
		cw.logger.WithFields(logrus.Fields{
			"old": old.Server.RateLimitPerMinute,
			"new": new.Server.RateLimitPerMinute,
		}).Info("HTTP rate limit changed")
	}

	if changed := changedFeatures(old.Features, new.Features); len(changed) > 0 {
		cw.logger.WithField("features", changed).Info("Feature flags changed")
	}

	if old.Server.Port != new.Server.Port || old.Database != new.Database {
		cw.logger.Warn("Server and database settings changed; restart to apply")
	}
}

func changedFeatures(old, new map[string]bool) []string {
	var changed []string
	for name, enabled := range new {
		if prev, ok := old[name]; !ok || prev != enabled {
			changed = append(changed, name)
		}
	}
	for name := range old {
		if _, ok := new[name]; !ok {
			changed = append(changed, name)
		}
	}
	sort.Strings(changed)
	return changed
}
