package features

import (
	"sort"
	"sync"
	"time"
)

// Flag represents a feature flag with metadata
type Flag struct {
	Name        string    `json:"name"`
	Enabled     bool      `json:"enabled"`
	Description string    `json:"description"`
	UpdatedAt   time.Time `json:"updated_at"`
	Tags        []string  `json:"tags,omitempty"`
}

// FlagManager manages feature flags with thread-safe operations
type FlagManager struct {
	flags map[string]*Flag
	mu    sync.RWMutex
}

// NewFlagManager returns a manager holding DefaultFlags
func NewFlagManager() *FlagManager {
	fm := &FlagManager{
		flags: make(map[string]*Flag),
	}
	fm.InitializeDefaults()
	return fm
}

const (
	// Delivery
	FlagOfflinePush = "offline_push"

	// Gateway
	FlagPresenceTracking  = "presence_tracking"
	FlagEventRateLimiting = "event_rate_limiting"

	// Security
	FlagDeviceTokenEncryption = "device_token_encryption"

	// Storage
	FlagExpiredMuteCleanup = "expired_mute_cleanup"

	// Observability
	FlagDetailedLogging    = "detailed_logging"
	FlagDistributedTracing = "distributed_tracing"
)

// FlagDefinition contains metadata about a flag
type FlagDefinition struct {
	Name         string
	Description  string
	DefaultValue bool
	Tags         []string
}

// DefaultFlags defines all available feature flags with their defaults
var DefaultFlags = []FlagDefinition{
	{FlagOfflinePush, "Send push notifications to offline recipients", true, []string{"delivery"}},
	{FlagPresenceTracking, "Record last seen on every authenticated request and event", true, []string{"gateway", "presence"}},
	{FlagEventRateLimiting, "Limit realtime events per user", true, []string{"gateway", "security"}},
	{FlagDeviceTokenEncryption, "Encrypt device tokens and contact phones at rest", false, []string{"security"}},
	{FlagExpiredMuteCleanup, "Periodically delete mutes that have expired", false, []string{"storage"}},
	{FlagDetailedLogging, "Log request and response bodies", false, []string{"observability"}},
	{FlagDistributedTracing, "Enable OpenTelemetry distributed tracing", true, []string{"observability"}},
}

// InitializeDefaults adds any missing default flags
func (fm *FlagManager) InitializeDefaults() {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	now := time.Now()
	for _, def := range DefaultFlags {
		if _, exists := fm.flags[def.Name]; !exists {
			fm.flags[def.Name] = &Flag{
				Name:        def.Name,
				Enabled:     def.DefaultValue,
				Description: def.Description,
				UpdatedAt:   now,
				Tags:        def.Tags,
			}
		}
	}
}

// IsEnabled checks if a feature flag is enabled. Unknown flags are disabled.
func (fm *FlagManager) IsEnabled(flagName string) bool {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	flag, exists := fm.flags[flagName]
	if !exists {
		return false
	}

	return flag.Enabled
}

// Enable enables a feature flag
func (fm *FlagManager) Enable(flagName string) error {
	return fm.set(flagName, true)
}

// Disable disables a feature flag
func (fm *FlagManager) Disable(flagName string) error {
	return fm.set(flagName, false)
}

func (fm *FlagManager) set(flagName string, enabled bool) error {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	flag, exists := fm.flags[flagName]
	if !exists {
		return ErrFlagNotFound{Name: flagName}
	}

	flag.Enabled = enabled
	flag.UpdatedAt = time.Now()
	return nil
}

// ApplyOverrides sets the flags named in overrides, typically the features
// section of the configuration. Unknown names are returned, not created.
func (fm *FlagManager) ApplyOverrides(overrides map[string]bool) []string {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	var unknown []string
	now := time.Now()
	for name, enabled := range overrides {
		flag, exists := fm.flags[name]
		if !exists {
			unknown = append(unknown, name)
			continue
		}
		flag.Enabled = enabled
		flag.UpdatedAt = now
	}
	sort.Strings(unknown)
	return unknown
}

// Snapshot returns flag name to enabled state, used by the health endpoint
func (fm *FlagManager) Snapshot() map[string]bool {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	snapshot := make(map[string]bool, len(fm.flags))
	for name, flag := range fm.flags {
		snapshot[name] = flag.Enabled
	}
	return snapshot
}

type ErrFlagNotFound struct {
	Name string
}

func (e ErrFlagNotFound) Error() string {
	return "feature flag not found: " + e.Name
}
