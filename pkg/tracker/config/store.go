package config

import (
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// SettingsUpdate is a partial settings change from the UI surface. Nil
// fields are left untouched.
type SettingsUpdate struct {
	CollectorURL      *string
	Credential        *string
	UserID            *string
	IdleThreshold     *time.Duration
	HeartbeatInterval *time.Duration
	DeliveryTimeout   *time.Duration
}

// Store owns the live configuration. Reads return copies; updates are
// validated, applied atomically, and persisted back to the config file when
// a path was given.
type Store struct {
	mu   sync.RWMutex
	cfg  Config
	path string
	log  logr.Logger
}

// NewStore creates a settings store seeded from cfg. path may be empty, in
// which case updates are not persisted (tests, ephemeral runs).
func NewStore(cfg *Config, path string, log logr.Logger) *Store {
	return &Store{
		cfg:  *cfg,
		path: path,
		log:  log.WithName("settings"),
	}
}

// Snapshot returns a copy of the full configuration.
func (s *Store) Snapshot() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Collector returns the current collector configuration.
func (s *Store) Collector() CollectorConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Collector
}

// Tracking returns the current tracking configuration.
func (s *Store) Tracking() TrackingConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Tracking
}

// Apply merges a partial update into the configuration, validates the
// result, persists it, and returns the new snapshot. The previous
// configuration is kept on validation failure.
func (s *Store) Apply(update SettingsUpdate) (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg
	if update.CollectorURL != nil {
		next.Collector.URL = *update.CollectorURL
	}
	if update.Credential != nil {
		next.Collector.Credential = *update.Credential
	}
	if update.DeliveryTimeout != nil {
		next.Collector.DeliveryTimeout = *update.DeliveryTimeout
	}
	if update.UserID != nil {
		next.Tracking.UserID = *update.UserID
	}
	if update.IdleThreshold != nil {
		next.Tracking.IdleThreshold = *update.IdleThreshold
	}
	if update.HeartbeatInterval != nil {
		next.Tracking.HeartbeatInterval = *update.HeartbeatInterval
	}

	if err := next.Validate(); err != nil {
		return s.cfg, err
	}

	s.cfg = next

	if s.path != "" {
		if err := SaveConfig(&next, s.path); err != nil {
			// Keep the in-memory update; a persistence failure should not
			// revert live behavior.
			s.log.Error(err, "failed to persist settings", "path", s.path)
		}
	}

	s.log.V(1).Info("settings updated",
		"collectorUrl", next.Collector.URL,
		"userId", next.Tracking.UserID,
		"idleThreshold", next.Tracking.IdleThreshold,
		"heartbeatInterval", next.Tracking.HeartbeatInterval)

	return next, nil
}
