// Package config loads virtualpytest.yaml plus environment variables into
// typed configuration for the server, host, and runner binaries. Missing
// mandatory values fail fast at startup.
package config

import (
	"time"

	"github.com/angelstreet/virtualpytest-sub008/pkg/models"
)

// ServerConfig configures the central coordinator.
type ServerConfig struct {
	// Port the server HTTP surface listens on. From SERVER_PORT.
	Port string `yaml:"port"`

	// URL is the externally reachable base URL hosts use for callbacks.
	// From SERVER_URL.
	URL string `yaml:"url"`

	// Hosts maps host name to its base URL for request proxying.
	Hosts map[string]string `yaml:"hosts"`
}

// HostConfig configures a device host.
type HostConfig struct {
	// Name identifies this host to the server. From HOST_NAME.
	Name string `yaml:"name"`

	// Port the host HTTP surface listens on.
	Port string `yaml:"port"`

	// Devices attached to this host.
	Devices []models.Device `yaml:"devices"`
}

// ExecutionConfig contains the execution timeouts and retention knobs.
type ExecutionConfig struct {
	// ActionTimeout bounds one action or verification against the host.
	ActionTimeout time.Duration `yaml:"action_timeout"`

	// ScriptTimeout bounds one harness subprocess.
	ScriptTimeout time.Duration `yaml:"script_timeout"`

	// TaskRetention is how long completed task records are kept.
	TaskRetention time.Duration `yaml:"task_retention"`

	// CacheMaxAge is the navigation cache entry age limit.
	CacheMaxAge time.Duration `yaml:"cache_max_age"`

	// LockMaxAge is the stale device lock expiry threshold.
	LockMaxAge time.Duration `yaml:"lock_max_age"`

	// CleanupInterval is how often the cleanup service sweeps.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`

	// StrictVerificationFilter rejects whole verification batches on any
	// invalid item instead of silently dropping it.
	StrictVerificationFilter bool `yaml:"strict_verification_filter"`
}

// DefaultExecutionConfig returns the built-in execution defaults.
func DefaultExecutionConfig() *ExecutionConfig {
	return &ExecutionConfig{
		ActionTimeout:   60 * time.Second,
		ScriptTimeout:   300 * time.Second,
		TaskRetention:   1 * time.Hour,
		CacheMaxAge:     24 * time.Hour,
		LockMaxAge:      30 * time.Minute,
		CleanupInterval: 10 * time.Minute,
	}
}

// Config is the complete loaded configuration.
type Config struct {
	Server    *ServerConfig    `yaml:"server"`
	Host      *HostConfig      `yaml:"host"`
	Execution *ExecutionConfig `yaml:"execution"`

	// TeamID scopes every store operation of this deployment.
	TeamID string `yaml:"team_id"`
}
