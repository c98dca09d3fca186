package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the YAML file name looked up in the config dir.
const DefaultConfigFile = "virtualpytest.yaml"

// Initialize loads, resolves, and validates configuration for one binary.
//
// Steps performed:
//  1. Load .env (best effort; real environment wins)
//  2. Parse virtualpytest.yaml from configDir (optional file)
//  3. Overlay environment variables (SERVER_URL, SERVER_PORT, HOST_NAME)
//  4. Apply built-in execution defaults for unset values
//  5. Validate mandatory values per mode and return
//
// mode is "server", "host", or "runner"; it decides which variables are
// mandatory.
func Initialize(configDir, mode string) (*Config, error) {
	log := slog.With("config_dir", configDir, "mode", mode)
	log.Info("Initializing configuration")

	if err := godotenv.Load(); err != nil {
		log.Debug("No .env file loaded", "error", err)
	}

	cfg, err := loadYAMLConfig(configDir)
	if err != nil {
		return nil, err
	}

	overlayEnv(cfg)
	applyDefaults(cfg)

	if err := validate(cfg, mode); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("Configuration initialized successfully",
		"server_port", cfg.Server.Port,
		"host_name", cfg.Host.Name,
		"devices", len(cfg.Host.Devices))
	return cfg, nil
}

func loadYAMLConfig(configDir string) (*Config, error) {
	cfg := &Config{}
	path := filepath.Join(configDir, DefaultConfigFile)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// The YAML file is optional; env alone can configure a binary.
			return cfg, nil
		}
		return nil, NewLoadError(DefaultConfigFile, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, NewLoadError(DefaultConfigFile, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}
	return cfg, nil
}

// overlayEnv applies environment variables over YAML values. Env wins.
func overlayEnv(cfg *Config) {
	if cfg.Server == nil {
		cfg.Server = &ServerConfig{}
	}
	if cfg.Host == nil {
		cfg.Host = &HostConfig{}
	}
	if v := os.Getenv("SERVER_URL"); v != "" {
		cfg.Server.URL = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("HOST_NAME"); v != "" {
		cfg.Host.Name = v
	}
	if v := os.Getenv("HOST_PORT"); v != "" {
		cfg.Host.Port = v
	}
	if v := os.Getenv("TEAM_ID"); v != "" {
		cfg.TeamID = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Execution == nil {
		cfg.Execution = DefaultExecutionConfig()
		return
	}
	def := DefaultExecutionConfig()
	if cfg.Execution.ActionTimeout == 0 {
		cfg.Execution.ActionTimeout = def.ActionTimeout
	}
	if cfg.Execution.ScriptTimeout == 0 {
		cfg.Execution.ScriptTimeout = def.ScriptTimeout
	}
	if cfg.Execution.TaskRetention == 0 {
		cfg.Execution.TaskRetention = def.TaskRetention
	}
	if cfg.Execution.CacheMaxAge == 0 {
		cfg.Execution.CacheMaxAge = def.CacheMaxAge
	}
	if cfg.Execution.LockMaxAge == 0 {
		cfg.Execution.LockMaxAge = def.LockMaxAge
	}
	if cfg.Execution.CleanupInterval == 0 {
		cfg.Execution.CleanupInterval = def.CleanupInterval
	}
}

// validate enforces the mandatory variables for each mode. The core treats
// the values as opaque; only presence is checked.
func validate(cfg *Config, mode string) error {
	switch mode {
	case "server":
		if cfg.Server.Port == "" {
			return fmt.Errorf("%w: SERVER_PORT", ErrMissingEnvVar)
		}
	case "host", "runner":
		if cfg.Host.Name == "" {
			return fmt.Errorf("%w: HOST_NAME", ErrMissingEnvVar)
		}
		if cfg.Server.URL == "" {
			return fmt.Errorf("%w: SERVER_URL", ErrMissingEnvVar)
		}
	default:
		return fmt.Errorf("unknown config mode %q", mode)
	}
	return nil
}
