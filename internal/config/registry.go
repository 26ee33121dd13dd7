package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	appName    = "appliancectl"
	configFile = "config.yaml"

	// ConfigPathEnvVar overrides the configuration file location.
	ConfigPathEnvVar = "APPLIANCECTL_CONFIG"
)

var (
	// Mutex for thread-safe file operations
	fileMutex sync.Mutex

	validate = validator.New(validator.WithRequiredStructEnabled())
)

// GetConfigDir returns the per-user configuration directory:
// %LOCALAPPDATA%\appliancectl on Windows, $XDG_CONFIG_HOME/appliancectl on
// Linux when set, and ~/.config/appliancectl otherwise.
func GetConfigDir() (string, error) {
	if runtime.GOOS == "windows" {
		base := os.Getenv("LOCALAPPDATA")
		if base == "" {
			profile := os.Getenv("USERPROFILE")
			if profile == "" {
				return "", errors.New("cannot determine user profile directory (LOCALAPPDATA and USERPROFILE not set)")
			}
			base = filepath.Join(profile, "AppData", "Local")
		}
		return filepath.Join(base, appName), nil
	}

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" && runtime.GOOS != "darwin" {
		return filepath.Join(xdg, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", appName), nil
}

// GetConfigPath returns the full path to the configuration file.
// APPLIANCECTL_CONFIG takes precedence over the platform location.
func GetConfigPath() (string, error) {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		return p, nil
	}
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, configFile), nil
}

// LoadRegistry loads the configuration registry from the default location.
// If the file doesn't exist, returns a new default registry.
func LoadRegistry() (*Registry, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get config path: %w", err)
	}
	return Load(configPath)
}

// Load reads and validates the registry at configPath.
// If the file doesn't exist, returns a new default registry.
func Load(configPath string) (*Registry, error) {
	fileMutex.Lock()
	defer fileMutex.Unlock()

	data, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		return NewRegistry(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var registry Registry
	if err := yaml.Unmarshal(data, &registry); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if registry.Version != 1 {
		return nil, fmt.Errorf("unsupported config version: %d (expected 1)", registry.Version)
	}

	if err := registry.Validate(); err != nil {
		return nil, err
	}

	if registry.Profiles == nil {
		registry.Profiles = make(map[string]*Profile)
	}
	if registry.Preferences == nil {
		registry.Preferences = defaultPreferences()
	}

	return &registry, nil
}

// Validate checks every profile and retry preference.
func (r *Registry) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if r.DefaultProfile != "" && r.Profiles[r.DefaultProfile] == nil {
		return fmt.Errorf("invalid config: default profile %q does not exist", r.DefaultProfile)
	}
	return nil
}

// Save saves the registry to the default location.
func (r *Registry) Save() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	return r.SaveTo(configPath)
}

// SaveTo writes the registry to configPath.
// Performs an atomic write to prevent corruption on crash.
func (r *Registry) SaveTo(configPath string) error {
	if err := r.Validate(); err != nil {
		return err
	}

	fileMutex.Lock()
	defer fileMutex.Unlock()

	// User-only permissions (0700)
	if err := os.MkdirAll(filepath.Dir(configPath), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# appliancectl Configuration File
# This file stores connection profiles and retry preferences.
#
# Security Note: appliance passwords are NEVER stored in this file.
# Use --password, APPLIANCECTL_PASSWORD or the interactive prompt.
#
# Location: ` + configPath + `

`)
	data = append(header, data...)

	tmpPath := configPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tmpPath, configPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config file: %w", err)
	}

	return nil
}
