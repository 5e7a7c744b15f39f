package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LocalConfigFile is looked up in the working directory.
const LocalConfigFile = ".onionsentry.yaml"

// UserConfigFile is looked up in the XDG config directory.
const UserConfigFile = "config.yaml"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// LoadConfigFile overlays the YAML file at path onto cfg.
// Keys missing from the file keep their current values. Durations use
// Go syntax ("10s", "5m").
func LoadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return ErrConfigNotFound
		}
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	cfg.ConfigFilePath = path
	return nil
}

// FindConfigFile returns the config file to load, or "" if none exists.
// Search order:
//  1. configPath, when given
//  2. ./.onionsentry.yaml
//  3. <XDG config>/onionsentry/config.yaml
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	if cwd, err := os.Getwd(); err == nil {
		local := filepath.Join(cwd, LocalConfigFile)
		if _, err := os.Stat(local); err == nil {
			return local
		}
	}

	user := filepath.Join(XDGConfigDir(), UserConfigFile)
	if _, err := os.Stat(user); err == nil {
		return user
	}
	return ""
}
