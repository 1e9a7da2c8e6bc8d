// Package app wires configuration, storage and generation into a working
// session.
package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"storyloom/pkg/types"
)

// ErrInvalidConfig marks a config file that exists but cannot be parsed.
// A missing file is not an error; LoadGlobalConfig falls back to defaults.
var ErrInvalidConfig = errors.New("invalid configuration")

// envOverrides are applied on top of the config file; a set environment
// variable always wins.
type envOverrides struct {
	StoragePath   string `env:"STORYLOOM_STORAGE_PATH"`
	LibraryPath   string `env:"STORYLOOM_LIBRARY_PATH"`
	MongoURI      string `env:"STORYLOOM_MONGO_URI"`
	MongoDatabase string `env:"STORYLOOM_MONGO_DATABASE"`
	LogLevel      string `env:"STORYLOOM_LOG_LEVEL"`
	Provider      string `env:"STORYLOOM_PROVIDER"`
	OpenAIKey     string `env:"OPENAI_API_KEY"`
	GeminiKey     string `env:"GEMINI_API_KEY"`
}

// ConfigManager handles the global configuration file.
type ConfigManager struct {
	globalConfigPath string
	globalConfig     *types.GlobalConfig
}

// NewConfigManager creates a new configuration manager.
func NewConfigManager() (*ConfigManager, error) {
	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	return &ConfigManager{
		globalConfigPath: filepath.Join(configDir, "config.yaml"),
	}, nil
}

// NewConfigManagerAt creates a manager over an explicit config file path.
func NewConfigManagerAt(path string) *ConfigManager {
	return &ConfigManager{globalConfigPath: path}
}

// getConfigDir returns the configuration directory path.
func getConfigDir() (string, error) {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "storyloom"), nil
}

// LoadGlobalConfig loads the global configuration, falling back to defaults
// when no file exists and applying environment overrides last.
func (cm *ConfigManager) LoadGlobalConfig() (*types.GlobalConfig, error) {
	if cm.globalConfig != nil {
		return cm.globalConfig, nil
	}

	config := types.DefaultGlobalConfig()

	data, err := os.ReadFile(cm.globalConfigPath)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read global config: %w", err)
	}
	if err == nil {
		config = &types.GlobalConfig{}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		if config.Providers == nil {
			config.Providers = make(map[string]*types.ProviderConfig)
		}
	}

	// Expand ${ENV_VAR} references in API keys
	for name, provider := range config.Providers {
		if strings.HasPrefix(provider.APIKey, "${") && strings.HasSuffix(provider.APIKey, "}") {
			envVar := provider.APIKey[2 : len(provider.APIKey)-1]
			provider.APIKey = os.Getenv(envVar)
			config.Providers[name] = provider
		}
	}

	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}

	config.Storage.Path = expandPath(config.Storage.Path)
	config.Storage.LibraryPath = expandPath(config.Storage.LibraryPath)

	cm.globalConfig = config
	return cm.globalConfig, nil
}

// applyEnvOverrides layers environment variables over the loaded config.
func applyEnvOverrides(config *types.GlobalConfig) error {
	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return fmt.Errorf("failed to parse environment overrides: %w", err)
	}

	if overrides.StoragePath != "" {
		config.Storage.Path = overrides.StoragePath
	}
	if overrides.LibraryPath != "" {
		config.Storage.LibraryPath = overrides.LibraryPath
	}
	if overrides.MongoURI != "" {
		config.Storage.MongoURI = overrides.MongoURI
	}
	if overrides.MongoDatabase != "" {
		config.Storage.MongoDatabase = overrides.MongoDatabase
	}
	if overrides.LogLevel != "" {
		config.Logging.Level = overrides.LogLevel
	}
	if overrides.Provider != "" {
		config.Defaults.Provider = overrides.Provider
	}
	if overrides.OpenAIKey != "" {
		setProviderKey(config, "openai", overrides.OpenAIKey)
	}
	if overrides.GeminiKey != "" {
		setProviderKey(config, "gemini", overrides.GeminiKey)
	}
	return nil
}

func setProviderKey(config *types.GlobalConfig, name, key string) {
	provider, ok := config.Providers[name]
	if !ok {
		provider = &types.ProviderConfig{}
		config.Providers[name] = provider
	}
	provider.APIKey = key
}

// SaveGlobalConfig saves the global configuration.
func (cm *ConfigManager) SaveGlobalConfig(config *types.GlobalConfig) error {
	dir := filepath.Dir(cm.globalConfigPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := atomicWrite(cm.globalConfigPath, data); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	cm.globalConfig = config
	return nil
}

// GetProviderConfig returns the configuration for a specific provider.
func (cm *ConfigManager) GetProviderConfig(providerName string) (*types.ProviderConfig, error) {
	config, err := cm.LoadGlobalConfig()
	if err != nil {
		return nil, err
	}

	provider, ok := config.Providers[providerName]
	if !ok {
		return nil, fmt.Errorf("provider %q not configured", providerName)
	}

	return provider, nil
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// atomicWrite writes data to a file atomically using temp file + rename.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return err
	}

	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return err
	}

	if err := tmpFile.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}

	tmpPath = ""
	return nil
}
