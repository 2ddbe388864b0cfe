package client

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// ConfigManager handles persisting catchhook configuration
type ConfigManager struct {
	mu       sync.Mutex
	filePath string
}

// FileConfig represents the YAML structure. Keys match the viper keys and
// the CATCHHOOK_* environment variables.
type FileConfig struct {
	// Client side (watch, dashboard)
	Server        string `yaml:"server"`
	Interval      string `yaml:"interval,omitempty"`
	DashboardPort int    `yaml:"dashboard_port,omitempty"`
	TLSInsecure   bool   `yaml:"tls_insecure,omitempty"`
	TLSCert       string `yaml:"tls_cert,omitempty"`
	TLSKey        string `yaml:"tls_key,omitempty"`
	TLSCA         string `yaml:"tls_ca,omitempty"`

	// Capture server (serve)
	Port        int    `yaml:"port,omitempty"`
	Data        string `yaml:"data,omitempty"`
	MaxReqs     int    `yaml:"max_reqs,omitempty"`
	MaxBodySize int64  `yaml:"max_body_size,omitempty"`
	RateLimit   int    `yaml:"rate_limit,omitempty"`
	RateBurst   int    `yaml:"rate_burst,omitempty"`
	MetricsPort int    `yaml:"metrics_port,omitempty"`
	Domain      string `yaml:"domain,omitempty"`
	Email       string `yaml:"email,omitempty"`

	LogLevel string `yaml:"log_level,omitempty"`
}

// DefaultFileConfig returns the values written by `catchhook config init`
func DefaultFileConfig() *FileConfig {
	return &FileConfig{
		Server:        "http://127.0.0.1:43999",
		Interval:      DefaultInterval.String(),
		DashboardPort: 4040,
		Port:          43999,
		Data:          "./catchhook-data",
		MaxReqs:       10000,
		LogLevel:      "info",
	}
}

// NewConfigManager creates a config manager
func NewConfigManager(filePath string) *ConfigManager {
	return &ConfigManager{filePath: filePath}
}

// DefaultConfigPath returns the default config file path
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".catchhook", "catchhook.yaml")
}

// FilePath returns the config file path
func (cm *ConfigManager) FilePath() string {
	return cm.filePath
}

// Load reads the config file
func (cm *ConfigManager) Load() (*FileConfig, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	return cm.loadLocked()
}

// Save writes the config file
func (cm *ConfigManager) Save(cfg *FileConfig) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	return cm.saveLocked(cfg)
}

// Init writes the default config unless a file already exists. It reports
// whether a file was written.
func (cm *ConfigManager) Init(overwrite bool) (bool, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if !overwrite {
		if _, err := os.Stat(cm.filePath); err == nil {
			return false, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return false, fmt.Errorf("failed to stat config: %w", err)
		}
	}

	if err := cm.saveLocked(DefaultFileConfig()); err != nil {
		return false, err
	}
	return true, nil
}

func (cm *ConfigManager) saveLocked(cfg *FileConfig) error {
	// Ensure directory exists
	dir := filepath.Dir(cm.filePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write atomically using temp file + rename
	tmpPath := cm.filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if err := os.Rename(tmpPath, cm.filePath); err != nil {
		os.Remove(tmpPath) // Clean up
		return fmt.Errorf("failed to save config: %w", err)
	}

	return nil
}

func (cm *ConfigManager) loadLocked() (*FileConfig, error) {
	data, err := os.ReadFile(cm.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, nil
}
