package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"teamrun/log"
)

const ConfigFileName = "config.json"

// GetConfigDir returns the path to the application's configuration directory
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get config home directory: %w", err)
	}
	return filepath.Join(homeDir, ".teamrun"), nil
}

// Config represents the application configuration
type Config struct {
	// DefaultPolicyProfile labels the policy profile stamped into checkpoints.
	DefaultPolicyProfile string `json:"default_policy_profile"`
	// MaxClaimBatch caps how many ready tasks a worker may claim per call.
	MaxClaimBatch int `json:"max_claim_batch"`
	// RetainLastEvents bounds the event tail carried forward by retention.
	RetainLastEvents int `json:"retain_last_events"`
	// HeartbeatStaleAfterSec is how old a heartbeat may be before the
	// stale-worker policy reports it.
	HeartbeatStaleAfterSec int `json:"heartbeat_stale_after_sec"`
	// CheckpointDir is where run checkpoints are written.
	CheckpointDir string `json:"checkpoint_dir"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	dir, err := GetConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return &Config{
		DefaultPolicyProfile:   "standard",
		MaxClaimBatch:          3,
		RetainLastEvents:       200,
		HeartbeatStaleAfterSec: 300,
		CheckpointDir:          filepath.Join(dir, "checkpoints"),
	}
}

// LoadConfig loads the configuration from disk. If it cannot be done, we return the default configuration.
func LoadConfig() *Config {
	configDir, err := GetConfigDir()
	if err != nil {
		log.ErrorLog.Printf("failed to get config directory: %v", err)
		return DefaultConfig()
	}

	configPath := filepath.Join(configDir, ConfigFileName)
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Create and save default config if file doesn't exist
			defaultCfg := DefaultConfig()
			if saveErr := SaveConfig(defaultCfg); saveErr != nil {
				log.WarningLog.Printf("failed to save default config: %v", saveErr)
			}
			return defaultCfg
		}

		log.WarningLog.Printf("failed to get config file: %v", err)
		return DefaultConfig()
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		log.ErrorLog.Printf("failed to parse config file: %v", err)
		return DefaultConfig()
	}

	return &config
}

// SaveConfig saves the configuration to disk
func SaveConfig(config *Config) error {
	configDir, err := GetConfigDir()
	if err != nil {
		return fmt.Errorf("failed to get config directory: %w", err)
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	configPath := filepath.Join(configDir, ConfigFileName)
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
