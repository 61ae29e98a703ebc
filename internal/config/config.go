package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"medallion/internal/common"
	"medallion/pkg/models"
)

func GetConfigPath() string {
	if configPath := os.Getenv("MEDALLION_CONFIG"); configPath != "" {
		return filepath.Dir(configPath)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".medallion")
}

func GetConfigFile() string {
	if configFile := os.Getenv("MEDALLION_CONFIG"); configFile != "" {
		cleaned, err := common.CleanPath(configFile)
		if err != nil {
			return filepath.Join(GetConfigPath(), "config.yaml")
		}
		return cleaned
	}
	return filepath.Join(GetConfigPath(), "config.yaml")
}

// Load reads the configuration, decrypting any ENC[...] passwords.
func Load() (*models.Config, error) {
	configFile := GetConfigFile()

	cleanedPath, err := common.CleanPath(configFile)
	if err != nil {
		return nil, fmt.Errorf("invalid config file path: %w", err)
	}

	if _, err := os.Stat(cleanedPath); os.IsNotExist(err) {
		return &models.Config{}, nil
	}

	data, err := os.ReadFile(cleanedPath) // #nosec G304 - path is validated
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config models.Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := DecryptPasswords(&config); err != nil {
		return nil, fmt.Errorf("failed to decrypt passwords: %w", err)
	}

	return &config, nil
}

// Save writes the configuration, encrypting plaintext passwords first.
func Save(config *models.Config) error {
	configPath := GetConfigPath()
	if err := os.MkdirAll(configPath, common.DirPermissionSecure); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := EncryptPasswords(config); err != nil {
		return fmt.Errorf("failed to encrypt passwords: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(GetConfigFile(), data, common.FilePermissionSecure); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func Exists() bool {
	_, err := os.Stat(GetConfigFile())
	return err == nil
}

// ApplyDefaults fills in the defaults the reconciliation engine relies on.
func ApplyDefaults(config *models.Config) {
	r := &config.Reconciliation
	if len(r.KeyFields) == 0 {
		r.KeyFields = []string{models.ColDate, models.ColCustomerID, models.ColProductID, models.ColSource}
	}
	if r.MonthlyAlignment == "" {
		r.MonthlyAlignment = "truncate"
	}
	if r.FactTable == "" {
		r.FactTable = "FACT_SALES"
	}
	if r.QuarantineTable == "" {
		r.QuarantineTable = "FACT_SALES_QUARANTINE"
	}
	if r.Database == "" {
		r.Database = config.Snowflake.Database
	}
	if r.Schema == "" {
		r.Schema = config.Snowflake.Schema
	}
	for i := range config.Sources {
		if config.Sources[i].Align == "" {
			config.Sources[i].Align = config.Sources[i].Granularity
		}
	}
}
