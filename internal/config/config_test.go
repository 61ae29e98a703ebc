package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medallion/pkg/models"
)

func TestGetConfigPath(t *testing.T) {
	home, _ := os.UserHomeDir()
	expected := filepath.Join(home, ".medallion")
	assert.Equal(t, expected, GetConfigPath())
}

func TestGetConfigFile(t *testing.T) {
	home, _ := os.UserHomeDir()
	expected := filepath.Join(home, ".medallion", "config.yaml")
	assert.Equal(t, expected, GetConfigFile())
}

func TestGetConfigFileFromEnv(t *testing.T) {
	t.Setenv("MEDALLION_CONFIG", "/tmp/medallion-test/config.yaml")
	assert.Equal(t, "/tmp/medallion-test/config.yaml", GetConfigFile())
	assert.Equal(t, "/tmp/medallion-test", GetConfigPath())
}

func TestSaveAndLoad(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv("HOME", tempDir)

	testConfig := &models.Config{
		Snowflake: models.Snowflake{
			Account:   "ab12345.eu-west-1",
			Username:  "etl_user",
			Password:  "secret",
			Role:      "SYSADMIN",
			Warehouse: "ETL_WH",
			Database:  "SALES",
			Schema:    "SILVER",
		},
		Sources: []models.Source{
			{Name: "apex-daily", Company: "Apex Retail", Granularity: "daily", Align: "daily"},
			{Name: "borealis-monthly", Company: "Borealis Goods", Granularity: "daily", Align: "monthly"},
		},
		Reconciliation: models.Reconciliation{
			Database:  "SALES",
			Schema:    "SILVER",
			FactTable: "FACT_SALES",
		},
	}

	require.NoError(t, Save(testConfig))
	assert.True(t, Exists())

	loaded, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "ab12345.eu-west-1", loaded.Snowflake.Account)
	assert.Equal(t, "secret", loaded.Snowflake.Password, "password should round-trip through encryption")
	require.Len(t, loaded.Sources, 2)
	assert.Equal(t, "borealis-monthly", loaded.Sources[1].Name)
	assert.Equal(t, "monthly", loaded.Sources[1].Align)
}

func TestLoadMissingConfigReturnsEmpty(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, &models.Config{}, cfg)
}

func TestSavedPasswordIsEncryptedOnDisk(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg := &models.Config{Snowflake: models.Snowflake{Password: "hunter2"}}
	require.NoError(t, Save(cfg))

	data, err := os.ReadFile(GetConfigFile())
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hunter2")
	assert.Contains(t, string(data), "ENC[")
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	encrypted, err := EncryptPassword("pa55word!")
	require.NoError(t, err)
	assert.True(t, IsEncrypted(encrypted))

	// Encrypting twice is a no-op
	again, err := EncryptPassword(encrypted)
	require.NoError(t, err)
	assert.Equal(t, encrypted, again)

	decrypted, err := DecryptPassword(encrypted)
	require.NoError(t, err)
	assert.Equal(t, "pa55word!", decrypted)
}

func TestDecryptPlaintextPassesThrough(t *testing.T) {
	out, err := DecryptPassword("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", out)
}

func TestApplyDefaults(t *testing.T) {
	cfg := &models.Config{
		Sources: []models.Source{{Name: "apex-daily", Granularity: "daily"}},
	}
	cfg.Snowflake.Database = "ANALYTICS"
	cfg.Snowflake.Schema = "GOLD"
	ApplyDefaults(cfg)

	assert.Equal(t, []string{"date", "customer_id", "product_id", "source"}, cfg.Reconciliation.KeyFields)
	assert.Equal(t, "truncate", cfg.Reconciliation.MonthlyAlignment)
	assert.Equal(t, "FACT_SALES", cfg.Reconciliation.FactTable)
	assert.Equal(t, "FACT_SALES_QUARANTINE", cfg.Reconciliation.QuarantineTable)
	assert.Equal(t, "ANALYTICS", cfg.Reconciliation.Database)
	assert.Equal(t, "GOLD", cfg.Reconciliation.Schema)
	assert.Equal(t, "daily", cfg.Sources[0].Align)
}
