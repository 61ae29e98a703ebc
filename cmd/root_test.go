package cmd

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "medallion/pkg/errors"
	"medallion/pkg/models"
)

func TestRootCommandHelp(t *testing.T) {
	b := bytes.NewBufferString("")
	rootCmd.SetOut(b)
	rootCmd.SetErr(b)
	rootCmd.SetArgs([]string{"--help"})

	err := rootCmd.Execute()
	assert.NoError(t, err)

	output := b.String()
	assert.Contains(t, output, "Available Commands:")
	assert.Contains(t, output, "reconcile")
	assert.Contains(t, output, "deploy-views")
	assert.Contains(t, output, "quarantine")
	assert.Contains(t, output, "status")
	assert.Contains(t, output, "setup")
}

func TestReconcileRequiresSource(t *testing.T) {
	b := bytes.NewBufferString("")
	rootCmd.SetOut(b)
	rootCmd.SetErr(b)
	rootCmd.SetArgs([]string{"reconcile"})

	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source")
}

func TestLoadConfigUnconfigured(t *testing.T) {
	t.Setenv("MEDALLION_CONFIG", filepath.Join(t.TempDir(), "config.yaml"))

	_, err := loadConfig()
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeConfigInvalid, apperrors.GetErrorCode(err))
}

func TestFindSource(t *testing.T) {
	cfg := &models.Config{
		Sources: []models.Source{
			{Name: "apex", Granularity: "daily"},
			{Name: "borealis", Granularity: "monthly"},
		},
	}

	source, err := findSource(cfg, "borealis")
	require.NoError(t, err)
	assert.Equal(t, "monthly", source.Granularity)

	_, err = findSource(cfg, "zenith")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeSourceUnknown, apperrors.GetErrorCode(err))
}
