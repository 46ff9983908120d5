package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.70, cfg.ConfidenceThreshold)
	assert.Equal(t, 10*time.Second, cfg.StateSelectorTimeout.Std())
	assert.Equal(t, 7*24*time.Hour, cfg.InboundFingerprintTTL.Std())
	assert.True(t, cfg.BackendEnabled)
}

func TestLoad_OverlaysOnDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"confidence_threshold: 0.8\n"+
			"composer_timeout: 5s\n"+
			"abuse_threshold: 3\n"+
			"backend_enabled: false\n",
	), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0.8, cfg.ConfidenceThreshold)
	assert.Equal(t, 5*time.Second, cfg.ComposerTimeout.Std())
	assert.Equal(t, 3, cfg.AbuseThreshold)
	assert.False(t, cfg.BackendEnabled)
	// Untouched keys keep their defaults.
	assert.Equal(t, 10*time.Second, cfg.StateSelectorTimeout.Std())
	assert.Equal(t, 3, cfg.MaxVersionRetries)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	for name, body := range map[string]string{
		"threshold out of range": "confidence_threshold: 1.5\n",
		"negative threshold":     "confidence_threshold: -0.1\n",
		"zero abuse threshold":   "abuse_threshold: 0\n",
		"zero retry cap":         "max_version_retries: 0\n",
		"bad duration":           "composer_timeout: soon\n",
		"zero duration":          "abuse_window: 0s\n",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
