package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bajpayeeritik/leetCodeExtensionTracker/pkg/tracker/config"
)

func TestLoadConfiguration_WritesDefaultsIntoMissingDirectory(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config", "tracker.yaml")
	viper.Set("config", configPath)
	t.Cleanup(func() { viper.Set("config", "") })

	gotPath, cfg, err := loadConfiguration(logr.Discard())
	require.NoError(t, err)
	assert.Equal(t, configPath, gotPath)
	assert.Equal(t, config.DefaultConfig(), cfg)

	// The default file lands on disk even though config/ did not exist.
	_, err = os.Stat(configPath)
	require.NoError(t, err)

	reloaded, err := config.LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, cfg, reloaded)
}

func TestLoadConfiguration_ReadsExistingFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "tracker.yaml")
	want := config.DefaultConfig()
	want.Tracking.UserID = "ritik"
	require.NoError(t, config.SaveConfig(want, configPath))

	viper.Set("config", configPath)
	t.Cleanup(func() { viper.Set("config", "") })

	_, cfg, err := loadConfiguration(logr.Discard())
	require.NoError(t, err)
	assert.Equal(t, "ritik", cfg.Tracking.UserID)
}
