package procconfig_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weinenglong/foglamp-sendprocess/internal/procconfig"
)

func TestLoadDefaultsWithNoConfigFile(t *testing.T) {
	cfg, err := procconfig.Load("")
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Storage.Address)
	assert.Equal(t, 8118, cfg.Storage.Port)
	assert.Equal(t, 30*time.Second, cfg.Storage.Timeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9090, cfg.Metrics.Port)
}

func TestLoadRejectsUnreadableConfigFile(t *testing.T) {
	_, err := procconfig.Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}
