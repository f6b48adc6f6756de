package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewDevelopmentLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(true)
	require.NoError(t, err)
	require.NotNil(t, logger)
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("development logger ready")
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))
}

func TestNewProductionLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(false)
	require.NoError(t, err)
	require.NotNil(t, logger)
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("production logger ready")
	assert.False(t, logger.Core().Enabled(zap.DebugLevel))
}

func TestConfigFields(t *testing.T) {
	t.Parallel()

	for _, dev := range []bool{true, false} {
		cfg := Config(dev)
		assert.Equal(t, "ts", cfg.EncoderConfig.TimeKey)
		assert.Equal(t, ServiceName, cfg.InitialFields["service"])
		assert.Equal(t, dev, cfg.Development)
	}
	assert.Equal(t, "json", Config(false).Encoding)
	assert.Equal(t, "console", Config(true).Encoding)
}
