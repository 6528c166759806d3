//go:build unit

package main

import (
	"testing"

	"github.com/hsharp/lib-dbprovider/internal/config"
	"github.com/hsharp/lib-dbprovider/provider/log"
	"github.com/hsharp/lib-dbprovider/provider/zap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	t.Parallel()

	t.Run("plain", func(t *testing.T) {
		t.Parallel()

		logger, err := newLogger(config.Log{Environment: "production", Level: "warn"}, true)
		require.NoError(t, err)
		assert.IsType(t, &log.GoLogger{}, logger)
		assert.True(t, logger.Enabled(log.LevelWarn))
		assert.False(t, logger.Enabled(log.LevelInfo))
	})

	t.Run("json", func(t *testing.T) {
		t.Parallel()

		logger, err := newLogger(config.Log{Environment: "production", Level: "info"}, false)
		require.NoError(t, err)
		assert.IsType(t, &zap.Logger{}, logger)
	})

	t.Run("bad level", func(t *testing.T) {
		t.Parallel()

		_, err := newLogger(config.Log{Environment: "production", Level: "loud"}, true)
		assert.Error(t, err)
	})
}
