package common

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restoreLogger(t *testing.T) {
	t.Helper()
	logger := log.Logger
	level := zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = logger
		zerolog.SetGlobalLevel(level)
	})
}

func TestSetupLogging_Level(t *testing.T) {
	restoreLogger(t)

	closer, err := SetupLogging(LogOptions{Level: "WARN", Format: "json"})
	require.NoError(t, err)
	require.NotNil(t, closer)
	assert.NoError(t, closer.Close())
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
}

func TestSetupLogging_InvalidLevel(t *testing.T) {
	restoreLogger(t)

	closer, err := SetupLogging(LogOptions{Level: "loud"})
	assert.Error(t, err)
	require.NotNil(t, closer)

	_, err = SetupLogging(LogOptions{Level: ""})
	assert.Error(t, err)
}

func TestSetupLogging_FileSink(t *testing.T) {
	restoreLogger(t)

	path := filepath.Join(t.TempDir(), "scan.log")
	closer, err := SetupLogging(LogOptions{Level: "info", Format: "console", File: path})
	require.NoError(t, err)

	log.Info().Str("algorithm", "AES").Msg("prediction served")
	log.Debug().Msg("filtered out")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, `"algorithm":"AES"`)
	assert.Contains(t, content, `"message":"prediction served"`)
	assert.False(t, strings.Contains(content, "filtered out"))
}
