package main

import (
	"testing"

	"github.com/Brownie44l1/facenet-api/internal/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlagCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	for _, k := range []string{config.EnvPort, config.EnvModelPath, config.EnvLibraryPath, config.EnvLogLevel} {
		t.Setenv(k, "")
	}
	t.Cleanup(func() {
		configPath, modelPath, port = "", "", 0
	})

	cmd := &cobra.Command{Use: "test"}
	bindFlags(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig(newFlagCommand(t))
	require.NoError(t, err)

	assert.Equal(t, config.DefaultPort, cfg.Server.Port)
	assert.Equal(t, config.DefaultModelPath, cfg.Model.Path)
}

func TestLoadConfig_FlagOverrides(t *testing.T) {
	cfg, err := loadConfig(newFlagCommand(t, "--model", "/models/facenet.onnx", "--port", "8080"))
	require.NoError(t, err)

	assert.Equal(t, "/models/facenet.onnx", cfg.Model.Path)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadConfig_InvalidPortFlag(t *testing.T) {
	_, err := loadConfig(newFlagCommand(t, "--port", "70000"))
	assert.Error(t, err)
}

func TestSetupLogging(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	setupLogging(config.LogConfig{Level: "debug", Format: "json"})
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	setupLogging(config.LogConfig{Level: "nonsense", Format: "console"})
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestEmbedCommand_RequiresOneArg(t *testing.T) {
	assert.Error(t, embedCmd.Args(embedCmd, nil))
	assert.Error(t, embedCmd.Args(embedCmd, []string{"a.png", "b.png"}))
	assert.NoError(t, embedCmd.Args(embedCmd, []string{"a.png"}))
}
