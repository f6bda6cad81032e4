package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadReturnsDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, "info", cfg.Log.Level)
	require.Equal(t, "balanced", cfg.Tool.BashProfile)
	require.Equal(t, int64(6*60*60*1000), cfg.ReleaseCache.TTLMs)
}

func TestLoadOverlaysFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tau.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
  json: true
dispatch:
  mode: provider
  max_chars: 500
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.Log.Level)
	require.True(t, cfg.Log.JSON)
	require.Equal(t, "provider", cfg.Dispatch.Mode)
	require.Equal(t, 500, cfg.Dispatch.MaxChars)
	// Unset fields still come from Default.
	require.Equal(t, "https://api.telegram.org", cfg.Dispatch.TelegramAPIBase)
}

func TestLoadAppliesEnvironmentCredentialOverrides(t *testing.T) {
	t.Setenv("TAU_TELEGRAM_BOT_TOKEN", "telegram-secret")
	t.Setenv("TAU_DISCORD_BOT_TOKEN", "discord-secret")
	t.Setenv("TAU_WHATSAPP_ACCESS_TOKEN", "whatsapp-secret")
	t.Setenv("TAU_WHATSAPP_PHONE_NUMBER_ID", "15550001111")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "telegram-secret", cfg.TelegramBotToken)
	require.Equal(t, "discord-secret", cfg.DiscordBotToken)
	require.Equal(t, "whatsapp-secret", cfg.WhatsAppAccessToken)
	require.Equal(t, "15550001111", cfg.WhatsAppPhoneNumberID)

	dispatchCfg := cfg.ToDispatchConfig()
	require.Equal(t, "telegram-secret", dispatchCfg.TelegramBotToken)
}

func TestToToolPolicyRejectsUnknownBashProfile(t *testing.T) {
	cfg := Default()
	cfg.Tool.BashProfile = "nonexistent"
	_, err := cfg.ToToolPolicy()
	require.Error(t, err)
}
