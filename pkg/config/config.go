// Package config loads the TauConfig tree that cmd/tau assembles into
// the runtime, dispatch, tool, and release-cache components: a YAML
// file on disk, overridden by a fixed set of environment variables for
// transport credentials that must never be checked into a fixture.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/tau/pkg/dispatch"
	"github.com/cuemby/tau/pkg/log"
	"github.com/cuemby/tau/pkg/runtime"
	"github.com/cuemby/tau/pkg/tool"
)

// RuntimeConfig holds the engine-level knobs shared by every
// contract-driven runtime (custom-command, multi-channel, memory).
type RuntimeConfig struct {
	StateDir         string `yaml:"state_dir"`
	ChannelStoreRoot string `yaml:"channel_store_root"`
	QueueLimit       int    `yaml:"queue_limit"`
	ProcessedCaseCap int    `yaml:"processed_case_cap"`
	RetryMaxAttempts int    `yaml:"retry_max_attempts"`
	RetryBaseDelayMs int64  `yaml:"retry_base_delay_ms"`
}

func (r RuntimeConfig) toEngineConfig() runtime.Config {
	return runtime.Config{
		StateDir:         r.StateDir,
		QueueLimit:       r.QueueLimit,
		ProcessedCaseCap: r.ProcessedCaseCap,
		RetryMaxAttempts: r.RetryMaxAttempts,
		RetryBaseDelayMs: r.RetryBaseDelayMs,
	}
}

// DispatchConfig is the YAML-facing mirror of dispatch.Config: the
// credential fields are intentionally left blank here and filled in by
// environment variable overrides in Load, never by the file itself.
type DispatchConfig struct {
	Mode                  string `yaml:"mode"`
	MaxChars              int    `yaml:"max_chars"`
	HTTPTimeoutMs         int64  `yaml:"http_timeout_ms"`
	SSRFProtectionEnabled bool   `yaml:"ssrf_protection_enabled"`
	SSRFAllowHTTP         bool   `yaml:"ssrf_allow_http"`
	SSRFAllowPrivateNet   bool   `yaml:"ssrf_allow_private_net"`
	MaxRedirects          int    `yaml:"max_redirects"`
	TelegramAPIBase       string `yaml:"telegram_api_base"`
	DiscordAPIBase        string `yaml:"discord_api_base"`
	WhatsAppAPIBase       string `yaml:"whatsapp_api_base"`
}

// ToolConfig is the YAML-facing mirror of tool.Policy.
type ToolConfig struct {
	AllowedRoots          []string `yaml:"allowed_roots"`
	MaxFileReadBytes      int64    `yaml:"max_file_read_bytes"`
	MaxCommandOutputBytes int      `yaml:"max_command_output_bytes"`
	BashTimeoutMs         int64    `yaml:"bash_timeout_ms"`
	MaxCommandLength      int      `yaml:"max_command_length"`
	AllowCommandNewlines  bool     `yaml:"allow_command_newlines"`
	BashProfile           string   `yaml:"bash_profile"`
}

func (t ToolConfig) toPolicy() (tool.Policy, error) {
	policy := tool.NewPolicy(t.AllowedRoots)
	if t.MaxFileReadBytes > 0 {
		policy.MaxFileReadBytes = t.MaxFileReadBytes
	}
	if t.MaxCommandOutputBytes > 0 {
		policy.MaxCommandOutputBytes = t.MaxCommandOutputBytes
	}
	if t.BashTimeoutMs > 0 {
		policy.BashTimeoutMs = t.BashTimeoutMs
	}
	if t.MaxCommandLength > 0 {
		policy.MaxCommandLength = t.MaxCommandLength
	}
	policy.AllowCommandNewlines = t.AllowCommandNewlines

	switch t.BashProfile {
	case "", "balanced":
		policy.SetBashProfile(tool.ProfileBalanced)
	case "strict":
		policy.SetBashProfile(tool.ProfileStrict)
	case "permissive":
		policy.SetBashProfile(tool.ProfilePermissive)
	default:
		return tool.Policy{}, fmt.Errorf("unknown bash_profile %q", t.BashProfile)
	}
	return policy, nil
}

// ReleaseCacheConfig parameterizes the release lookup cache.
type ReleaseCacheConfig struct {
	DBPath string `yaml:"db_path"`
	TTLMs  int64  `yaml:"ttl_ms"`
}

// LogConfig mirrors pkg/log.Config's YAML-facing fields.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// TauConfig is the root configuration tree assembled by cmd/tau.
type TauConfig struct {
	Log              LogConfig          `yaml:"log"`
	CustomCommand    RuntimeConfig      `yaml:"custom_command"`
	MultiChannel     RuntimeConfig      `yaml:"multi_channel"`
	Memory           RuntimeConfig      `yaml:"memory"`
	Dispatch         DispatchConfig     `yaml:"dispatch"`
	Tool             ToolConfig         `yaml:"tool"`
	ReleaseCache     ReleaseCacheConfig `yaml:"release_cache"`
	SessionDBPath    string             `yaml:"session_db_path"`
	ChannelStoreRoot string             `yaml:"channel_store_root"`

	// Credential fields are never populated from YAML; they are filled
	// in exclusively by the TAU_* environment variable overrides below,
	// matching the env var names quoted in pkg/dispatch's credential
	// error details.
	TelegramBotToken      string `yaml:"-"`
	DiscordBotToken       string `yaml:"-"`
	WhatsAppAccessToken   string `yaml:"-"`
	WhatsAppPhoneNumberID string `yaml:"-"`
}

// Default returns a TauConfig populated with the same per-field
// defaults each component's own DefaultConfig/NewPolicy would use.
func Default() TauConfig {
	dispatchDefault := dispatch.DefaultConfig()
	return TauConfig{
		Log: LogConfig{Level: "info", JSON: false},
		CustomCommand: RuntimeConfig{
			StateDir:         "state/custom-command",
			ChannelStoreRoot: "channels",
			QueueLimit:       100,
			ProcessedCaseCap: 1000,
			RetryMaxAttempts: 5,
			RetryBaseDelayMs: 250,
		},
		MultiChannel: RuntimeConfig{
			StateDir:         "state/multi-channel",
			ChannelStoreRoot: "channels",
			QueueLimit:       100,
			ProcessedCaseCap: 1000,
			RetryMaxAttempts: 5,
			RetryBaseDelayMs: 250,
		},
		Memory: RuntimeConfig{
			StateDir:         "state/memory",
			ChannelStoreRoot: "channels",
			QueueLimit:       100,
			ProcessedCaseCap: 1000,
			RetryMaxAttempts: 5,
			RetryBaseDelayMs: 250,
		},
		Dispatch: DispatchConfig{
			Mode:                  string(dispatchDefault.Mode),
			MaxChars:              dispatchDefault.MaxChars,
			HTTPTimeoutMs:         dispatchDefault.HTTPTimeout.Milliseconds(),
			SSRFProtectionEnabled: dispatchDefault.SSRFProtectionEnabled,
			MaxRedirects:          dispatchDefault.MaxRedirects,
			TelegramAPIBase:       dispatchDefault.TelegramAPIBase,
			DiscordAPIBase:        dispatchDefault.DiscordAPIBase,
			WhatsAppAPIBase:       dispatchDefault.WhatsAppAPIBase,
		},
		Tool: ToolConfig{
			AllowedRoots:          nil,
			MaxFileReadBytes:      1_000_000,
			MaxCommandOutputBytes: 16_000,
			BashTimeoutMs:         120_000,
			MaxCommandLength:      4_096,
			AllowCommandNewlines:  false,
			BashProfile:           "balanced",
		},
		ReleaseCache: ReleaseCacheConfig{
			DBPath: "state/release-cache.db",
			TTLMs:  (6 * time.Hour).Milliseconds(),
		},
		SessionDBPath:    "state/session.db",
		ChannelStoreRoot: "channels",
	}
}

// Load reads path (if non-empty and present) over Default's baseline,
// then applies the fixed TAU_* environment variable overrides for
// transport credentials.
func Load(path string) (TauConfig, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return TauConfig{}, fmt.Errorf("failed to read config file %q: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return TauConfig{}, fmt.Errorf("failed to parse config file %q: %w", path, err)
		}
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *TauConfig) {
	if v := os.Getenv("TAU_TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.TelegramBotToken = v
	}
	if v := os.Getenv("TAU_DISCORD_BOT_TOKEN"); v != "" {
		cfg.DiscordBotToken = v
	}
	if v := os.Getenv("TAU_WHATSAPP_ACCESS_TOKEN"); v != "" {
		cfg.WhatsAppAccessToken = v
	}
	if v := os.Getenv("TAU_WHATSAPP_PHONE_NUMBER_ID"); v != "" {
		cfg.WhatsAppPhoneNumberID = v
	}
}

// ToDispatchConfig assembles a pkg/dispatch.Config from the loaded
// configuration, folding in the environment-sourced credentials.
func (c TauConfig) ToDispatchConfig() dispatch.Config {
	return dispatch.Config{
		Mode:                  dispatch.Mode(c.Dispatch.Mode),
		MaxChars:              c.Dispatch.MaxChars,
		HTTPTimeout:           time.Duration(c.Dispatch.HTTPTimeoutMs) * time.Millisecond,
		SSRFProtectionEnabled: c.Dispatch.SSRFProtectionEnabled,
		SSRFAllowHTTP:         c.Dispatch.SSRFAllowHTTP,
		SSRFAllowPrivateNet:   c.Dispatch.SSRFAllowPrivateNet,
		MaxRedirects:          c.Dispatch.MaxRedirects,
		TelegramAPIBase:       c.Dispatch.TelegramAPIBase,
		DiscordAPIBase:        c.Dispatch.DiscordAPIBase,
		WhatsAppAPIBase:       c.Dispatch.WhatsAppAPIBase,
		TelegramBotToken:      c.TelegramBotToken,
		DiscordBotToken:       c.DiscordBotToken,
		WhatsAppAccessToken:   c.WhatsAppAccessToken,
		WhatsAppPhoneNumberID: c.WhatsAppPhoneNumberID,
	}
}

// ToToolPolicy assembles a pkg/tool.Policy from the loaded configuration.
func (c TauConfig) ToToolPolicy() (tool.Policy, error) {
	return c.Tool.toPolicy()
}

// ToCustomCommandEngineConfig assembles the generic runtime.Config for
// the custom-command runtime.
func (c TauConfig) ToCustomCommandEngineConfig() runtime.Config {
	return c.CustomCommand.toEngineConfig()
}

// ToMultiChannelEngineConfig assembles the generic runtime.Config for
// the multi-channel runtime.
func (c TauConfig) ToMultiChannelEngineConfig() runtime.Config {
	return c.MultiChannel.toEngineConfig()
}

// ToMemoryEngineConfig assembles the generic runtime.Config for the
// memory runtime.
func (c TauConfig) ToMemoryEngineConfig() runtime.Config {
	return c.Memory.toEngineConfig()
}

// ToLogConfig assembles a pkg/log.Config from the loaded configuration.
func (c TauConfig) ToLogConfig() log.Config {
	level := log.InfoLevel
	switch c.Log.Level {
	case "debug":
		level = log.DebugLevel
	case "warn":
		level = log.WarnLevel
	case "error":
		level = log.ErrorLevel
	}
	return log.Config{Level: level, JSONOutput: c.Log.JSON}
}
