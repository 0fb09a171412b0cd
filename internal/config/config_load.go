package config

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/titanous/json5"

	"github.com/sinain-hud/core/internal/escalation"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		WSPort: 18790,
		Agent: AgentConfig{
			Enabled:       true,
			Model:         "gpt-4o-mini",
			MaxTokens:     400,
			Temperature:   0.3,
			DebounceMS:    3000,
			MaxIntervalMS: 30000,
			MaxAgeMS:      120000,
		},
		Escalation: EscalationConfig{
			Mode: escalation.ModeSelective,
		},
		SituationMDPath:    "~/.sinain/situation.md",
		SituationMDEnabled: true,
		TraceEnabled:       true,
		TraceDir:           "~/.sinain/traces",
	}
}

// Load reads config from a JSON5 file (comments, trailing commas), then
// overlays env vars. A missing file is not an error: defaults plus env
// overrides are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config. Env vars take
// precedence over file values and are the only source for secrets
// (gateway/hook tokens are never persisted to the config file).
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("SINAIN_GATEWAY_TOKEN", &c.OpenClaw.GatewayToken)
	envStr("SINAIN_HOOK_TOKEN", &c.OpenClaw.HookToken)
	envStr("SINAIN_GATEWAY_WS_URL", &c.OpenClaw.GatewayWSURL)
	envStr("SINAIN_HOOK_URL", &c.OpenClaw.HookURL)
	envStr("SINAIN_SESSION_KEY", &c.OpenClaw.SessionKey)
	envStr("SINAIN_MODEL", &c.Agent.Model)
	envStr("SINAIN_SITUATION_MD_PATH", &c.SituationMDPath)
	envStr("SINAIN_TRACE_DIR", &c.TraceDir)

	if v := os.Getenv("SINAIN_WS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.WSPort = port
		}
	}
	if v := os.Getenv("SINAIN_ESCALATION_MODE"); v != "" {
		c.Escalation.Mode = escalation.Mode(v)
	}
}

// Save writes the config to a JSON file. Secrets (gateway/hook tokens)
// are never written back — they remain env-only.
func Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	data, err := json.MarshalIndent(cfg, "", "  ")
	cfg.mu.RUnlock()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Hash returns a short SHA-256 hash of the config, used by the file
// watcher to detect a no-op reload (same bytes, skip the diff+callback).
func (c *Config) Hash() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, _ := json.Marshal(c)
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:8])
}

// ExpandHome replaces a leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
