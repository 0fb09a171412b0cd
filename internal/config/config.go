package config

import (
	"sync"

	"github.com/sinain-hud/core/internal/escalation"
)

// Config is the hub's root configuration: bind ports, the tick engine's
// schedule, escalation mode/cooldown, the assistant gateway's connection
// details, and the situation/trace sink paths. Mutated in place and
// guarded by mu so the HTTP config endpoint and a file-watch reload can
// both touch it safely while the tick engine and fan-out server run.
type Config struct {
	WSPort int `json:"wsPort"`

	Agent AgentConfig `json:"agent"`

	Escalation EscalationConfig `json:"escalation"`

	OpenClaw OpenClawConfig `json:"openclaw"`

	SituationMDPath    string `json:"situationMdPath"`
	SituationMDEnabled bool   `json:"situationMdEnabled"`

	TraceEnabled bool   `json:"traceEnabled"`
	TraceDir     string `json:"traceDir"`

	mu sync.RWMutex
}

// AgentConfig configures the tick engine (component C).
type AgentConfig struct {
	Enabled        bool     `json:"enabled"`
	Model          string   `json:"model"`
	FallbackModels []string `json:"fallbackModels,omitempty"`
	MaxTokens      int      `json:"maxTokens"`
	Temperature    float64  `json:"temperature"`
	DebounceMS     int64    `json:"debounceMs"`
	MaxIntervalMS  int64    `json:"maxIntervalMs"`
	CooldownMS     int64    `json:"cooldownMs"`
	MaxAgeMS       int64    `json:"maxAgeMs"`
}

// EscalationConfig configures the escalation orchestrator (components D, E).
type EscalationConfig struct {
	Mode       escalation.Mode `json:"mode"`
	CooldownMS int64           `json:"cooldownMs"`
}

// OpenClawConfig configures the dual-transport assistant gateway (component F).
// GatewayToken/HookToken are secrets: read from env only, never persisted.
type OpenClawConfig struct {
	GatewayWSURL string `json:"gatewayWsUrl"`
	GatewayToken string `json:"-"`
	HookURL      string `json:"hookUrl"`
	HookToken    string `json:"-"`
	SessionKey   string `json:"sessionKey"`
}

// ReplaceFrom copies all data fields from src into c, preserving c's mutex.
func (c *Config) ReplaceFrom(src *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.WSPort = src.WSPort
	c.Agent = src.Agent
	c.Escalation = src.Escalation
	c.OpenClaw = src.OpenClaw
	c.SituationMDPath = src.SituationMDPath
	c.SituationMDEnabled = src.SituationMDEnabled
	c.TraceEnabled = src.TraceEnabled
	c.TraceDir = src.TraceDir
}

// Snapshot returns a value copy of the config for safe concurrent reads
// (e.g. rendering /health or re-deriving the tick engine's Config).
func (c *Config) Snapshot() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cp := *c
	cp.Agent.FallbackModels = append([]string(nil), c.Agent.FallbackModels...)
	return cp
}

// EscalationModeSetterFunc is invoked on every escalation.mode edge
// transition (off<->non-off), letting the caller bring the RPC socket up
// or down per spec's config hot-swap rule.
type EscalationModeSetterFunc func(old, updated escalation.Mode)

// SetEscalationMode mutates the in-process escalation mode/cooldown and
// invokes onEdge when the mode crosses the off<->non-off boundary. This is
// the single place both the HTTP /agent/config handler and the config
// file watcher converge on, so there is exactly one spot that
// establishes/tears down the assistant gateway socket.
func (c *Config) SetEscalationMode(mode escalation.Mode, cooldownMS int64, onEdge EscalationModeSetterFunc) {
	c.mu.Lock()
	old := c.Escalation.Mode
	c.Escalation.Mode = mode
	if cooldownMS > 0 {
		c.Escalation.CooldownMS = cooldownMS
	}
	c.mu.Unlock()

	wasOff := old == escalation.ModeOff
	isOff := mode == escalation.ModeOff
	if onEdge != nil && wasOff != isOff {
		onEdge(old, mode)
	}
}
