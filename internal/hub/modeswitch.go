package hub

import (
	"context"
	"log/slog"

	"github.com/sinain-hud/core/internal/config"
	"github.com/sinain-hud/core/internal/escalation"
)

// ModeSwitch is the single entry point both the /agent/config handler
// (via SetMode, satisfying httpapi.ModeSetter) and the config file
// watcher (via OnEdge/OnReload, matching config.Watch's callback shapes)
// call through: it keeps the orchestrator's in-memory mode/cooldown in
// sync with the persistent config, and — only on an off<->non-off edge
// — establishes or tears down the assistant gateway socket.
type ModeSwitch struct {
	cfg    *config.Config
	orch   *escalation.Orchestrator
	rpc    rpcLifecycle
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
}

// rpcLifecycle is the subset of *rpcclient.Client ModeSwitch needs to
// bring the socket up or down on a mode edge.
type rpcLifecycle interface {
	Start(ctx context.Context)
	Stop()
}

// NewModeSwitch builds a ModeSwitch. parent bounds the lifetime of any
// RPC connection it establishes; it is normally the process's root
// context. rpc may be nil, in which case mode edges never touch the
// gateway socket.
func NewModeSwitch(parent context.Context, cfg *config.Config, orch *escalation.Orchestrator, rpc rpcLifecycle, logger *slog.Logger) *ModeSwitch {
	if logger == nil {
		logger = slog.Default()
	}
	return &ModeSwitch{cfg: cfg, orch: orch, rpc: rpc, ctx: parent, logger: logger}
}

// SetMode implements httpapi.ModeSetter: the HTTP-driven mutation path.
// The orchestrator is synced unconditionally; OnEdge only fires (via
// Config.SetEscalationMode's internal gate) when the mode crosses the
// off<->non-off boundary.
func (m *ModeSwitch) SetMode(mode escalation.Mode, cooldownMS int64) {
	m.cfg.SetEscalationMode(mode, cooldownMS, m.OnEdge)
	m.orch.SetMode(mode, cooldownMS)
}

// OnEdge matches config.EscalationModeSetterFunc. Config.SetEscalationMode
// invokes it only on an off<->non-off transition; it establishes or
// tears down the gateway socket accordingly.
func (m *ModeSwitch) OnEdge(old, updated escalation.Mode) {
	if m.rpc == nil {
		return
	}
	if updated == escalation.ModeOff {
		m.logger.Info("hub: escalation mode off, tearing down gateway socket")
		m.rpc.Stop()
		return
	}
	runCtx, cancel := context.WithCancel(m.ctx)
	m.cancel = cancel
	m.logger.Info("hub: escalation mode active, establishing gateway socket", "mode", updated)
	m.rpc.Start(runCtx)
}

// OnReload matches config.Watch's onReload parameter: fired on every
// successful, changed file reload, regardless of whether the mode
// crossed an edge. It brings the orchestrator's in-memory mode and
// cooldown up to date with the reloaded config.
func (m *ModeSwitch) OnReload(cfg *config.Config) {
	snap := cfg.Snapshot()
	m.orch.SetMode(snap.Escalation.Mode, snap.Escalation.CooldownMS)
}

// Stop tears down any RPC connection this switch established.
func (m *ModeSwitch) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	if m.rpc != nil {
		m.rpc.Stop()
	}
}
