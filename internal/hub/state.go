// Package hub wires the tick engine, escalation orchestrator, RPC
// client, and profiler into the single aggregate view the fan-out
// server and ingress HTTP surface need: a status snapshot and the
// device-command handlers the overlay issues over its socket.
package hub

import (
	"log/slog"
	"sync"

	"github.com/sinain-hud/core/internal/escalation"
	"github.com/sinain-hud/core/internal/model"
	"github.com/sinain-hud/core/internal/profiler"
	"github.com/sinain-hud/core/internal/rpcclient"
)

// State satisfies fanout.StatusProvider, fanout.Commander, and
// httpapi.StatusProvider without any of those packages importing this
// one — the interfaces stay narrow and the dependency edge points here.
type State struct {
	mu sync.RWMutex

	orch *escalation.Orchestrator
	rpc  *rpcclient.Client
	prof *profiler.Profiler

	audioEnabled  bool
	screenEnabled bool

	logger *slog.Logger
}

// New builds a State. rpc may be nil (escalation.mode "off" never
// establishes the socket); IsConnected then always reports false.
func New(orch *escalation.Orchestrator, rpc *rpcclient.Client, prof *profiler.Profiler, logger *slog.Logger) *State {
	if logger == nil {
		logger = slog.Default()
	}
	return &State{
		orch:          orch,
		rpc:           rpc,
		prof:          prof,
		audioEnabled:  true,
		screenEnabled: true,
		logger:        logger,
	}
}

// Status returns the combined snapshot pushed to overlay clients on
// connect and served at GET /health.
func (s *State) Status() model.StatusSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	connected := s.rpc != nil && s.rpc.IsConnected()
	counters := s.orch.Counters()

	audio := model.DeviceMuted
	if s.audioEnabled {
		audio = model.DeviceActive
	}
	screen := model.DeviceOff
	if s.screenEnabled {
		screen = model.DeviceActive
	}
	conn := model.ConnDisconnected
	if s.rpc != nil {
		conn = model.ConnectionState(s.rpc.State())
	}

	return model.StatusSnapshot{
		Audio:          audio,
		Screen:         screen,
		Connection:     conn,
		RPCConnected:   connected,
		EscalationMode: string(s.orch.Mode()),
		Counters: model.EscalationCounters{
			TotalEscalations: counters.TotalEscalations,
			TotalResponses:   counters.TotalResponses,
			TotalErrors:      counters.TotalErrors,
			TotalNoReply:     counters.TotalNoReply,
		},
		Gauges: s.prof.Gauges(),
	}
}

// ToggleAudio sets the hub's view of whether the audio-capture
// collaborator should be running to enable. The collaborator itself lives in a
// separate process (a fan-out client); this just records the intent
// so Status() reports it and logs the action for the operator.
func (s *State) ToggleAudio(enable bool) {
	s.mu.Lock()
	s.audioEnabled = enable
	s.mu.Unlock()
	s.logger.Info("hub: audio capture toggled", "enabled", enable)
}

// ToggleScreen mirrors ToggleAudio for the screen-capture collaborator.
func (s *State) ToggleScreen(enable bool) {
	s.mu.Lock()
	s.screenEnabled = enable
	s.mu.Unlock()
	s.logger.Info("hub: screen capture toggled", "enabled", enable)
}

// SwitchDevice logs a request to rotate the active audio device. It only
// logs: it neither rotates the device nor forwards the command anywhere.
func (s *State) SwitchDevice() {
	s.logger.Info("hub: switch_device requested")
}

// AudioEnabled reports the hub's current audio-capture intent.
func (s *State) AudioEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.audioEnabled
}

// ScreenEnabled reports the hub's current screen-capture intent.
func (s *State) ScreenEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.screenEnabled
}
