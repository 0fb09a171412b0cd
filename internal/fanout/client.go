package fanout

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sinain-hud/core/internal/profiler"
)

const writeTimeout = 5 * time.Second

// clientConn is one connected overlay client's socket and outbound queue.
type clientConn struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	alive  atomic.Bool
	server *Server
}

// enqueue marshals env and drops it into the client's send buffer. A
// full buffer (a client that stopped reading) drops the message rather
// than blocking the broadcaster.
func (c *clientConn) enqueue(env outboundEnvelope) {
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
		c.server.logger.Warn("fanout: dropping message for slow client", "id", c.id, "type", env.Type)
	}
}

func (c *clientConn) closeDead() {
	c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(closeDeadCode, "heartbeat timeout"), time.Now().Add(writeTimeout))
	c.conn.Close()
}

func (c *clientConn) writePump() {
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (c *clientConn) readPump() {
	defer c.conn.Close()
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.alive.Store(true)

		var env inboundEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}
		c.server.handleInbound(c, env)
	}
}

func (s *Server) handleInbound(c *clientConn, env inboundEnvelope) {
	switch env.Type {
	case "pong":
		// alive already reset in readPump.

	case "message":
		if s.direct != nil && env.Text != "" {
			s.direct.SendDirect(context.Background(), env.Text)
		}

	case "command":
		s.handleCommand(env.Action)

	case "profiling":
		s.handleProfiling(env)

	default:
		s.logger.Debug("fanout: unrecognized inbound type", "id", c.id, "type", env.Type)
	}
}

func (s *Server) handleCommand(action string) {
	if s.commander == nil {
		s.logger.Info("fanout: command ignored, no commander configured", "action", action)
		return
	}
	switch action {
	case "toggle_audio":
		s.commander.ToggleAudio(true)
	case "toggle_audio_off":
		s.commander.ToggleAudio(false)
	case "toggle_screen":
		s.commander.ToggleScreen(true)
	case "toggle_screen_off":
		s.commander.ToggleScreen(false)
	case "switch_device":
		s.commander.SwitchDevice()
	default:
		s.logger.Info("fanout: unrecognized command", "action", action)
	}
}

func (s *Server) handleProfiling(env inboundEnvelope) {
	if s.profiling == nil {
		return
	}
	ts := env.TS
	if ts == 0 {
		ts = nowMS()
	}
	snap := profiler.ExternalSnapshot{TS: ts, Data: map[string]any{
		"rssMb":   env.RSSMB,
		"uptimeS": env.UptimeS,
	}}
	// The fan-out socket is the overlay client's own channel; the
	// screen-capture client's self-report arrives separately over
	// POST /profiling/sense.
	s.profiling.SetOverlaySnapshot(snap)
}
