// Package fanout runs the stateful, push-oriented websocket server the
// overlay clients connect to: feed/status/spawn-task broadcasts out,
// chat/command messages in, with a 10s heartbeat that prunes dead
// connections.
package fanout

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/sinain-hud/core/internal/bus"
	"github.com/sinain-hud/core/internal/model"
	"github.com/sinain-hud/core/internal/profiler"
)

// Bus event names published by producers and consumed here, the
// fan-out server's sole subscriber.
const (
	eventFeed      = "feed"
	eventStatus    = "status"
	eventSpawnTask = "spawn_task"
)

const (
	heartbeatInterval = 10 * time.Second
	closeDeadCode      = 4000
	sendBufferSize     = 32
)

// Commander reacts to client-issued device commands. Unmapped actions
// are logged and ignored; nil is a valid Commander-less configuration.
type Commander interface {
	ToggleAudio(enable bool)
	ToggleScreen(enable bool)
	SwitchDevice()
}

// DirectSender routes a raw user message straight to the assistant
// gateway, skipping escalation scoring. *escalation.Orchestrator
// satisfies this via SendDirect.
type DirectSender interface {
	SendDirect(ctx context.Context, message string)
}

// ProfilingReceiver accepts an external-process self-report.
// *profiler.Profiler satisfies this.
type ProfilingReceiver interface {
	SetScreenClientSnapshot(snap profiler.ExternalSnapshot)
	SetOverlaySnapshot(snap profiler.ExternalSnapshot)
}

// StatusProvider supplies the combined status snapshot pushed to newly
// connected clients and on every tick.
type StatusProvider interface {
	Status() model.StatusSnapshot
}

// Server is the fan-out socket hub. Zero value is not usable; build with
// New.
type Server struct {
	upgrader   websocket.Upgrader
	replay     *FeedReplay
	spawnTasks *SpawnTasks
	events     *bus.MessageBus

	status    StatusProvider
	commander Commander
	direct    DirectSender
	profiling ProfilingReceiver
	logger    *slog.Logger

	mu      sync.RWMutex
	clients map[string]*clientConn

	nextClientID atomic.Uint64
}

// New builds a Server. Any collaborator may be nil; the corresponding
// feature (commands, direct send, profiling ingest, status push) is then
// inert rather than a panic.
func New(status StatusProvider, commander Commander, direct DirectSender, profiling ProfilingReceiver, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		upgrader:   websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096, CheckOrigin: func(*http.Request) bool { return true }},
		replay:     NewFeedReplay(),
		spawnTasks: NewSpawnTasks(),
		events:     bus.NewMessageBus(),
		status:     status,
		commander:  commander,
		direct:     direct,
		profiling:  profiling,
		logger:     logger,
		clients:    make(map[string]*clientConn),
	}
	s.events.Subscribe("fanout.feed", s.onFeedEvent)
	s.events.Subscribe("fanout.status", s.onStatusEvent)
	s.events.Subscribe("fanout.spawn_task", s.onSpawnTaskEvent)
	return s
}

// EventPublisher exposes the server's internal bus to other producers
// (buffer pushes, spawn-task updates) that want to publish without
// holding a reference to the Server itself.
func (s *Server) EventPublisher() bus.EventPublisher {
	return s.events
}

// Handler returns the /ws upgrade handler.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handleWebSocket)
}

// Start launches the 10s heartbeat loop. Returns when ctx is done.
func (s *Server) Start(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.heartbeat()
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("fanout: upgrade failed", "error", err)
		return
	}

	id := s.newClientID()
	c := &clientConn{id: id, conn: conn, send: make(chan []byte, sendBufferSize), server: s}
	c.alive.Store(true)

	s.registerClient(c)
	defer s.unregisterClient(c)

	conn.SetPongHandler(func(string) error {
		c.alive.Store(true)
		return nil
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); c.writePump() }()
	go func() { defer wg.Done(); c.readPump() }()
	wg.Wait()
}

func (s *Server) newClientID() string {
	return "client-" + time.Now().Format("150405.000000") + "-" + itoa(s.nextClientID.Add(1))
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

func (s *Server) registerClient(c *clientConn) {
	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()

	c.enqueue(statusEnvelope(s.currentStatus()))

	for _, item := range s.replay.Snapshot() {
		c.enqueue(feedEnvelope(item))
	}
	for _, task := range s.spawnTasks.PruneAndSnapshot(nowMS()) {
		c.enqueue(spawnTaskEnvelope(task))
	}

	s.logger.Info("fanout: client connected", "id", c.id)
}

func (s *Server) unregisterClient(c *clientConn) {
	s.mu.Lock()
	delete(s.clients, c.id)
	s.mu.Unlock()
	close(c.send)
	s.logger.Info("fanout: client disconnected", "id", c.id)
}

func (s *Server) currentStatus() model.StatusSnapshot {
	if s.status == nil {
		return model.StatusSnapshot{}
	}
	return s.status.Status()
}

// Broadcast implements escalation.Broadcaster. It publishes onto the
// internal event bus; the server's own subscriber (onFeedEvent) is the
// sole consumer and fans the item out to every connected socket.
func (s *Server) Broadcast(item model.FeedItem) {
	s.events.Broadcast(bus.Event{Name: eventFeed, Payload: item})
}

// BroadcastStatus implements tick.StatusBroadcaster: publishes the tick's
// AgentEntry, fanned out alongside the current combined status snapshot.
func (s *Server) BroadcastStatus(entry model.AgentEntry) {
	s.events.Broadcast(bus.Event{Name: eventStatus, Payload: entry})
}

// BroadcastSpawnTask publishes a spawn-task upsert.
func (s *Server) BroadcastSpawnTask(task model.SpawnTask) {
	s.events.Broadcast(bus.Event{Name: eventSpawnTask, Payload: task})
}

func (s *Server) onFeedEvent(e bus.Event) {
	item, ok := e.Payload.(model.FeedItem)
	if !ok {
		return
	}
	s.replay.Append(item)
	s.broadcastAll(feedEnvelope(item))
}

func (s *Server) onStatusEvent(e bus.Event) {
	if _, ok := e.Payload.(model.AgentEntry); !ok {
		return
	}
	s.broadcastAll(statusEnvelope(s.currentStatus()))
}

func (s *Server) onSpawnTaskEvent(e bus.Event) {
	task, ok := e.Payload.(model.SpawnTask)
	if !ok {
		return
	}
	s.spawnTasks.Upsert(task)
	s.broadcastAll(spawnTaskEnvelope(task))
}

func (s *Server) broadcastAll(env outboundEnvelope) {
	s.mu.RLock()
	clients := make([]*clientConn, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	var g errgroup.Group
	for _, c := range clients {
		c := c
		g.Go(func() error {
			c.enqueue(env)
			return nil
		})
	}
	_ = g.Wait()
}

// heartbeat walks every client: a client that never answered the prior
// ping is closed; every surviving client is marked not-alive and sent a
// fresh ping, to be flipped back by a pong or any inbound message.
func (s *Server) heartbeat() {
	s.mu.RLock()
	clients := make([]*clientConn, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	now := nowMS()
	for _, c := range clients {
		if !c.alive.Swap(false) {
			c.closeDead()
			continue
		}
		c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
		c.enqueue(outboundEnvelope{Type: "ping", TS: now})
	}
}

func nowMS() int64 { return time.Now().UnixMilli() }

// outboundEnvelope is the server-to-client message shape, tagged by
// type, with every message's fields flattened to the top level per the
// documented wire protocol (no type-specific nested "item"/"status"/
// "task" wrapper).
type outboundEnvelope struct {
	Type string `json:"type"`

	// feed
	Text     string          `json:"text,omitempty"`
	Priority model.Priority  `json:"priority,omitempty"`
	Channel  model.Channel   `json:"channel,omitempty"`

	// status
	Audio      model.DeviceState     `json:"audio,omitempty"`
	Screen     model.DeviceState     `json:"screen,omitempty"`
	Connection model.ConnectionState `json:"connection,omitempty"`

	// spawn_task
	TaskID        string            `json:"taskId,omitempty"`
	Label         string            `json:"label,omitempty"`
	Status        model.SpawnStatus `json:"status,omitempty"`
	StartedAt     int64             `json:"startedAt,omitempty"`
	CompletedAt   int64             `json:"completedAt,omitempty"`
	ResultPreview string            `json:"resultPreview,omitempty"`

	// feed + ping share this field (at most one is ever populated per message)
	TS int64 `json:"ts,omitempty"`
}

func feedEnvelope(item model.FeedItem) outboundEnvelope {
	return outboundEnvelope{Type: "feed", Text: item.Text, Priority: item.Priority, TS: item.TS, Channel: item.Channel}
}

func statusEnvelope(snap model.StatusSnapshot) outboundEnvelope {
	return outboundEnvelope{Type: "status", Audio: snap.Audio, Screen: snap.Screen, Connection: snap.Connection}
}

func spawnTaskEnvelope(task model.SpawnTask) outboundEnvelope {
	return outboundEnvelope{
		Type:          "spawn_task",
		TaskID:        task.TaskID,
		Label:         task.Label,
		Status:        task.Status,
		StartedAt:     task.StartedAt,
		CompletedAt:   task.CompletedAt,
		ResultPreview: task.ResultPreview,
	}
}

// inboundEnvelope is the client-to-server message shape, tagged by type,
// fields flattened to the top level per the documented wire protocol.
type inboundEnvelope struct {
	Type   string `json:"type"`
	Text   string `json:"text,omitempty"`
	Action string `json:"action,omitempty"`

	// profiling
	RSSMB   float64 `json:"rssMb,omitempty"`
	UptimeS float64 `json:"uptimeS,omitempty"`
	TS      int64   `json:"ts,omitempty"`
}
