// Package model holds the value types shared across the tick engine,
// buffers, escalation pipeline, and fan-out server. Nothing in this
// package performs I/O; every type is a plain, JSON-tagged value.
package model

// Source identifies where a FeedItem originated.
type Source string

const (
	SourceAudio     Source = "audio"
	SourceSense     Source = "sense"
	SourceAgent     Source = "agent"
	SourceAssistant Source = "assistant"
	SourceSystem    Source = "system"
)

// Channel groups FeedItems for overlay filtering.
type Channel string

const (
	ChannelStream Channel = "stream"
	ChannelAgent  Channel = "agent"
)

// Priority ranks a FeedItem for overlay display.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// FeedItem is one entry in the feed ring buffer. Id is assigned by the
// buffer on push and never reused or mutated afterward.
type FeedItem struct {
	ID       uint64   `json:"id"`
	TS       int64    `json:"ts"`
	Source   Source   `json:"source"`
	Channel  Channel  `json:"channel"`
	Priority Priority `json:"priority"`
	Text     string   `json:"text"`
}

// SenseEventType distinguishes screen-capture observation kinds.
type SenseEventType string

const (
	SenseText    SenseEventType = "text"
	SenseVisual  SenseEventType = "visual"
	SenseContext SenseEventType = "context"
)

// SenseMeta carries the window/app context around an OCR observation.
type SenseMeta struct {
	App         string  `json:"app"`
	WindowTitle string  `json:"windowTitle,omitempty"`
	Screen      string  `json:"screen"`
	SSIM        float64 `json:"ssim"`
}

// SenseEvent is one screen-capture/OCR observation. ROIData/DiffData are
// optional binary payloads stripped when a query requests metaOnly.
type SenseEvent struct {
	ID         uint64         `json:"id"`
	TS         int64          `json:"ts"`         // producer clock
	ReceivedAt int64          `json:"receivedAt"` // local clock
	Type       SenseEventType `json:"type"`
	OCR        string         `json:"ocr,omitempty"`
	Meta       SenseMeta      `json:"meta"`
	ROIData    []byte         `json:"roi.data,omitempty"`
	DiffData   []byte         `json:"diff.data,omitempty"`
}

// stripBinary returns a copy of the event with binary payloads removed.
func (e SenseEvent) stripBinary() SenseEvent {
	e.ROIData = nil
	e.DiffData = nil
	return e
}

// MetaOnly returns a deep copy of the event with roi.data/diff.data stripped.
func (e SenseEvent) MetaOnly() SenseEvent { return e.stripBinary() }

// RichnessPreset bounds how much raw context is packed into a prompt or
// escalation message.
type RichnessPreset struct {
	Name              string `json:"name"`
	MaxScreenEvents   int    `json:"maxScreenEvents"`
	MaxAudioEntries   int    `json:"maxAudioEntries"`
	MaxOCRChars       int    `json:"maxOcrChars"`
	MaxTranscriptChars int   `json:"maxTranscriptChars"`
}

// Richness presets, named by size of prompt they target.
var (
	RichnessLean = RichnessPreset{
		Name: "lean", MaxScreenEvents: 4, MaxAudioEntries: 4,
		MaxOCRChars: 200, MaxTranscriptChars: 200,
	}
	RichnessStandard = RichnessPreset{
		Name: "standard", MaxScreenEvents: 10, MaxAudioEntries: 10,
		MaxOCRChars: 600, MaxTranscriptChars: 600,
	}
	RichnessRich = RichnessPreset{
		Name: "rich", MaxScreenEvents: 30, MaxAudioEntries: 30,
		MaxOCRChars: 3000, MaxTranscriptChars: 3000,
	}
)

// RichnessByName resolves a preset name, falling back to standard.
func RichnessByName(name string) RichnessPreset {
	switch name {
	case "lean":
		return RichnessLean
	case "rich":
		return RichnessRich
	default:
		return RichnessStandard
	}
}

// AppTransition is one entry in the app-history chain: the app that was
// active, paired with the producer timestamp it was first observed at.
type AppTransition struct {
	App string `json:"app"`
	TS  int64  `json:"ts"`
}

// ContextWindow is the ephemeral snapshot assembled for one tick.
type ContextWindow struct {
	Screen          []SenseEvent     `json:"screen"`
	Audio           []FeedItem       `json:"audio"`
	NewestEventTS   int64            `json:"newestEventTs"`
	CurrentApp      string           `json:"currentApp"`
	AppHistory      []AppTransition  `json:"appHistory"`
	Richness        RichnessPreset   `json:"richness"`
}

// AgentEntryContext is the trimmed context summary recorded on an AgentEntry.
type AgentEntryContext struct {
	CurrentApp    string   `json:"currentApp"`
	AppHistoryNames []string `json:"appHistoryNames"`
	AudioCount    int      `json:"audioCount"`
	ScreenCount   int      `json:"screenCount"`
}

// AgentEntry is the outcome of one tick.
type AgentEntry struct {
	ID                 uint64             `json:"id"` // tick sequence
	TS                 int64              `json:"ts"`
	Model              string             `json:"model"`
	LatencyMS          int64              `json:"latencyMs"`
	TokensIn           int                `json:"tokensIn"`
	TokensOut          int                `json:"tokensOut"`
	ParsedOK           bool               `json:"parsedOk"`
	HUD                string             `json:"hud"`
	Digest             string             `json:"digest"`
	ContextFreshnessMS int64              `json:"contextFreshnessMs"`
	Context            AgentEntryContext  `json:"context"`
}

// SpawnStatus is the lifecycle state of an external background task.
type SpawnStatus string

const (
	SpawnSpawned   SpawnStatus = "spawned"
	SpawnPolling   SpawnStatus = "polling"
	SpawnCompleted SpawnStatus = "completed"
	SpawnFailed    SpawnStatus = "failed"
	SpawnTimeout   SpawnStatus = "timeout"
)

// SpawnTask tracks an external task's lifecycle for fan-out replay.
type SpawnTask struct {
	TaskID        string      `json:"taskId"`
	Label         string      `json:"label"`
	Status        SpawnStatus `json:"status"`
	StartedAt     int64       `json:"startedAt"`
	CompletedAt   int64       `json:"completedAt,omitempty"`
	ResultPreview string      `json:"resultPreview,omitempty"`
}

// IsTerminal reports whether the task has reached a final state.
func (s SpawnTask) IsTerminal() bool {
	switch s.Status {
	case SpawnCompleted, SpawnFailed, SpawnTimeout:
		return true
	default:
		return false
	}
}

// EscalationCounters is a point-in-time snapshot of the escalation
// orchestrator's running totals, exposed over /health. The fan-out status
// push does not carry them.
type EscalationCounters struct {
	TotalEscalations int64 `json:"totalEscalations"`
	TotalResponses   int64 `json:"totalResponses"`
	TotalErrors      int64 `json:"totalErrors"`
	TotalNoReply     int64 `json:"totalNoReply"`
}

// DeviceState is the overlay-facing on/off state of a capture device.
type DeviceState string

const (
	DeviceActive DeviceState = "active"
	DeviceMuted  DeviceState = "muted" // audio only
	DeviceOff    DeviceState = "off"   // screen only
)

// ConnectionState is the overlay-facing state of the assistant gateway
// socket.
type ConnectionState string

const (
	ConnConnected    ConnectionState = "connected"
	ConnDisconnected ConnectionState = "disconnected"
	ConnConnecting   ConnectionState = "connecting"
)

// StatusSnapshot is the hub's combined connection/escalation/profiling
// state, pushed to newly-connected overlay clients and served at
// GET /health. Audio/Screen/Connection are the three fields the §6.1
// outbound "status" wire message carries; RPCConnected/EscalationMode/
// Counters/Gauges are additional detail only surfaced over GET /health.
type StatusSnapshot struct {
	Audio      DeviceState     `json:"audio"`
	Screen     DeviceState     `json:"screen"`
	Connection ConnectionState `json:"connection"`

	RPCConnected   bool               `json:"rpcConnected"`
	EscalationMode string             `json:"escalationMode"`
	Counters       EscalationCounters `json:"counters"`
	Gauges         map[string]float64 `json:"gauges,omitempty"`
}
