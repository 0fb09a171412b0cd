// Package rpcclient maintains the hub's single persistent connection to
// the external assistant gateway: a challenge/response authenticated
// websocket carrying request/response/event frames, with reconnect-on-
// drop and an HTTP fallback for when the socket is unavailable.
package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/sinain-hud/core/internal/escalation"
	"github.com/sinain-hud/core/pkg/protocol"
)

// reconnectDelay is how long the client waits after a dropped connection
// before redialing.
const reconnectDelay = 5 * time.Second

// dialTimeout bounds the initial handshake.
const dialTimeout = 10 * time.Second

// Default rate-limit for the HTTP hook fallback, used when Config leaves
// HookRPS at zero. This bucket exists purely as a backstop against a
// scoring bug escalating far faster than any human operator could be
// expected to act on — the assistant's webhook should never see a burst.
const (
	defaultHookRPS   = 1
	defaultHookBurst = 3
)

// Config holds the two independent transports and their credentials.
type Config struct {
	WSURL        string // e.g. "wss://gateway.example.com/ws", empty disables RPC
	GatewayToken string // bearer used in the connect handshake

	HookURL   string // HTTP fallback endpoint, empty disables the fallback
	HookToken string // bearer used on the HTTP fallback POST

	// HookRPS/HookBurst bound PostHook's call rate. Zero means the
	// defaultHookRPS/defaultHookBurst backstop applies.
	HookRPS   float64
	HookBurst int
}

// Client is the dual-transport collaborator injected into the
// escalation orchestrator; it satisfies escalation.Transport and
// escalation.HookPoster.
type Client struct {
	cfg    Config
	logger *slog.Logger
	http   *http.Client

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	pending   map[string]chan protocol.ResponseFrame

	hookLimiter *rate.Limiter

	stop chan struct{}
	done chan struct{}
}

// New builds a Client. Call Start to begin the connect/reconnect loop;
// a Client with an empty WSURL never connects and IsConnected always
// reports false, so the orchestrator falls straight to the HTTP hook.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	hookRPS := cfg.HookRPS
	hookBurst := cfg.HookBurst
	if hookRPS <= 0 {
		hookRPS = defaultHookRPS
	}
	if hookBurst <= 0 {
		hookBurst = defaultHookBurst
	}
	return &Client{
		cfg:         cfg,
		logger:      logger,
		http:        &http.Client{Timeout: 10 * time.Second},
		pending:     make(map[string]chan protocol.ResponseFrame),
		hookLimiter: rate.NewLimiter(rate.Limit(hookRPS), hookBurst),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Start launches the connect/reconnect loop in the background. It is a
// no-op if WSURL is unset.
func (c *Client) Start(ctx context.Context) {
	if c.cfg.WSURL == "" {
		close(c.done)
		return
	}
	go c.loop(ctx)
}

// Stop signals the loop to exit and closes any open connection.
func (c *Client) Stop() {
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.mu.Unlock()
	<-c.done
}

// IsConnected reports whether the socket is currently authenticated.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// State reports the gateway socket's connection state for the overlay
// status wire message: "connected", "disconnected" (no gateway
// configured), or "connecting" (a gateway is configured but the socket
// hasn't completed its handshake, whether on first dial or after a drop).
func (c *Client) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return "connected"
	}
	if c.cfg.WSURL == "" {
		return "disconnected"
	}
	return "connecting"
}

func (c *Client) loop(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		if err := c.connectOnce(ctx); err != nil {
			c.logger.Warn("rpcclient: connect failed", "error", err)
		}

		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()

		select {
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

// connectOnce dials, performs the challenge/response handshake, and then
// reads frames until the connection drops.
func (c *Client) connectOnce(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.DialContext(ctx, c.cfg.WSURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	nonce, err := readChallenge(conn)
	if err != nil {
		return fmt.Errorf("challenge: %w", err)
	}

	if err := c.authenticate(conn, nonce); err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	c.logger.Info("rpcclient: connected")
	return c.readLoop(conn)
}

func readChallenge(conn *websocket.Conn) (string, error) {
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return "", err
	}
	frameType, err := protocol.ParseFrameType(raw)
	if err != nil {
		return "", err
	}
	if frameType != protocol.FrameTypeEvent {
		return "", fmt.Errorf("expected event frame, got %q", frameType)
	}
	var evt protocol.EventFrame
	if err := json.Unmarshal(raw, &evt); err != nil {
		return "", err
	}
	if evt.Event != protocol.EventConnectChallenge {
		return "", fmt.Errorf("expected %s, got %q", protocol.EventConnectChallenge, evt.Event)
	}
	payload, _ := evt.Payload.(map[string]interface{})
	nonce, _ := payload["nonce"].(string)
	return nonce, nil
}

func (c *Client) authenticate(conn *websocket.Conn, nonce string) error {
	params, _ := json.Marshal(map[string]interface{}{
		"token":       c.cfg.GatewayToken,
		"nonce":       nonce,
		"minProtocol": protocol.ProtocolVersion,
		"maxProtocol": protocol.ProtocolVersion,
		"client":      map[string]string{"mode": "backend"},
	})
	req := protocol.RequestFrame{
		Type:   protocol.FrameTypeRequest,
		ID:     "connect-1",
		Method: protocol.MethodConnect,
		Params: params,
	}
	if err := conn.WriteJSON(req); err != nil {
		return err
	}

	var resp protocol.ResponseFrame
	if err := conn.ReadJSON(&resp); err != nil {
		return err
	}
	if !resp.OK {
		if resp.Error != nil {
			return errors.New(resp.Error.Message)
		}
		return errors.New("connect rejected")
	}
	return nil
}

// readLoop dispatches response frames to their waiting caller by id and
// drops events (the hub has no use for gateway-pushed events today).
// Returns when the connection closes.
func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.failAllPending(err)
			return err
		}
		frameType, err := protocol.ParseFrameType(raw)
		if err != nil {
			continue
		}
		if frameType != protocol.FrameTypeResponse {
			continue
		}
		var resp protocol.ResponseFrame
		if err := json.Unmarshal(raw, &resp); err != nil {
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.mu.Unlock()

		if ok {
			ch <- resp
		}
	}
}

func (c *Client) failAllPending(cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	_ = cause
}

// AgentWait issues agent.wait and blocks for at most timeoutMS. A local
// timeout is reported as a successful-but-empty outcome (the assistant
// may still be working): the orchestrator does not retry on timeout,
// only on a genuine transport exception, so a timeout must not look like
// one.
func (c *Client) AgentWait(ctx context.Context, message, idemKey, sessionKey string, timeoutMS int) (*escalation.WaitOutcome, *escalation.RPCErrorObject, error) {
	c.mu.Lock()
	conn := c.conn
	connected := c.connected
	c.mu.Unlock()
	if !connected || conn == nil {
		return nil, nil, errors.New("rpcclient: not connected")
	}

	reqID := uuid.NewString()
	params, err := json.Marshal(map[string]interface{}{
		"message":    message,
		"idemKey":    idemKey,
		"sessionKey": sessionKey,
		"timeoutMs":  timeoutMS,
	})
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan protocol.ResponseFrame, 1)
	c.mu.Lock()
	c.pending[reqID] = ch
	c.mu.Unlock()

	req := protocol.RequestFrame{
		Type:   protocol.FrameTypeRequest,
		ID:     reqID,
		Method: protocol.MethodAgentWait,
		Params: params,
	}

	c.mu.Lock()
	writeErr := conn.WriteJSON(req)
	c.mu.Unlock()
	if writeErr != nil {
		c.mu.Lock()
		delete(c.pending, reqID)
		c.mu.Unlock()
		return nil, nil, writeErr
	}

	select {
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, reqID)
		c.mu.Unlock()
		return nil, nil, ctx.Err()
	case <-time.After(time.Duration(timeoutMS) * time.Millisecond):
		c.mu.Lock()
		delete(c.pending, reqID)
		c.mu.Unlock()
		return &escalation.WaitOutcome{}, nil, nil
	case resp, ok := <-ch:
		if !ok {
			return nil, nil, errors.New("rpcclient: connection closed while waiting")
		}
		if !resp.OK {
			if resp.Error != nil {
				return nil, &escalation.RPCErrorObject{Message: resp.Error.Message}, nil
			}
			return nil, &escalation.RPCErrorObject{Message: "agent.wait rejected without detail"}, nil
		}
		return decodeWaitPayload(resp.Payload), nil, nil
	}
}

func decodeWaitPayload(payload interface{}) *escalation.WaitOutcome {
	m, ok := payload.(map[string]interface{})
	if !ok {
		return &escalation.WaitOutcome{}
	}
	rawPayloads, ok := m["payloads"].([]interface{})
	if !ok {
		return &escalation.WaitOutcome{}
	}
	texts := make([]string, 0, len(rawPayloads))
	for _, p := range rawPayloads {
		entry, ok := p.(map[string]interface{})
		if !ok {
			continue
		}
		if text, ok := entry["text"].(string); ok {
			texts = append(texts, text)
		}
	}
	return &escalation.WaitOutcome{Payloads: texts}
}

// hookRequest is the HTTP fallback's fixed body shape.
type hookRequest struct {
	Message    string `json:"message"`
	Name       string `json:"name"`
	SessionKey string `json:"sessionKey"`
	WakeMode   string `json:"wakeMode"`
	Deliver    bool   `json:"deliver"`
}

// PostHook fires the fire-and-forget HTTP fallback. No response body is
// captured; only the status code is checked.
func (c *Client) PostHook(ctx context.Context, message, sessionKey string) error {
	if c.cfg.HookURL == "" {
		return errors.New("rpcclient: no hook url configured")
	}
	if !c.hookLimiter.Allow() {
		return errors.New("rpcclient: hook rate limit exceeded")
	}

	body, err := json.Marshal(hookRequest{
		Message:    message,
		Name:       "sinain-core",
		SessionKey: sessionKey,
		WakeMode:   "now",
		Deliver:    false,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.HookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.HookToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.HookToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("rpcclient: hook returned %d", resp.StatusCode)
	}
	return nil
}
