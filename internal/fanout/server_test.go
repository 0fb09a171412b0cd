package fanout

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sinain-hud/core/internal/model"
)

type fakeStatusProvider struct{}

func (fakeStatusProvider) Status() model.StatusSnapshot {
	return model.StatusSnapshot{Connection: model.ConnConnected, RPCConnected: true, EscalationMode: "selective"}
}

type fakeDirectSender struct {
	last string
}

func (f *fakeDirectSender) SendDirect(ctx context.Context, message string) {
	f.last = message
}

func dialClient(t *testing.T, httpURL string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(httpURL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) outboundEnvelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env outboundEnvelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read: %v", err)
	}
	return env
}

func TestServer_ConnectReceivesStatusThenReplay(t *testing.T) {
	s := New(fakeStatusProvider{}, nil, nil, nil, nil)
	s.Broadcast(model.FeedItem{Source: model.SourceSense, Text: "hello"})

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn := dialClient(t, srv.URL)
	defer conn.Close()

	first := readEnvelope(t, conn)
	if first.Type != "status" || first.Connection != model.ConnConnected {
		t.Fatalf("expected status first, got %+v", first)
	}
	second := readEnvelope(t, conn)
	if second.Type != "feed" || second.Text != "hello" {
		t.Fatalf("expected replayed feed item, got %+v", second)
	}
}

func TestServer_BroadcastReachesConnectedClient(t *testing.T) {
	s := New(fakeStatusProvider{}, nil, nil, nil, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn := dialClient(t, srv.URL)
	defer conn.Close()
	readEnvelope(t, conn) // initial status

	s.Broadcast(model.FeedItem{Source: model.SourceAgent, Text: "escalated reply"})

	env := readEnvelope(t, conn)
	if env.Type != "feed" || env.Text != "escalated reply" {
		t.Fatalf("unexpected broadcast: %+v", env)
	}
}

func TestServer_InboundMessageRoutesToDirectSender(t *testing.T) {
	direct := &fakeDirectSender{}
	s := New(fakeStatusProvider{}, nil, direct, nil, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn := dialClient(t, srv.URL)
	defer conn.Close()
	readEnvelope(t, conn)

	body, _ := json.Marshal(inboundEnvelope{Type: "message", Text: "what's going on"})
	if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if direct.last == "what's going on" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("direct sender never received the message")
}
