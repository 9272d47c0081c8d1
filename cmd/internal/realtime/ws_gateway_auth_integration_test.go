package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"nestwatch/cmd/internal/token"

	"github.com/coder/websocket"
)

func newAuthFixture(t *testing.T) (*httptest.Server, *Hub, *token.Authority) {
	t.Helper()
	t.Setenv("NESTWATCH_WS_ORIGIN_REQUIRED", "false")

	authority, err := token.NewAuthority(token.Config{Secret: []byte("0123456789abcdef0123456789abcdef")})
	if err != nil {
		t.Fatalf("NewAuthority: %v", err)
	}

	log := testLogger()
	hub := NewHub(log)
	gw := NewWSGateway(log, hub, authority)

	mux := http.NewServeMux()
	mux.Handle("/ws", gw)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv, hub, authority
}

func dialWS(t *testing.T, baseHTTPURL string) *websocket.Conn {
	t.Helper()

	u, err := url.Parse(baseHTTPURL)
	if err != nil {
		t.Fatalf("url.Parse: %v", err)
	}
	u.Scheme = "ws"
	u.Path = "/ws"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		t.Fatalf("websocket.Dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func writeClientFrame(t *testing.T, conn *websocket.Conn, frame ClientFrame) {
	t.Helper()

	b, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		t.Fatalf("conn.Write: %v", err)
	}
}

func readServerFrame(t *testing.T, conn *websocket.Conn) ServerFrame {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("conn.Read: %v", err)
	}

	var frame ServerFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	return frame
}

func TestSubscribeRejectsSupersededTokenAndKeepsConnection(t *testing.T) {
	srv, hub, authority := newAuthFixture(t)

	stale, err := authority.Issue("sess-1")
	if err != nil {
		t.Fatalf("Issue stale: %v", err)
	}
	current, err := authority.Issue("sess-1")
	if err != nil {
		t.Fatalf("Issue current: %v", err)
	}

	conn := dialWS(t, srv.URL)

	// The token superseded by rotation must no longer authorize subscribe.
	writeClientFrame(t, conn, ClientFrame{Action: ActionSubscribe, SessionID: "sess-1", Token: stale})
	frame := readServerFrame(t, conn)
	if frame.Type != TypeError {
		t.Fatalf("stale token: expected error frame, got %+v", frame)
	}
	if hub.Subscribers("sess-1") != 0 {
		t.Fatalf("stale token must not register a subscription")
	}

	// The connection stays open: retrying on the same socket with the
	// current token succeeds.
	writeClientFrame(t, conn, ClientFrame{Action: ActionSubscribe, SessionID: "sess-1", Token: current})
	frame = readServerFrame(t, conn)
	if frame.Type != TypeSubscribed || frame.SessionID != "sess-1" {
		t.Fatalf("current token: expected subscribed frame, got %+v", frame)
	}

	// A subscribed connection receives session pushes.
	hub.Broadcast("sess-1", "missed", map[string]any{"intervalSec": int64(60)})
	frame = readServerFrame(t, conn)
	if frame.Type != "missed" || frame.SessionID != "sess-1" {
		t.Fatalf("expected missed push, got %+v", frame)
	}
	if frame.Payload["intervalSec"] == nil {
		t.Fatalf("missed push lost its payload: %+v", frame)
	}
}

func TestSubscribeRejectsTokenForOtherSession(t *testing.T) {
	srv, hub, authority := newAuthFixture(t)

	tok, err := authority.Issue("sess-a")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	conn := dialWS(t, srv.URL)

	// A valid token only authorizes the session it is bound to.
	writeClientFrame(t, conn, ClientFrame{Action: ActionSubscribe, SessionID: "sess-b", Token: tok})
	frame := readServerFrame(t, conn)
	if frame.Type != TypeError {
		t.Fatalf("cross-session token: expected error frame, got %+v", frame)
	}
	if hub.Subscribers("sess-b") != 0 || hub.Subscribers("sess-a") != 0 {
		t.Fatalf("cross-session token must not register a subscription")
	}
}

func TestSubscribeRevokedAfterStopIsRejected(t *testing.T) {
	srv, _, authority := newAuthFixture(t)

	tok, err := authority.Issue("sess-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	authority.Invalidate("sess-1")

	conn := dialWS(t, srv.URL)

	writeClientFrame(t, conn, ClientFrame{Action: ActionSubscribe, SessionID: "sess-1", Token: tok})
	frame := readServerFrame(t, conn)
	if frame.Type != TypeError {
		t.Fatalf("revoked token: expected error frame, got %+v", frame)
	}
}
