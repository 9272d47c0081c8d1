package realtime

import (
	"errors"
	"fmt"
	"strings"
)

// Wire protocol of the notification socket.
//
// The client sends exactly one kind of frame: a subscribe request carrying a
// session id and its current token. The server answers with "subscribed" or a
// typed error frame (the connection stays open so the client may retry), then
// pushes session events with no acknowledgment required.

// ActionSubscribe is the only client-initiated action.
const ActionSubscribe = "subscribe"

// Server frame types that are not session events.
const (
	TypeSubscribed = "subscribed"
	TypeError      = "error"
)

// ClientFrame is a message from client to server.
type ClientFrame struct {
	Action    string `json:"action"`
	SessionID string `json:"sessionId,omitempty"`
	Token     string `json:"token,omitempty"`
}

// Validate performs structural validation before any state is touched.
func (f ClientFrame) Validate() error {
	action := strings.TrimSpace(f.Action)
	if action == "" {
		return errors.New("missing field: action")
	}
	if action != ActionSubscribe {
		return fmt.Errorf("unknown action: %q", action)
	}
	if strings.TrimSpace(f.SessionID) == "" {
		return errors.New("missing field: sessionId")
	}
	if strings.TrimSpace(f.Token) == "" {
		return errors.New("missing field: token")
	}
	return nil
}

// ServerFrame is a message from server to client: a subscribe confirmation,
// an error, or an event push (Type carries the event type).
type ServerFrame struct {
	Type      string         `json:"type"`
	SessionID string         `json:"sessionId,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Error     string         `json:"error,omitempty"`
}

func subscribedFrame(sessionID string) ServerFrame {
	return ServerFrame{Type: TypeSubscribed, SessionID: sessionID}
}

func errorFrame(msg string) ServerFrame {
	return ServerFrame{Type: TypeError, Error: msg}
}

func eventFrame(sessionID, eventType string, payload map[string]any) ServerFrame {
	return ServerFrame{Type: eventType, SessionID: sessionID, Payload: payload}
}
