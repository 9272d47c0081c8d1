package session

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Status is the liveness state of a session.
type Status string

const (
	// StatusActive means check-ins are arriving within interval+grace.
	StatusActive Status = "active"
	// StatusMissed means the last check-in is older than interval+grace.
	StatusMissed Status = "missed"
	// StatusStopped is terminal; no further check-ins are accepted.
	StatusStopped Status = "stopped"
)

// Check-in cadence bounds. Inputs outside these ranges are rejected.
const (
	MinInterval = 3 * time.Second
	MaxInterval = 86400 * time.Second

	MinGrace = 0 * time.Second
	MaxGrace = 600 * time.Second

	DefaultInterval = 300 * time.Second
	DefaultGrace    = 60 * time.Second
)

// Event type names (wire-stable, also used as event-log entries).
const (
	EventStart       = "start"
	EventCheckIn     = "check-in"
	EventMissed      = "missed"
	EventStop        = "stop"
	EventShareUpdate = "share_update"
	EventGeoUpdate   = "geo_update"
	EventPanic       = "panic_triggered"
	EventArrival     = "arrival_verification"

	// BroadcastPanic is the push type for live subscribers on a panic trigger.
	// The event log keeps the richer EventPanic name.
	BroadcastPanic = "panic"
)

// GeoPoint is a WGS84 coordinate.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Geo is an optional geofence descriptor attached to a session.
type Geo struct {
	Enabled      bool      `json:"enabled"`
	RadiusMeters float64   `json:"radiusMeters"`
	Center       *GeoPoint `json:"center,omitempty"`
}

// Session is one monitored caregiving window.
//
// Fields are owned by the Registry; other packages read them only through
// Registry operations. mu serializes all mutations of a single session so a
// check-in racing a stop resolves to whichever commits first.
type Session struct {
	mu sync.Mutex

	ID        string
	BookingID string
	SitterID  string
	ParentID  string

	StartedAt     time.Time
	LastCheckInAt time.Time
	Interval      time.Duration
	Grace         time.Duration

	// stored status: ground truth for "stopped", and for active/missed only a
	// marker of whether the missed transition has been emitted. Liveness is
	// always recomputed from timestamps on read.
	Stored Status

	ShareList []string
	Geo       Geo
}

// computedStatus derives the true liveness state at "now".
// Callers must hold s.mu.
func (s *Session) computedStatus(now time.Time) Status {
	if s.Stored == StatusStopped {
		return StatusStopped
	}
	if now.Sub(s.LastCheckInAt) > s.Interval+s.Grace {
		return StatusMissed
	}
	return StatusActive
}

// countdown is the time remaining until the next expected check-in.
// Callers must hold s.mu.
func (s *Session) countdown(now time.Time) time.Duration {
	if s.Stored == StatusStopped {
		return 0
	}
	left := s.Interval - now.Sub(s.LastCheckInAt)
	if left < 0 {
		return 0
	}
	return left
}

// NewSessionID returns a ULID session id (26 chars, lexicographically sortable).
func NewSessionID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
