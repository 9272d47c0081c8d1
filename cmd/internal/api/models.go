package api

import (
	"time"

	"nestwatch/cmd/internal/session"
)

type startRequest struct {
	BookingID   string `json:"bookingId"`
	SitterID    string `json:"sitterId"`
	ParentID    string `json:"parentId"`
	IntervalSec *int64 `json:"intervalSec"`
	GraceSec    *int64 `json:"graceSec"`
}

type startResponse struct {
	SessionID   string         `json:"sessionId"`
	Token       string         `json:"token"`
	StartedAt   time.Time      `json:"startedAt"`
	IntervalSec int64          `json:"intervalSec"`
	GraceSec    int64          `json:"graceSec"`
	Status      session.Status `json:"status"`
}

type checkInResponse struct {
	OK            bool           `json:"ok"`
	LastCheckInAt time.Time      `json:"lastCheckInAt"`
	Status        session.Status `json:"status"`
	Token         string         `json:"token"`
}

type stopResponse struct {
	OK     bool           `json:"ok"`
	Status session.Status `json:"status"`
}

type statusResponse struct {
	SessionID     string         `json:"sessionId"`
	Status        session.Status `json:"status"`
	CountdownSec  int64          `json:"countdownSec"`
	LastCheckInAt time.Time      `json:"lastCheckInAt"`
	IntervalSec   int64          `json:"intervalSec"`
}

type eventsResponse struct {
	SessionID string          `json:"sessionId"`
	Events    []session.Event `json:"events"`
}

type shareRequest struct {
	Contacts []string `json:"contacts"`
}

type geoRequest struct {
	Enabled bool              `json:"enabled"`
	Radius  float64           `json:"radius"`
	Center  *session.GeoPoint `json:"center"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

type verifyResponse struct {
	Verified bool    `json:"verified"`
	Score    float64 `json:"score"`
}

type triggerRequest struct {
	SessionID string            `json:"sessionId"`
	Contacts  []string          `json:"contacts"`
	Message   string            `json:"message"`
	Location  *session.GeoPoint `json:"location"`
}
