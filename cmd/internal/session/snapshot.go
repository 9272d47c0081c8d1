package session

import (
	"context"
	"time"
)

// Record is the serialized form of one session inside a snapshot.
type Record struct {
	ID        string `json:"id"`
	BookingID string `json:"bookingId,omitempty"`
	SitterID  string `json:"sitterId,omitempty"`
	ParentID  string `json:"parentId,omitempty"`

	StartedAt     time.Time `json:"startedAt"`
	LastCheckInAt time.Time `json:"lastCheckInAt"`
	IntervalSec   int64     `json:"intervalSec"`
	GraceSec      int64     `json:"graceSec"`

	Status    Status   `json:"status"`
	ShareList []string `json:"shareList,omitempty"`
	Geo       Geo      `json:"geo"`
}

// Snapshot is the full durable state: every known session, terminal ones
// included. It is written after mutations and read once at startup. Losing
// events since the last write on crash is acceptable; this is deliberately
// not a WAL.
type Snapshot struct {
	SavedAt  time.Time `json:"savedAt"`
	Sessions []Record  `json:"sessions"`
}

// SnapshotStore abstracts snapshot persistence so the file-based default can
// be swapped for Postgres or Redis without touching registry logic.
type SnapshotStore interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context) (Snapshot, error)
	Close() error
}

// record converts a session to its serialized form. Callers must hold s.mu.
func (s *Session) record() Record {
	share := make([]string, len(s.ShareList))
	copy(share, s.ShareList)

	return Record{
		ID:            s.ID,
		BookingID:     s.BookingID,
		SitterID:      s.SitterID,
		ParentID:      s.ParentID,
		StartedAt:     s.StartedAt,
		LastCheckInAt: s.LastCheckInAt,
		IntervalSec:   int64(s.Interval / time.Second),
		GraceSec:      int64(s.Grace / time.Second),
		Status:        s.Stored,
		ShareList:     share,
		Geo:           s.Geo,
	}
}

func sessionFromRecord(r Record) *Session {
	status := r.Status
	switch status {
	case StatusActive, StatusMissed, StatusStopped:
	default:
		status = StatusActive
	}

	return &Session{
		ID:            r.ID,
		BookingID:     r.BookingID,
		SitterID:      r.SitterID,
		ParentID:      r.ParentID,
		StartedAt:     r.StartedAt,
		LastCheckInAt: r.LastCheckInAt,
		Interval:      time.Duration(r.IntervalSec) * time.Second,
		Grace:         time.Duration(r.GraceSec) * time.Second,
		Stored:        status,
		ShareList:     r.ShareList,
		Geo:           r.Geo,
	}
}
