package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"nestwatch/cmd/internal/metrics"
)

const (
	maxIdentifierLen = 128
	maxShareContacts = 20

	snapshotSaveTimeout = 5 * time.Second
)

// Broadcaster fans an event out to the live subscribers of one session.
// Implementations must not block; the registry calls this while holding the
// session's lock.
type Broadcaster interface {
	Broadcast(sessionID, eventType string, payload map[string]any)
}

// TokenIssuer mints and revokes the single current token of a session.
type TokenIssuer interface {
	Issue(sessionID string) (string, error)
	Invalidate(sessionID string)
}

// Registry is the authoritative owner of all sessions.
//
// Mutations on one session are serialized by that session's lock; the registry
// lock only guards the id map. Snapshots are written by a single background
// writer that coalesces dirty notifications, so persistence never reorders
// ahead of the mutation that triggered it.
type Registry struct {
	log       *slog.Logger
	tokens    TokenIssuer
	events    *EventLog
	snapshots SnapshotStore
	broadcast Broadcaster

	now func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session

	dirty     chan struct{}
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewRegistry constructs a Registry and starts its snapshot writer.
// Nil collaborators fall back to no-op implementations for dev and tests.
func NewRegistry(log *slog.Logger, tokens TokenIssuer, events *EventLog, snapshots SnapshotStore, broadcast Broadcaster) *Registry {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if tokens == nil {
		tokens = nopIssuer{}
	}
	if events == nil {
		events = NewEventLog(0)
	}
	if snapshots == nil {
		snapshots = nopSnapshotStore{}
	}
	if broadcast == nil {
		broadcast = nopBroadcaster{}
	}

	r := &Registry{
		log:       log,
		tokens:    tokens,
		events:    events,
		snapshots: snapshots,
		broadcast: broadcast,
		now:       func() time.Time { return time.Now().UTC() },
		sessions:  make(map[string]*Session),
		dirty:     make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	go r.persistLoop()
	return r
}

// Close stops the snapshot writer after a final flush. Idempotent.
func (r *Registry) Close() error {
	r.closeOnce.Do(func() { close(r.stop) })
	<-r.done
	return nil
}

// RestoreFrom rebuilds the in-memory state from the last snapshot.
// Call once at startup, before serving requests.
func (r *Registry) RestoreFrom(ctx context.Context) error {
	snap, err := r.snapshots.Load(ctx)
	if err != nil {
		return fmt.Errorf("snapshot load: %w", err)
	}

	live := 0
	r.mu.Lock()
	for _, rec := range snap.Sessions {
		if rec.ID == "" {
			continue
		}
		s := sessionFromRecord(rec)
		r.sessions[s.ID] = s
		if s.Stored != StatusStopped {
			live++
		}
	}
	total := len(r.sessions)
	r.mu.Unlock()

	metrics.SessionsActive.Set(float64(live))
	if total > 0 {
		r.log.Info("registry.restored", "sessions", total, "live", live, "saved_at", snap.SavedAt)
	}
	return nil
}

// StartInput carries the validated parameters for a new session.
type StartInput struct {
	BookingID string
	SitterID  string
	ParentID  string
	Interval  time.Duration
	Grace     time.Duration
}

// Started is the result of a successful Start.
type Started struct {
	Session Record
	Token   string
}

// Start creates a session in active status, mints its initial token, records
// the start event, and schedules a snapshot.
func (r *Registry) Start(in StartInput) (Started, error) {
	if err := validateStart(in); err != nil {
		return Started{}, err
	}

	now := r.now()
	id, err := NewSessionID(now)
	if err != nil {
		return Started{}, fmt.Errorf("session id: %w", err)
	}

	token, err := r.tokens.Issue(id)
	if err != nil {
		return Started{}, fmt.Errorf("mint token: %w", err)
	}

	s := &Session{
		ID:            id,
		BookingID:     in.BookingID,
		SitterID:      in.SitterID,
		ParentID:      in.ParentID,
		StartedAt:     now,
		LastCheckInAt: now,
		Interval:      in.Interval,
		Grace:         in.Grace,
		Stored:        StatusActive,
		ShareList:     []string{},
	}

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()

	s.mu.Lock()
	rec := s.record()
	r.emitLocked(s, EventStart, EventStart, map[string]any{
		"bookingId":   in.BookingID,
		"sitterId":    in.SitterID,
		"parentId":    in.ParentID,
		"intervalSec": int64(in.Interval / time.Second),
		"graceSec":    int64(in.Grace / time.Second),
	})
	s.mu.Unlock()

	r.markDirty()
	metrics.SessionsStarted.Inc()
	metrics.SessionsActive.Inc()

	r.log.Info("session.start", "session_id", id, "interval", in.Interval, "grace", in.Grace)
	return Started{Session: rec, Token: token}, nil
}

// CheckInResult is the outcome of an accepted check-in.
type CheckInResult struct {
	LastCheckInAt time.Time
	Status        Status
	Token         string
}

// CheckIn records a heartbeat: it resets the liveness clock, forces the
// session back to active, and rotates the session token. Rotation happens
// under the session lock so two racing check-ins can never both hold a
// current token.
func (r *Registry) CheckIn(id string) (CheckInResult, error) {
	s, err := r.get(id)
	if err != nil {
		return CheckInResult{}, err
	}

	s.mu.Lock()
	if s.Stored == StatusStopped {
		s.mu.Unlock()
		return CheckInResult{}, ErrAlreadyStopped
	}

	// Mint the rotated token before touching any state, so a failed mint
	// leaves the session exactly as it was: no clock reset, no event, no
	// snapshot, no broadcast.
	token, err := r.tokens.Issue(id)
	if err != nil {
		s.mu.Unlock()
		return CheckInResult{}, fmt.Errorf("rotate token: %w", err)
	}

	now := r.now()
	s.LastCheckInAt = now
	s.Stored = StatusActive

	r.emitLocked(s, EventCheckIn, EventCheckIn, map[string]any{
		"lastCheckInAt": now,
	})
	s.mu.Unlock()

	r.markDirty()
	metrics.CheckIns.Inc()

	return CheckInResult{LastCheckInAt: now, Status: StatusActive, Token: token}, nil
}

// Stop moves a session to its terminal state and revokes its token.
// A second Stop returns ErrAlreadyStopped rather than failing hard.
func (r *Registry) Stop(id string) error {
	s, err := r.get(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.Stored == StatusStopped {
		s.mu.Unlock()
		return ErrAlreadyStopped
	}
	s.Stored = StatusStopped
	r.tokens.Invalidate(id)
	r.emitLocked(s, EventStop, EventStop, nil)
	s.mu.Unlock()

	r.markDirty()
	metrics.SessionsActive.Dec()

	r.log.Info("session.stop", "session_id", id)
	return nil
}

// StatusView is a consistent read of one session's liveness.
type StatusView struct {
	SessionID     string
	Status        Status
	Countdown     time.Duration
	LastCheckInAt time.Time
	Interval      time.Duration
}

// StatusOf computes the current status from elapsed time, so the answer is
// correct even if the sweep has not ticked yet.
func (r *Registry) StatusOf(id string) (StatusView, error) {
	s, err := r.get(id)
	if err != nil {
		return StatusView{}, err
	}

	now := r.now()
	s.mu.Lock()
	view := StatusView{
		SessionID:     s.ID,
		Status:        s.computedStatus(now),
		Countdown:     s.countdown(now),
		LastCheckInAt: s.LastCheckInAt,
		Interval:      s.Interval,
	}
	s.mu.Unlock()
	return view, nil
}

// UpdateShareList overwrites the session's contact list wholesale.
func (r *Registry) UpdateShareList(id string, contacts []string) error {
	if len(contacts) > maxShareContacts {
		return fmt.Errorf("%w: too many contacts (max %d)", ErrValidation, maxShareContacts)
	}
	for _, c := range contacts {
		if c == "" || len(c) > maxIdentifierLen {
			return fmt.Errorf("%w: bad contact identifier", ErrValidation)
		}
	}

	s, err := r.get(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.Stored == StatusStopped {
		s.mu.Unlock()
		return ErrAlreadyStopped
	}
	s.ShareList = append([]string(nil), contacts...)
	r.emitLocked(s, EventShareUpdate, EventShareUpdate, map[string]any{
		"contacts": append([]string(nil), contacts...),
	})
	s.mu.Unlock()

	r.markDirty()
	return nil
}

// UpdateGeo overwrites the session's geofence descriptor.
func (r *Registry) UpdateGeo(id string, g Geo) error {
	if g.RadiusMeters < 0 {
		return fmt.Errorf("%w: negative radius", ErrValidation)
	}
	if g.Enabled && g.Center == nil {
		return fmt.Errorf("%w: enabled geofence needs a center", ErrValidation)
	}

	s, err := r.get(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.Stored == StatusStopped {
		s.mu.Unlock()
		return ErrAlreadyStopped
	}
	s.Geo = g
	payload := map[string]any{"enabled": g.Enabled, "radiusMeters": g.RadiusMeters}
	if g.Center != nil {
		payload["center"] = *g.Center
	}
	r.emitLocked(s, EventGeoUpdate, EventGeoUpdate, payload)
	s.mu.Unlock()

	r.markDirty()
	return nil
}

// Events returns the session's bounded history, most-recent-first.
func (r *Registry) Events(id string) ([]Event, error) {
	if _, err := r.get(id); err != nil {
		return nil, err
	}
	return r.events.List(id), nil
}

// RecordPanic appends the panic event and broadcasts it to live subscribers.
// The local record is authoritative; it succeeds even for stopped sessions
// and regardless of any downstream delivery outcome.
func (r *Registry) RecordPanic(id string, payload map[string]any) error {
	s, err := r.get(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	r.emitLocked(s, EventPanic, BroadcastPanic, payload)
	s.mu.Unlock()

	r.markDirty()
	metrics.PanicTriggers.Inc()
	return nil
}

// RecordArrival appends an arrival-verification outcome to the session history.
func (r *Registry) RecordArrival(id string, verified bool, score float64) error {
	s, err := r.get(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	r.emitLocked(s, EventArrival, EventArrival, map[string]any{
		"verified": verified,
		"score":    score,
	})
	s.mu.Unlock()

	r.markDirty()
	return nil
}

// MarkMissed promotes a session to missed if its computed status says so and
// the transition has not been emitted yet. It reports whether it fired, so
// the sweep emits exactly one missed event per miss.
func (r *Registry) MarkMissed(id string) (bool, error) {
	s, err := r.get(id)
	if err != nil {
		return false, err
	}

	now := r.now()
	s.mu.Lock()
	if s.Stored != StatusActive || s.computedStatus(now) != StatusMissed {
		s.mu.Unlock()
		return false, nil
	}
	s.Stored = StatusMissed
	r.emitLocked(s, EventMissed, EventMissed, map[string]any{
		"lastCheckInAt": s.LastCheckInAt,
		"intervalSec":   int64(s.Interval / time.Second),
	})
	s.mu.Unlock()

	r.markDirty()
	metrics.MissedTransitions.Inc()

	r.log.Info("session.missed", "session_id", id)
	return true, nil
}

// IDs returns a point-in-time copy of all known session ids. The sweep
// iterates this instead of holding the registry lock for a full pass.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		out = append(out, id)
	}
	return out
}

// ---- internals ----

func (r *Registry) get(id string) (*Session, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	r.mu.RLock()
	s := r.sessions[id]
	r.mu.RUnlock()
	if s == nil {
		return nil, ErrNotFound
	}
	return s, nil
}

// emitLocked appends an event and broadcasts it. Callers must hold s.mu; the
// broadcaster contract is non-blocking so holding the lock here is safe.
func (r *Registry) emitLocked(s *Session, logType, pushType string, payload map[string]any) {
	r.events.Append(s.ID, Event{TS: r.now(), Type: logType, Payload: payload})
	r.broadcast.Broadcast(s.ID, pushType, payload)
}

func (r *Registry) markDirty() {
	select {
	case r.dirty <- struct{}{}:
	default:
	}
}

func (r *Registry) persistLoop() {
	defer close(r.done)

	for {
		select {
		case <-r.stop:
			// Final flush so a clean shutdown loses nothing.
			r.saveSnapshot()
			return
		case <-r.dirty:
			r.saveSnapshot()
		}
	}
}

// saveSnapshot is best-effort: a failed write is logged and counted, never
// surfaced to the mutation that caused it.
func (r *Registry) saveSnapshot() {
	snap := Snapshot{SavedAt: r.now()}

	r.mu.RLock()
	snap.Sessions = make([]Record, 0, len(r.sessions))
	for _, s := range r.sessions {
		s.mu.Lock()
		snap.Sessions = append(snap.Sessions, s.record())
		s.mu.Unlock()
	}
	r.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), snapshotSaveTimeout)
	defer cancel()

	if err := r.snapshots.Save(ctx, snap); err != nil {
		metrics.SnapshotFailures.Inc()
		r.log.Error("snapshot.save.fail", "err", err, "sessions", len(snap.Sessions))
	}
}

func validateStart(in StartInput) error {
	for _, id := range []string{in.BookingID, in.SitterID, in.ParentID} {
		if len(id) > maxIdentifierLen {
			return fmt.Errorf("%w: identifier too long (max %d)", ErrValidation, maxIdentifierLen)
		}
	}
	if in.Interval < MinInterval || in.Interval > MaxInterval {
		return fmt.Errorf("%w: intervalSec out of range [%d, %d]",
			ErrValidation, int64(MinInterval/time.Second), int64(MaxInterval/time.Second))
	}
	if in.Grace < MinGrace || in.Grace > MaxGrace {
		return fmt.Errorf("%w: graceSec out of range [%d, %d]",
			ErrValidation, int64(MinGrace/time.Second), int64(MaxGrace/time.Second))
	}
	return nil
}

// ---- no-op fallbacks ----

type nopBroadcaster struct{}

func (nopBroadcaster) Broadcast(string, string, map[string]any) {}

type nopIssuer struct{}

func (nopIssuer) Issue(string) (string, error) { return "", nil }
func (nopIssuer) Invalidate(string)            {}

type nopSnapshotStore struct{}

func (nopSnapshotStore) Save(context.Context, Snapshot) error   { return nil }
func (nopSnapshotStore) Load(context.Context) (Snapshot, error) { return Snapshot{}, nil }
func (nopSnapshotStore) Close() error                           { return nil }
