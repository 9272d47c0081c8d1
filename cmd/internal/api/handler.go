// Package api exposes the HTTP surface of the heartbeat core: session
// lifecycle, event history, arrival verification, and the emergency trigger.
// Malformed requests are rejected here, before any state is touched.
package api

import (
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"nestwatch/cmd/internal/emergency"
	"nestwatch/cmd/internal/session"
	"nestwatch/cmd/internal/verify"
)

const (
	maxJSONBody  = 64 << 10 // 64 KiB
	maxImageBody = 8 << 20  // 8 MiB
	maxIDLen     = 128
)

// Handler carries the HTTP handlers and their collaborators.
type Handler struct {
	log        *slog.Logger
	registry   *session.Registry
	verifier   *verify.Verifier
	dispatcher *emergency.Dispatcher
}

// NewHandler constructs the API handler.
func NewHandler(log *slog.Logger, registry *session.Registry, verifier *verify.Verifier, dispatcher *emergency.Dispatcher) *Handler {
	return &Handler{log: log, registry: registry, verifier: verifier, dispatcher: dispatcher}
}

// Register mounts all routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /sessions/start", h.handleStart)
	mux.HandleFunc("POST /sessions/{id}/check-in", h.handleCheckIn)
	mux.HandleFunc("POST /sessions/{id}/stop", h.handleStop)
	mux.HandleFunc("GET /sessions/{id}/status", h.handleStatus)
	mux.HandleFunc("GET /sessions/{id}/events", h.handleEvents)
	mux.HandleFunc("POST /sessions/{id}/share", h.handleShare)
	mux.HandleFunc("POST /sessions/{id}/geo", h.handleGeo)

	mux.HandleFunc("POST /verify/reference/{subjectId}", h.handleStoreReference)
	mux.HandleFunc("DELETE /verify/reference/{subjectId}", h.handleDeleteReference)
	mux.HandleFunc("POST /verify/arrival", h.handleVerifyArrival)

	mux.HandleFunc("POST /emergency/trigger", h.handleTrigger)
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeJSON(w, r, maxJSONBody, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, "invalid JSON body")
		return
	}

	interval := session.DefaultInterval
	if req.IntervalSec != nil {
		interval = time.Duration(*req.IntervalSec) * time.Second
	}
	grace := session.DefaultGrace
	if req.GraceSec != nil {
		grace = time.Duration(*req.GraceSec) * time.Second
	}

	started, err := h.registry.Start(session.StartInput{
		BookingID: strings.TrimSpace(req.BookingID),
		SitterID:  strings.TrimSpace(req.SitterID),
		ParentID:  strings.TrimSpace(req.ParentID),
		Interval:  interval,
		Grace:     grace,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, startResponse{
		SessionID:   started.Session.ID,
		Token:       started.Token,
		StartedAt:   started.Session.StartedAt,
		IntervalSec: started.Session.IntervalSec,
		GraceSec:    started.Session.GraceSec,
		Status:      started.Session.Status,
	})
}

func (h *Handler) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	res, err := h.registry.CheckIn(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, checkInResponse{
		OK:            true,
		LastCheckInAt: res.LastCheckInAt,
		Status:        res.Status,
		Token:         res.Token,
	})
}

func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.registry.Stop(id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stopResponse{OK: true, Status: session.StatusStopped})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	view, err := h.registry.StatusOf(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		SessionID:     view.SessionID,
		Status:        view.Status,
		CountdownSec:  int64(view.Countdown / time.Second),
		LastCheckInAt: view.LastCheckInAt,
		IntervalSec:   int64(view.Interval / time.Second),
	})
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	events, err := h.registry.Events(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eventsResponse{SessionID: id, Events: events})
}

func (h *Handler) handleShare(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req shareRequest
	if err := decodeJSON(w, r, maxJSONBody, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, "invalid JSON body")
		return
	}

	if err := h.registry.UpdateShareList(id, req.Contacts); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (h *Handler) handleGeo(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req geoRequest
	if err := decodeJSON(w, r, maxJSONBody, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, "invalid JSON body")
		return
	}

	err := h.registry.UpdateGeo(id, session.Geo{
		Enabled:      req.Enabled,
		RadiusMeters: req.Radius,
		Center:       req.Center,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (h *Handler) handleStoreReference(w http.ResponseWriter, r *http.Request) {
	subjectID := strings.TrimSpace(r.PathValue("subjectId"))
	if subjectID == "" || len(subjectID) > maxIDLen {
		writeError(w, http.StatusBadRequest, kindValidation, "bad subjectId")
		return
	}

	data, err := readImage(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, "unreadable image body")
		return
	}

	if err := h.verifier.StoreReference(subjectID, data); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (h *Handler) handleDeleteReference(w http.ResponseWriter, r *http.Request) {
	subjectID := strings.TrimSpace(r.PathValue("subjectId"))
	if subjectID == "" || len(subjectID) > maxIDLen {
		writeError(w, http.StatusBadRequest, kindValidation, "bad subjectId")
		return
	}

	h.verifier.DeleteReference(subjectID)
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (h *Handler) handleVerifyArrival(w http.ResponseWriter, r *http.Request) {
	subjectID := strings.TrimSpace(r.URL.Query().Get("subjectId"))
	if subjectID == "" || len(subjectID) > maxIDLen {
		writeError(w, http.StatusBadRequest, kindValidation, "bad subjectId")
		return
	}

	data, err := readImage(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, "unreadable image body")
		return
	}

	res, err := h.verifier.VerifyArrival(subjectID, data)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	// When the caller ties the arrival to a session, the outcome lands in
	// that session's audit trail.
	if sessionID := strings.TrimSpace(r.URL.Query().Get("sessionId")); sessionID != "" {
		if err := h.registry.RecordArrival(sessionID, res.Verified, res.Score); err != nil {
			writeDomainError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, verifyResponse{Verified: res.Verified, Score: res.Score})
}

func (h *Handler) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := decodeJSON(w, r, maxJSONBody, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		writeError(w, http.StatusBadRequest, kindValidation, "missing sessionId")
		return
	}

	err := h.dispatcher.Trigger(emergency.TriggerInput{
		SessionID: strings.TrimSpace(req.SessionID),
		Contacts:  req.Contacts,
		Message:   strings.TrimSpace(req.Message),
		Location:  req.Location,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// ---- helpers ----

func pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" || len(id) > maxIDLen {
		writeError(w, http.StatusBadRequest, kindValidation, "bad session id")
		return "", false
	}
	return id, true
}

func readImage(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	defer func() { _ = r.Body.Close() }()
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxImageBody))
}
