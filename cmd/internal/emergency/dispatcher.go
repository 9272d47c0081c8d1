// Package emergency implements the panic trigger path: record locally first,
// then notify contacts through an external messaging collaborator.
//
// The local event log entry and subscriber broadcast are authoritative;
// downstream delivery is best-effort and its failures are logged, never
// surfaced to the trigger call.
package emergency

import (
	"context"
	"log/slog"
	"time"

	"nestwatch/cmd/internal/metrics"
	"nestwatch/cmd/internal/session"
)

const deliveryTimeout = 15 * time.Second

// PanicRecorder is the local, must-succeed half of a trigger. The session
// registry implements it: append event, persist, broadcast.
type PanicRecorder interface {
	RecordPanic(sessionID string, payload map[string]any) error
}

// TriggerInput describes one panic trigger.
type TriggerInput struct {
	SessionID string
	Contacts  []string
	Message   string
	Location  *session.GeoPoint
}

// Dispatcher fans emergency alerts out to contacts.
type Dispatcher struct {
	log       *slog.Logger
	recorder  PanicRecorder
	messenger Messenger
}

// NewDispatcher constructs a Dispatcher. A nil messenger downgrades to
// log-only delivery (the local record still happens).
func NewDispatcher(log *slog.Logger, recorder PanicRecorder, messenger Messenger) *Dispatcher {
	if messenger == nil {
		messenger = LogMessenger{Log: log}
	}
	return &Dispatcher{log: log, recorder: recorder, messenger: messenger}
}

// Trigger records the panic locally, then asynchronously notifies every
// contact. The local record must succeed; delivery failures do not roll it
// back and do not fail the call.
func (d *Dispatcher) Trigger(in TriggerInput) error {
	payload := map[string]any{
		"contacts": len(in.Contacts),
	}
	if in.Message != "" {
		payload["message"] = in.Message
	}
	if in.Location != nil {
		payload["location"] = *in.Location
	}

	if err := d.recorder.RecordPanic(in.SessionID, payload); err != nil {
		return err
	}

	d.log.Info("emergency.trigger", "session_id", in.SessionID, "contacts", len(in.Contacts))

	// Detached context: delivery outlives the HTTP request that triggered it.
	go d.deliver(in)
	return nil
}

func (d *Dispatcher) deliver(in TriggerInput) {
	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()

	alert := Alert{
		SessionID: in.SessionID,
		Message:   in.Message,
		Location:  in.Location,
	}

	for _, contact := range in.Contacts {
		if err := d.messenger.Send(ctx, contact, alert); err != nil {
			metrics.EmergencyDeliveryFailures.Inc()
			d.log.Error("emergency.delivery.fail", "session_id", in.SessionID, "contact", contact, "err", err)
		}
	}
}
