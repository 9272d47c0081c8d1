package emergency

import (
	"context"
	"fmt"
	"log/slog"

	"nestwatch/cmd/internal/session"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Alert is the content delivered to each contact.
type Alert struct {
	SessionID string
	Message   string
	Location  *session.GeoPoint
}

// Messenger delivers one alert to one contact through an external channel.
type Messenger interface {
	Send(ctx context.Context, contact string, alert Alert) error
}

// SendGridMessenger delivers alerts as email via SendGrid. Contacts are
// email addresses.
type SendGridMessenger struct {
	client *sendgrid.Client
	from   *mail.Email
}

// NewSendGridMessenger constructs a SendGrid-backed messenger.
func NewSendGridMessenger(apiKey, fromName, fromAddr string) *SendGridMessenger {
	return &SendGridMessenger{
		client: sendgrid.NewSendClient(apiKey),
		from:   mail.NewEmail(fromName, fromAddr),
	}
}

// Send delivers one alert email.
func (m *SendGridMessenger) Send(ctx context.Context, contact string, alert Alert) error {
	subject := "Emergency alert"
	body := fmt.Sprintf("Emergency triggered for session %s.", alert.SessionID)
	if alert.Message != "" {
		body += "\n\n" + alert.Message
	}
	if alert.Location != nil {
		body += fmt.Sprintf("\n\nLast known location: %.6f, %.6f", alert.Location.Lat, alert.Location.Lng)
	}

	msg := mail.NewSingleEmail(m.from, subject, mail.NewEmail("", contact), body, "")
	resp, err := m.client.SendWithContext(ctx, msg)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid status %d", resp.StatusCode)
	}
	return nil
}

// LogMessenger is the dev fallback when no delivery channel is configured:
// it logs the alert instead of sending it.
type LogMessenger struct {
	Log *slog.Logger
}

// Send logs the alert.
func (m LogMessenger) Send(_ context.Context, contact string, alert Alert) error {
	if m.Log != nil {
		m.Log.Warn("emergency.delivery.log_only", "session_id", alert.SessionID, "contact", contact)
	}
	return nil
}
