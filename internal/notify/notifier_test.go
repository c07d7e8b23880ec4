package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diagnosis/hanguk-bookings/internal/domain"
	"github.com/diagnosis/hanguk-bookings/pkg/config"
)

type captureMailer struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (m *captureMailer) Send(_ context.Context, msg Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, msg)
	return "msg-1", nil
}

func (m *captureMailer) messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.sent...)
}

func booking(status domain.BookingStatus) domain.Booking {
	return domain.Booking{
		ID:     "b-1",
		Name:   "Sarah <Kim>",
		Email:  "sarah@example.com",
		Date:   "2026-10-20",
		Time:   "19:00",
		Guests: 4,
		Status: status,
	}
}

func closeNotifier(t *testing.T, n *Notifier) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, n.Close(ctx))
}

func TestNotifier_BookingReceived(t *testing.T) {
	m := &captureMailer{}
	n := New(m, "HanGuk Bites")

	n.BookingReceived(context.Background(), booking(domain.BookingPending))
	closeNotifier(t, n)

	sent := m.messages()
	require.Len(t, sent, 1)
	msg := sent[0]
	assert.Equal(t, "sarah@example.com", msg.ToEmail)
	assert.Equal(t, "HanGuk Bites - We received your booking request", msg.Subject)
	assert.Contains(t, msg.Text, "Guests: 4")
	assert.Contains(t, msg.Text, "2026-10-20")
	assert.Contains(t, msg.HTML, "Sarah &lt;Kim&gt;")
	assert.NotContains(t, msg.HTML, "<Kim>")
}

func TestNotifier_StatusChanged(t *testing.T) {
	tests := []struct {
		name    string
		from    domain.BookingStatus
		to      domain.BookingStatus
		subject string
	}{
		{"confirmed", domain.BookingPending, domain.BookingConfirmed, "HanGuk Bites - Your booking is confirmed"},
		{"cancelled", domain.BookingConfirmed, domain.BookingCancelled, "HanGuk Bites - Your booking has been cancelled"},
		{"completed is silent", domain.BookingConfirmed, domain.BookingCompleted, ""},
		{"no show is silent", domain.BookingConfirmed, domain.BookingNoShow, ""},
		{"unchanged is silent", domain.BookingConfirmed, domain.BookingConfirmed, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &captureMailer{}
			n := New(m, "HanGuk Bites")

			n.BookingStatusChanged(context.Background(), booking(tt.to), tt.from)
			closeNotifier(t, n)

			sent := m.messages()
			if tt.subject == "" {
				assert.Empty(t, sent)
				return
			}
			require.Len(t, sent, 1)
			assert.Equal(t, tt.subject, sent[0].Subject)
		})
	}
}

func TestNotifier_SendFailureIsSwallowed(t *testing.T) {
	m := &captureMailer{err: errors.New("smtp down")}
	n := New(m, "HanGuk Bites")

	assert.NotPanics(t, func() {
		n.BookingReceived(context.Background(), booking(domain.BookingPending))
	})
	closeNotifier(t, n)
	assert.Empty(t, m.messages())
}

func TestNewMailer(t *testing.T) {
	m, err := NewMailer(config.MailConfig{})
	require.NoError(t, err)
	assert.Nil(t, m)

	m, err = NewMailer(config.MailConfig{Provider: "log"})
	require.NoError(t, err)
	assert.IsType(t, LogMailer{}, m)

	m, err = NewMailer(config.MailConfig{Provider: "smtp", FromEmail: "bookings@hangukbites.com", SMTPHost: "localhost", SMTPPort: 1025})
	require.NoError(t, err)
	assert.IsType(t, &SMTPMailer{}, m)

	m, err = NewMailer(config.MailConfig{Provider: "mailersend", MailerSendAPIKey: "mlsn.key", FromEmail: "bookings@hangukbites.com"})
	require.NoError(t, err)
	assert.IsType(t, &MailerSend{}, m)

	_, err = NewMailer(config.MailConfig{Provider: "mailersend"})
	assert.Error(t, err)

	_, err = NewMailer(config.MailConfig{Provider: "pigeon"})
	assert.Error(t, err)
}

func TestBuildMIME(t *testing.T) {
	body := string(buildMIME("bookings@hangukbites.com", "sarah@example.com", Message{
		Subject: "Hello",
		Text:    "plain",
		HTML:    "<p>rich</p>",
	}))
	assert.Contains(t, body, "To: sarah@example.com\r\n")
	assert.Contains(t, body, "Subject: Hello\r\n")
	assert.Contains(t, body, "multipart/alternative; boundary="+boundary)
	assert.Contains(t, body, "plain")
	assert.Contains(t, body, "<p>rich</p>")
}
