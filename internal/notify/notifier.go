package notify

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	"sync"
	texttemplate "text/template"
	"time"

	"github.com/diagnosis/hanguk-bookings/internal/domain"
	"github.com/diagnosis/hanguk-bookings/pkg/logger"
	"github.com/diagnosis/hanguk-bookings/pkg/metrics"
)

type kind string

const (
	kindReceived  kind = "received"
	kindConfirmed kind = "confirmed"
	kindCancelled kind = "cancelled"
)

var subjects = map[kind]string{
	kindReceived:  "We received your booking request",
	kindConfirmed: "Your booking is confirmed",
	kindCancelled: "Your booking has been cancelled",
}

var leads = map[kind]string{
	kindReceived:  "Thanks for your booking request. Our team will confirm it shortly.",
	kindConfirmed: "Good news, your table is confirmed. We look forward to seeing you.",
	kindCancelled: "Your booking has been cancelled. Please contact us if this is unexpected.",
}

const textBody = `Hi {{.Name}},

{{.Lead}}

  Date:   {{.Date}}
  Time:   {{.Time}}
  Guests: {{.Guests}}
  Ref:    {{.ID}}

{{.Restaurant}}
`

const htmlBody = `<p>Hi {{.Name}},</p>
<p>{{.Lead}}</p>
<table>
<tr><td>Date</td><td>{{.Date}}</td></tr>
<tr><td>Time</td><td>{{.Time}}</td></tr>
<tr><td>Guests</td><td>{{.Guests}}</td></tr>
<tr><td>Ref</td><td>{{.ID}}</td></tr>
</table>
<p>{{.Restaurant}}</p>`

var (
	textTmpl = texttemplate.Must(texttemplate.New("text").Parse(textBody))
	htmlTmpl = htmltemplate.Must(htmltemplate.New("html").Parse(htmlBody))
)

type view struct {
	ID, Name, Date, Time, Lead, Restaurant string
	Guests                                 int
}

// Notifier sends guest emails in the background. A failed send is logged
// and counted; it never affects the booking operation that triggered it.
type Notifier struct {
	mailer     Mailer
	restaurant string
	timeout    time.Duration
	wg         sync.WaitGroup
}

func New(mailer Mailer, restaurant string) *Notifier {
	return &Notifier{mailer: mailer, restaurant: restaurant, timeout: 15 * time.Second}
}

func (n *Notifier) BookingReceived(ctx context.Context, b domain.Booking) {
	n.send(ctx, kindReceived, b)
}

// BookingStatusChanged emails the guest when a booking becomes confirmed or
// cancelled. Other statuses are internal to the restaurant.
func (n *Notifier) BookingStatusChanged(ctx context.Context, b domain.Booking, from domain.BookingStatus) {
	if b.Status == from {
		return
	}
	switch b.Status {
	case domain.BookingConfirmed:
		n.send(ctx, kindConfirmed, b)
	case domain.BookingCancelled:
		n.send(ctx, kindCancelled, b)
	}
}

// Close waits for in-flight sends or until ctx is done.
func (n *Notifier) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *Notifier) send(ctx context.Context, k kind, b domain.Booking) {
	msg, err := n.compose(k, b)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to render guest email", "kind", k, "booking_id", b.ID, "error", err)
		metrics.GuestEmails.WithLabelValues(string(k), "failed").Inc()
		return
	}

	// The request may finish before the email is sent.
	sendCtx := context.WithoutCancel(ctx)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(sendCtx, n.timeout)
		defer cancel()

		id, err := n.mailer.Send(ctx, msg)
		if err != nil {
			logger.WarnContext(ctx, "Failed to send guest email", "kind", k, "booking_id", b.ID, "error", err)
			metrics.GuestEmails.WithLabelValues(string(k), "failed").Inc()
			return
		}
		logger.DebugContext(ctx, "Guest email sent", "kind", k, "booking_id", b.ID, "message_id", id)
		metrics.GuestEmails.WithLabelValues(string(k), "sent").Inc()
	}()
}

func (n *Notifier) compose(k kind, b domain.Booking) (Message, error) {
	v := view{
		ID:         b.ID,
		Name:       b.Name,
		Date:       b.Date,
		Time:       b.Time,
		Guests:     b.Guests,
		Lead:       leads[k],
		Restaurant: n.restaurant,
	}
	var text, html bytes.Buffer
	if err := textTmpl.Execute(&text, v); err != nil {
		return Message{}, fmt.Errorf("text body: %w", err)
	}
	if err := htmlTmpl.Execute(&html, v); err != nil {
		return Message{}, fmt.Errorf("html body: %w", err)
	}
	return Message{
		ToEmail: b.Email,
		ToName:  b.Name,
		Subject: fmt.Sprintf("%s - %s", n.restaurant, subjects[k]),
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}
