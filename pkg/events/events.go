package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/diagnosis/hanguk-bookings/pkg/logger"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data any) error
	Close() error
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url,
		nats.Name("hanguk-bookings"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject, "bytes", len(payload))

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Close() error {
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
		return err
	}
	return nil
}

// NopPublisher discards events; used when NATS_URL is unset.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, any) error { return nil }
func (NopPublisher) Close() error                              { return nil }

// Subjects
const (
	BookingCreated = "booking.created"
	BookingUpdated = "booking.updated"
	BookingDeleted = "booking.deleted"
	AuditRecorded  = "audit.recorded"
)

// Event payloads carry identifiers and state, never guest contact details.
type BookingCreatedEvent struct {
	BookingID string    `json:"booking_id"`
	Date      string    `json:"date"`
	Time      string    `json:"time"`
	Guests    int       `json:"guests"`
	CreatedAt time.Time `json:"created_at"`
}

type BookingUpdatedEvent struct {
	BookingID  string    `json:"booking_id"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	ActorID    string    `json:"actor_id"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type BookingDeletedEvent struct {
	BookingID string    `json:"booking_id"`
	ActorID   string    `json:"actor_id"`
	DeletedAt time.Time `json:"deleted_at"`
}

type AuditRecordedEvent struct {
	AuditID      string    `json:"audit_id"`
	Action       string    `json:"action"`
	ResourceType string    `json:"resource_type"`
	ResourceID   *string   `json:"resource_id,omitempty"`
	AdminID      *string   `json:"admin_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
