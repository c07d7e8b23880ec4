package domain

import "time"

const (
	ActionLoginSuccess   = "login_success"
	ActionLoginFailed    = "login_failed"
	ActionLogout         = "logout"
	ActionBookingUpdated = "booking_updated"
	ActionBookingDeleted = "booking_deleted"
)

const (
	ResourceAdmins   = "admins"
	ResourceBookings = "bookings"
)

// AuditLog is an append-only security record. AdminID is nil for anonymous
// actions such as a failed login for an unknown username.
type AuditLog struct {
	ID           string         `json:"id"`
	AdminID      *string        `json:"adminId"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resourceType"`
	ResourceID   *string        `json:"resourceId"`
	OldValues    map[string]any `json:"oldValues"`
	NewValues    map[string]any `json:"newValues"`
	IPAddress    string         `json:"ipAddress"`
	UserAgent    string         `json:"userAgent"`
	CreatedAt    time.Time      `json:"createdAt"`
}
