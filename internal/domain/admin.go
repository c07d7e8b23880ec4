package domain

import "time"

// Admin is a staff account. Accounts are created out-of-band.
type Admin struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	Email        string     `json:"email"`
	Role         string     `json:"role"`
	IsActive     bool       `json:"isActive"`
	LastLogin    *time.Time `json:"lastLogin"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleStaff   = "staff"
)

func IsValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleManager, RoleStaff:
		return true
	}
	return false
}

// AuthToken is a live session row. A token is valid only while its row exists
// and ExpiresAt is in the future.
type AuthToken struct {
	ID        string    `json:"id"`
	AdminID   string    `json:"adminId"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	IPAddress string    `json:"ipAddress"`
	UserAgent string    `json:"userAgent"`
	CreatedAt time.Time `json:"createdAt"`
}

type LoginRequest struct {
	Username string
	Password string
}

type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Admin     *Admin
}

// RequestMeta identifies the client behind a request for audit purposes.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}
