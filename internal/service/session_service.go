package service

import (
	"context"
	"fmt"
	"time"

	"github.com/diagnosis/hanguk-bookings/internal/domain"
	"github.com/diagnosis/hanguk-bookings/internal/repo"
	"github.com/diagnosis/hanguk-bookings/internal/validation"
	"github.com/diagnosis/hanguk-bookings/pkg/auth"
	"github.com/diagnosis/hanguk-bookings/pkg/logger"
	"github.com/diagnosis/hanguk-bookings/pkg/metrics"
)

var (
	errTokenInvalid  = &domain.AuthError{Message: "Invalid or expired token."}
	errTokenRevoked  = &domain.AuthError{Message: "Token has been revoked or expired."}
	errAdminInactive = &domain.AuthError{Message: "User not found or inactive."}
)

type SessionService interface {
	Login(ctx context.Context, in validation.LoginInput, meta domain.RequestMeta) (*domain.LoginResult, error)
	// Authenticate requires both a valid signature and a live session row.
	Authenticate(ctx context.Context, token string) (*domain.Admin, error)
	// Logout revokes token on a best-effort basis and never fails.
	Logout(ctx context.Context, admin *domain.Admin, token string, meta domain.RequestMeta)
	Profile(ctx context.Context, adminID string) (*domain.Admin, error)
}

type SessionConfig struct {
	Secret   string
	TokenTTL time.Duration
	Now      func() time.Time
}

type sessionService struct {
	admins    repo.AdminStore
	tokens    repo.TokenStore
	validator *validation.Validator
	audit     Auditor
	secret    string
	ttl       time.Duration
	now       func() time.Time
	dummyHash string
}

func NewSessionService(
	admins repo.AdminStore,
	tokens repo.TokenStore,
	validator *validation.Validator,
	audit Auditor,
	cfg SessionConfig,
) (SessionService, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("session secret is empty")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	// Unknown usernames are checked against this hash so both failure paths
	// cost one password verification.
	dummy, err := auth.HashPassword("hanguk-bites-unknown-user")
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	return &sessionService{
		admins:    admins,
		tokens:    tokens,
		validator: validator,
		audit:     audit,
		secret:    cfg.Secret,
		ttl:       cfg.TokenTTL,
		now:       cfg.Now,
		dummyHash: dummy,
	}, nil
}

func (s *sessionService) Login(ctx context.Context, in validation.LoginInput, meta domain.RequestMeta) (*domain.LoginResult, error) {
	req, err := s.validator.Login(in)
	if err != nil {
		return nil, err
	}

	admin, err := s.admins.FindActiveByUsername(ctx, req.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to load admin: %w", err)
	}
	if admin == nil {
		_, _ = auth.VerifyPassword(s.dummyHash, req.Password)
		metrics.LoginAttempts.WithLabelValues("unknown_user").Inc()
		s.audit.Record(ctx, domain.AuditLog{
			Action:       domain.ActionLoginFailed,
			ResourceType: domain.ResourceAdmins,
			NewValues:    map[string]any{"username": req.Username},
			IPAddress:    meta.IPAddress,
			UserAgent:    meta.UserAgent,
		})
		return nil, domain.ErrInvalidCredentials
	}

	ok, err := auth.VerifyPassword(admin.PasswordHash, req.Password)
	if err != nil {
		logger.ErrorContext(ctx, "Password verification failed", "admin_id", admin.ID, "error", err)
	}
	if !ok {
		metrics.LoginAttempts.WithLabelValues("bad_password").Inc()
		adminID := admin.ID
		s.audit.Record(ctx, domain.AuditLog{
			AdminID:      &adminID,
			Action:       domain.ActionLoginFailed,
			ResourceType: domain.ResourceAdmins,
			ResourceID:   &adminID,
			IPAddress:    meta.IPAddress,
			UserAgent:    meta.UserAgent,
		})
		return nil, domain.ErrInvalidCredentials
	}

	now := s.now().UTC()
	token, expiresAt, err := auth.NewAccessToken(admin.ID, admin.Username, admin.Role, s.secret, now, s.ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	if err := s.tokens.Create(ctx, &domain.AuthToken{
		AdminID:   admin.ID,
		Token:     token,
		ExpiresAt: expiresAt,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		CreatedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	if err := s.admins.TouchLastLogin(ctx, admin.ID, now); err != nil {
		logger.WarnContext(ctx, "Failed to update last login", "admin_id", admin.ID, "error", err)
	} else {
		admin.LastLogin = &now
	}

	metrics.LoginAttempts.WithLabelValues("success").Inc()
	adminID := admin.ID
	s.audit.Record(ctx, domain.AuditLog{
		AdminID:      &adminID,
		Action:       domain.ActionLoginSuccess,
		ResourceType: domain.ResourceAdmins,
		ResourceID:   &adminID,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
	})

	return &domain.LoginResult{Token: token, ExpiresAt: expiresAt, Admin: admin}, nil
}

func (s *sessionService) Authenticate(ctx context.Context, token string) (*domain.Admin, error) {
	now := s.now()
	claims, err := auth.Parse(token, s.secret, now)
	if err != nil {
		return nil, errTokenInvalid
	}

	session, err := s.tokens.FindLive(ctx, token, now)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if session == nil {
		return nil, errTokenRevoked
	}

	admin, err := s.admins.FindByID(ctx, claims.AdminID)
	if err != nil {
		return nil, fmt.Errorf("failed to load admin: %w", err)
	}
	if admin == nil || !admin.IsActive {
		return nil, errAdminInactive
	}
	return admin, nil
}

func (s *sessionService) Logout(ctx context.Context, admin *domain.Admin, token string, meta domain.RequestMeta) {
	if err := s.tokens.Delete(ctx, token); err != nil {
		logger.ErrorContext(ctx, "Failed to revoke session", "admin_id", admin.ID, "error", err)
	}

	adminID := admin.ID
	s.audit.Record(ctx, domain.AuditLog{
		AdminID:      &adminID,
		Action:       domain.ActionLogout,
		ResourceType: domain.ResourceAdmins,
		ResourceID:   &adminID,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
	})
}

func (s *sessionService) Profile(ctx context.Context, adminID string) (*domain.Admin, error) {
	admin, err := s.admins.FindByID(ctx, adminID)
	if err != nil {
		return nil, fmt.Errorf("failed to load admin: %w", err)
	}
	if admin == nil {
		return nil, domain.ErrAdminNotFound
	}
	return admin, nil
}
