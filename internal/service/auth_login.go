package service

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/securebank-go/internal/domain"
	"github.com/boddenberg/securebank-go/internal/infra/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Login — POST /v1/auth/login
// ============================================================

func (s *AuthService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Login")
	defer span.End()
	span.SetAttributes(attribute.String("username", req.Username))

	start := time.Now()
	defer func() { s.metrics.RecordOperation("login", time.Since(start)) }()

	acct, err := s.store.Get(ctx, req.Username)
	if err != nil {
		if isNotFound(err) {
			s.metrics.IncrLogin(observability.OutcomeFailure)
			return nil, &domain.ErrUnauthorized{Message: "invalid credentials"}
		}
		return nil, fmt.Errorf("get account: %w", err)
	}

	if !acct.Confirmed {
		s.metrics.IncrLogin(observability.OutcomeFailure)
		return nil, &domain.ErrEmailNotConfirmed{Username: acct.Username}
	}

	if !s.creds.Verify(req.Password, acct.PasswordDigest) {
		s.metrics.IncrLogin(observability.OutcomeFailure)
		s.logger.Warn("login: wrong password", zap.String("username", acct.Username))
		return nil, &domain.ErrUnauthorized{Message: "invalid credentials"}
	}

	token, _, err := s.sessions.Issue(acct.Username)
	if err != nil {
		return nil, err
	}

	s.metrics.IncrLogin(observability.OutcomeSuccess)
	s.logger.Info("login successful", zap.String("username", acct.Username))

	return &domain.LoginResponse{
		AccessToken: token,
		ExpiresIn:   int(s.sessions.TTL().Seconds()),
		Username:    acct.Username,
	}, nil
}

// ============================================================
// Logout — POST /v1/auth/logout
// ============================================================

func (s *AuthService) Logout(ctx context.Context, session *domain.Session) error {
	ctx, span := authTracer.Start(ctx, "AuthService.Logout")
	defer span.End()

	if err := s.sessions.Revoke(ctx, session.SessionID); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	if err := s.otp.Discard(ctx, session.SessionID); err != nil {
		return fmt.Errorf("discard challenge: %w", err)
	}

	s.logger.Info("logged out", zap.String("username", session.Username))
	return nil
}

// ============================================================
// ValidateSession — used by middleware
// ============================================================

func (s *AuthService) ValidateSession(ctx context.Context, token string) (*domain.Session, error) {
	return s.sessions.Validate(ctx, token)
}
