package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/boddenberg/securebank-go/internal/domain"
	"github.com/boddenberg/securebank-go/internal/infra/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var errAlreadyConfirmed = errors.New("already confirmed")

// ============================================================
// Register — POST /v1/auth/register
// ============================================================

func (s *AuthService) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.RegisterResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Register")
	defer span.End()
	span.SetAttributes(attribute.String("username", req.Username))

	start := time.Now()
	defer func() { s.metrics.RecordOperation("register", time.Since(start)) }()

	resp, err := s.register(ctx, req)
	if err != nil {
		s.metrics.IncrRegistration(observability.OutcomeFailure)
		return nil, err
	}
	s.metrics.IncrRegistration(observability.OutcomeSuccess)
	return resp, nil
}

func (s *AuthService) register(ctx context.Context, req *domain.RegisterRequest) (*domain.RegisterResponse, error) {
	if err := ValidateUsername(req.Username); err != nil {
		return nil, err
	}

	// Uniqueness is checked up front for the error order users see, and
	// again atomically by the store.
	if _, err := s.store.Get(ctx, req.Username); err == nil {
		return nil, &domain.ErrDuplicateAccount{Field: "username"}
	} else if !isNotFound(err) {
		return nil, fmt.Errorf("check username: %w", err)
	}
	if _, err := s.store.FindByEmail(ctx, req.Email); err == nil {
		return nil, &domain.ErrDuplicateAccount{Field: "email"}
	} else if !isNotFound(err) {
		return nil, fmt.Errorf("check email: %w", err)
	}

	if err := ValidateEmail(req.Email); err != nil {
		return nil, err
	}
	if err := ValidatePassword(req.Password); err != nil {
		return nil, err
	}

	digest, err := s.creds.Hash(req.Password)
	if err != nil {
		return nil, err
	}
	if err := s.store.Register(ctx, domain.NewAccount(req.Username, req.Email, digest)); err != nil {
		return nil, err
	}

	s.logger.Info("account registered", zap.String("username", req.Username))

	resp := &domain.RegisterResponse{
		Username: req.Username,
		Message:  "Confirmation email sent. Please check your inbox.",
	}

	token, err := s.tokens.Issue(req.Email, domain.PurposeConfirmEmail)
	if err == nil {
		err = s.notifier.SendConfirmation(ctx, req.Username, req.Email, token)
	}
	if err != nil {
		s.logger.Warn("registration kept without confirmation mail",
			zap.String("username", req.Username),
			zap.Error(err),
		)
		resp.Message = "Account created, but the confirmation email could not be sent. Use forgot-password later or contact support."
		return resp, nil
	}

	resp.ConfirmationSent = true
	return resp, nil
}

// ============================================================
// Confirm — GET /v1/auth/confirm/{token}
// ============================================================

func (s *AuthService) Confirm(ctx context.Context, token string) (*domain.ConfirmResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Confirm")
	defer span.End()

	email, err := s.tokens.Redeem(token, domain.PurposeConfirmEmail)
	if err != nil {
		var invalid *domain.ErrInvalidToken
		if errors.As(err, &invalid) {
			s.logger.Info("confirmation token rejected", zap.String("reason", invalid.Reason))
		}
		return nil, err
	}

	acct, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	_, err = s.store.Update(ctx, acct.Username, func(a *domain.Account) error {
		if a.Confirmed {
			return errAlreadyConfirmed
		}
		a.Confirmed = true
		return nil
	})
	if errors.Is(err, errAlreadyConfirmed) {
		return &domain.ConfirmResponse{
			Username:         acct.Username,
			AlreadyConfirmed: true,
			Message:          "Email already confirmed. You can log in.",
		}, nil
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("email confirmed", zap.String("username", acct.Username))
	return &domain.ConfirmResponse{
		Username: acct.Username,
		Message:  "Email confirmed. You can now login.",
	}, nil
}
