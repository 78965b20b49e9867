package service

import (
	"context"
	"fmt"

	"github.com/boddenberg/securebank-go/internal/domain"

	"go.uber.org/zap"
)

// ============================================================
// ForgotPassword — POST /v1/auth/password/forgot
// ============================================================

// ForgotPassword mails a reset link. An unknown email is reported as
// *domain.ErrNotFound; the HTTP layer decides whether to reveal that.
func (s *AuthService) ForgotPassword(ctx context.Context, req *domain.ForgotPasswordRequest) (*domain.ForgotPasswordResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.ForgotPassword")
	defer span.End()

	acct, err := s.store.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}

	resp := &domain.ForgotPasswordResponse{
		Message:     "A reset link has been sent to your email.",
		MaskedEmail: maskEmail(acct.Email),
		ExpiresIn:   int(domain.PurposeResetPassword.MaxAge().Seconds()),
	}

	token, err := s.tokens.Issue(acct.Email, domain.PurposeResetPassword)
	if err == nil {
		err = s.notifier.SendPasswordReset(ctx, acct.Username, acct.Email, token)
	}
	if err != nil {
		s.logger.Warn("password reset link not sent",
			zap.String("username", acct.Username),
			zap.Error(err),
		)
		resp.Message = "The reset link could not be sent. Please try again later."
		return resp, nil
	}

	resp.LinkSent = true
	s.logger.Info("password reset link sent", zap.String("username", acct.Username))
	return resp, nil
}

// ============================================================
// ResetPassword — POST /v1/auth/password/reset/{token}
// ============================================================

func (s *AuthService) ResetPassword(ctx context.Context, token string, req *domain.ResetPasswordRequest) (*domain.SuccessResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.ResetPassword")
	defer span.End()

	email, err := s.tokens.Redeem(token, domain.PurposeResetPassword)
	if err != nil {
		return nil, err
	}

	if err := ValidatePassword(req.NewPassword); err != nil {
		return nil, err
	}

	acct, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	digest, err := s.creds.Hash(req.NewPassword)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.Update(ctx, acct.Username, func(a *domain.Account) error {
		a.PasswordDigest = digest
		return nil
	}); err != nil {
		return nil, fmt.Errorf("update password: %w", err)
	}

	s.logger.Info("password reset completed", zap.String("username", acct.Username))
	return &domain.SuccessResponse{Message: "Your password has been updated. You can now log in."}, nil
}

// ============================================================
// ChangePassword — PUT /v1/auth/password
// ============================================================

func (s *AuthService) ChangePassword(ctx context.Context, session *domain.Session, req *domain.ChangePasswordRequest) (*domain.SuccessResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.ChangePassword")
	defer span.End()

	acct, err := s.store.Get(ctx, session.Username)
	if err != nil {
		return nil, err
	}

	if !s.creds.Verify(req.CurrentPassword, acct.PasswordDigest) {
		s.logger.Warn("password change: wrong current password",
			zap.String("username", session.Username),
		)
		return nil, &domain.ErrIncorrectPassword{Message: "current password is incorrect"}
	}

	if err := ValidatePassword(req.NewPassword); err != nil {
		return nil, err
	}

	digest, err := s.creds.Hash(req.NewPassword)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.Update(ctx, session.Username, func(a *domain.Account) error {
		a.PasswordDigest = digest
		return nil
	}); err != nil {
		return nil, fmt.Errorf("update password: %w", err)
	}

	s.logger.Info("password changed", zap.String("username", session.Username))
	return &domain.SuccessResponse{Message: "Password changed successfully."}, nil
}
