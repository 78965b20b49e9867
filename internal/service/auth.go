// Package service — AuthService handles registration, email confirmation,
// login sessions, password reset and password change.
package service

import (
	"errors"
	"strings"

	"github.com/boddenberg/securebank-go/internal/domain"
	"github.com/boddenberg/securebank-go/internal/infra/observability"
	"github.com/boddenberg/securebank-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var authTracer = otel.Tracer("service/auth")

// AuthService orchestrates authentication flows.
type AuthService struct {
	store    port.AccountStore
	creds    *Credentials
	tokens   *Tokens
	sessions *Sessions
	otp      *OTPManager
	notifier *Notifier
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewAuthService creates a new auth service.
func NewAuthService(
	store port.AccountStore,
	creds *Credentials,
	tokens *Tokens,
	sessions *Sessions,
	otp *OTPManager,
	notifier *Notifier,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		store:    store,
		creds:    creds,
		tokens:   tokens,
		sessions: sessions,
		otp:      otp,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
	}
}

// ============================================================
// Internal helpers
// ============================================================

func isNotFound(err error) bool {
	var nf *domain.ErrNotFound
	return errors.As(err, &nf)
}

func maskEmail(email string) string {
	parts := strings.SplitN(email, "@", 2)
	if len(parts) != 2 || parts[0] == "" {
		return "***@***.com"
	}
	local := parts[0]

	masked := string(local[0])
	if len(local) > 1 {
		masked += strings.Repeat("*", len(local)-2)
		masked += string(local[len(local)-1])
	} else {
		masked += "***"
	}
	return masked + "@" + parts[1]
}
