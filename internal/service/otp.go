package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/boddenberg/securebank-go/internal/domain"
	"github.com/boddenberg/securebank-go/internal/infra/observability"
	"github.com/boddenberg/securebank-go/internal/port"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var otpTracer = otel.Tracer("service/otp")

// Codes are 6 digits: 100000..999999.
const (
	otpCodeFloor = 100000
	otpCodeSpan  = 900000
)

// OTPManager runs the per-session challenge state machine for large
// withdrawals: Idle -> Pending on Begin, Pending -> Idle on a matching code,
// expiry, exhausted attempts or Discard.
type OTPManager struct {
	challenges port.ChallengeStore
	random     port.RandomSource
	now        func() time.Time
	metrics    *observability.Metrics
	logger     *zap.Logger

	// serializes read-check-write on a challenge
	mu sync.Mutex
}

// NewOTPManager creates a challenge manager. A nil clock means time.Now.
func NewOTPManager(challenges port.ChallengeStore, random port.RandomSource, now func() time.Time, metrics *observability.Metrics, logger *zap.Logger) *OTPManager {
	if now == nil {
		now = time.Now
	}
	return &OTPManager{
		challenges: challenges,
		random:     random,
		now:        now,
		metrics:    metrics,
		logger:     logger,
	}
}

// Begin replaces any challenge held by the session with a new one for amount
// and returns the plaintext code for delivery.
func (m *OTPManager) Begin(ctx context.Context, session *domain.Session, amount decimal.Decimal) (string, error) {
	ctx, span := otpTracer.Start(ctx, "OTPManager.Begin")
	defer span.End()

	n, err := m.random.Intn(otpCodeSpan)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	code := strconv.FormatInt(n+otpCodeFloor, 10)

	m.mu.Lock()
	defer m.mu.Unlock()

	c := &domain.Challenge{
		SessionID: session.SessionID,
		Username:  session.Username,
		CodeHash:  hashCode(code),
		Amount:    amount,
		IssuedAt:  m.now(),
	}
	if err := m.challenges.Put(ctx, c); err != nil {
		return "", fmt.Errorf("store challenge: %w", err)
	}

	m.metrics.IncrOTP(observability.OTPIssued)
	m.logger.Info("withdrawal challenge issued",
		zap.String("username", session.Username),
		zap.String("amount", amount.StringFixed(2)),
	)
	return code, nil
}

// Verify checks code against the session's challenge. On a match the
// challenge is consumed and returned. A mismatch keeps it pending until
// OTPMaxAttempts is reached, after which it is discarded.
func (m *OTPManager) Verify(ctx context.Context, session *domain.Session, code string) (*domain.Challenge, error) {
	ctx, span := otpTracer.Start(ctx, "OTPManager.Verify")
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok, err := m.challenges.Get(ctx, session.SessionID)
	if err != nil {
		return nil, fmt.Errorf("load challenge: %w", err)
	}
	if !ok || c.Username != session.Username {
		m.metrics.IncrOTP(observability.OTPExpired)
		return nil, &domain.ErrChallengeExpired{}
	}

	if c.Expired(m.now()) {
		m.metrics.IncrOTP(observability.OTPExpired)
		if err := m.challenges.Delete(ctx, session.SessionID); err != nil {
			m.logger.Warn("could not drop expired challenge", zap.Error(err))
		}
		return nil, &domain.ErrChallengeExpired{}
	}

	if subtle.ConstantTimeCompare([]byte(hashCode(code)), []byte(c.CodeHash)) != 1 {
		c.Attempts++
		remaining := domain.OTPMaxAttempts - c.Attempts
		if remaining <= 0 {
			m.metrics.IncrOTP(observability.OTPExhausted)
			m.logger.Warn("withdrawal challenge exhausted", zap.String("username", session.Username))
			if err := m.challenges.Delete(ctx, session.SessionID); err != nil {
				return nil, fmt.Errorf("drop challenge: %w", err)
			}
			return nil, &domain.ErrIncorrectCode{Remaining: 0}
		}
		m.metrics.IncrOTP(observability.OTPIncorrect)
		if err := m.challenges.Put(ctx, c); err != nil {
			return nil, fmt.Errorf("store challenge: %w", err)
		}
		return nil, &domain.ErrIncorrectCode{Remaining: remaining}
	}

	if err := m.challenges.Delete(ctx, session.SessionID); err != nil {
		return nil, fmt.Errorf("drop challenge: %w", err)
	}
	m.metrics.IncrOTP(observability.OTPVerified)
	return c, nil
}

// Discard drops any challenge held by the session.
func (m *OTPManager) Discard(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.challenges.Delete(ctx, sessionID)
}

func hashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
