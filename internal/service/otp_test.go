package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/boddenberg/securebank-go/internal/domain"
	"github.com/boddenberg/securebank-go/internal/infra/cache"
	"github.com/boddenberg/securebank-go/internal/infra/observability"
	"github.com/boddenberg/securebank-go/internal/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newOTP(t *testing.T, clock *fakeClock) *service.OTPManager {
	t.Helper()
	challenges := cache.NewChallengeStore()
	t.Cleanup(challenges.Close)
	return service.NewOTPManager(challenges, fixedRandom{n: 23456}, clock.Now, observability.NewMetrics(), zap.NewNop())
}

var otpSession = &domain.Session{Username: "alice01", SessionID: "sid-1"}

func TestOTP_BeginAndVerify(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	m := newOTP(t, clock)

	code, err := m.Begin(ctx, otpSession, decimal.NewFromInt(15000))
	require.NoError(t, err)
	assert.Equal(t, testCode, code)

	clock.Advance(300 * time.Second)
	c, err := m.Verify(ctx, otpSession, code)
	require.NoError(t, err)
	assert.True(t, c.Amount.Equal(decimal.NewFromInt(15000)))

	// consumed
	_, err = m.Verify(ctx, otpSession, code)
	requireErrAs[*domain.ErrChallengeExpired](t, err)
}

func TestOTP_ExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	m := newOTP(t, clock)

	code, err := m.Begin(ctx, otpSession, decimal.NewFromInt(15000))
	require.NoError(t, err)

	clock.Advance(301 * time.Second)
	_, err = m.Verify(ctx, otpSession, code)
	requireErrAs[*domain.ErrChallengeExpired](t, err)

	// expired challenges are dropped
	clock.Advance(-301 * time.Second)
	_, err = m.Verify(ctx, otpSession, code)
	requireErrAs[*domain.ErrChallengeExpired](t, err)
}

func TestOTP_NoChallenge(t *testing.T) {
	_, err := newOTP(t, newClock()).Verify(context.Background(), otpSession, testCode)
	requireErrAs[*domain.ErrChallengeExpired](t, err)
}

func TestOTP_IncorrectCodeKeepsPendingUntilExhausted(t *testing.T) {
	ctx := context.Background()
	m := newOTP(t, newClock())

	_, err := m.Begin(ctx, otpSession, decimal.NewFromInt(15000))
	require.NoError(t, err)

	for i := 1; i < domain.OTPMaxAttempts; i++ {
		_, err := m.Verify(ctx, otpSession, "000000")
		incorrect := requireErrAs[*domain.ErrIncorrectCode](t, err)
		assert.Equal(t, domain.OTPMaxAttempts-i, incorrect.Remaining)
	}

	// the right code still works before the limit
	_, err = m.Verify(ctx, otpSession, testCode)
	require.NoError(t, err)
}

func TestOTP_DiscardedAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	m := newOTP(t, newClock())

	_, err := m.Begin(ctx, otpSession, decimal.NewFromInt(15000))
	require.NoError(t, err)

	for i := 0; i < domain.OTPMaxAttempts; i++ {
		_, err = m.Verify(ctx, otpSession, "000000")
	}
	incorrect := requireErrAs[*domain.ErrIncorrectCode](t, err)
	assert.Equal(t, 0, incorrect.Remaining)

	_, err = m.Verify(ctx, otpSession, testCode)
	requireErrAs[*domain.ErrChallengeExpired](t, err)
}

func TestOTP_NewBeginReplacesChallenge(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	m := newOTP(t, clock)

	_, err := m.Begin(ctx, otpSession, decimal.NewFromInt(15000))
	require.NoError(t, err)
	clock.Advance(200 * time.Second)
	_, err = m.Begin(ctx, otpSession, decimal.NewFromInt(12000))
	require.NoError(t, err)

	// the replacement restarts the TTL
	clock.Advance(200 * time.Second)
	c, err := m.Verify(ctx, otpSession, testCode)
	require.NoError(t, err)
	assert.True(t, c.Amount.Equal(decimal.NewFromInt(12000)))
}

func TestOTP_ScopedToSessionUser(t *testing.T) {
	ctx := context.Background()
	m := newOTP(t, newClock())

	_, err := m.Begin(ctx, otpSession, decimal.NewFromInt(15000))
	require.NoError(t, err)

	other := &domain.Session{Username: "mallory", SessionID: otpSession.SessionID}
	_, err = m.Verify(ctx, other, testCode)
	requireErrAs[*domain.ErrChallengeExpired](t, err)

	require.NoError(t, m.Discard(ctx, otpSession.SessionID))
	_, err = m.Verify(ctx, otpSession, testCode)
	requireErrAs[*domain.ErrChallengeExpired](t, err)
}

func TestOTP_RandomFailure(t *testing.T) {
	challenges := cache.NewChallengeStore()
	defer challenges.Close()
	m := service.NewOTPManager(challenges, fixedRandom{err: errors.New("entropy exhausted")}, nil, observability.NewMetrics(), zap.NewNop())

	_, err := m.Begin(context.Background(), otpSession, decimal.NewFromInt(15000))
	assert.Error(t, err)
}
