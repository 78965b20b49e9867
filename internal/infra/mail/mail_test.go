package mail_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boddenberg/securebank-go/internal/domain"
	"github.com/boddenberg/securebank-go/internal/infra/mail"
	"github.com/boddenberg/securebank-go/internal/infra/observability"
	"github.com/boddenberg/securebank-go/internal/infra/resilience"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type flakyMailer struct {
	calls    atomic.Int32
	failures int32
	err      error
}

func (m *flakyMailer) Send(_ context.Context, _ *domain.MailMessage) error {
	n := m.calls.Add(1)
	if n <= m.failures {
		return m.err
	}
	return nil
}

func testMessage() *domain.MailMessage {
	return &domain.MailMessage{
		ID:       "msg-1",
		Kind:     "confirm-email",
		To:       "a@x.com",
		Subject:  "Confirm your SecureBank email",
		TextBody: "open http://localhost/v1/auth/confirm/tok",
	}
}

func TestLogMailer_LogsMessage(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	m := mail.NewLogMailer(zap.New(core))

	require.NoError(t, m.Send(context.Background(), testMessage()))

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "a@x.com", fields["to"])
	assert.Equal(t, "confirm-email", fields["kind"])
}

func TestResilient_RetriesTransientFailures(t *testing.T) {
	next := &flakyMailer{failures: 2, err: errors.New("connection reset")}
	cfg := resilience.Config{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxConcurrency: 2}
	r := mail.NewResilient(next, "mail-test", resilience.NewCircuitBreaker("mail-test", zap.NewNop()), cfg, observability.NewMetrics())

	require.NoError(t, r.Send(context.Background(), testMessage()))
	assert.Equal(t, int32(3), next.calls.Load())
}

func TestResilient_WrapsExhaustedFailure(t *testing.T) {
	next := &flakyMailer{failures: 100, err: errors.New("smtp down")}
	cfg := resilience.Config{MaxRetries: 1, InitialBackoff: time.Millisecond, MaxConcurrency: 1}
	r := mail.NewResilient(next, "mail-test", resilience.NewCircuitBreaker("mail-test", zap.NewNop()), cfg, observability.NewMetrics())

	err := r.Send(context.Background(), testMessage())
	var ext *domain.ErrExternalService
	require.True(t, errors.As(err, &ext))
	assert.Equal(t, "mail-test", ext.Service)
}

func TestResilient_OpenCircuit(t *testing.T) {
	next := &flakyMailer{failures: 100, err: errors.New("smtp down")}
	cfg := resilience.Config{MaxRetries: 0, InitialBackoff: time.Millisecond, MaxConcurrency: 1}
	r := mail.NewResilient(next, "mail-test", resilience.NewCircuitBreaker("mail-test", zap.NewNop()), cfg, observability.NewMetrics())

	for i := 0; i < 5; i++ {
		_ = r.Send(context.Background(), testMessage())
	}

	err := r.Send(context.Background(), testMessage())
	var open *domain.ErrCircuitOpen
	assert.True(t, errors.As(err, &open))
	assert.Equal(t, int32(5), next.calls.Load())
}
