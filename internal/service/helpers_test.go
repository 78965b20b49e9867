package service_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/securebank-go/internal/domain"
	"github.com/boddenberg/securebank-go/internal/infra/cache"
	"github.com/boddenberg/securebank-go/internal/infra/credential"
	"github.com/boddenberg/securebank-go/internal/infra/filestore"
	"github.com/boddenberg/securebank-go/internal/infra/observability"
	"github.com/boddenberg/securebank-go/internal/service"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// --- Fakes ---

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, time.October, 19, 15, 4, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []*domain.MailMessage
	err  error
}

func (m *fakeMailer) Send(_ context.Context, msg *domain.MailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) last(t *testing.T) *domain.MailMessage {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent, "expected a mail to be sent")
	return m.sent[len(m.sent)-1]
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// fixedRandom always draws n, so codes are n+100000.
type fixedRandom struct {
	n   int64
	err error
}

func (r fixedRandom) Intn(int64) (int64, error) { return r.n, r.err }

// --- Harness ---

const (
	testCode     = "123456"
	testPassword = "Str0ng!Pass"
)

type harness struct {
	store    *filestore.Store
	mailer   *fakeMailer
	clock    *fakeClock
	metrics  *observability.Metrics
	sessions *service.Sessions
	otp      *service.OTPManager
	auth     *service.AuthService
	bank     *service.BankingService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	store, err := filestore.Open(context.Background(), filepath.Join(t.TempDir(), "users.json"), zap.NewNop())
	require.NoError(t, err)

	challenges := cache.NewChallengeStore()
	t.Cleanup(challenges.Close)

	h := &harness{
		store:   store,
		mailer:  &fakeMailer{},
		clock:   newClock(),
		metrics: observability.NewMetrics(),
	}
	logger := zap.NewNop()

	creds := service.NewCredentials(credential.NewBcryptHasher(bcrypt.MinCost))
	tokens := service.NewTokens("token-secret", h.clock.Now)
	h.sessions = service.NewSessions("session-secret", 15*time.Minute, nil, h.clock.Now)
	h.otp = service.NewOTPManager(challenges, fixedRandom{n: 23456}, h.clock.Now, h.metrics, logger)
	notifier := service.NewNotifier(h.mailer, "SecureBank <no-reply@test>", "http://bank.test", h.metrics, logger)

	h.auth = service.NewAuthService(store, creds, tokens, h.sessions, h.otp, notifier, h.metrics, logger)
	h.bank = service.NewBankingService(store, creds, service.NewLedger(h.clock.Now), h.otp, notifier, h.metrics, logger)
	return h
}

// tokenFrom extracts the token that follows prefix in a mail body.
func tokenFrom(t *testing.T, body, prefix string) string {
	t.Helper()
	i := strings.Index(body, prefix)
	require.GreaterOrEqual(t, i, 0, "link %q not found in %q", prefix, body)
	rest := body[i+len(prefix):]
	if j := strings.IndexAny(rest, " \n"); j >= 0 {
		rest = rest[:j]
	}
	return rest
}

func (h *harness) register(t *testing.T, username, email string) {
	t.Helper()
	_, err := h.auth.Register(context.Background(), &domain.RegisterRequest{
		Username: username,
		Email:    email,
		Password: testPassword,
	})
	require.NoError(t, err)
}

func (h *harness) confirm(t *testing.T) {
	t.Helper()
	token := tokenFrom(t, h.mailer.last(t).TextBody, "/v1/auth/confirm/")
	_, err := h.auth.Confirm(context.Background(), token)
	require.NoError(t, err)
}

// login registers, confirms and logs in a user, returning the session.
func (h *harness) login(t *testing.T, username, email string) *domain.Session {
	t.Helper()
	h.register(t, username, email)
	h.confirm(t)

	resp, err := h.auth.Login(context.Background(), &domain.LoginRequest{Username: username, Password: testPassword})
	require.NoError(t, err)
	session, err := h.auth.ValidateSession(context.Background(), resp.AccessToken)
	require.NoError(t, err)
	return session
}

func requireErrAs[T error](t *testing.T, err error) T {
	t.Helper()
	var target T
	require.Truef(t, errors.As(err, &target), "expected %T, got %v", target, err)
	return target
}
