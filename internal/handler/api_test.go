package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/securebank-go/internal/domain"
	"github.com/boddenberg/securebank-go/internal/handler"
	"github.com/boddenberg/securebank-go/internal/infra/cache"
	"github.com/boddenberg/securebank-go/internal/infra/credential"
	"github.com/boddenberg/securebank-go/internal/infra/filestore"
	"github.com/boddenberg/securebank-go/internal/infra/observability"
	"github.com/boddenberg/securebank-go/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const apiPassword = "Str0ng!Pass"

type captureMailer struct {
	mu   sync.Mutex
	sent []*domain.MailMessage
	err  error
}

func (m *captureMailer) Send(_ context.Context, msg *domain.MailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *captureMailer) fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *captureMailer) lastBody(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent)
	return m.sent[len(m.sent)-1].TextBody
}

type fixedRandom int64

func (r fixedRandom) Intn(int64) (int64, error) { return int64(r), nil }

type api struct {
	router http.Handler
	mailer *captureMailer
}

func newAPI(t *testing.T, opts handler.Options) *api {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()

	store, err := filestore.Open(context.Background(), filepath.Join(t.TempDir(), "users.json"), logger)
	require.NoError(t, err)
	challenges := cache.NewChallengeStore()
	t.Cleanup(challenges.Close)

	mailer := &captureMailer{}
	creds := service.NewCredentials(credential.NewBcryptHasher(bcrypt.MinCost))
	tokens := service.NewTokens("token-secret", nil)
	sessions := service.NewSessions("session-secret", 15*time.Minute, nil, nil)
	otp := service.NewOTPManager(challenges, fixedRandom(23456), nil, metrics, logger)
	notifier := service.NewNotifier(mailer, "no-reply@test", "http://bank.test", metrics, logger)

	authSvc := service.NewAuthService(store, creds, tokens, sessions, otp, notifier, metrics, logger)
	bankSvc := service.NewBankingService(store, creds, service.NewLedger(nil), otp, notifier, metrics, logger)

	return &api{
		router: handler.NewRouter(authSvc, bankSvc, opts, metrics, logger),
		mailer: mailer,
	}
}

func (a *api) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func linkToken(t *testing.T, body, prefix string) string {
	t.Helper()
	i := strings.Index(body, prefix)
	require.GreaterOrEqual(t, i, 0)
	rest := body[i+len(prefix):]
	if j := strings.IndexAny(rest, " \n"); j >= 0 {
		rest = rest[:j]
	}
	return rest
}

// signIn registers, confirms and logs in, returning the bearer token.
func (a *api) signIn(t *testing.T, username, email string) string {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/v1/auth/register", "", map[string]string{
		"username": username, "email": email, "password": apiPassword,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	token := linkToken(t, a.mailer.lastBody(t), "/v1/auth/confirm/")
	rec = a.do(t, http.MethodGet, "/v1/auth/confirm/"+token, "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"username": username, "password": apiPassword,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var login domain.LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))
	return login.AccessToken
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestRegister_ValidationAndConflicts(t *testing.T) {
	a := newAPI(t, handler.Options{})

	rec := a.do(t, http.MethodPost, "/v1/auth/register", "", map[string]string{"username": "alice01"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPost, "/v1/auth/register", "", map[string]string{
		"username": "alice01", "email": "a@x.com", "password": "weak",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPost, "/v1/auth/register", "", map[string]string{
		"username": "alice01", "email": "a@x.com", "password": apiPassword,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = a.do(t, http.MethodPost, "/v1/auth/register", "", map[string]string{
		"username": "alice01", "email": "other@x.com", "password": apiPassword,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLogin_UnconfirmedIsForbidden(t *testing.T) {
	a := newAPI(t, handler.Options{})
	a.do(t, http.MethodPost, "/v1/auth/register", "", map[string]string{
		"username": "alice01", "email": "a@x.com", "password": apiPassword,
	})

	rec := a.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"username": "alice01", "password": apiPassword,
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"username": "ghost", "password": apiPassword,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestConfirm_BadToken(t *testing.T) {
	a := newAPI(t, handler.Options{})

	rec := a.do(t, http.MethodGet, "/v1/auth/confirm/not-a-token", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAccountRequiresSession(t *testing.T) {
	a := newAPI(t, handler.Options{})

	rec := a.do(t, http.MethodGet, "/v1/account", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(t, http.MethodGet, "/v1/account", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDepositAndWithdraw(t *testing.T) {
	a := newAPI(t, handler.Options{})
	token := a.signIn(t, "alice01", "a@x.com")

	rec := a.do(t, http.MethodPost, "/v1/account/deposit", token, map[string]any{"amount": 250.5})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.do(t, http.MethodPost, "/v1/account/withdraw", token, map[string]any{"amount": 50})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.TxStatusCompleted, decodeBody(t, rec)["status"])

	rec = a.do(t, http.MethodPost, "/v1/account/withdraw", token, map[string]any{"amount": 5000})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = a.do(t, http.MethodPost, "/v1/account/deposit", token, map[string]any{"amount": -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodGet, "/v1/account", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var summary domain.AccountSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, "200.5", summary.Balance.String())
	assert.Len(t, summary.RecentHistory, 2)

	rec = a.do(t, http.MethodGet, "/v1/account/history?page=2&page_size=1", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page domain.HistoryPage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Entries, 1)
	assert.True(t, strings.HasPrefix(page.Entries[0], "Withdrew $50.00"))
}

func TestLargeWithdrawalWithOTP(t *testing.T) {
	a := newAPI(t, handler.Options{})
	token := a.signIn(t, "alice01", "a@x.com")

	a.do(t, http.MethodPost, "/v1/account/deposit", token, map[string]any{"amount": 20000})

	rec := a.do(t, http.MethodPost, "/v1/account/withdraw", token, map[string]any{
		"amount": 15000, "confirmPassword": "wrong",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// a mistyped password does not end the session
	rec = a.do(t, http.MethodGet, "/v1/account", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodPost, "/v1/account/withdraw", token, map[string]any{
		"amount": 15000, "confirmPassword": apiPassword,
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, domain.TxStatusOTPRequired, decodeBody(t, rec)["status"])
	assert.Contains(t, a.mailer.lastBody(t), "123456")

	rec = a.do(t, http.MethodPost, "/v1/account/withdraw/verify", token, map[string]string{"code": "abc"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPost, "/v1/account/withdraw/verify", token, map[string]string{"code": "000000"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPost, "/v1/account/withdraw/verify", token, map[string]string{"code": "123456"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.do(t, http.MethodPost, "/v1/account/withdraw/verify", token, map[string]string{"code": "123456"})
	assert.Equal(t, http.StatusGone, rec.Code)

	rec = a.do(t, http.MethodGet, "/v1/account", token, nil)
	var summary domain.AccountSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, "5000", summary.Balance.String())
}

func TestLogoutRevokesSession(t *testing.T) {
	a := newAPI(t, handler.Options{})
	token := a.signIn(t, "alice01", "a@x.com")

	rec := a.do(t, http.MethodPost, "/v1/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodGet, "/v1/account", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestForgotPassword(t *testing.T) {
	a := newAPI(t, handler.Options{})
	a.signIn(t, "alice01", "a@x.com")

	rec := a.do(t, http.MethodPost, "/v1/auth/password/forgot", "", map[string]string{"email": "nobody@x.com"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(t, http.MethodPost, "/v1/auth/password/forgot", "", map[string]string{"email": "a@x.com"})
	require.Equal(t, http.StatusOK, rec.Code)

	token := linkToken(t, a.mailer.lastBody(t), "/v1/auth/password/reset/")
	rec = a.do(t, http.MethodPost, "/v1/auth/password/reset/"+token, "", map[string]string{"newPassword": "N3w!Passw0rd"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"username": "alice01", "password": "N3w!Passw0rd",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestForgotPassword_UniformResponse(t *testing.T) {
	a := newAPI(t, handler.Options{ResetUniformResponse: true})
	a.signIn(t, "alice01", "a@x.com")

	unknown := a.do(t, http.MethodPost, "/v1/auth/password/forgot", "", map[string]string{"email": "nobody@x.com"})
	known := a.do(t, http.MethodPost, "/v1/auth/password/forgot", "", map[string]string{"email": "a@x.com"})

	assert.Equal(t, http.StatusAccepted, unknown.Code)
	assert.Equal(t, http.StatusAccepted, known.Code)
	assert.JSONEq(t, unknown.Body.String(), known.Body.String())
}

func TestChangePassword(t *testing.T) {
	a := newAPI(t, handler.Options{})
	token := a.signIn(t, "alice01", "a@x.com")

	rec := a.do(t, http.MethodPut, "/v1/auth/password", token, map[string]string{
		"currentPassword": "wrong", "newPassword": "N3w!Passw0rd",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(t, http.MethodPut, "/v1/auth/password", token, map[string]string{
		"currentPassword": apiPassword, "newPassword": "N3w!Passw0rd",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOpsStats(t *testing.T) {
	a := newAPI(t, handler.Options{})
	a.signIn(t, "alice01", "a@x.com")

	rec := a.do(t, http.MethodGet, "/v1/ops/stats", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats domain.OpsStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Accounts)
	assert.Equal(t, 1, stats.ConfirmedAccounts)
}

func TestDepositAndWithdraw_AmountMustBePositive(t *testing.T) {
	a := newAPI(t, handler.Options{})
	token := a.signIn(t, "alice01", "a@x.com")

	for _, body := range []map[string]any{
		{"amount": 0},
		{"amount": "0.00"},
		{},
	} {
		rec := a.do(t, http.MethodPost, "/v1/account/deposit", token, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "amount must be greater than 0", decodeBody(t, rec)["error"])

		rec = a.do(t, http.MethodPost, "/v1/account/withdraw", token, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}

	rec := a.do(t, http.MethodPost, "/v1/account/deposit", token, map[string]any{"amount": "0.005"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestHistory_PageBeyondEnd(t *testing.T) {
	a := newAPI(t, handler.Options{})
	token := a.signIn(t, "alice01", "a@x.com")
	a.do(t, http.MethodPost, "/v1/account/deposit", token, map[string]any{"amount": 10})

	for _, query := range []string{
		"?page=9223372036854775807",
		"?page=4611686018427387904&page_size=100",
		"?page=999999",
	} {
		rec := a.do(t, http.MethodGet, "/v1/account/history"+query, token, nil)
		require.Equal(t, http.StatusOK, rec.Code, query)
		var page domain.HistoryPage
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
		assert.Empty(t, page.Entries, query)
		assert.Equal(t, 1, page.Total, query)
	}
}

func TestRegister_MailFailureStillCreatesAccount(t *testing.T) {
	a := newAPI(t, handler.Options{})
	a.mailer.fail(errors.New("smtp: connection refused"))

	rec := a.do(t, http.MethodPost, "/v1/auth/register", "", map[string]string{
		"username": "alice01", "email": "a@x.com", "password": apiPassword,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, false, decodeBody(t, rec)["confirmationSent"])

	rec = a.do(t, http.MethodPost, "/v1/auth/password/forgot", "", map[string]string{"email": "a@x.com"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, false, decodeBody(t, rec)["linkSent"])
}
