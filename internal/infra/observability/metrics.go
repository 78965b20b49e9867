package observability

import (
	"strconv"
	"time"

	"github.com/boddenberg/securebank-go/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for SecureBank.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	operationDuration *prometheus.HistogramVec
	httpRequests      *prometheus.CounterVec
	transactions      *prometheus.CounterVec
	otpChallenges     *prometheus.CounterVec
	mailDeliveries    *prometheus.CounterVec
	registrations     *prometheus.CounterVec
	logins            *prometheus.CounterVec
	externalErrors    *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "securebank_operation_duration_seconds",
				Help:    "Duration of service operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "securebank_http_requests_total",
				Help: "HTTP requests by method, route and status code.",
			},
			[]string{"method", "route", "code"},
		),
		transactions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "securebank_transactions_total",
				Help: "Deposits and withdrawals by outcome.",
			},
			[]string{"type", "outcome"},
		),
		otpChallenges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "securebank_otp_challenges_total",
				Help: "Withdrawal OTP challenge events.",
			},
			[]string{"outcome"},
		),
		mailDeliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "securebank_mail_deliveries_total",
				Help: "Outbound emails by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		registrations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "securebank_registrations_total",
				Help: "Registration attempts by outcome.",
			},
			[]string{"outcome"},
		),
		logins: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "securebank_logins_total",
				Help: "Login attempts by outcome.",
			},
			[]string{"outcome"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "securebank_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
	}
}

// Outcome labels shared by the counters.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// OTP challenge outcome labels.
const (
	OTPIssued    = "issued"
	OTPVerified  = "verified"
	OTPIncorrect = "incorrect"
	OTPExpired   = "expired"
	OTPExhausted = "exhausted"
)

// RecordOperation records the duration of a service operation.
func (m *Metrics) RecordOperation(operation string, d time.Duration) {
	m.operationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordHTTPRequest counts one served request.
func (m *Metrics) RecordHTTPRequest(method, route string, status int) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// IncrTransaction counts a deposit or withdrawal attempt.
func (m *Metrics) IncrTransaction(kind, outcome string) {
	m.transactions.WithLabelValues(kind, outcome).Inc()
}

// IncrOTP counts an OTP challenge event.
func (m *Metrics) IncrOTP(outcome string) {
	m.otpChallenges.WithLabelValues(outcome).Inc()
}

// IncrMail counts an outbound email attempt.
func (m *Metrics) IncrMail(kind, outcome string) {
	m.mailDeliveries.WithLabelValues(kind, outcome).Inc()
}

// IncrRegistration counts a registration attempt.
func (m *Metrics) IncrRegistration(outcome string) {
	m.registrations.WithLabelValues(outcome).Inc()
}

// IncrLogin counts a login attempt.
func (m *Metrics) IncrLogin(outcome string) {
	m.logins.WithLabelValues(outcome).Inc()
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// Snapshot reads the cumulative counters back for GET /v1/ops/stats.
// Account totals come from the store and are filled in by the caller.
func (m *Metrics) Snapshot() *domain.OpsStats {
	mailFailures := float64(0)
	for _, kind := range []string{"confirm-email", "reset-password", "withdrawal-otp"} {
		mailFailures += getCounterValue(m.mailDeliveries, kind, OutcomeFailure)
	}

	return &domain.OpsStats{
		Deposits:     getCounterValue(m.transactions, "deposit", OutcomeSuccess),
		Withdrawals:  getCounterValue(m.transactions, "withdraw", OutcomeSuccess),
		FailedTx:     getCounterValue(m.transactions, "deposit", OutcomeFailure) + getCounterValue(m.transactions, "withdraw", OutcomeFailure),
		OTPIssued:    getCounterValue(m.otpChallenges, OTPIssued),
		OTPVerified:  getCounterValue(m.otpChallenges, OTPVerified),
		MailFailures: mailFailures,
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for the given labels.
func getCounterValue(cv *prometheus.CounterVec, labels ...string) float64 {
	counter := cv.WithLabelValues(labels...)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
