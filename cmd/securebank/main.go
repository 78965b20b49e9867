package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/securebank-go/internal/config"
	"github.com/boddenberg/securebank-go/internal/handler"
	"github.com/boddenberg/securebank-go/internal/infra/cache"
	"github.com/boddenberg/securebank-go/internal/infra/client"
	"github.com/boddenberg/securebank-go/internal/infra/credential"
	"github.com/boddenberg/securebank-go/internal/infra/filestore"
	"github.com/boddenberg/securebank-go/internal/infra/mail"
	"github.com/boddenberg/securebank-go/internal/infra/observability"
	"github.com/boddenberg/securebank-go/internal/infra/random"
	"github.com/boddenberg/securebank-go/internal/infra/redisstore"
	"github.com/boddenberg/securebank-go/internal/infra/resilience"
	"github.com/boddenberg/securebank-go/internal/port"
	"github.com/boddenberg/securebank-go/internal/service"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("data_file", cfg.DataFile),
		zap.Duration("session_ttl", cfg.SessionTTL),
		zap.String("mail_transport", cfg.MailTransport),
		zap.String("challenge_store", cfg.ChallengeStore),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Bool("tracing_enabled", cfg.TracingEnabled),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Tracing ---
	shutdownTracer, err := observability.InitTracer(ctx, cfg.TracerEndpoint(), "securebank")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdownTracer(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Storage ---
	store, err := filestore.Open(ctx, cfg.DataFile, logger)
	if err != nil {
		logger.Fatal("failed to open account store", zap.Error(err))
	}
	checks := map[string]handler.HealthCheck{"account-store": store.Ping}

	// --- OTP challenges and session revocations ---
	var (
		challenges  port.ChallengeStore
		revocations port.RevocationStore
	)
	switch cfg.ChallengeStore {
	case config.ChallengeStoreRedis:
		rdb := redisstore.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		rs := redisstore.NewChallengeStoreWithClient(rdb, logger)
		defer rs.Close()
		if err := rs.Ping(ctx); err != nil {
			logger.Warn("redis not reachable at startup", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		checks["redis"] = rs.Ping
		challenges = rs
		revocations = redisstore.NewRevocationStore(rdb)
		logger.Info("otp challenges and revocations stored in redis", zap.String("addr", cfg.RedisAddr))
	default:
		ms := cache.NewChallengeStore()
		defer ms.Close()
		rv := cache.NewRevocationStore()
		defer rv.Close()
		challenges = ms
		revocations = rv
		logger.Info("otp challenges and revocations stored in memory")
	}

	// --- Mail ---
	mailer, closeMailer, err := newMailer(cfg, metrics, logger)
	if err != nil {
		logger.Fatal("failed to init mailer", zap.Error(err))
	}
	defer closeMailer()

	// --- Services ---
	creds := service.NewCredentials(credential.NewBcryptHasher(cfg.BcryptCost))
	tokens := service.NewTokens(cfg.TokenSecret, nil)
	sessions := service.NewSessions(cfg.SessionSecret, cfg.SessionTTL, revocations, nil)
	otp := service.NewOTPManager(challenges, random.Crypto{}, nil, metrics, logger)
	notifier := service.NewNotifier(mailer, cfg.MailFrom, cfg.PublicBaseURL, metrics, logger)

	authSvc := service.NewAuthService(store, creds, tokens, sessions, otp, notifier, metrics, logger)
	bankSvc := service.NewBankingService(store, creds, service.NewLedger(nil), otp, notifier, metrics, logger)

	// --- Router ---
	router := handler.NewRouter(authSvc, bankSvc, handler.Options{
		ResetUniformResponse: cfg.ResetUniformResponse,
		Checks:               checks,
	}, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// --- Graceful shutdown ---
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("server shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return
	}
	logger.Info("server stopped")
}

// newMailer builds the configured transport wrapped in retry, circuit
// breaker and bulkhead.
func newMailer(cfg *config.Config, metrics *observability.Metrics, logger *zap.Logger) (port.Mailer, func(), error) {
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	noop := func() {}

	switch cfg.MailTransport {
	case config.MailTransportHTTP:
		httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
		api := client.NewMailAPIClient(httpClient, cfg.MailAPIURL, cfg.MailAPIKey)
		cb := resilience.NewCircuitBreaker("mail-api", logger)
		logger.Info("mail delivered through HTTP API", zap.String("url", cfg.MailAPIURL))
		return mail.NewResilient(api, "mail-api", cb, resilienceCfg, metrics), noop, nil

	case config.MailTransportAMQP:
		queue, err := mail.NewQueueMailer(cfg.AMQPURL, cfg.MailExchange, logger)
		if err != nil {
			return nil, noop, err
		}
		cb := resilience.NewCircuitBreaker("mail-queue", logger)
		logger.Info("mail published to AMQP", zap.String("exchange", cfg.MailExchange))
		closeQueue := func() {
			if err := queue.Close(); err != nil {
				logger.Warn("closing mail queue", zap.Error(err))
			}
		}
		return mail.NewResilient(queue, "mail-queue", cb, resilienceCfg, metrics), closeQueue, nil

	default:
		logger.Info("mail written to the log")
		return mail.NewLogMailer(logger), noop, nil
	}
}
