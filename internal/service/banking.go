// Package service provides the business logic layer (use cases).
// BankingService handles the account dashboard, history, deposits and
// withdrawals, including the OTP-gated path for large withdrawals.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/boddenberg/securebank-go/internal/domain"
	"github.com/boddenberg/securebank-go/internal/infra/observability"
	"github.com/boddenberg/securebank-go/internal/port"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var bankTracer = otel.Tracer("service/banking")

const recentHistoryLen = 10

// BankingService orchestrates balance operations over the account store.
type BankingService struct {
	store    port.AccountStore
	creds    *Credentials
	ledger   *Ledger
	otp      *OTPManager
	notifier *Notifier
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewBankingService creates a new banking service.
func NewBankingService(
	store port.AccountStore,
	creds *Credentials,
	ledger *Ledger,
	otp *OTPManager,
	notifier *Notifier,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *BankingService {
	return &BankingService{
		store:    store,
		creds:    creds,
		ledger:   ledger,
		otp:      otp,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
	}
}

// ============================================================
// Dashboard — GET /v1/account
// ============================================================

func (s *BankingService) Summary(ctx context.Context, session *domain.Session) (*domain.AccountSummary, error) {
	ctx, span := bankTracer.Start(ctx, "BankingService.Summary")
	defer span.End()

	acct, err := s.store.Get(ctx, session.Username)
	if err != nil {
		return nil, err
	}
	return &domain.AccountSummary{
		Username:      acct.Username,
		Email:         acct.Email,
		Balance:       acct.Balance,
		RecentHistory: acct.RecentHistory(recentHistoryLen),
	}, nil
}

// ============================================================
// History — GET /v1/account/history
// ============================================================

func (s *BankingService) History(ctx context.Context, session *domain.Session, page, pageSize int) (*domain.HistoryPage, error) {
	ctx, span := bankTracer.Start(ctx, "BankingService.History")
	defer span.End()

	acct, err := s.store.Get(ctx, session.Username)
	if err != nil {
		return nil, err
	}
	entries, total := acct.HistoryPage(page, pageSize)
	return &domain.HistoryPage{
		Entries:  entries,
		Page:     page,
		PageSize: pageSize,
		Total:    total,
	}, nil
}

// ============================================================
// Deposit — POST /v1/account/deposit
// ============================================================

func (s *BankingService) Deposit(ctx context.Context, session *domain.Session, amount decimal.Decimal) (*domain.TransactionResult, error) {
	ctx, span := bankTracer.Start(ctx, "BankingService.Deposit")
	defer span.End()
	span.SetAttributes(attribute.String("amount", amount.String()))

	start := time.Now()
	defer func() { s.metrics.RecordOperation("deposit", time.Since(start)) }()

	acct, err := s.store.Update(ctx, session.Username, func(a *domain.Account) error {
		return s.ledger.Deposit(a, amount)
	})
	if err != nil {
		s.metrics.IncrTransaction("deposit", observability.OutcomeFailure)
		return nil, err
	}

	s.metrics.IncrTransaction("deposit", observability.OutcomeSuccess)
	s.logger.Info("deposit completed",
		zap.String("username", session.Username),
		zap.String("amount", amount.StringFixed(2)),
	)
	return &domain.TransactionResult{
		Status:      domain.TxStatusCompleted,
		Amount:      amount,
		Balance:     acct.Balance,
		Message:     fmt.Sprintf("Deposited $%s successfully.", amount.StringFixed(2)),
		Description: lastEntry(acct),
	}, nil
}

// ============================================================
// Withdraw — POST /v1/account/withdraw
// ============================================================

// Withdraw debits small amounts immediately. Amounts at or above the OTP
// threshold need the account password and start a challenge instead; the
// debit happens in VerifyWithdrawal.
func (s *BankingService) Withdraw(ctx context.Context, session *domain.Session, req *domain.WithdrawRequest) (*domain.TransactionResult, error) {
	ctx, span := bankTracer.Start(ctx, "BankingService.Withdraw")
	defer span.End()
	span.SetAttributes(attribute.String("amount", req.Amount.String()))

	if err := ValidateAmount(req.Amount); err != nil {
		s.metrics.IncrTransaction("withdraw", observability.OutcomeFailure)
		return nil, err
	}

	if req.Amount.GreaterThanOrEqual(domain.OTPThresholdAmount) {
		return s.beginLargeWithdrawal(ctx, session, req)
	}
	return s.withdraw(ctx, session, req.Amount)
}

func (s *BankingService) beginLargeWithdrawal(ctx context.Context, session *domain.Session, req *domain.WithdrawRequest) (*domain.TransactionResult, error) {
	acct, err := s.store.Get(ctx, session.Username)
	if err != nil {
		return nil, err
	}
	if !s.creds.Verify(req.ConfirmPassword, acct.PasswordDigest) {
		s.logger.Warn("large withdrawal: wrong password", zap.String("username", session.Username))
		return nil, &domain.ErrIncorrectPassword{Message: "password incorrect"}
	}

	code, err := s.otp.Begin(ctx, session, req.Amount)
	if err != nil {
		return nil, err
	}

	result := &domain.TransactionResult{
		Status:    domain.TxStatusOTPRequired,
		Amount:    req.Amount,
		Balance:   acct.Balance,
		ExpiresIn: int(domain.OTPTTL.Seconds()),
		Message:   "OTP sent to your email. Please verify to complete the transaction.",
	}
	if err := s.notifier.SendWithdrawalCode(ctx, acct.Username, acct.Email, code, req.Amount); err != nil {
		result.Message = "The verification code could not be sent. Please request the withdrawal again."
		return result, nil
	}
	result.CodeSent = true
	return result, nil
}

// ============================================================
// VerifyWithdrawal — POST /v1/account/withdraw/verify
// ============================================================

// VerifyWithdrawal completes a pending large withdrawal. The challenge is
// consumed on a matching code even when the debit then fails.
func (s *BankingService) VerifyWithdrawal(ctx context.Context, session *domain.Session, code string) (*domain.TransactionResult, error) {
	ctx, span := bankTracer.Start(ctx, "BankingService.VerifyWithdrawal")
	defer span.End()

	challenge, err := s.otp.Verify(ctx, session, code)
	if err != nil {
		return nil, err
	}

	result, err := s.withdraw(ctx, session, challenge.Amount)
	if err != nil {
		return nil, err
	}
	result.Message = fmt.Sprintf("Withdrawn $%s successfully via OTP.", challenge.Amount.StringFixed(2))
	return result, nil
}

func (s *BankingService) withdraw(ctx context.Context, session *domain.Session, amount decimal.Decimal) (*domain.TransactionResult, error) {
	start := time.Now()
	defer func() { s.metrics.RecordOperation("withdraw", time.Since(start)) }()

	acct, err := s.store.Update(ctx, session.Username, func(a *domain.Account) error {
		return s.ledger.Withdraw(a, amount)
	})
	if err != nil {
		s.metrics.IncrTransaction("withdraw", observability.OutcomeFailure)
		var insufficient *domain.ErrInsufficientFunds
		if errors.As(err, &insufficient) {
			s.logger.Info("withdrawal declined: insufficient funds", zap.String("username", session.Username))
		}
		return nil, err
	}

	s.metrics.IncrTransaction("withdraw", observability.OutcomeSuccess)
	s.logger.Info("withdrawal completed",
		zap.String("username", session.Username),
		zap.String("amount", amount.StringFixed(2)),
	)
	return &domain.TransactionResult{
		Status:      domain.TxStatusCompleted,
		Amount:      amount,
		Balance:     acct.Balance,
		Message:     fmt.Sprintf("Withdrew $%s successfully.", amount.StringFixed(2)),
		Description: lastEntry(acct),
	}, nil
}

// ============================================================
// Ops — GET /v1/ops/stats
// ============================================================

func (s *BankingService) Stats(ctx context.Context) (*domain.OpsStats, error) {
	ctx, span := bankTracer.Start(ctx, "BankingService.Stats")
	defer span.End()

	accounts, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	stats := s.metrics.Snapshot()
	stats.Accounts = len(accounts)
	for _, a := range accounts {
		if a.Confirmed {
			stats.ConfirmedAccounts++
		}
	}
	return stats, nil
}

func lastEntry(a *domain.Account) string {
	if len(a.History) == 0 {
		return ""
	}
	return a.History[len(a.History)-1]
}
