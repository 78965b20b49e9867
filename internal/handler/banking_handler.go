package handler

import (
	"net/http"

	"github.com/boddenberg/securebank-go/internal/domain"
	"github.com/boddenberg/securebank-go/internal/service"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Account
// ============================================================

func accountSummaryHandler(bankSvc *service.BankingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/account")
		defer span.End()

		summary, err := bankSvc.Summary(ctx, SessionFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

func accountHistoryHandler(bankSvc *service.BankingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/account/history")
		defer span.End()

		page, pageSize := parsePagination(r)
		span.SetAttributes(attribute.Int("page", page), attribute.Int("page_size", pageSize))

		history, err := bankSvc.History(ctx, SessionFromContext(ctx), page, pageSize)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, history)
	}
}

func depositHandler(bankSvc *service.BankingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/account/deposit")
		defer span.End()

		req := bindAndValidate[domain.DepositRequest](w, r)
		if req == nil {
			return
		}

		result, err := bankSvc.Deposit(ctx, SessionFromContext(ctx), req.Amount)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// withdrawHandler answers 202 when the amount needs an emailed code.
func withdrawHandler(bankSvc *service.BankingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/account/withdraw")
		defer span.End()

		req := bindAndValidate[domain.WithdrawRequest](w, r)
		if req == nil {
			return
		}

		result, err := bankSvc.Withdraw(ctx, SessionFromContext(ctx), req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		status := http.StatusOK
		if result.Status == domain.TxStatusOTPRequired {
			status = http.StatusAccepted
		}
		writeJSON(w, status, result)
	}
}

func verifyWithdrawalHandler(bankSvc *service.BankingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/account/withdraw/verify")
		defer span.End()

		req := bindAndValidate[domain.VerifyOTPRequest](w, r)
		if req == nil {
			return
		}

		result, err := bankSvc.VerifyWithdrawal(ctx, SessionFromContext(ctx), req.Code)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// ============================================================
// Ops — GET /v1/ops/stats
// ============================================================

func opsStatsHandler(bankSvc *service.BankingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/ops/stats")
		defer span.End()

		stats, err := bankSvc.Stats(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}
