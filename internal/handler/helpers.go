package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/boddenberg/securebank-go/internal/domain"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ============================================================
// Shared helper functions
// ============================================================

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxBodyBytes    = 1 << 20
)

var validate = newValidator()

// newValidator registers decimal.Decimal as a float so numeric tags such as
// gt=0 apply to amounts.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	return v
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// bindAndValidate decodes the JSON body into T and runs its validate tags.
// It writes the 400 response itself and returns nil on failure.
func bindAndValidate[T any](w http.ResponseWriter, r *http.Request) *T {
	var req T
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return nil
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return nil
	}
	return &req
}

func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "invalid request body"
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		field := lowerFirst(fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "len":
			msgs = append(msgs, field+" must be "+fe.Param()+" characters")
		case "numeric":
			msgs = append(msgs, field+" must be numeric")
		case "gt":
			msgs = append(msgs, field+" must be greater than "+fe.Param())
		default:
			msgs = append(msgs, field+" is invalid")
		}
	}
	return strings.Join(msgs, "; ")
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func parsePagination(r *http.Request) (page, pageSize int) {
	page = 1
	pageSize = defaultPageSize
	if v := r.URL.Query().Get("page"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			page = p
		}
	}
	if v := r.URL.Query().Get("page_size"); v != "" {
		if ps, err := strconv.Atoi(v); err == nil && ps > 0 && ps <= maxPageSize {
			pageSize = ps
		}
	}
	return
}

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var notFound *domain.ErrNotFound
	var validation *domain.ErrValidation
	var invalidAmount *domain.ErrInvalidAmount
	var duplicate *domain.ErrDuplicateAccount
	var unauthorized *domain.ErrUnauthorized
	var incorrectPassword *domain.ErrIncorrectPassword
	var notConfirmed *domain.ErrEmailNotConfirmed
	var insufficientFunds *domain.ErrInsufficientFunds
	var invalidToken *domain.ErrInvalidToken
	var challengeExpired *domain.ErrChallengeExpired
	var incorrectCode *domain.ErrIncorrectCode

	switch {
	case errors.As(err, &notFound):
		logger.Debug("not found", zap.String("error", err.Error()))
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.String("field", validation.Field))
		writeError(w, http.StatusBadRequest, validation.Message)
	case errors.As(err, &invalidAmount):
		logger.Debug("invalid amount", zap.String("amount", invalidAmount.Amount))
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &duplicate):
		logger.Debug("duplicate account", zap.String("field", duplicate.Field))
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &unauthorized):
		logger.Warn("unauthorized", zap.String("error", err.Error()))
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.As(err, &incorrectPassword):
		logger.Warn("password re-verification failed")
		writeError(w, http.StatusForbidden, err.Error())
	case errors.As(err, &notConfirmed):
		logger.Debug("email not confirmed", zap.String("username", notConfirmed.Username))
		writeError(w, http.StatusForbidden, err.Error())
	case errors.As(err, &insufficientFunds):
		logger.Warn("insufficient funds",
			zap.String("available", insufficientFunds.Available),
			zap.String("required", insufficientFunds.Required),
		)
		writeError(w, http.StatusUnprocessableEntity, "insufficient funds")
	case errors.As(err, &invalidToken):
		logger.Debug("token rejected", zap.String("reason", invalidToken.Reason))
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &challengeExpired):
		logger.Debug("otp challenge missing or expired")
		writeError(w, http.StatusGone, err.Error())
	case errors.As(err, &incorrectCode):
		logger.Warn("incorrect verification code", zap.Int("remaining", incorrectCode.Remaining))
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
