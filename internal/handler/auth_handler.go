package handler

import (
	"errors"
	"net/http"

	"github.com/boddenberg/securebank-go/internal/domain"
	"github.com/boddenberg/securebank-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// Authentication
// ============================================================

func authRegisterHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/auth/register")
		defer span.End()

		req := bindAndValidate[domain.RegisterRequest](w, r)
		if req == nil {
			return
		}

		resp, err := authSvc.Register(ctx, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, resp)
	}
}

func authConfirmHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/auth/confirm/{token}")
		defer span.End()

		resp, err := authSvc.Confirm(ctx, chi.URLParam(r, "token"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func authLoginHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/auth/login")
		defer span.End()

		req := bindAndValidate[domain.LoginRequest](w, r)
		if req == nil {
			return
		}

		resp, err := authSvc.Login(ctx, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

// authForgotPasswordHandler answers unknown emails with 404 unless
// uniformReset is set, in which case every well-formed request gets the
// same 202 body.
func authForgotPasswordHandler(authSvc *service.AuthService, uniformReset bool, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/auth/password/forgot")
		defer span.End()

		req := bindAndValidate[domain.ForgotPasswordRequest](w, r)
		if req == nil {
			return
		}

		resp, err := authSvc.ForgotPassword(ctx, req)
		if err != nil {
			var notFound *domain.ErrNotFound
			if uniformReset && errors.As(err, &notFound) {
				writeJSON(w, http.StatusAccepted, uniformResetResponse())
				return
			}
			handleServiceError(w, err, logger)
			return
		}

		if uniformReset {
			writeJSON(w, http.StatusAccepted, uniformResetResponse())
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func uniformResetResponse() *domain.ForgotPasswordResponse {
	return &domain.ForgotPasswordResponse{
		Message:   "If the email is registered, a reset link has been sent.",
		ExpiresIn: int(domain.PurposeResetPassword.MaxAge().Seconds()),
	}
}

func authResetPasswordHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/auth/password/reset/{token}")
		defer span.End()

		req := bindAndValidate[domain.ResetPasswordRequest](w, r)
		if req == nil {
			return
		}

		resp, err := authSvc.ResetPassword(ctx, chi.URLParam(r, "token"), req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func authLogoutHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/auth/logout")
		defer span.End()

		if err := authSvc.Logout(ctx, SessionFromContext(ctx)); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "You have been logged out."})
	}
}

func authChangePasswordHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/auth/password")
		defer span.End()

		req := bindAndValidate[domain.ChangePasswordRequest](w, r)
		if req == nil {
			return
		}

		resp, err := authSvc.ChangePassword(ctx, SessionFromContext(ctx), req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}
