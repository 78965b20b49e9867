package domain

import "time"

// ============================================================
// Auth — Request / Response types
// ============================================================

// RegisterRequest is the body for POST /v1/auth/register.
type RegisterRequest struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RegisterResponse is the body for 201 from POST /v1/auth/register.
type RegisterResponse struct {
	Username         string `json:"username"`
	Confirmed        bool   `json:"confirmed"`
	ConfirmationSent bool   `json:"confirmationSent"`
	Message          string `json:"message"`
}

// ConfirmResponse is returned by GET /v1/auth/confirm/{token}.
type ConfirmResponse struct {
	Username         string `json:"username"`
	AlreadyConfirmed bool   `json:"alreadyConfirmed"`
	Message          string `json:"message"`
}

// LoginRequest is the body for POST /v1/auth/login.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse is the body for 200 from POST /v1/auth/login.
type LoginResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int    `json:"expiresIn"`
	Username    string `json:"username"`
}

// Session identifies an authenticated caller. SessionID scopes the OTP
// challenge.
type Session struct {
	Username  string
	SessionID string
	ExpiresAt time.Time
}

// ForgotPasswordRequest is the body for POST /v1/auth/password/forgot.
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required"`
}

// ForgotPasswordResponse is returned by POST /v1/auth/password/forgot.
type ForgotPasswordResponse struct {
	Message     string `json:"message"`
	MaskedEmail string `json:"maskedEmail,omitempty"`
	LinkSent    bool   `json:"linkSent"`
	ExpiresIn   int    `json:"expiresIn"`
}

// ResetPasswordRequest is the body for POST /v1/auth/password/reset/{token}.
type ResetPasswordRequest struct {
	NewPassword string `json:"newPassword" validate:"required"`
}

// ChangePasswordRequest is the body for PUT /v1/auth/password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required"`
}

// SuccessResponse is a generic message body.
type SuccessResponse struct {
	Message string `json:"message"`
}

// ============================================================
// Tokens
// ============================================================

// TokenPurpose scopes a signed email token to a single flow.
type TokenPurpose string

const (
	PurposeConfirmEmail  TokenPurpose = "confirm-email"
	PurposeResetPassword TokenPurpose = "reset-password"
)

// MaxAge returns how long a token of this purpose stays redeemable.
func (p TokenPurpose) MaxAge() time.Duration {
	switch p {
	case PurposeConfirmEmail:
		return time.Hour
	case PurposeResetPassword:
		return 30 * time.Minute
	default:
		return 0
	}
}

// Salt returns the purpose-specific key derivation salt.
func (p TokenPurpose) Salt() string {
	switch p {
	case PurposeConfirmEmail:
		return "email-confirm-salt"
	case PurposeResetPassword:
		return "reset-password-salt"
	default:
		return ""
	}
}
