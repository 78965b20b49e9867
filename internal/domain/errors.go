package domain

import "fmt"

// Error types for consistent error handling across the bank core.
// The handler layer maps each of them to a status code and a user-facing
// message with errors.As.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrDuplicateAccount indicates the username or email is already taken.
type ErrDuplicateAccount struct {
	Field string // "username" or "email"
}

func (e *ErrDuplicateAccount) Error() string {
	if e.Field == "email" {
		return "email is already registered"
	}
	return "username already exists"
}

// ErrUnauthorized indicates invalid credentials or session.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrIncorrectPassword is returned when a signed-in user fails to re-enter
// their password. The session itself stays valid.
type ErrIncorrectPassword struct {
	Message string
}

func (e *ErrIncorrectPassword) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "password incorrect"
}

// ErrEmailNotConfirmed is returned by login for accounts that have not
// redeemed their confirmation token yet.
type ErrEmailNotConfirmed struct {
	Username string
}

func (e *ErrEmailNotConfirmed) Error() string {
	return "please confirm your email first"
}

// ErrInvalidAmount indicates a non-positive or unparseable amount.
type ErrInvalidAmount struct {
	Amount string
}

func (e *ErrInvalidAmount) Error() string {
	return fmt.Sprintf("invalid amount: %s", e.Amount)
}

// ErrInsufficientFunds indicates not enough balance for the operation.
type ErrInsufficientFunds struct {
	Available string
	Required  string
}

func (e *ErrInsufficientFunds) Error() string {
	return fmt.Sprintf("insufficient funds: available=%s required=%s", e.Available, e.Required)
}

// Token failure reasons. Both read the same to the caller.
const (
	TokenReasonInvalid = "invalid"
	TokenReasonExpired = "expired"
)

// ErrInvalidToken indicates a confirmation or reset token that failed
// verification. Reason is for logs only.
type ErrInvalidToken struct {
	Reason string
}

func (e *ErrInvalidToken) Error() string {
	return "invalid or expired token"
}

// ErrChallengeExpired indicates there is no usable OTP challenge for the
// session, either because none was issued or because it expired.
type ErrChallengeExpired struct{}

func (e *ErrChallengeExpired) Error() string {
	return "verification code expired or missing, start the withdrawal again"
}

// ErrIncorrectCode indicates an OTP mismatch.
type ErrIncorrectCode struct {
	Remaining int
}

func (e *ErrIncorrectCode) Error() string {
	if e.Remaining <= 0 {
		return "incorrect verification code, no attempts left"
	}
	return fmt.Sprintf("incorrect verification code, %d attempt(s) left", e.Remaining)
}

// ErrExternalService indicates a failure in an external service call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrDelivery indicates an outbound email could not be sent. It never undoes
// the business operation that triggered the message.
type ErrDelivery struct {
	Kind string
	Err  error
}

func (e *ErrDelivery) Error() string {
	return fmt.Sprintf("could not send %s email: %v", e.Kind, e.Err)
}

func (e *ErrDelivery) Unwrap() error {
	return e.Err
}
