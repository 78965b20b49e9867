package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Transactions
// ============================================================

// Withdrawal policy. Amounts at or above the threshold need a password
// re-check and an emailed one-time code.
const (
	OTPThreshold   = 10000
	OTPTTL         = 300 * time.Second
	OTPMaxAttempts = 5
)

// OTPThresholdAmount is OTPThreshold as a decimal.
var OTPThresholdAmount = decimal.NewFromInt(OTPThreshold)

// DepositRequest is the body for POST /v1/account/deposit.
type DepositRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"gt=0"`
}

// WithdrawRequest is the body for POST /v1/account/withdraw.
// ConfirmPassword is only required for amounts at or above OTPThreshold.
type WithdrawRequest struct {
	Amount          decimal.Decimal `json:"amount" validate:"gt=0"`
	ConfirmPassword string          `json:"confirmPassword,omitempty"`
}

// VerifyOTPRequest is the body for POST /v1/account/withdraw/verify.
type VerifyOTPRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// TransactionResult is returned by deposit, withdraw and OTP verification.
// Status is "completed" or "otp_required".
type TransactionResult struct {
	Status      string          `json:"status"`
	Amount      decimal.Decimal `json:"amount"`
	Balance     decimal.Decimal `json:"balance"`
	Message     string          `json:"message"`
	CodeSent    bool            `json:"codeSent,omitempty"`
	ExpiresIn   int             `json:"expiresIn,omitempty"`
	Description string          `json:"description,omitempty"`
}

const (
	TxStatusCompleted   = "completed"
	TxStatusOTPRequired = "otp_required"
)

// ============================================================
// OTP challenge
// ============================================================

// Challenge is the pending state of a large withdrawal for one session.
// Only the SHA-256 digest of the code is kept.
type Challenge struct {
	SessionID string          `json:"sessionId"`
	Username  string          `json:"username"`
	CodeHash  string          `json:"codeHash"`
	Amount    decimal.Decimal `json:"amount"`
	IssuedAt  time.Time       `json:"issuedAt"`
	Attempts  int             `json:"attempts"`
}

// Expired reports whether the challenge is older than OTPTTL at now.
func (c *Challenge) Expired(now time.Time) bool {
	return now.Sub(c.IssuedAt) > OTPTTL
}

// ============================================================
// Mail
// ============================================================

// MailMessage is an outbound email handed to the mail capability.
type MailMessage struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"` // confirm-email, reset-password, withdrawal-otp
	To       string `json:"to"`
	From     string `json:"from"`
	Subject  string `json:"subject"`
	TextBody string `json:"textBody"`
	HTMLBody string `json:"htmlBody,omitempty"`
}

// ============================================================
// Ops
// ============================================================

// OpsStats is returned by GET /v1/ops/stats.
type OpsStats struct {
	Accounts          int     `json:"accounts"`
	ConfirmedAccounts int     `json:"confirmedAccounts"`
	Deposits          float64 `json:"deposits"`
	Withdrawals       float64 `json:"withdrawals"`
	FailedTx          float64 `json:"failedTransactions"`
	OTPIssued         float64 `json:"otpIssued"`
	OTPVerified       float64 `json:"otpVerified"`
	MailFailures      float64 `json:"mailFailures"`
}
