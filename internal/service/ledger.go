package service

import (
	"time"

	"github.com/boddenberg/securebank-go/internal/domain"

	"github.com/shopspring/decimal"
)

// History verbs.
const (
	verbDeposited = "Deposited"
	verbWithdrew  = "Withdrew"
)

// Ledger applies balance mutations to an account record. It never touches
// storage; callers run it inside AccountStore.Update so a rejected
// transaction leaves nothing behind.
type Ledger struct {
	now func() time.Time
}

// NewLedger creates a transaction engine. A nil clock means time.Now.
func NewLedger(now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{now: now}
}

// Deposit credits amount and records it in the history.
func (l *Ledger) Deposit(acct *domain.Account, amount decimal.Decimal) error {
	if err := ValidateAmount(amount); err != nil {
		return err
	}
	acct.Balance = acct.Balance.Add(amount)
	acct.AppendHistory(verbDeposited, amount, l.now())
	return nil
}

// Withdraw debits amount if the balance covers it.
func (l *Ledger) Withdraw(acct *domain.Account, amount decimal.Decimal) error {
	if err := ValidateAmount(amount); err != nil {
		return err
	}
	if acct.Balance.LessThan(amount) {
		return &domain.ErrInsufficientFunds{
			Available: acct.Balance.StringFixed(2),
			Required:  amount.StringFixed(2),
		}
	}
	acct.Balance = acct.Balance.Sub(amount)
	acct.AppendHistory(verbWithdrew, amount, l.now())
	return nil
}

// ValidateAmount accepts any positive amount. The balance keeps full
// precision; history lines show two decimals.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return &domain.ErrInvalidAmount{Amount: amount.String()}
	}
	return nil
}
