package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Accounts
// ============================================================

// HistoryTimeLayout is the timestamp layout used in history entries,
// e.g. "19 Oct 2026 at 03:04 PM".
const HistoryTimeLayout = "02 Jan 2006 at 03:04 PM"

// Account is one user's banking state as persisted in the account file.
// Username is the map key in the file and is not part of the record body.
type Account struct {
	Username       string
	Email          string
	PasswordDigest string
	Balance        decimal.Decimal
	History        []string
	Confirmed      bool
}

// NewAccount creates an unconfirmed account with a zero balance.
func NewAccount(username, email, digest string) *Account {
	return &Account{
		Username:       username,
		Email:          email,
		PasswordDigest: digest,
		Balance:        decimal.Zero,
		History:        []string{},
	}
}

// Clone returns a deep copy so callers never share the history slice.
func (a *Account) Clone() *Account {
	cp := *a
	cp.History = append([]string(nil), a.History...)
	return &cp
}

// AppendHistory records a human-readable transaction line.
func (a *Account) AppendHistory(verb string, amount decimal.Decimal, at time.Time) {
	a.History = append(a.History, fmt.Sprintf("%s $%s on %s", verb, amount.StringFixed(2), at.Format(HistoryTimeLayout)))
}

// HistoryPage returns one page of history in insertion order together with
// the total number of entries. Pages are 1-based.
func (a *Account) HistoryPage(page, pageSize int) ([]string, int) {
	total := len(a.History)
	if total == 0 {
		return []string{}, 0
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = total
	}
	// Compare page indexes before multiplying so huge values cannot overflow.
	if page-1 > (total-1)/pageSize {
		return []string{}, total
	}
	start := (page - 1) * pageSize
	end := total
	if total-start > pageSize {
		end = start + pageSize
	}
	return append([]string(nil), a.History[start:end]...), total
}

// RecentHistory returns up to n of the newest entries, newest last.
func (a *Account) RecentHistory(n int) []string {
	if n <= 0 || len(a.History) <= n {
		return append([]string(nil), a.History...)
	}
	return append([]string(nil), a.History[len(a.History)-n:]...)
}

// accountRecord is the on-disk shape of an account. Balance is written as a
// bare JSON number.
type accountRecord struct {
	Email     string      `json:"email"`
	Password  string      `json:"password"`
	Balance   json.Number `json:"balance"`
	History   []string    `json:"history"`
	Confirmed bool        `json:"confirmed"`
}

// MarshalJSON implements the persisted record contract.
func (a Account) MarshalJSON() ([]byte, error) {
	history := a.History
	if history == nil {
		history = []string{}
	}
	return json.Marshal(accountRecord{
		Email:     a.Email,
		Password:  a.PasswordDigest,
		Balance:   json.Number(a.Balance.String()),
		History:   history,
		Confirmed: a.Confirmed,
	})
}

// UnmarshalJSON accepts legacy records missing balance, history or confirmed.
func (a *Account) UnmarshalJSON(data []byte) error {
	var rec accountRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	balance := decimal.Zero
	if rec.Balance != "" {
		b, err := decimal.NewFromString(rec.Balance.String())
		if err != nil {
			return fmt.Errorf("parse balance: %w", err)
		}
		balance = b
	}
	if rec.History == nil {
		rec.History = []string{}
	}
	a.Email = rec.Email
	a.PasswordDigest = rec.Password
	a.Balance = balance
	a.History = rec.History
	a.Confirmed = rec.Confirmed
	return nil
}

// ============================================================
// Account views (API responses)
// ============================================================

// AccountSummary is returned by GET /v1/account.
type AccountSummary struct {
	Username      string          `json:"username"`
	Email         string          `json:"email"`
	Balance       decimal.Decimal `json:"balance"`
	RecentHistory []string        `json:"recentHistory"`
}

// HistoryPage is returned by GET /v1/account/history.
type HistoryPage struct {
	Entries  []string `json:"entries"`
	Page     int      `json:"page"`
	PageSize int      `json:"pageSize"`
	Total    int      `json:"total"`
}
