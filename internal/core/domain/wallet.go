package domain

import (
	"time"

	"github.com/google/uuid"
)

// DefaultCurrency is used when a wallet is created without an explicit currency.
const DefaultCurrency = "USD"

// Wallet holds a single user's custodial balance in minor units.
// The balance column is the only authoritative balance; it is mutated
// exclusively through WalletRepository.AdjustBalance under a row lock
// and can never go negative.
type Wallet struct {
	ID        uuid.UUID `json:"id"`
	UserID    string    `json:"user_id"`
	Balance   int64     `json:"balance"` // minor units
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CanDebit reports whether the wallet covers a debit of amount minor units.
func (w *Wallet) CanDebit(amount int64) bool {
	return w.Balance >= amount
}
