package domain

import (
	"time"

	"wallet-ledger/pkg/money"

	"github.com/google/uuid"
)

// WalletNumberLength is the number of decimal digits in a wallet number.
const WalletNumberLength = 13

// Wallet is a user's single monetary account.
// Balance is never negative at a commit boundary.
type Wallet struct {
	ID           uuid.UUID   `json:"id"`
	UserID       uuid.UUID   `json:"user_id"`
	WalletNumber string      `json:"wallet_number"`
	Balance      money.Money `json:"balance"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// CanDebit reports whether amount can leave the wallet without overdrawing it.
func (w *Wallet) CanDebit(amount money.Money) bool {
	return !w.Balance.LessThan(amount)
}

// IsValidWalletNumber checks the external wallet number format.
func IsValidWalletNumber(s string) bool {
	if len(s) != WalletNumberLength {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
