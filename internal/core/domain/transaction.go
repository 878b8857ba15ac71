package domain

import (
	"fmt"
	"time"

	"wallet-ledger/pkg/money"

	"github.com/google/uuid"
)

// TransactionKind represents the kind of balance effect.
type TransactionKind string

const (
	TransactionKindDeposit     TransactionKind = "deposit"
	TransactionKindTransferIn  TransactionKind = "transfer_in"
	TransactionKindTransferOut TransactionKind = "transfer_out"
)

// Valid reports whether k is one of the known kinds.
func (k TransactionKind) Valid() bool {
	switch k {
	case TransactionKindDeposit, TransactionKindTransferIn, TransactionKindTransferOut:
		return true
	}
	return false
}

// TransactionStatus represents the lifecycle state of a transaction.
type TransactionStatus string

const (
	TransactionStatusPending TransactionStatus = "pending"
	TransactionStatusSuccess TransactionStatus = "success"
	TransactionStatusFailed  TransactionStatus = "failed"
)

// ParseTransactionStatus converts a stored or cached value into a status.
func ParseTransactionStatus(s string) (TransactionStatus, error) {
	switch st := TransactionStatus(s); st {
	case TransactionStatusPending, TransactionStatusSuccess, TransactionStatusFailed:
		return st, nil
	}
	return "", fmt.Errorf("unknown transaction status %q", s)
}

// IsTerminal returns true for success and failed.
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusSuccess || s == TransactionStatusFailed
}

// Transaction is a ledger entry. Terminal entries are immutable.
type Transaction struct {
	ID                    uuid.UUID         `json:"id"`
	WalletID              uuid.UUID         `json:"wallet_id"`
	Kind                  TransactionKind   `json:"kind"`
	Amount                money.Money       `json:"amount"`
	Status                TransactionStatus `json:"status"`
	Reference             *string           `json:"reference,omitempty"`
	RecipientWalletNumber *string           `json:"recipient_wallet_number,omitempty"`
	SenderWalletNumber    *string           `json:"sender_wallet_number,omitempty"`
	CreatedAt             time.Time         `json:"created_at"`
	UpdatedAt             time.Time         `json:"updated_at"`
}

// IsTerminal returns true if the transaction is in a final state.
func (t *Transaction) IsTerminal() bool {
	return t.Status.IsTerminal()
}

// CounterpartyWalletNumber returns the other wallet of a transfer leg.
func (t *Transaction) CounterpartyWalletNumber() *string {
	switch t.Kind {
	case TransactionKindTransferOut:
		return t.RecipientWalletNumber
	case TransactionKindTransferIn:
		return t.SenderWalletNumber
	}
	return nil
}

// Effect is the signed balance change this entry contributes once successful.
func (t *Transaction) Effect() money.Money {
	if t.Status != TransactionStatusSuccess {
		return money.Zero
	}
	if t.Kind == TransactionKindTransferOut {
		return money.Zero.Sub(t.Amount)
	}
	return t.Amount
}

// ChargeOutcome is the gateway's verdict on a deposit charge.
type ChargeOutcome string

const (
	ChargeSucceeded ChargeOutcome = "succeeded"
	ChargeFailed    ChargeOutcome = "failed"
	ChargePending   ChargeOutcome = "pending"
)

// ChargeOutcomeFromGateway maps a gateway transaction status to an outcome.
// Paystack reports "abandoned" for a charge the customer has not paid yet and
// may still pay, so it stays pending like "ongoing".
func ChargeOutcomeFromGateway(status string) ChargeOutcome {
	switch status {
	case "success":
		return ChargeSucceeded
	case "failed", "reversed":
		return ChargeFailed
	}
	return ChargePending
}

// TargetStatus is the transaction status an outcome settles to.
func (o ChargeOutcome) TargetStatus() TransactionStatus {
	switch o {
	case ChargeSucceeded:
		return TransactionStatusSuccess
	case ChargeFailed:
		return TransactionStatusFailed
	}
	return TransactionStatusPending
}
