package dto

import (
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/money"
)

// DepositRequest is the request body for starting a deposit.
type DepositRequest struct {
	Amount money.Money `json:"amount"`
}

// DepositResponse carries the gateway checkout link.
type DepositResponse struct {
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorization_url"`
}

// TransferRequest is the request body for a wallet-to-wallet transfer.
type TransferRequest struct {
	WalletNumber string      `json:"wallet_number" binding:"required,walletnumber"`
	Amount       money.Money `json:"amount"`
}

// TransferResponse is returned once both legs are committed.
type TransferResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Reference string `json:"reference"`
}

// BalanceResponse is the response for a balance query.
type BalanceResponse struct {
	Balance      money.Money `json:"balance"`
	WalletNumber string      `json:"wallet_number"`
}

// DepositStatusResponse combines the ledger and gateway views of a deposit.
type DepositStatusResponse struct {
	Reference     string      `json:"reference"`
	Status        string      `json:"status"`
	Amount        money.Money `json:"amount"`
	GatewayStatus string      `json:"gateway_status"`
}

// TransactionResponse is one ledger entry as shown to its owner.
type TransactionResponse struct {
	ID                    string      `json:"id"`
	Type                  string      `json:"type"`
	Amount                money.Money `json:"amount"`
	Status                string      `json:"status"`
	Reference             *string     `json:"reference"`
	RecipientWalletNumber *string     `json:"recipient_wallet_number,omitempty"`
	SenderWalletNumber    *string     `json:"sender_wallet_number,omitempty"`
	CreatedAt             string      `json:"created_at"`
}

// CreateKeyRequest is the request body for issuing an API key.
type CreateKeyRequest struct {
	Name        string   `json:"name" binding:"required,max=100"`
	Permissions []string `json:"permissions" binding:"required,min=1,dive,permission"`
	Expiry      string   `json:"expiry" binding:"required,expiry"`
}

// RolloverKeyRequest is the request body for replacing an expired key.
type RolloverKeyRequest struct {
	ExpiredKeyID string `json:"expired_key_id" binding:"required,uuid"`
	Expiry       string `json:"expiry" binding:"required,expiry"`
}

// IssuedKeyResponse shows the raw secret exactly once.
type IssuedKeyResponse struct {
	APIKey      string   `json:"api_key"`
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
	ExpiresAt   string   `json:"expires_at"`
}

// KeyResponse describes a stored key without its secret.
type KeyResponse struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
	ExpiresAt   string   `json:"expires_at"`
	IsActive    bool     `json:"is_active"`
	Expired     bool     `json:"expired"`
	CreatedAt   string   `json:"created_at"`
}

// WebhookAck acknowledges a gateway notification.
type WebhookAck struct {
	Status  bool   `json:"status"`
	Outcome string `json:"outcome,omitempty"`
}

// ToTransactionResponse converts a ledger entry.
func ToTransactionResponse(t domain.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:                    t.ID.String(),
		Type:                  string(t.Kind),
		Amount:                t.Amount,
		Status:                string(t.Status),
		Reference:             t.Reference,
		RecipientWalletNumber: t.RecipientWalletNumber,
		SenderWalletNumber:    t.SenderWalletNumber,
		CreatedAt:             t.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// ToIssuedKeyResponse converts a freshly issued key.
func ToIssuedKeyResponse(k *ports.IssuedKey) IssuedKeyResponse {
	return IssuedKeyResponse{
		APIKey:      k.RawSecret,
		ID:          k.Key.ID.String(),
		Name:        k.Key.Name,
		Permissions: domain.PermissionStrings(k.Key.Permissions),
		ExpiresAt:   k.Key.ExpiresAt.UTC().Format(time.RFC3339),
	}
}

// ToKeyResponse converts a stored key as seen at now.
func ToKeyResponse(k domain.APIKey, now time.Time) KeyResponse {
	return KeyResponse{
		ID:          k.ID.String(),
		Name:        k.Name,
		Permissions: domain.PermissionStrings(k.Permissions),
		ExpiresAt:   k.ExpiresAt.UTC().Format(time.RFC3339),
		IsActive:    k.IsActive,
		Expired:     k.IsExpired(now),
		CreatedAt:   k.CreatedAt.UTC().Format(time.RFC3339),
	}
}
