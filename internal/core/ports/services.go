package ports

//go:generate mockgen -destination=mocks/mock_services.go -package=mocks wallet-ledger/internal/core/ports SignatureService,KeyHasher,TokenService,SettlementCache,PaymentGateway,LedgerService,APIKeyService,UserService,WebhookService,AuditService

import (
	"context"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/pkg/money"

	"github.com/google/uuid"
)

// SignatureService computes and checks gateway webhook signatures.
type SignatureService interface {
	Sign(secret string, payload []byte) string
	Verify(secret string, payload []byte, signature string) bool
}

// KeyHasher derives the stored lookup hash of an API key secret.
type KeyHasher interface {
	Hash(secret string) string
}

// TokenService handles session JWT operations.
type TokenService interface {
	Generate(userID uuid.UUID, email string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	UserID uuid.UUID
	Email  string
}

// SettlementCache remembers references that already reached a terminal status.
// It is a fast path only; the store remains authoritative.
type SettlementCache interface {
	Get(ctx context.Context, reference string) (domain.TransactionStatus, bool, error)
	Set(ctx context.Context, reference string, status domain.TransactionStatus, ttl time.Duration) error
}

// --- Gateway Adapter ---

// PaymentGateway initiates and verifies charges with the external payment provider.
type PaymentGateway interface {
	InitializeCharge(ctx context.Context, req ChargeRequest) (*ChargeInit, error)
	VerifyCharge(ctx context.Context, reference string) (*ChargeVerification, error)
}

// ChargeRequest is the input for a new gateway charge.
type ChargeRequest struct {
	Email     string
	Amount    money.Money
	Reference string
}

// ChargeInit is the gateway's payment-initialization handle.
type ChargeInit struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

// ChargeVerification is the gateway's current view of a charge.
type ChargeVerification struct {
	Reference     string
	GatewayStatus string
	Outcome       domain.ChargeOutcome
	Amount        money.Money
}

// --- Service Ports (Business Logic) ---

// LedgerService is the transaction engine: the only writer of balances and ledger entries.
type LedgerService interface {
	InitiateDeposit(ctx context.Context, userID uuid.UUID, amount money.Money) (*DepositIntent, error)
	SettleDeposit(ctx context.Context, req SettleRequest) (*SettleResult, error)
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
	GetBalance(ctx context.Context, userID uuid.UUID) (*BalanceView, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]domain.Transaction, error)
	GetDepositStatus(ctx context.Context, userID uuid.UUID, reference string) (*DepositStatus, error)
	ReconcilePending(ctx context.Context, olderThan time.Time, limit int) (*ReconcileReport, error)
}

// DepositIntent is returned once a pending deposit is recorded.
type DepositIntent struct {
	Reference        string
	AuthorizationURL string
	Status           domain.TransactionStatus
}

// SettleRequest carries a gateway verdict for one reference.
type SettleRequest struct {
	Reference string
	Outcome   domain.ChargeOutcome
	Amount    money.Money
}

// SettleResult reports the settled entry; Applied is false for replays and no-ops.
type SettleResult struct {
	Transaction *domain.Transaction
	Applied     bool
}

// TransferRequest holds validated input for a wallet-to-wallet transfer.
type TransferRequest struct {
	SenderUserID          uuid.UUID
	RecipientWalletNumber string
	Amount                money.Money
}

// TransferResult holds both legs of a committed transfer.
type TransferResult struct {
	Status domain.TransactionStatus
	Debit  *domain.Transaction
	Credit *domain.Transaction
}

// BalanceView is the public balance read model.
type BalanceView struct {
	Balance      money.Money
	WalletNumber string
}

// DepositStatus combines the ledger status with the gateway's view.
type DepositStatus struct {
	Reference     string
	Status        domain.TransactionStatus
	Amount        money.Money
	GatewayStatus string
}

// ReconcileReport summarizes one reconciliation pass.
type ReconcileReport struct {
	Checked int
	Settled int
	Pending int
	Errors  int
}

// APIKeyService issues, rotates and authenticates API keys.
type APIKeyService interface {
	IssueKey(ctx context.Context, req IssueKeyRequest) (*IssuedKey, error)
	RolloverKey(ctx context.Context, req RolloverKeyRequest) (*IssuedKey, error)
	Authenticate(ctx context.Context, rawSecret string, required domain.Permission) (*domain.APIKey, error)
	ListKeys(ctx context.Context, userID uuid.UUID) ([]domain.APIKey, error)
	RevokeKey(ctx context.Context, userID, keyID uuid.UUID) error
}

// IssueKeyRequest is the unvalidated input for key issuance.
type IssueKeyRequest struct {
	UserID      uuid.UUID
	Name        string
	Permissions []string
	Expiry      string
}

// RolloverKeyRequest is the input for replacing an expired key.
type RolloverKeyRequest struct {
	UserID       uuid.UUID
	ExpiredKeyID uuid.UUID
	Expiry       string
}

// IssuedKey holds the raw secret, shown exactly once.
type IssuedKey struct {
	RawSecret string
	Key       domain.APIKey
}

// UserService provisions users together with their wallet.
type UserService interface {
	Provision(ctx context.Context, req ProvisionRequest) (*ProvisionResult, error)
}

// ProvisionRequest identifies a user coming from the identity provider.
type ProvisionRequest struct {
	Email    string
	GoogleID string
	Name     string
}

// ProvisionResult is the user and its wallet; Created is false when both already existed.
type ProvisionResult struct {
	User    domain.User
	Wallet  domain.Wallet
	Created bool
}

// WebhookService verifies and dispatches inbound gateway notifications.
type WebhookService interface {
	HandleGatewayEvent(ctx context.Context, body []byte, signature string) (*WebhookResult, error)
}

// WebhookResult reports how an event was handled.
type WebhookResult struct {
	Event     string
	Reference string
	Outcome   domain.WebhookOutcome
	Status    domain.TransactionStatus
}

// AuditService records audited actions.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}

// LedgerMetrics receives business counters from the engine and its callers.
type LedgerMetrics interface {
	DepositInitiated()
	DepositSettled(status domain.TransactionStatus)
	TransferCompleted(minor int64)
	WebhookHandled(outcome domain.WebhookOutcome)
	APIKeyAuthenticated(ok bool)
	ReconcileCompleted(report ReconcileReport, d time.Duration)
}
