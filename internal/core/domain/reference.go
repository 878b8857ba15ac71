package domain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"
)

const (
	ReferencePrefixDeposit  = "dep"
	ReferencePrefixTransfer = "trx"
)

// NewReference builds a globally unique reference such as dep_1700000000000_9f1c2a7b3d4e5f60.
func NewReference(prefix string) (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	return fmt.Sprintf("%s_%d_%s", prefix, time.Now().UnixMilli(), hex.EncodeToString(b)), nil
}

var walletNumberSpace = new(big.Int).Exp(big.NewInt(10), big.NewInt(WalletNumberLength), nil)

// NewWalletNumber draws a zero-padded 13 digit number from crypto/rand.
// Uniqueness is enforced by the store; callers retry on collision.
func NewWalletNumber() (string, error) {
	n, err := rand.Int(rand.Reader, walletNumberSpace)
	if err != nil {
		return "", fmt.Errorf("generating wallet number: %w", err)
	}
	return fmt.Sprintf("%0*d", WalletNumberLength, n), nil
}

// SettlementCacheKey is the cache key holding the terminal status of a reference.
func SettlementCacheKey(reference string) string {
	return "settlement:" + reference
}
