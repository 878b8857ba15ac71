package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxActiveAPIKeys caps usable keys per user.
const MaxActiveAPIKeys = 5

// APIKeyPrefix marks raw secrets handed to clients.
const APIKeyPrefix = "sk_live_"

// Permission is a capability an API key may carry.
type Permission string

const (
	PermissionDeposit  Permission = "deposit"
	PermissionTransfer Permission = "transfer"
	PermissionRead     Permission = "read"
)

// AllPermissions is granted to session (JWT) principals.
var AllPermissions = []Permission{PermissionDeposit, PermissionTransfer, PermissionRead}

// ParsePermission validates a single permission value.
func ParsePermission(s string) (Permission, error) {
	switch p := Permission(s); p {
	case PermissionDeposit, PermissionTransfer, PermissionRead:
		return p, nil
	}
	return "", fmt.Errorf("unknown permission %q", s)
}

// ParsePermissions validates and de-duplicates a permission list, keeping order.
func ParsePermissions(values []string) ([]Permission, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("at least one permission is required")
	}
	seen := make(map[Permission]struct{}, len(values))
	out := make([]Permission, 0, len(values))
	for _, v := range values {
		p, err := ParsePermission(v)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}

// ExpirySpec is the closed set of key lifetimes.
type ExpirySpec string

const (
	ExpiryHour  ExpirySpec = "1H"
	ExpiryDay   ExpirySpec = "1D"
	ExpiryMonth ExpirySpec = "1M"
	ExpiryYear  ExpirySpec = "1Y"
)

var expiryDurations = map[ExpirySpec]time.Duration{
	ExpiryHour:  time.Hour,
	ExpiryDay:   24 * time.Hour,
	ExpiryMonth: 30 * 24 * time.Hour,
	ExpiryYear:  365 * 24 * time.Hour,
}

// ParseExpirySpec validates an expiry code. Codes are case-insensitive.
func ParseExpirySpec(s string) (ExpirySpec, error) {
	e := ExpirySpec(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := expiryDurations[e]; !ok {
		return "", fmt.Errorf("unknown expiry %q", s)
	}
	return e, nil
}

// Duration returns the fixed lifetime of the spec.
func (e ExpirySpec) Duration() time.Duration {
	return expiryDurations[e]
}

// ExpiresAt computes the absolute expiry from the issuance time.
func (e ExpirySpec) ExpiresAt(from time.Time) time.Time {
	return from.Add(e.Duration())
}

// APIKey is a hashed, scoped, expiring credential. The raw secret is never stored.
type APIKey struct {
	ID          uuid.UUID    `json:"id"`
	UserID      uuid.UUID    `json:"user_id"`
	KeyHash     string       `json:"-"`
	Name        string       `json:"name"`
	Permissions []Permission `json:"permissions"`
	ExpiresAt   time.Time    `json:"expires_at"`
	IsActive    bool         `json:"is_active"`
	CreatedAt   time.Time    `json:"created_at"`
}

// IsExpired reports whether the key's expiry is at or before now.
func (k *APIKey) IsExpired(now time.Time) bool {
	return !now.Before(k.ExpiresAt)
}

// IsUsable reports whether the key may authenticate requests.
func (k *APIKey) IsUsable(now time.Time) bool {
	return k.IsActive && !k.IsExpired(now)
}

// HasPermission reports whether p is granted.
func (k *APIKey) HasPermission(p Permission) bool {
	for _, granted := range k.Permissions {
		if granted == p {
			return true
		}
	}
	return false
}

// RolloverName labels a key issued to replace an expired one.
func RolloverName(old string) string {
	return old + " (rolled over)"
}

// PermissionStrings converts permissions for storage.
func PermissionStrings(ps []Permission) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = string(p)
	}
	return out
}
