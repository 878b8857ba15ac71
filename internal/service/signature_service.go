package service

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strings"
)

// HMACSignatureService implements ports.SignatureService using HMAC-SHA512,
// the scheme the payment gateway uses to sign webhook bodies.
type HMACSignatureService struct{}

// NewHMACSignatureService creates a new HMAC-SHA512 signature service.
func NewHMACSignatureService() *HMACSignatureService {
	return &HMACSignatureService{}
}

// Sign computes HMAC-SHA512 of the raw payload using secret.
// Returns lowercase hex-encoded signature.
func (s *HMACSignatureService) Sign(secret string, payload []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks signature against the raw payload in constant time.
func (s *HMACSignatureService) Verify(secret string, payload []byte, signature string) bool {
	if signature == "" {
		return false
	}
	expected := s.Sign(secret, payload)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}
