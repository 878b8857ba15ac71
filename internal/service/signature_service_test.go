package service

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHMACSignatureService_Sign(t *testing.T) {
	svc := NewHMACSignatureService()
	payload := []byte(`{"event":"charge.success","data":{"reference":"dep_1_abc"}}`)

	mac := hmac.New(sha512.New, []byte("sk_test"))
	mac.Write(payload)
	want := hex.EncodeToString(mac.Sum(nil))

	assert.Equal(t, want, svc.Sign("sk_test", payload))
	assert.Len(t, want, 128)
}

func TestHMACSignatureService_Verify(t *testing.T) {
	svc := NewHMACSignatureService()
	payload := []byte(`{"event":"charge.success"}`)
	sig := svc.Sign("sk_test", payload)

	tests := []struct {
		name    string
		secret  string
		payload []byte
		sig     string
		want    bool
	}{
		{"valid", "sk_test", payload, sig, true},
		{"uppercase hex", "sk_test", payload, strings.ToUpper(sig), true},
		{"wrong secret", "sk_other", payload, sig, false},
		{"tampered body", "sk_test", []byte(`{"event":"charge.failed"}`), sig, false},
		{"empty signature", "sk_test", payload, "", false},
		{"truncated", "sk_test", payload, sig[:64], false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, svc.Verify(tt.secret, tt.payload, tt.sig))
		})
	}
}
