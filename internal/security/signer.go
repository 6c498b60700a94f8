package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Signer binds values to a secret with HMAC-SHA256 so a client cannot forge
// another guest's id. No server side state is needed.
type Signer struct {
	secret []byte
}

// NewSigner creates a signer keyed by secret
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign returns value followed by a dot and its MAC
func (s *Signer) Sign(value string) (string, error) {
	if value == "" {
		return "", fmt.Errorf("value is required")
	}
	return value + "." + s.mac(value), nil
}

// Verify checks a signed value and returns the original value
func (s *Signer) Verify(signed string) (string, bool) {
	i := strings.LastIndexByte(signed, '.')
	if i <= 0 || i == len(signed)-1 {
		return "", false
	}
	value, sig := signed[:i], signed[i+1:]
	if !hmac.Equal([]byte(s.mac(value)), []byte(sig)) {
		return "", false
	}
	return value, true
}

func (s *Signer) mac(value string) string {
	m := hmac.New(sha256.New, s.secret)
	m.Write([]byte(value))
	return hex.EncodeToString(m.Sum(nil))
}
