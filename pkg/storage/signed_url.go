package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// Signer creates and validates HMAC-signed download tokens for report files.
type Signer struct {
	secret []byte
	ttl    time.Duration
}

// NewSigner constructs a signer with the provided secret and TTL.
func NewSigner(secret string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Signer{secret: []byte(secret), ttl: ttl}
}

// Sign returns the expiry unix timestamp and signature for the filename.
func (s *Signer) Sign(filename string) (int64, string) {
	expires := time.Now().Add(s.ttl).Unix()
	return expires, s.signature(filename, expires)
}

// Verify checks the signature and expiry for the filename.
func (s *Signer) Verify(filename string, expires int64, sig string) error {
	if time.Now().Unix() > expires {
		return fmt.Errorf("signed url expired")
	}
	expected := s.signature(filename, expires)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return fmt.Errorf("invalid signature")
	}
	return nil
}

func (s *Signer) signature(filename string, expires int64) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(filename))
	mac.Write([]byte(":"))
	mac.Write([]byte(strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}
