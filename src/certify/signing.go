// Package certify issues and serves content certificates. A certificate
// binds the SHA-256 of the certified text to a public verification id with
// an HMAC held by this service. Anyone can recompute the content hash from
// the original text; only the service can check the signature.
package certify

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"
)

// ContentHash is the hex SHA-256 of text's UTF-8 bytes.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

type Signer struct {
	key []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{key: []byte(secret)}
}

// Sign returns hex HMAC-SHA256(key, contentHash + ":" + verificationID).
func (s *Signer) Sign(contentHash, verificationID string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(contentHash + ":" + verificationID))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *Signer) Verify(contentHash, verificationID, signature string) bool {
	want, err := hex.DecodeString(s.Sign(contentHash, verificationID))
	if err != nil {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(want, got)
}

// verificationIDBytes is 40 bits of entropy, rendered as 10 hex chars.
const verificationIDBytes = 5

// NewVerificationID returns VH-<year>-<10 uppercase hex> using random bytes from r.
func NewVerificationID(now time.Time, r io.Reader) (string, error) {
	if r == nil {
		r = rand.Reader
	}
	buf := make([]byte, verificationIDBytes)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return fmt.Sprintf("VH-%d-%s", now.UTC().Year(), strings.ToUpper(hex.EncodeToString(buf))), nil
}
