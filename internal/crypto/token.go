package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"time"
)

const ResetTokenTTL = time.Hour

type ResetToken struct {
	Raw       string
	Hash      string
	ExpiresAt time.Time
}

// NewResetToken returns a single-use token. Only Hash and ExpiresAt are
// persisted; Raw goes out by email.
func NewResetToken(now time.Time) (ResetToken, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return ResetToken{}, err
	}
	raw := base64.RawURLEncoding.EncodeToString(buf)
	return ResetToken{
		Raw:       raw,
		Hash:      HashToken(raw),
		ExpiresAt: now.Add(ResetTokenTTL),
	}, nil
}

func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
