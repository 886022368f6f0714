package application

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/sha3"
)

// NewConfirmationToken returns a cryptographically random confirmation token.
func NewConfirmationToken() string {
	buf := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return fmt.Sprintf("fallback-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}

// TokenDigest hashes a confirmation token for storage. Bookings hold only
// the digest, so a leaked data store does not expose live confirmation
// links; lookups hash the presented token and match on the digest.
func TokenDigest(token string) string {
	sum := sha3.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
