package analytics

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
)

// hashedIPLength is the number of hex characters kept from the digest.
const hashedIPLength = 16

// Hasher hashes client addresses with a salt so they can be counted but not
// recovered.
type Hasher struct {
	salt string
}

// NewHasher returns a Hasher with salt, or a random salt when salt is empty.
func NewHasher(salt string) (*Hasher, error) {
	if salt == "" {
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return nil, fmt.Errorf("generate salt: %w", err)
		}
		salt = hex.EncodeToString(b)
	}
	return &Hasher{salt: salt}, nil
}

// HashIP returns a truncated salted SHA-256 of ip, consistent per address.
func (h *Hasher) HashIP(ip string) string {
	sum := sha256.Sum256([]byte(ip + h.salt))
	return hex.EncodeToString(sum[:])[:hashedIPLength]
}

// Trackable reports whether a request may be recorded: Do Not Track and
// Global Privacy Control are honored.
func Trackable(r *http.Request) bool {
	if r.Header.Get("DNT") == "1" || r.Header.Get("Sec-GPC") == "1" {
		return false
	}
	return !strings.Contains(strings.ToLower(r.UserAgent()), "headlesschrome")
}
