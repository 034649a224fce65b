// Package keys generates the opaque secrets the identity store hands out:
// agent API keys, human claim codes, and email verification codes.
package keys

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
)

const (
	apiKeyPrefix   = "ml_"
	randomAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	claimAlphabet  = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// NewAPIKey returns a fresh agent API key. Format: ml_<base36 ms>_<8 random>.
// The timestamp component makes collisions across the random suffix
// negligible without a uniqueness round-trip.
func NewAPIKey() string {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 36)
	return apiKeyPrefix + ts + "_" + randomString(randomAlphabet, 8)
}

// NewClaimCode returns a short human-facing claim code, e.g. "claim-7XK2".
func NewClaimCode() string {
	return "claim-" + randomString(claimAlphabet, 4)
}

// NewEmailCode returns a 6-digit numeric verification code.
func NewEmailCode() string {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		// crypto/rand failing means the process has no entropy source;
		// nothing sensible to fall back to.
		panic(fmt.Sprintf("keys: rand failed: %v", err))
	}
	return strconv.FormatInt(n.Int64()+100000, 10)
}

// Equal compares two secrets in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func randomString(alphabet string, length int) string {
	var sb strings.Builder
	max := big.NewInt(int64(len(alphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(fmt.Sprintf("keys: rand failed: %v", err))
		}
		sb.WriteByte(alphabet[n.Int64()])
	}
	return sb.String()
}
