package intake

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/sincerelyyyash/a8n-v2/core"
)

// MaxTimestampSkew bounds how far a signed webhook's X-Timestamp may drift
// from the server clock, in either direction.
const MaxTimestampSkew = 300 * time.Second

// ComputeSignature returns the hex-encoded HMAC-SHA256 of the canonical
// message METHOD "\n" PATH "\n" TIMESTAMP "\n" BODY under the secret.
func ComputeSignature(secret, method, path, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s\n%s\n%s\n", method, path, timestamp)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature validates a signed webhook request: the timestamp must be
// numeric and within MaxTimestampSkew of now, and the provided signature
// must match the computed one. Comparison is constant time.
func VerifySignature(secret, method, path, timestamp, signature string, body []byte, now time.Time) error {
	if signature == "" || timestamp == "" {
		return fmt.Errorf("missing signature or timestamp: %w", core.ErrInvalidSignature)
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("timestamp %q is not numeric: %w", timestamp, core.ErrInvalidSignature)
	}

	// Compare in integer seconds; converting an attacker-supplied skew to a
	// time.Duration can overflow int64 and wrap inside the window.
	maxSkew := int64(MaxTimestampSkew / time.Second)
	if ts < now.Unix()-maxSkew || ts > now.Unix()+maxSkew {
		return fmt.Errorf("timestamp %d is outside the allowed window: %w", ts, core.ErrStaleTimestamp)
	}

	expected := ComputeSignature(secret, method, path, timestamp, body)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return core.ErrInvalidSignature
	}

	return nil
}
