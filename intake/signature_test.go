package intake

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sincerelyyyash/a8n-v2/core"
)

func TestVerifySignatureAcceptsValidRequest(t *testing.T) {
	now := time.Unix(1700000000, 0)
	ts := fmt.Sprintf("%d", now.Unix())
	body := []byte(`{"order":42}`)

	sig := ComputeSignature("topsecret", "POST", "/orders", ts, body)
	require.NoError(t, VerifySignature("topsecret", "POST", "/orders", ts, sig, body, now))
}

func TestVerifySignatureRejectsTamperedBody(t *testing.T) {
	now := time.Unix(1700000000, 0)
	ts := fmt.Sprintf("%d", now.Unix())
	body := []byte(`{"order":42}`)

	sig := ComputeSignature("topsecret", "POST", "/orders", ts, body)

	tampered := []byte(`{"order":43}`)
	err := VerifySignature("topsecret", "POST", "/orders", ts, sig, tampered, now)
	assert.ErrorIs(t, err, core.ErrInvalidSignature)
}

func TestVerifySignatureRejectsWrongSecret(t *testing.T) {
	now := time.Unix(1700000000, 0)
	ts := fmt.Sprintf("%d", now.Unix())
	body := []byte("payload")

	sig := ComputeSignature("topsecret", "POST", "/orders", ts, body)
	err := VerifySignature("othersecret", "POST", "/orders", ts, sig, body, now)
	assert.ErrorIs(t, err, core.ErrInvalidSignature)
}

func TestVerifySignatureCoversMethodAndPath(t *testing.T) {
	now := time.Unix(1700000000, 0)
	ts := fmt.Sprintf("%d", now.Unix())
	body := []byte("payload")

	sig := ComputeSignature("topsecret", "POST", "/orders", ts, body)

	assert.ErrorIs(t, VerifySignature("topsecret", "PUT", "/orders", ts, sig, body, now), core.ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature("topsecret", "POST", "/other", ts, sig, body, now), core.ErrInvalidSignature)
}

func TestVerifySignatureRejectsStaleTimestamp(t *testing.T) {
	now := time.Unix(1700000000, 0)
	stale := now.Add(-(MaxTimestampSkew + time.Second))
	ts := fmt.Sprintf("%d", stale.Unix())
	body := []byte("payload")

	sig := ComputeSignature("topsecret", "POST", "/orders", ts, body)
	err := VerifySignature("topsecret", "POST", "/orders", ts, sig, body, now)
	assert.ErrorIs(t, err, core.ErrStaleTimestamp)
}

func TestVerifySignatureRejectsFutureTimestampBeyondSkew(t *testing.T) {
	now := time.Unix(1700000000, 0)
	future := now.Add(MaxTimestampSkew + time.Minute)
	ts := fmt.Sprintf("%d", future.Unix())
	body := []byte("payload")

	sig := ComputeSignature("topsecret", "POST", "/orders", ts, body)
	err := VerifySignature("topsecret", "POST", "/orders", ts, sig, body, now)
	assert.ErrorIs(t, err, core.ErrStaleTimestamp)
}

func TestVerifySignatureAcceptsTimestampWithinSkew(t *testing.T) {
	now := time.Unix(1700000000, 0)
	recent := now.Add(-MaxTimestampSkew)
	ts := fmt.Sprintf("%d", recent.Unix())
	body := []byte("payload")

	sig := ComputeSignature("topsecret", "POST", "/orders", ts, body)
	assert.NoError(t, VerifySignature("topsecret", "POST", "/orders", ts, sig, body, now))
}

func TestVerifySignatureRejectsExtremeTimestamps(t *testing.T) {
	now := time.Unix(1700000000, 0)
	body := []byte("payload")

	// Skews this large overflow a naive seconds-to-Duration conversion; the
	// window check must still reject them.
	extremes := []int64{
		now.Unix() - (1 << 55),
		now.Unix() + (1 << 55),
		-(1 << 62),
		1 << 62,
	}
	for _, ts := range extremes {
		tsStr := fmt.Sprintf("%d", ts)
		sig := ComputeSignature("topsecret", "POST", "/orders", tsStr, body)
		err := VerifySignature("topsecret", "POST", "/orders", tsStr, sig, body, now)
		assert.ErrorIs(t, err, core.ErrStaleTimestamp, "timestamp %d must be rejected", ts)
	}
}

func TestVerifySignatureRejectsMissingOrMalformedInputs(t *testing.T) {
	now := time.Unix(1700000000, 0)
	ts := fmt.Sprintf("%d", now.Unix())
	body := []byte("payload")
	sig := ComputeSignature("topsecret", "POST", "/orders", ts, body)

	assert.ErrorIs(t, VerifySignature("topsecret", "POST", "/orders", ts, "", body, now), core.ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature("topsecret", "POST", "/orders", "", sig, body, now), core.ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature("topsecret", "POST", "/orders", "not-a-number", sig, body, now), core.ErrInvalidSignature)
}
