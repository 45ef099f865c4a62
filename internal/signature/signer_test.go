package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignOutbound_Recomputable(t *testing.T) {
	secret := "sub_secret_abc"
	payload := []byte(`{"event_id":"evt_9","notice":"payment_warning"}`)
	timestampMs := int64(1756600000123)

	sig := SignOutbound(secret, timestampMs, payload)

	// A receiving endpoint recomputes over "<timestamp_ms>.<payload>".
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("1756600000123."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	assert.Equal(t, expected, sig)
}

func TestSignOutbound_Deterministic(t *testing.T) {
	payload := []byte(`{"k":"v"}`)
	a := SignOutbound("s1", 1000, payload)
	b := SignOutbound("s1", 1000, payload)
	assert.Equal(t, a, b)
}

func TestSignOutbound_VariesWithInputs(t *testing.T) {
	payload := []byte(`{"k":"v"}`)
	base := SignOutbound("s1", 1000, payload)

	assert.NotEqual(t, base, SignOutbound("s2", 1000, payload), "secret must change the signature")
	assert.NotEqual(t, base, SignOutbound("s1", 1001, payload), "timestamp must change the signature")
	assert.NotEqual(t, base, SignOutbound("s1", 1000, []byte(`{"k":"w"}`)), "payload must change the signature")
}

func TestBuildInboundHeader_RoundTrip(t *testing.T) {
	payload := []byte(`{"id":"evt_7","type":"usage_updated"}`)
	ts := int64(1756600000)

	header := BuildInboundHeader(payload, ts, "whsec_roundtrip")

	timestamp, candidates, err := parseSignatureHeader(header)
	assert.NoError(t, err)
	assert.Equal(t, ts, timestamp)
	assert.Len(t, candidates, 1)

	expected := computeInboundMAC(payload, ts, "whsec_roundtrip")
	assert.Equal(t, expected, candidates[0])
}
