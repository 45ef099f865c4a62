package signature

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test_0123456789"

func TestVerifyInbound_Valid(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"payment_failed"}`)
	now := time.Now()
	header := BuildInboundHeader(payload, now.Unix(), testSecret)

	err := VerifyInbound(payload, header, testSecret, 300*time.Second, now)
	assert.NoError(t, err)
}

func TestVerifyInbound_MissingHeader(t *testing.T) {
	err := VerifyInbound([]byte("{}"), "", testSecret, 300*time.Second, time.Now())
	assert.ErrorIs(t, err, ErrMissingSignature)

	err = VerifyInbound([]byte("{}"), "   ", testSecret, 300*time.Second, time.Now())
	assert.ErrorIs(t, err, ErrMissingSignature)
}

func TestVerifyInbound_TamperedPayload(t *testing.T) {
	payload := []byte(`{"id":"evt_1","amount":100}`)
	now := time.Now()
	header := BuildInboundHeader(payload, now.Unix(), testSecret)

	// Flipping any byte of the payload must invalidate verification.
	for i := range payload {
		tampered := make([]byte, len(payload))
		copy(tampered, payload)
		tampered[i] ^= 0x01

		err := VerifyInbound(tampered, header, testSecret, 300*time.Second, now)
		assert.ErrorIs(t, err, ErrInvalidSignature, "byte %d", i)
	}
}

func TestVerifyInbound_TamperedSignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now()
	header := BuildInboundHeader(payload, now.Unix(), testSecret)

	// Flip one hex digit of the signature token.
	tampered := []byte(header)
	last := len(tampered) - 1
	if tampered[last] == '0' {
		tampered[last] = '1'
	} else {
		tampered[last] = '0'
	}

	err := VerifyInbound(payload, string(tampered), testSecret, 300*time.Second, now)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyInbound_WrongSecret(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now()
	header := BuildInboundHeader(payload, now.Unix(), "whsec_other")

	err := VerifyInbound(payload, header, testSecret, 300*time.Second, now)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyInbound_StaleTimestamp(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now()
	signedAt := now.Add(-301 * time.Second)
	header := BuildInboundHeader(payload, signedAt.Unix(), testSecret)

	// Valid signature, but outside the replay window.
	err := VerifyInbound(payload, header, testSecret, 300*time.Second, now)
	assert.ErrorIs(t, err, ErrStaleTimestamp)
}

func TestVerifyInbound_WithinWindow(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now()
	signedAt := now.Add(-299 * time.Second)
	header := BuildInboundHeader(payload, signedAt.Unix(), testSecret)

	err := VerifyInbound(payload, header, testSecret, 300*time.Second, now)
	assert.NoError(t, err)
}

func TestVerifyInbound_FutureTimestamp(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now()
	signedAt := now.Add(5 * time.Minute)
	header := BuildInboundHeader(payload, signedAt.Unix(), testSecret)

	err := VerifyInbound(payload, header, testSecret, 300*time.Second, now)
	assert.ErrorIs(t, err, ErrStaleTimestamp)
}

func TestVerifyInbound_MultipleCandidates(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now()
	valid := BuildInboundHeader(payload, now.Unix(), testSecret)

	// A bogus candidate alongside the valid one still verifies; this is
	// how providers roll signing secrets.
	header := valid + ",v1=" + "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"
	err := VerifyInbound(payload, header, testSecret, 300*time.Second, now)
	assert.NoError(t, err)
}

func TestVerifyInbound_Malformed(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now()

	tests := []struct {
		name   string
		header string
	}{
		{name: "no tokens", header: "garbage"},
		{name: "missing timestamp", header: "v1=deadbeef"},
		{name: "missing signature", header: "t=1700000000"},
		{name: "bad timestamp", header: "t=notanumber,v1=deadbeef"},
		{name: "negative timestamp", header: "t=-5,v1=deadbeef"},
		{name: "non-hex signature", header: "t=1700000000,v1=zzzz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyInbound(payload, tt.header, testSecret, 300*time.Second, now)
			assert.ErrorIs(t, err, ErrMalformedSignature)
		})
	}
}

func TestVerifyInbound_UnknownSchemeIgnored(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now()
	header := BuildInboundHeader(payload, now.Unix(), testSecret) + ",v0=ignored"

	err := VerifyInbound(payload, header, testSecret, 300*time.Second, now)
	require.NoError(t, err)
}
