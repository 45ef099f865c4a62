package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Outbound delivery headers. Tenant endpoints recompute the signature over
// "<timestamp_ms>.<json body>" with their subscription secret and compare;
// the serialization order is part of the delivery contract and must not
// change.
const (
	OutboundEventHeader     = "X-Webhook-Event"
	OutboundTimestampHeader = "X-Webhook-Timestamp"
	OutboundSignatureHeader = "X-Webhook-Signature"
	OutboundAttemptHeader   = "X-Webhook-Attempt"
)

// SignOutbound computes the hex HMAC-SHA256 for an outbound delivery,
// keyed by the subscription secret, over "<timestamp_ms>.<payload>".
func SignOutbound(secret string, timestampMs int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestampMs, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// BuildInboundHeader assembles a signature header the way the provider
// would. Used by tests and the local replay tooling.
func BuildInboundHeader(payload []byte, timestamp int64, secret string) string {
	sig := computeInboundMAC(payload, timestamp, secret)
	return "t=" + strconv.FormatInt(timestamp, 10) + ",v1=" + hex.EncodeToString(sig)
}
