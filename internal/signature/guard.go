package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// InboundSignatureHeader carries the provider's signature over the raw
// request body, in the form "t=<unix_seconds>,v1=<hex_hmac>[,v1=...]".
const InboundSignatureHeader = "X-Provider-Signature"

// Clock skew tolerated for timestamps slightly in the future.
const futureSkewTolerance = 60 * time.Second

var (
	ErrMissingSignature   = errors.New("signature header is required")
	ErrMalformedSignature = errors.New("malformed signature header")
	ErrInvalidSignature   = errors.New("invalid signature")
	ErrStaleTimestamp     = errors.New("signature timestamp outside replay window")
)

// VerifyInbound checks the authenticity and freshness of an inbound
// provider request. The signature is recomputed over "<t>.<raw body>" with
// HMAC-SHA256 and compared in constant time; the embedded timestamp must be
// within maxAge of now. Purely a validation gate: no side effects, and a
// failure here must short-circuit before any store write.
func VerifyInbound(payload []byte, header, secret string, maxAge time.Duration, now time.Time) error {
	if strings.TrimSpace(header) == "" {
		return ErrMissingSignature
	}

	timestamp, candidates, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}

	expected := computeInboundMAC(payload, timestamp, secret)
	match := false
	for _, candidate := range candidates {
		// hmac.Equal for every candidate, no early exit on length.
		if hmac.Equal(candidate, expected) {
			match = true
		}
	}
	if !match {
		return ErrInvalidSignature
	}

	ts := time.Unix(timestamp, 0)
	if now.Sub(ts) > maxAge {
		return ErrStaleTimestamp
	}
	if ts.Sub(now) > futureSkewTolerance {
		return ErrStaleTimestamp
	}

	return nil
}

// parseSignatureHeader splits "t=...,v1=...,v1=..." into the timestamp and
// the list of decoded signature candidates.
func parseSignatureHeader(header string) (int64, [][]byte, error) {
	var timestamp int64 = -1
	var candidates [][]byte

	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			return 0, nil, ErrMalformedSignature
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil || ts <= 0 {
				return 0, nil, ErrMalformedSignature
			}
			timestamp = ts
		case "v1":
			sig, err := hex.DecodeString(strings.ToLower(value))
			if err != nil {
				return 0, nil, ErrMalformedSignature
			}
			candidates = append(candidates, sig)
		default:
			// Unknown scheme versions are skipped, not rejected.
		}
	}

	if timestamp < 0 || len(candidates) == 0 {
		return 0, nil, ErrMalformedSignature
	}
	return timestamp, candidates, nil
}

func computeInboundMAC(payload []byte, timestamp int64, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payload)
	return mac.Sum(nil)
}
