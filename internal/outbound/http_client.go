package outbound

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/relaygrid/billing-events/internal/signature"
)

// DeliveryResult represents the result of one webhook delivery attempt.
// A nil HTTPStatus means the request never returned (DNS, timeout,
// connection refused); the attempt row records status 0 in that case.
type DeliveryResult struct {
	HTTPStatus          *int
	DurationMs          int
	ResponseBodyExcerpt string
	RetryAfter          string
	Err                 error
}

// DeliverWebhook performs one signed HTTP POST to a tenant endpoint. The
// signature covers "<timestamp_ms>.<payload>" with the subscription secret,
// per the documented delivery contract.
func DeliverWebhook(
	url string,
	payload []byte,
	secret string,
	eventType string,
	attemptNumber int,
	timeout time.Duration,
	maxResponseBodySize int,
) *DeliveryResult {
	result := &DeliveryResult{}

	timestampMs := time.Now().UnixMilli()
	sig := signature.SignOutbound(secret, timestampMs, payload)

	client := &http.Client{Timeout: timeout}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		result.Err = fmt.Errorf("failed to create HTTP request: %w", err)
		return result
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signature.OutboundEventHeader, eventType)
	req.Header.Set(signature.OutboundTimestampHeader, strconv.FormatInt(timestampMs, 10))
	req.Header.Set(signature.OutboundSignatureHeader, sig)
	req.Header.Set(signature.OutboundAttemptHeader, strconv.Itoa(attemptNumber))

	startTime := time.Now()
	resp, err := client.Do(req)
	result.DurationMs = int(time.Since(startTime).Milliseconds())
	if err != nil {
		result.Err = fmt.Errorf("HTTP request failed: %w", err)
		return result
	}
	defer resp.Body.Close()

	result.HTTPStatus = &resp.StatusCode

	excerpt, err := io.ReadAll(io.LimitReader(resp.Body, int64(maxResponseBodySize)))
	if err == nil {
		result.ResponseBodyExcerpt = string(excerpt)
	}

	if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
		result.RetryAfter = retryAfter
	}

	return result
}
