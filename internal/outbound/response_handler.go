package outbound

import (
	"fmt"
	"time"

	"github.com/relaygrid/billing-events/internal/models"
)

// DeliveryDecision is the scheduling outcome of one attempt: succeeded,
// pending (retry at NextAttemptAt) or failed (abandoned, manual re-send
// only).
type DeliveryDecision struct {
	Status        string
	NextAttemptAt time.Time
	LastError     *string
}

// ProcessDeliveryResult decides what happens after an attempt. attemptCount
// is the attempt that was just made (1-based); once it reaches maxAttempts
// the delivery is abandoned, never retried automatically.
func ProcessDeliveryResult(result *DeliveryResult, attemptCount, maxAttempts int) DeliveryDecision {
	// Transport error: the request never came back.
	if result.Err != nil {
		return retryOrAbandon(attemptCount, maxAttempts, fmt.Sprintf("transport error: %v", result.Err))
	}

	if result.HTTPStatus == nil {
		return retryOrAbandon(attemptCount, maxAttempts, "no HTTP status received")
	}

	httpStatus := *result.HTTPStatus

	if httpStatus >= 200 && httpStatus < 300 {
		return DeliveryDecision{Status: models.DeliveryStatusSucceeded}
	}

	// Rate limited: honor Retry-After when the endpoint provides one.
	if httpStatus == 429 && result.RetryAfter != "" && attemptCount < maxAttempts {
		if retryAfter, ok := ParseRetryAfterHeader(result.RetryAfter); ok && retryAfter > 0 {
			errMsg := fmt.Sprintf("rate limited (429), retry after %v", retryAfter)
			return DeliveryDecision{
				Status:        models.DeliveryStatusPending,
				NextAttemptAt: time.Now().UTC().Add(retryAfter),
				LastError:     &errMsg,
			}
		}
	}

	return retryOrAbandon(attemptCount, maxAttempts, fmt.Sprintf("HTTP %d", httpStatus))
}

func retryOrAbandon(attemptCount, maxAttempts int, reason string) DeliveryDecision {
	if attemptCount >= maxAttempts {
		errMsg := fmt.Sprintf("max attempts reached: %s", reason)
		return DeliveryDecision{
			Status:    models.DeliveryStatusFailed,
			LastError: &errMsg,
		}
	}

	backoff := CalculateBackoffDelay(attemptCount + 1)
	return DeliveryDecision{
		Status:        models.DeliveryStatusPending,
		NextAttemptAt: time.Now().UTC().Add(backoff),
		LastError:     &reason,
	}
}
