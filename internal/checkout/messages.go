package checkout

import (
	"fmt"
	"math"
	"time"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
)

const (
	msgGenericFailure = "We could not place your order. Please try again."
	msgRateLimited    = "Too many orders in a short time. Please try again shortly."
	msgBelowMinimum   = "Your order is below the minimum for this store."
	msgEmptyCart      = "Your cart is empty."
)

// RateLimitMessage renders the inline message shown when a submission is
// rate limited, counting down from the server's Retry-After hint.
func RateLimitMessage(retryAfter time.Duration) string {
	if retryAfter <= 0 {
		return msgRateLimited
	}
	return fmt.Sprintf("Too many orders in a short time. Please try again in %s.", countdown(retryAfter))
}

// FailureMessage maps a Submit error to the single inline message the
// checkout form shows.
func FailureMessage(err error) string {
	if err == nil {
		return ""
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		return msgGenericFailure
	}
	switch typed.Code() {
	case pkgerrors.CodeRateLimit:
		return RateLimitMessage(typed.RetryAfter())
	case pkgerrors.CodeValidation:
		switch typed.Message() {
		case errEmptyCart:
			return msgEmptyCart
		case errBelowMinimum:
			return msgBelowMinimum
		}
		return "Please check your details: " + typed.Message() + "."
	}
	return msgGenericFailure
}

func countdown(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 60 {
		if secs == 1 {
			return "1 second"
		}
		return fmt.Sprintf("%d seconds", secs)
	}
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}
