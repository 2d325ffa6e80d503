package generate

import (
	"fmt"

	"github.com/reveworks/backend/internal/usage"
)

// ValidationError is a missing or malformed request field. It is returned
// before any side effect and its message is surfaced verbatim to the caller.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// QuotaError denies admission: the free tier is exhausted and no subscription
// is active. It is not a fault; it carries the usage snapshot and, when the
// checkout gateway produced one, an upgrade URL.
type QuotaError struct {
	View           usage.View
	CheckoutURL    string
	BillingMessage string
}

func (e *QuotaError) Error() string {
	return "free generation limit reached"
}

// ProviderError wraps an image-generation failure. Usage is never
// incremented when one of these is returned.
type ProviderError struct {
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("image generation failed: %v", e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
