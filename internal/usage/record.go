package usage

import "time"

// BillingStatus is the subscription state of a user.
type BillingStatus string

const (
	BillingStatusFree   BillingStatus = "free"
	BillingStatusActive BillingStatus = "active"
)

// Record tracks per-user generation counts and billing status. One record
// exists per user after first access; records are created lazily and never
// deleted.
type Record struct {
	UserID                 string        `json:"userId"`
	GeneratedCount         int           `json:"generatedCount"`
	BillingStatus          BillingStatus `json:"billingStatus"`
	ProviderCustomerID     string        `json:"providerCustomerId,omitempty"`
	ProviderSubscriptionID string        `json:"providerSubscriptionId,omitempty"`
	UpdatedAt              time.Time     `json:"updatedAt"`
}

// NewRecord returns the default record for a user that has never generated.
func NewRecord(userID string) Record {
	return Record{
		UserID:         userID,
		GeneratedCount: 0,
		BillingStatus:  BillingStatusFree,
		UpdatedAt:      time.Now().UTC(),
	}
}

// View is the caller-facing projection of a Record. It is recomputed on every
// read and never persisted.
type View struct {
	UserID                string `json:"userId"`
	GeneratedCount        int    `json:"generatedCount"`
	FreeLimit             int    `json:"freeLimit"`
	RemainingFree         int    `json:"remainingFree"`
	HasActiveSubscription bool   `json:"hasActiveSubscription"`
	CanGenerate           bool   `json:"canGenerate"`
}

// BuildView derives the quota decision from a record. It is a pure function:
// admission logic never reads the provider ids and never touches storage.
func BuildView(rec Record, freeLimit int) View {
	remaining := freeLimit - rec.GeneratedCount
	if remaining < 0 {
		remaining = 0
	}
	active := rec.BillingStatus == BillingStatusActive
	return View{
		UserID:                rec.UserID,
		GeneratedCount:        rec.GeneratedCount,
		FreeLimit:             freeLimit,
		RemainingFree:         remaining,
		HasActiveSubscription: active,
		CanGenerate:           active || remaining > 0,
	}
}
