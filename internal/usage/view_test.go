package usage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildView(t *testing.T) {
	tests := []struct {
		name          string
		count         int
		status        BillingStatus
		freeLimit     int
		wantRemaining int
		wantCan       bool
	}{
		{
			name:          "fresh free user",
			count:         0,
			status:        BillingStatusFree,
			freeLimit:     3,
			wantRemaining: 3,
			wantCan:       true,
		},
		{
			name:          "one use left",
			count:         2,
			status:        BillingStatusFree,
			freeLimit:     3,
			wantRemaining: 1,
			wantCan:       true,
		},
		{
			name:          "limit reached",
			count:         3,
			status:        BillingStatusFree,
			freeLimit:     3,
			wantRemaining: 0,
			wantCan:       false,
		},
		{
			name:          "over the limit never goes negative",
			count:         10,
			status:        BillingStatusFree,
			freeLimit:     3,
			wantRemaining: 0,
			wantCan:       false,
		},
		{
			name:          "active subscription past the limit",
			count:         10,
			status:        BillingStatusActive,
			freeLimit:     3,
			wantRemaining: 0,
			wantCan:       true,
		},
		{
			name:          "free limit of one",
			count:         1,
			status:        BillingStatusFree,
			freeLimit:     1,
			wantRemaining: 0,
			wantCan:       false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := Record{UserID: "u1", GeneratedCount: tt.count, BillingStatus: tt.status}
			view := BuildView(rec, tt.freeLimit)

			assert.Equal(t, "u1", view.UserID)
			assert.Equal(t, tt.count, view.GeneratedCount)
			assert.Equal(t, tt.wantRemaining, view.RemainingFree)
			assert.Equal(t, tt.status == BillingStatusActive, view.HasActiveSubscription)
			assert.Equal(t, tt.wantCan, view.CanGenerate)
		})
	}
}
