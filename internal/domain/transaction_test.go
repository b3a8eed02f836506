package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var allStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusProcessing,
	PaymentStatusPaid,
	PaymentStatusFailed,
	PaymentStatusExpired,
	PaymentStatusCanceled,
	PaymentStatusRefunded,
}

func TestCanTransition(t *testing.T) {
	valid := map[PaymentStatus]map[PaymentStatus]bool{
		PaymentStatusPending: {
			PaymentStatusProcessing: true,
			PaymentStatusPaid:       true,
			PaymentStatusFailed:     true,
			PaymentStatusExpired:    true,
			PaymentStatusCanceled:   true,
		},
		PaymentStatusProcessing: {
			PaymentStatusPaid:     true,
			PaymentStatusFailed:   true,
			PaymentStatusCanceled: true,
		},
		PaymentStatusPaid: {
			PaymentStatusRefunded: true,
		},
	}

	for _, from := range allStatuses {
		for _, to := range allStatuses {
			got := CanTransition(from, to)
			want := valid[from][to]
			assert.Equal(t, want, got, "%s -> %s", from, to)
		}
	}
}

func TestCanTransition_SelfIsNeverValid(t *testing.T) {
	for _, s := range allStatuses {
		assert.False(t, CanTransition(s, s), "%s -> %s", s, s)
	}
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, PaymentStatusPending.IsTerminal())
	assert.False(t, PaymentStatusProcessing.IsTerminal())
	assert.False(t, PaymentStatusPaid.IsTerminal(), "PAID can still be refunded")
	assert.True(t, PaymentStatusFailed.IsTerminal())
	assert.True(t, PaymentStatusExpired.IsTerminal())
	assert.True(t, PaymentStatusCanceled.IsTerminal())
	assert.True(t, PaymentStatusRefunded.IsTerminal())
}

func TestPaymentMethodHasDeadline(t *testing.T) {
	assert.True(t, PaymentMethodPix.HasDeadline())
	assert.True(t, PaymentMethodBoleto.HasDeadline())
	assert.False(t, PaymentMethodCreditCard.HasDeadline())
}

func TestEntityTypeIsMembership(t *testing.T) {
	assert.True(t, EntityTypeAthleteMembership.IsMembership())
	assert.True(t, EntityTypeClubMembership.IsMembership())
	assert.False(t, EntityTypeEventRegistration.IsMembership())
}

func TestTransactionIsOverdue(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name      string
		status    PaymentStatus
		expiresAt *time.Time
		want      bool
	}{
		{"pending past deadline", PaymentStatusPending, &past, true},
		{"pending before deadline", PaymentStatusPending, &future, false},
		{"pending without deadline", PaymentStatusPending, nil, false},
		{"paid past deadline", PaymentStatusPaid, &past, false},
		{"expired past deadline", PaymentStatusExpired, &past, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := &Transaction{Status: tt.status, ExpiresAt: tt.expiresAt}
			assert.Equal(t, tt.want, tx.IsOverdue(now))
		})
	}
}
