package domain

import (
	"time"

	"github.com/google/uuid"
)

// Protocol is the human-facing identifier bound 1:1 to a transaction,
// independent of any provider. Users track a payment by this string alone, so
// it mirrors the transaction status.
type Protocol struct {
	Protocol      string
	TransactionID uuid.UUID
	Status        PaymentStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
