package domain

import (
	"time"

	"github.com/google/uuid"
)

type Provider string

const (
	ProviderMercadoPago Provider = "MERCADO_PAGO"
	ProviderPagSeguro   Provider = "PAGSEGURO"
)

func (p Provider) IsValid() bool {
	return p == ProviderMercadoPago || p == ProviderPagSeguro
}

type PaymentMethod string

const (
	PaymentMethodPix        PaymentMethod = "PIX"
	PaymentMethodBoleto     PaymentMethod = "BOLETO"
	PaymentMethodCreditCard PaymentMethod = "CREDIT_CARD"
)

func (m PaymentMethod) IsValid() bool {
	return m == PaymentMethodPix || m == PaymentMethodBoleto || m == PaymentMethodCreditCard
}

// HasDeadline reports whether the method carries a payment deadline. PIX and
// boleto issue a charge the payer settles later; card payments settle inline.
func (m PaymentMethod) HasDeadline() bool {
	return m == PaymentMethodPix || m == PaymentMethodBoleto
}

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusProcessing PaymentStatus = "PROCESSING"
	PaymentStatusPaid       PaymentStatus = "PAID"
	PaymentStatusFailed     PaymentStatus = "FAILED"
	PaymentStatusExpired    PaymentStatus = "EXPIRED"
	PaymentStatusCanceled   PaymentStatus = "CANCELED"
	PaymentStatusRefunded   PaymentStatus = "REFUNDED"
)

// validTransitions is the full status graph. A transition not listed here is
// rejected; providers redeliver stale callbacks out of order and the graph is
// what keeps them from corrupting state.
var validTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:    {PaymentStatusProcessing, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusExpired, PaymentStatusCanceled},
	PaymentStatusProcessing: {PaymentStatusPaid, PaymentStatusFailed, PaymentStatusCanceled},
	PaymentStatusPaid:       {PaymentStatusRefunded},
}

func CanTransition(from, to PaymentStatus) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition can leave the status.
// PAID is not terminal: it can still be refunded.
func (s PaymentStatus) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}

type EntityType string

const (
	EntityTypeAthleteMembership EntityType = "ATHLETE_MEMBERSHIP"
	EntityTypeClubMembership    EntityType = "CLUB_MEMBERSHIP"
	EntityTypeEventRegistration EntityType = "EVENT_REGISTRATION"
)

func (t EntityType) IsValid() bool {
	switch t {
	case EntityTypeAthleteMembership, EntityTypeClubMembership, EntityTypeEventRegistration:
		return true
	}
	return false
}

func (t EntityType) IsMembership() bool {
	return t == EntityTypeAthleteMembership || t == EntityTypeClubMembership
}

// Transaction is one payment attempt. It is an append/transition log, never
// deleted; status only moves along validTransitions and ExternalID is
// write-once (set when the provider first acknowledges the charge).
type Transaction struct {
	ID            uuid.UUID
	ExternalID    *string
	Protocol      string
	Provider      Provider
	PaymentMethod PaymentMethod
	Amount        int64 // cents
	Status        PaymentStatus
	EntityType    EntityType
	EntityID      uuid.UUID
	Metadata      map[string]string
	ExpiresAt     *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsOverdue reports whether a still-PENDING transaction has passed its
// payment deadline.
func (t *Transaction) IsOverdue(now time.Time) bool {
	return t.Status == PaymentStatusPending && t.ExpiresAt != nil && now.After(*t.ExpiresAt)
}

// TrackingView is the public projection of a transaction served by protocol
// lookup. It carries no customer or provider identifiers and is small enough
// to cache whole; the JSON tags are its cache encoding.
type TrackingView struct {
	Protocol      string        `json:"protocol"`
	Status        PaymentStatus `json:"status"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	Amount        int64         `json:"amount"`
	ExpiresAt     *time.Time    `json:"expires_at,omitempty"`
}

func (t *Transaction) TrackingView() TrackingView {
	return TrackingView{
		Protocol:      t.Protocol,
		Status:        t.Status,
		PaymentMethod: t.PaymentMethod,
		Amount:        t.Amount,
		ExpiresAt:     t.ExpiresAt,
	}
}

// TransactionHistory is an append-only record of every accepted transition.
// The owning transaction's current status always equals the status of its most
// recent history entry.
type TransactionHistory struct {
	ID            uuid.UUID
	TransactionID uuid.UUID
	Status        PaymentStatus
	Description   string
	Metadata      map[string]string
	CreatedAt     time.Time
}
