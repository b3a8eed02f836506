package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fedpay/payment-core/internal/domain"
)

type transactionStore interface {
	CreateWithProtocol(ctx context.Context, t *domain.Transaction, description string) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	GetByExternalID(ctx context.Context, externalID string) (*domain.Transaction, error)
	GetByProtocol(ctx context.Context, protocol string) (*domain.Transaction, error)
	ApplyTransition(ctx context.Context, id uuid.UUID, expected, next domain.PaymentStatus, description string, metadata map[string]string) (bool, error)
	SetExternalID(ctx context.Context, id uuid.UUID, externalID string) error
	MergeMetadata(ctx context.Context, id uuid.UUID, metadata map[string]string) error
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]domain.Transaction, error)
}

type protocolStore interface {
	UpdateStatus(ctx context.Context, protocol string, status domain.PaymentStatus) error
}

type protocolCache interface {
	Get(ctx context.Context, protocol string) (domain.TrackingView, bool)
	Set(ctx context.Context, view domain.TrackingView) error
}

// MembershipActivator activates a paid membership. Implementations must be
// idempotent: activating an already-active membership is a no-op.
type MembershipActivator interface {
	Activate(ctx context.Context, entityID uuid.UUID) error
}

// RegistrationConfirmer confirms a paid event registration. Implementations
// must be idempotent: confirming a confirmed registration is a no-op.
type RegistrationConfirmer interface {
	Confirm(ctx context.Context, registrationID uuid.UUID) error
}

type Notification struct {
	EntityType domain.EntityType
	EntityID   uuid.UUID
	Protocol   string
	Status     domain.PaymentStatus
}

// Notifier delivers a status-change notification. Best-effort: failures are
// logged by callers and never roll back a transition.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
