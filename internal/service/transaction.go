package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fedpay/payment-core/internal/domain"
	"github.com/fedpay/payment-core/internal/logging"
)

const protocolCreateAttempts = 3

// casAttempts bounds the re-read loop when a conditional status update loses a
// race against a concurrent transition for the same transaction.
const casAttempts = 3

// TransactionService owns the payment state machine. It is the only component
// that writes Transaction.status, and every write goes through the validated
// transition path backed by the store's compare-and-set.
type TransactionService struct {
	store          transactionStore
	protocols      *ProtocolService
	protocolPrefix string
	paymentExpiry  time.Duration
}

func NewTransactionService(store transactionStore, protocols *ProtocolService, protocolPrefix string, paymentExpiry time.Duration) *TransactionService {
	return &TransactionService{
		store:          store,
		protocols:      protocols,
		protocolPrefix: protocolPrefix,
		paymentExpiry:  paymentExpiry,
	}
}

type CreateTransactionInput struct {
	Provider      domain.Provider
	PaymentMethod domain.PaymentMethod
	Amount        int64
	EntityType    domain.EntityType
	EntityID      uuid.UUID
	Metadata      map[string]string
}

func (s *TransactionService) Create(ctx context.Context, in CreateTransactionInput) (*domain.Transaction, error) {
	log := logging.FromContext(ctx)

	if in.Amount <= 0 {
		return nil, fmt.Errorf("Create: %w", domain.ErrInvalidAmount)
	}
	if !in.Provider.IsValid() {
		return nil, fmt.Errorf("Create: provider %q: %w", in.Provider, domain.ErrUnknownProvider)
	}
	if !in.PaymentMethod.IsValid() || !in.EntityType.IsValid() {
		return nil, fmt.Errorf("Create: %w", domain.ErrInvalidRequest)
	}

	now := time.Now().UTC()
	t := &domain.Transaction{
		ID:            uuid.New(),
		Provider:      in.Provider,
		PaymentMethod: in.PaymentMethod,
		Amount:        in.Amount,
		Status:        domain.PaymentStatusPending,
		EntityType:    in.EntityType,
		EntityID:      in.EntityID,
		Metadata:      in.Metadata,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if in.PaymentMethod.HasDeadline() {
		expires := now.Add(s.paymentExpiry)
		t.ExpiresAt = &expires
	}

	for attempt := 0; attempt < protocolCreateAttempts; attempt++ {
		protocol, err := s.protocols.Generate(s.protocolPrefix)
		if err != nil {
			return nil, fmt.Errorf("Create: %w", err)
		}
		t.Protocol = protocol

		err = s.store.CreateWithProtocol(ctx, t, "payment created")
		if err == nil {
			log.Info("transaction created",
				"transaction_id", t.ID,
				"protocol", t.Protocol,
				"provider", t.Provider,
				"payment_method", t.PaymentMethod,
				"amount", t.Amount,
			)
			return t, nil
		}
		if !errors.Is(err, domain.ErrProtocolCollision) {
			return nil, fmt.Errorf("Create: %w", err)
		}
		log.Warn("protocol collision, regenerating", "protocol", protocol)
	}

	return nil, fmt.Errorf("Create: %w", domain.ErrProtocolCollision)
}

// ApplyTransition moves a transaction to next if the state graph allows it
// from the current status. An invalid transition is a no-op returning
// ErrInvalidTransition alongside the unchanged transaction: providers
// redeliver stale callbacks and those must never corrupt state or duplicate
// history rows.
func (s *TransactionService) ApplyTransition(ctx context.Context, id uuid.UUID, next domain.PaymentStatus, description string, metadata map[string]string) (*domain.Transaction, error) {
	t, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ApplyTransition: %w", err)
	}
	return s.transition(ctx, t, next, description, metadata)
}

// ApplyTransitionByExternalID is the webhook entry point; provider callbacks
// carry only the provider-assigned id.
func (s *TransactionService) ApplyTransitionByExternalID(ctx context.Context, externalID string, next domain.PaymentStatus, description string, metadata map[string]string) (*domain.Transaction, error) {
	t, err := s.store.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, fmt.Errorf("ApplyTransitionByExternalID: %w", err)
	}
	return s.transition(ctx, t, next, description, metadata)
}

func (s *TransactionService) transition(ctx context.Context, t *domain.Transaction, next domain.PaymentStatus, description string, metadata map[string]string) (*domain.Transaction, error) {
	log := logging.FromContext(ctx)

	for attempt := 0; attempt < casAttempts; attempt++ {
		// a redelivery of the current status falls out here as well: X -> X is
		// never in the graph, so no duplicate history row can be written
		if !domain.CanTransition(t.Status, next) {
			log.Warn("invalid status transition ignored",
				"transaction_id", t.ID,
				"from", t.Status,
				"to", next,
			)
			return t, fmt.Errorf("transition %s -> %s: %w", t.Status, next, domain.ErrInvalidTransition)
		}

		ok, err := s.store.ApplyTransition(ctx, t.ID, t.Status, next, description, metadata)
		if err != nil {
			return nil, fmt.Errorf("transition: %w", err)
		}
		if ok {
			t.Status = next
			t.UpdatedAt = time.Now().UTC()
			s.mirrorProtocol(ctx, t)
			log.Info("status transition applied",
				"transaction_id", t.ID,
				"protocol", t.Protocol,
				"status", next,
			)
			return t, nil
		}

		// lost the compare-and-set: somebody moved the status first; re-read
		// and re-validate against the fresh state
		t, err = s.store.GetByID(ctx, t.ID)
		if err != nil {
			return nil, fmt.Errorf("transition: reload: %w", err)
		}
	}

	return t, fmt.Errorf("transition %s: contention: %w", next, domain.ErrInvalidTransition)
}

func (s *TransactionService) mirrorProtocol(ctx context.Context, t *domain.Transaction) {
	if err := s.protocols.UpdateStatus(ctx, t.Protocol, t.Status); err != nil {
		// derived view only; the transaction row stays the source of truth
		logging.FromContext(ctx).Error("protocol status mirror failed", "protocol", t.Protocol, "error", err)
	}
	s.protocols.CacheView(ctx, t.TrackingView())
}

// GetByExternalID returns the transaction, lazily expiring it when a PENDING
// PIX/boleto charge is read past its deadline.
func (s *TransactionService) GetByExternalID(ctx context.Context, externalID string) (*domain.Transaction, error) {
	t, err := s.store.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, fmt.Errorf("GetByExternalID: %w", err)
	}
	return s.lazyExpire(ctx, t), nil
}

// Track serves the public tracking view. A cached non-PENDING view answers
// without a store read; transitions refresh the cache, so a hit is at worst
// one TTL stale. PENDING always goes to the store so the deadline check can
// run, and the authoritative read warms the cache on the way out.
func (s *TransactionService) Track(ctx context.Context, protocol string) (*domain.TrackingView, error) {
	if view, ok := s.protocols.CachedView(ctx, protocol); ok && view.Status != domain.PaymentStatusPending {
		return &view, nil
	}

	t, err := s.store.GetByProtocol(ctx, protocol)
	if err != nil {
		return nil, fmt.Errorf("Track: %w", err)
	}
	t = s.lazyExpire(ctx, t)

	view := t.TrackingView()
	s.protocols.CacheView(ctx, view)
	return &view, nil
}

func (s *TransactionService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	t, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return s.lazyExpire(ctx, t), nil
}

func (s *TransactionService) lazyExpire(ctx context.Context, t *domain.Transaction) *domain.Transaction {
	if !t.IsOverdue(time.Now().UTC()) {
		return t
	}

	expired, err := s.transition(ctx, t, domain.PaymentStatusExpired, "payment deadline passed", nil)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			// a concurrent webhook settled it first; expired holds the fresh row
			return expired
		}
		logging.FromContext(ctx).Error("lazy expiry failed", "transaction_id", t.ID, "error", err)
		return t
	}
	return expired
}

// AttachExternalID records the provider-assigned id, exactly once.
func (s *TransactionService) AttachExternalID(ctx context.Context, id uuid.UUID, externalID string) error {
	if err := s.store.SetExternalID(ctx, id, externalID); err != nil {
		return fmt.Errorf("AttachExternalID: %w", err)
	}
	return nil
}

// MergeMetadata folds provider artifacts (QR payload, barcode, installments)
// into the transaction's metadata bag.
func (s *TransactionService) MergeMetadata(ctx context.Context, id uuid.UUID, metadata map[string]string) error {
	if len(metadata) == 0 {
		return nil
	}
	if err := s.store.MergeMetadata(ctx, id, metadata); err != nil {
		return fmt.Errorf("MergeMetadata: %w", err)
	}
	return nil
}

// ExpireOverdue transitions PENDING transactions past their deadline to
// EXPIRED and reports how many moved. Invalid transitions are skipped: a
// webhook may settle a charge between the listing and the transition.
func (s *TransactionService) ExpireOverdue(ctx context.Context, limit int) (int, error) {
	overdue, err := s.store.ListOverdue(ctx, time.Now().UTC(), limit)
	if err != nil {
		return 0, fmt.Errorf("ExpireOverdue: %w", err)
	}

	expired := 0
	for i := range overdue {
		_, err := s.transition(ctx, &overdue[i], domain.PaymentStatusExpired, "payment deadline passed", nil)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidTransition) {
				continue
			}
			return expired, fmt.Errorf("ExpireOverdue: %w", err)
		}
		expired++
	}
	return expired, nil
}
