package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/fedpay/payment-core/internal/domain"
	"github.com/fedpay/payment-core/internal/gateway"
	"github.com/fedpay/payment-core/internal/logging"
)

// WebhookService is the entry point for asynchronous provider callbacks. The
// state machine, not the HTTP response, is the source of truth: everything
// after signature validation is absorbed here so the provider always gets an
// acknowledgment and stops redelivering.
type WebhookService struct {
	registry      *gateway.Registry
	transactions  *TransactionService
	memberships   MembershipActivator
	registrations RegistrationConfirmer
	notifier      Notifier
}

func NewWebhookService(
	registry *gateway.Registry,
	transactions *TransactionService,
	memberships MembershipActivator,
	registrations RegistrationConfirmer,
	notifier Notifier,
) *WebhookService {
	return &WebhookService{
		registry:      registry,
		transactions:  transactions,
		memberships:   memberships,
		registrations: registrations,
		notifier:      notifier,
	}
}

// HandleWebhook runs the ingestion pipeline. The returned error is
// ErrUnknownProvider, ErrInvalidSignature, or nil; any other failure is logged
// and swallowed so the caller acknowledges the delivery.
func (s *WebhookService) HandleWebhook(ctx context.Context, provider domain.Provider, payload []byte, signature string) error {
	ctx = logging.With(ctx, "provider", provider)
	log := logging.FromContext(ctx)

	gw, err := s.registry.Resolve(provider)
	if err != nil {
		return fmt.Errorf("HandleWebhook: %w", err)
	}

	if !gw.ValidateWebhook(payload, signature) {
		log.Warn("webhook signature verification failed")
		return fmt.Errorf("HandleWebhook: %w", domain.ErrInvalidSignature)
	}

	data, err := gw.ParseWebhookData(payload)
	if err != nil {
		if errors.Is(err, domain.ErrUnmappedStatus) {
			// contract drift with the provider; needs manual triage, never a
			// guessed default status
			log.Error("unmapped provider status in webhook", "error", err)
			return nil
		}
		log.Warn("malformed webhook payload", "error", err)
		return nil
	}

	t, err := s.transactions.GetByExternalID(ctx, data.PaymentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// e.g. a stale sandbox charge this system never issued; ACK so the
			// provider stops retrying
			log.Info("webhook for unknown transaction", "external_id", data.PaymentID)
			return nil
		}
		log.Error("webhook transaction lookup failed", "external_id", data.PaymentID, "error", err)
		return nil
	}

	updated, err := s.transactions.ApplyTransition(ctx, t.ID, data.Status,
		"provider webhook", data.Metadata)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			// idempotent redelivery or an out-of-order callback; already logged
			// by the transaction service as a no-op
			return nil
		}
		log.Error("webhook transition failed", "transaction_id", t.ID, "error", err)
		return nil
	}

	if updated.Status == domain.PaymentStatusPaid {
		s.runPaidSideEffects(ctx, updated)
	}

	s.notify(ctx, updated)
	return nil
}

// runPaidSideEffects activates memberships / confirms registrations once the
// payment lands in PAID. The collaborators are idempotent, which covers the
// re-entry window between a committed transition and a crashed side effect.
func (s *WebhookService) runPaidSideEffects(ctx context.Context, t *domain.Transaction) {
	log := logging.FromContext(ctx)

	switch {
	case t.EntityType.IsMembership():
		if err := s.memberships.Activate(ctx, t.EntityID); err != nil {
			log.Error("membership activation failed",
				"transaction_id", t.ID, "entity_id", t.EntityID, "error", err)
			return
		}
		log.Info("membership activated", "transaction_id", t.ID, "entity_id", t.EntityID)
	case t.EntityType == domain.EntityTypeEventRegistration:
		if err := s.registrations.Confirm(ctx, t.EntityID); err != nil {
			log.Error("registration confirmation failed",
				"transaction_id", t.ID, "entity_id", t.EntityID, "error", err)
			return
		}
		log.Info("registration confirmed", "transaction_id", t.ID, "entity_id", t.EntityID)
	}
}

func (s *WebhookService) notify(ctx context.Context, t *domain.Transaction) {
	err := s.notifier.Notify(ctx, Notification{
		EntityType: t.EntityType,
		EntityID:   t.EntityID,
		Protocol:   t.Protocol,
		Status:     t.Status,
	})
	if err != nil {
		// best-effort; a failed notification never rolls back the transition
		logging.FromContext(ctx).Warn("notification dispatch failed",
			"transaction_id", t.ID, "protocol", t.Protocol, "error", err)
	}
}
