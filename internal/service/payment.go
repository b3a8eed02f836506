package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/fedpay/payment-core/internal/domain"
	"github.com/fedpay/payment-core/internal/gateway"
	"github.com/fedpay/payment-core/internal/logging"
)

// PaymentService orchestrates payment issuance: it creates the PENDING
// transaction, hands the charge to the provider's gateway adapter, and records
// what the provider answered. Issuance-time gateway errors propagate to the
// caller so the payer can retry or pick another method.
type PaymentService struct {
	transactions *TransactionService
	registry     *gateway.Registry

	gatewayTimeout time.Duration

	// sandbox convenience: auto-approve issued PIX charges after a delay,
	// through the regular transition path
	simulateApproval      bool
	simulateApprovalDelay time.Duration
}

func NewPaymentService(transactions *TransactionService, registry *gateway.Registry, gatewayTimeout time.Duration) *PaymentService {
	return &PaymentService{
		transactions:   transactions,
		registry:       registry,
		gatewayTimeout: gatewayTimeout,
	}
}

// EnableSimulateApproval turns on sandbox auto-approval. Only wired when the
// SIMULATE_APPROVAL flag is set; never in production.
func (s *PaymentService) EnableSimulateApproval(delay time.Duration) {
	s.simulateApproval = true
	s.simulateApprovalDelay = delay
}

type CreatePaymentInput struct {
	Provider      domain.Provider
	PaymentMethod domain.PaymentMethod
	Amount        int64
	Customer      gateway.Customer
	EntityType    domain.EntityType
	EntityID      uuid.UUID
}

type CreatePaymentResult struct {
	Transaction   *domain.Transaction
	PaymentURL    string
	QRCode        string
	QRCodeBase64  string
	BarcodeNumber string
}

func (s *PaymentService) CreatePayment(ctx context.Context, in CreatePaymentInput) (*CreatePaymentResult, error) {
	log := logging.FromContext(ctx)

	gw, err := s.registry.Resolve(in.Provider)
	if err != nil {
		return nil, fmt.Errorf("CreatePayment: %w", err)
	}

	t, err := s.transactions.Create(ctx, CreateTransactionInput{
		Provider:      in.Provider,
		PaymentMethod: in.PaymentMethod,
		Amount:        in.Amount,
		EntityType:    in.EntityType,
		EntityID:      in.EntityID,
		Metadata: map[string]string{
			"customer_name":  in.Customer.Name,
			"customer_email": in.Customer.Email,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("CreatePayment: %w", err)
	}

	// card payments are issued separately with a client-side token
	if in.PaymentMethod == domain.PaymentMethodCreditCard {
		return &CreatePaymentResult{Transaction: t}, nil
	}

	gwCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()

	resp, err := gw.CreatePayment(gwCtx, gateway.CreatePaymentRequest{
		TransactionID: t.ID,
		Method:        in.PaymentMethod,
		Amount:        in.Amount,
		Customer:      in.Customer,
		ReferenceCode: t.Protocol,
		ExpiresAt:     t.ExpiresAt,
	})
	if err != nil {
		s.failIssuance(ctx, t, err)
		return nil, fmt.Errorf("CreatePayment: %w", err)
	}

	if err := s.recordIssuance(ctx, t, resp); err != nil {
		return nil, fmt.Errorf("CreatePayment: %w", err)
	}

	log.Info("payment issued",
		"transaction_id", t.ID,
		"protocol", t.Protocol,
		"external_id", resp.ExternalID,
		"provider", in.Provider,
	)

	if s.simulateApproval && in.PaymentMethod == domain.PaymentMethodPix {
		s.scheduleSimulatedApproval(t.ID)
	}

	return &CreatePaymentResult{
		Transaction:   t,
		PaymentURL:    resp.PaymentURL,
		QRCode:        resp.QRCode,
		QRCodeBase64:  resp.QRCodeBase64,
		BarcodeNumber: resp.BarcodeNumber,
	}, nil
}

// ProcessCardPayment submits a tokenized card charge for an existing PENDING
// transaction. Declines transition the transaction to FAILED and surface
// ErrCardDeclined to the payer.
func (s *PaymentService) ProcessCardPayment(ctx context.Context, transactionID uuid.UUID, token string, installments int) (*domain.Transaction, error) {
	log := logging.FromContext(ctx)

	t, err := s.transactions.GetByID(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("ProcessCardPayment: %w", err)
	}
	if t.PaymentMethod != domain.PaymentMethodCreditCard {
		return nil, fmt.Errorf("ProcessCardPayment: method %s: %w", t.PaymentMethod, domain.ErrInvalidRequest)
	}
	if t.Status != domain.PaymentStatusPending {
		return nil, fmt.Errorf("ProcessCardPayment: status %s: %w", t.Status, domain.ErrInvalidTransition)
	}

	gw, err := s.registry.Resolve(t.Provider)
	if err != nil {
		return nil, fmt.Errorf("ProcessCardPayment: %w", err)
	}

	gwCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()

	result, err := gw.ProcessCardPayment(gwCtx, gateway.CardPaymentRequest{
		TransactionID: t.ID,
		Amount:        t.Amount,
		Customer: gateway.Customer{
			Name:  t.Metadata["customer_name"],
			Email: t.Metadata["customer_email"],
		},
		ReferenceCode: t.Protocol,
		Token:         token,
		Installments:  installments,
	})
	if err != nil {
		if errors.Is(err, domain.ErrCardDeclined) {
			s.failIssuance(ctx, t, err)
		}
		return nil, fmt.Errorf("ProcessCardPayment: %w", err)
	}

	if err := s.transactions.AttachExternalID(ctx, t.ID, result.ExternalID); err != nil {
		return nil, fmt.Errorf("ProcessCardPayment: %w", err)
	}
	if err := s.transactions.MergeMetadata(ctx, t.ID, result.Metadata); err != nil {
		log.Error("card payment metadata merge failed", "transaction_id", t.ID, "error", err)
	}

	if result.Status == domain.PaymentStatusPending {
		return s.transactions.GetByID(ctx, t.ID)
	}

	updated, err := s.transactions.ApplyTransition(ctx, t.ID, result.Status, "card payment response", result.Metadata)
	if err != nil && !errors.Is(err, domain.ErrInvalidTransition) {
		return nil, fmt.Errorf("ProcessCardPayment: %w", err)
	}
	return updated, nil
}

func (s *PaymentService) recordIssuance(ctx context.Context, t *domain.Transaction, resp *gateway.CreatePaymentResponse) error {
	if err := s.transactions.AttachExternalID(ctx, t.ID, resp.ExternalID); err != nil {
		return err
	}
	externalID := resp.ExternalID
	t.ExternalID = &externalID

	artifacts := map[string]string{}
	if resp.QRCode != "" {
		artifacts["qr_code"] = resp.QRCode
	}
	if resp.QRCodeBase64 != "" {
		artifacts["qr_code_base64"] = resp.QRCodeBase64
	}
	if resp.BarcodeNumber != "" {
		artifacts["barcode"] = resp.BarcodeNumber
	}
	if resp.PaymentURL != "" {
		artifacts["payment_url"] = resp.PaymentURL
	}
	if err := s.transactions.MergeMetadata(ctx, t.ID, artifacts); err != nil {
		logging.FromContext(ctx).Error("issuance metadata merge failed", "transaction_id", t.ID, "error", err)
	}
	return nil
}

func (s *PaymentService) failIssuance(ctx context.Context, t *domain.Transaction, cause error) {
	_, err := s.transactions.ApplyTransition(ctx, t.ID, domain.PaymentStatusFailed,
		"issuance failed: "+cause.Error(), nil)
	if err != nil && !errors.Is(err, domain.ErrInvalidTransition) {
		logging.FromContext(ctx).Error("failed to mark issuance failure",
			"transaction_id", t.ID, "error", err)
	}
}

func (s *PaymentService) scheduleSimulatedApproval(transactionID uuid.UUID) {
	go func() {
		time.Sleep(s.simulateApprovalDelay)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		_, err := s.transactions.ApplyTransition(ctx, transactionID, domain.PaymentStatusPaid,
			"sandbox auto-approval", map[string]string{"simulated": strconv.FormatBool(true)})
		if err != nil && !errors.Is(err, domain.ErrInvalidTransition) {
			logging.FromContext(ctx).Error("sandbox auto-approval failed",
				"transaction_id", transactionID, "error", err)
		}
	}()
}
