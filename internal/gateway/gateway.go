package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fedpay/payment-core/internal/domain"
)

// Customer is the payer identity sent to a provider when issuing a charge.
// Document is the Brazilian tax id (CPF/CNPJ), digits only.
type Customer struct {
	Name     string
	Email    string
	Document string
}

type CreatePaymentRequest struct {
	TransactionID uuid.UUID
	Method        domain.PaymentMethod
	Amount        int64 // cents
	Customer      Customer
	ReferenceCode string
	ExpiresAt     *time.Time
}

// CreatePaymentResponse carries the provider-assigned id plus whichever
// artifacts the chosen method produces: PIX yields QR codes, boleto yields a
// barcode and a printable URL.
type CreatePaymentResponse struct {
	ExternalID    string
	PaymentURL    string
	QRCode        string
	QRCodeBase64  string
	BarcodeNumber string
}

// CardPaymentRequest submits a card charge. Token is a client-side tokenized
// card reference; raw card numbers never reach this service.
type CardPaymentRequest struct {
	TransactionID uuid.UUID
	Amount        int64
	Customer      Customer
	ReferenceCode string
	Token         string
	Installments  int
}

type CardPaymentResult struct {
	ExternalID string
	Status     domain.PaymentStatus
	Metadata   map[string]string
}

// WebhookData is a provider callback normalized into the internal vocabulary.
type WebhookData struct {
	PaymentID string
	Status    domain.PaymentStatus
	Metadata  map[string]string
}

// Gateway is implemented once per payment provider. Status mappings in
// ParseWebhookData must be total: an unrecognized native status is an
// ErrUnmappedStatus, never a silent default.
type Gateway interface {
	Provider() domain.Provider
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (*CreatePaymentResponse, error)
	ProcessCardPayment(ctx context.Context, req CardPaymentRequest) (*CardPaymentResult, error)
	ValidateWebhook(payload []byte, signature string) bool
	ParseWebhookData(payload []byte) (*WebhookData, error)
}

// Registry maps providers to their adapters. Built once at startup and
// injected; nothing resolves adapters by configuration string at call time.
type Registry struct {
	gateways map[domain.Provider]Gateway
}

func NewRegistry(gateways ...Gateway) *Registry {
	m := make(map[domain.Provider]Gateway, len(gateways))
	for _, g := range gateways {
		m[g.Provider()] = g
	}
	return &Registry{gateways: m}
}

func (r *Registry) Resolve(provider domain.Provider) (Gateway, error) {
	g, ok := r.gateways[provider]
	if !ok {
		return nil, fmt.Errorf("Resolve: %q: %w", provider, domain.ErrUnknownProvider)
	}
	return g, nil
}
