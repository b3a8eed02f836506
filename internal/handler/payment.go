package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/fedpay/payment-core/internal/domain"
	"github.com/fedpay/payment-core/internal/gateway"
	"github.com/fedpay/payment-core/internal/logging"
	"github.com/fedpay/payment-core/internal/service"
)

type paymentService interface {
	CreatePayment(ctx context.Context, in service.CreatePaymentInput) (*service.CreatePaymentResult, error)
	ProcessCardPayment(ctx context.Context, transactionID uuid.UUID, token string, installments int) (*domain.Transaction, error)
}

type transactionReader interface {
	Track(ctx context.Context, protocol string) (*domain.TrackingView, error)
}

type PaymentHandler struct {
	payments     paymentService
	transactions transactionReader
}

func NewPaymentHandler(payments paymentService, transactions transactionReader) *PaymentHandler {
	return &PaymentHandler{payments: payments, transactions: transactions}
}

type createPaymentRequest struct {
	Provider      string `json:"provider"`
	PaymentMethod string `json:"payment_method"`
	Amount        int64  `json:"amount"`
	Customer      struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Document string `json:"document"`
	} `json:"customer"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
}

func (r createPaymentRequest) Validate() []FieldError {
	var errs []FieldError

	if r.Provider == "" {
		errs = append(errs, FieldError{Field: "provider", Message: "required"})
	} else if !domain.Provider(r.Provider).IsValid() {
		errs = append(errs, FieldError{Field: "provider", Message: "must be MERCADO_PAGO or PAGSEGURO"})
	}

	if r.PaymentMethod == "" {
		errs = append(errs, FieldError{Field: "payment_method", Message: "required"})
	} else if !domain.PaymentMethod(r.PaymentMethod).IsValid() {
		errs = append(errs, FieldError{Field: "payment_method", Message: "must be PIX, BOLETO, or CREDIT_CARD"})
	}

	if r.Amount <= 0 {
		errs = append(errs, FieldError{Field: "amount", Message: "must be greater than 0"})
	}

	if r.Customer.Name == "" {
		errs = append(errs, FieldError{Field: "customer.name", Message: "required"})
	}
	if r.Customer.Email == "" {
		errs = append(errs, FieldError{Field: "customer.email", Message: "required"})
	}
	if r.Customer.Document == "" {
		errs = append(errs, FieldError{Field: "customer.document", Message: "required"})
	}

	if r.EntityType == "" {
		errs = append(errs, FieldError{Field: "entity_type", Message: "required"})
	} else if !domain.EntityType(r.EntityType).IsValid() {
		errs = append(errs, FieldError{Field: "entity_type", Message: "must be ATHLETE_MEMBERSHIP, CLUB_MEMBERSHIP, or EVENT_REGISTRATION"})
	}

	if r.EntityID == "" {
		errs = append(errs, FieldError{Field: "entity_id", Message: "required"})
	} else if _, err := uuid.Parse(r.EntityID); err != nil {
		errs = append(errs, FieldError{Field: "entity_id", Message: "must be a valid UUID"})
	}

	return errs
}

type paymentResponse struct {
	TransactionID string `json:"transaction_id"`
	Protocol      string `json:"protocol"`
	Status        string `json:"status"`
	ExternalID    string `json:"external_id,omitempty"`
	PaymentURL    string `json:"payment_url,omitempty"`
	QRCode        string `json:"qr_code,omitempty"`
	QRCodeBase64  string `json:"qr_code_base64,omitempty"`
	BarcodeNumber string `json:"barcode_number,omitempty"`
	ExpiresAt     string `json:"expires_at,omitempty"`
}

func (h *PaymentHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	entityID, _ := uuid.Parse(req.EntityID)
	result, err := h.payments.CreatePayment(r.Context(), service.CreatePaymentInput{
		Provider:      domain.Provider(req.Provider),
		PaymentMethod: domain.PaymentMethod(req.PaymentMethod),
		Amount:        req.Amount,
		Customer: gateway.Customer{
			Name:     req.Customer.Name,
			Email:    req.Customer.Email,
			Document: req.Customer.Document,
		},
		EntityType: domain.EntityType(req.EntityType),
		EntityID:   entityID,
	})
	if err != nil {
		log.Warn("payment issuance failed", "provider", req.Provider, "error", err)
		RespondDomainError(w, err)
		return
	}

	t := result.Transaction
	resp := paymentResponse{
		TransactionID: t.ID.String(),
		Protocol:      t.Protocol,
		Status:        string(t.Status),
		PaymentURL:    result.PaymentURL,
		QRCode:        result.QRCode,
		QRCodeBase64:  result.QRCodeBase64,
		BarcodeNumber: result.BarcodeNumber,
	}
	if t.ExternalID != nil {
		resp.ExternalID = *t.ExternalID
	}
	if t.ExpiresAt != nil {
		resp.ExpiresAt = t.ExpiresAt.Format("2006-01-02T15:04:05Z07:00")
	}

	RespondSuccess(w, http.StatusCreated, resp)
}

type cardPaymentRequest struct {
	Token        string `json:"token"`
	Installments int    `json:"installments"`
}

func (r cardPaymentRequest) Validate() []FieldError {
	var errs []FieldError
	if r.Token == "" {
		errs = append(errs, FieldError{Field: "token", Message: "required"})
	}
	if r.Installments < 1 || r.Installments > 12 {
		errs = append(errs, FieldError{Field: "installments", Message: "must be between 1 and 12"})
	}
	return errs
}

func (h *PaymentHandler) ProcessCardPayment(w http.ResponseWriter, r *http.Request) {
	transactionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondValidationError(w, []FieldError{{Field: "id", Message: "must be a valid UUID"}})
		return
	}

	var req cardPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	t, err := h.payments.ProcessCardPayment(r.Context(), transactionID, req.Token, req.Installments)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	resp := paymentResponse{
		TransactionID: t.ID.String(),
		Protocol:      t.Protocol,
		Status:        string(t.Status),
	}
	if t.ExternalID != nil {
		resp.ExternalID = *t.ExternalID
	}
	RespondSuccess(w, http.StatusOK, resp)
}

type trackResponse struct {
	Protocol      string `json:"protocol"`
	Status        string `json:"status"`
	PaymentMethod string `json:"payment_method"`
	Amount        int64  `json:"amount"`
	ExpiresAt     string `json:"expires_at,omitempty"`
}

// TrackPayment is the public "track my payment" view, looked up by protocol
// alone. Issuance success never implies payment success; clients poll this
// until a webhook lands.
func (h *PaymentHandler) TrackPayment(w http.ResponseWriter, r *http.Request) {
	protocol := r.PathValue("protocol")
	if protocol == "" {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	view, err := h.transactions.Track(r.Context(), protocol)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	resp := trackResponse{
		Protocol:      view.Protocol,
		Status:        string(view.Status),
		PaymentMethod: string(view.PaymentMethod),
		Amount:        view.Amount,
	}
	if view.ExpiresAt != nil {
		resp.ExpiresAt = view.ExpiresAt.Format("2006-01-02T15:04:05Z07:00")
	}
	RespondSuccess(w, http.StatusOK, resp)
}
