package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fedpay/payment-core/internal/domain"
)

const mercadoPagoBaseURL = "https://api.mercadopago.com"

type MercadoPagoConfig struct {
	AccessToken     string
	WebhookSecret   string
	BaseURL         string
	NotificationURL string
}

type MercadoPago struct {
	cfg        MercadoPagoConfig
	httpClient *http.Client
}

func NewMercadoPago(cfg MercadoPagoConfig) *MercadoPago {
	if cfg.BaseURL == "" {
		cfg.BaseURL = mercadoPagoBaseURL
	}
	return &MercadoPago{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (g *MercadoPago) Provider() domain.Provider { return domain.ProviderMercadoPago }

type mpPaymentRequest struct {
	TransactionAmount json.Number `json:"transaction_amount"`
	PaymentMethodID   string      `json:"payment_method_id"`
	Token             string      `json:"token,omitempty"`
	Installments      int         `json:"installments,omitempty"`
	ExternalReference string      `json:"external_reference"`
	NotificationURL   string      `json:"notification_url,omitempty"`
	DateOfExpiration  string      `json:"date_of_expiration,omitempty"`
	Payer             mpPayer     `json:"payer"`
}

type mpPayer struct {
	Email          string           `json:"email"`
	FirstName      string           `json:"first_name,omitempty"`
	Identification mpIdentification `json:"identification"`
}

type mpIdentification struct {
	Type   string `json:"type"`
	Number string `json:"number"`
}

type mpPaymentResponse struct {
	ID                 int64  `json:"id"`
	Status             string `json:"status"`
	StatusDetail       string `json:"status_detail"`
	PointOfInteraction struct {
		TransactionData struct {
			QRCode       string `json:"qr_code"`
			QRCodeBase64 string `json:"qr_code_base64"`
			TicketURL    string `json:"ticket_url"`
		} `json:"transaction_data"`
	} `json:"point_of_interaction"`
	TransactionDetails struct {
		ExternalResourceURL string `json:"external_resource_url"`
	} `json:"transaction_details"`
	Barcode struct {
		Content string `json:"content"`
	} `json:"barcode"`
}

func (g *MercadoPago) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*CreatePaymentResponse, error) {
	methodID := "pix"
	if req.Method == domain.PaymentMethodBoleto {
		methodID = "bolbradesco"
	}

	body := mpPaymentRequest{
		TransactionAmount: centsToDecimal(req.Amount),
		PaymentMethodID:   methodID,
		ExternalReference: req.ReferenceCode,
		NotificationURL:   g.cfg.NotificationURL,
		Payer: mpPayer{
			Email:     req.Customer.Email,
			FirstName: req.Customer.Name,
			Identification: mpIdentification{
				Type:   documentType(req.Customer.Document),
				Number: req.Customer.Document,
			},
		},
	}
	if req.ExpiresAt != nil {
		body.DateOfExpiration = req.ExpiresAt.Format("2006-01-02T15:04:05.000-07:00")
	}

	resp, err := g.post(ctx, "/v1/payments", req.TransactionID.String(), body)
	if err != nil {
		return nil, fmt.Errorf("CreatePayment: %w", err)
	}

	return &CreatePaymentResponse{
		ExternalID:    strconv.FormatInt(resp.ID, 10),
		PaymentURL:    firstNonEmpty(resp.PointOfInteraction.TransactionData.TicketURL, resp.TransactionDetails.ExternalResourceURL),
		QRCode:        resp.PointOfInteraction.TransactionData.QRCode,
		QRCodeBase64:  resp.PointOfInteraction.TransactionData.QRCodeBase64,
		BarcodeNumber: resp.Barcode.Content,
	}, nil
}

func (g *MercadoPago) ProcessCardPayment(ctx context.Context, req CardPaymentRequest) (*CardPaymentResult, error) {
	installments := req.Installments
	if installments < 1 {
		installments = 1
	}

	body := mpPaymentRequest{
		TransactionAmount: centsToDecimal(req.Amount),
		PaymentMethodID:   "credit_card",
		Token:             req.Token,
		Installments:      installments,
		ExternalReference: req.ReferenceCode,
		NotificationURL:   g.cfg.NotificationURL,
		Payer: mpPayer{
			Email:     req.Customer.Email,
			FirstName: req.Customer.Name,
			Identification: mpIdentification{
				Type:   documentType(req.Customer.Document),
				Number: req.Customer.Document,
			},
		},
	}

	resp, err := g.post(ctx, "/v1/payments", req.TransactionID.String(), body)
	if err != nil {
		return nil, fmt.Errorf("ProcessCardPayment: %w", err)
	}

	status, err := mapMercadoPagoStatus(resp.Status)
	if err != nil {
		return nil, fmt.Errorf("ProcessCardPayment: %w", err)
	}
	if status == domain.PaymentStatusFailed {
		return nil, fmt.Errorf("ProcessCardPayment: %s: %w", resp.StatusDetail, domain.ErrCardDeclined)
	}

	return &CardPaymentResult{
		ExternalID: strconv.FormatInt(resp.ID, 10),
		Status:     status,
		Metadata: map[string]string{
			"status_detail": resp.StatusDetail,
			"installments":  strconv.Itoa(installments),
		},
	}, nil
}

func (g *MercadoPago) post(ctx context.Context, path, idempotencyKey string, payload any) (*mpPaymentResponse, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.cfg.AccessToken)
	httpReq.Header.Set("X-Idempotency-Key", idempotencyKey)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrGatewayUnavailable)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", domain.ErrGatewayUnavailable)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("status %d: %w", resp.StatusCode, domain.ErrGatewayUnavailable)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("status %d: %s: %w", resp.StatusCode, truncate(respBody, 256), domain.ErrGatewayRejected)
	}

	var parsed mpPaymentResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &parsed, nil
}

// ValidateWebhook checks the x-signature header, formatted as
// "ts=<unix>,v1=<hmac>". The HMAC-SHA256 is computed over a manifest of the
// notification id and the timestamp, keyed with the webhook secret.
func (g *MercadoPago) ValidateWebhook(payload []byte, signature string) bool {
	ts, v1 := parseSignatureHeader(signature)
	if ts == "" || v1 == "" {
		return false
	}

	var note mpWebhookPayload
	if err := json.Unmarshal(payload, &note); err != nil {
		return false
	}

	manifest := fmt.Sprintf("id:%s;ts:%s;", note.Data.ID, ts)
	mac := hmac.New(sha256.New, []byte(g.cfg.WebhookSecret))
	mac.Write([]byte(manifest))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(v1))
}

type mpWebhookPayload struct {
	Action string `json:"action"`
	Type   string `json:"type"`
	Data   struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"data"`
}

func (g *MercadoPago) ParseWebhookData(payload []byte) (*WebhookData, error) {
	var note mpWebhookPayload
	if err := json.Unmarshal(payload, &note); err != nil {
		return nil, fmt.Errorf("ParseWebhookData: %w", err)
	}
	if note.Data.ID == "" {
		return nil, fmt.Errorf("ParseWebhookData: missing data.id: %w", domain.ErrInvalidRequest)
	}

	status, err := mapMercadoPagoStatus(note.Data.Status)
	if err != nil {
		return nil, fmt.Errorf("ParseWebhookData: %w", err)
	}

	return &WebhookData{
		PaymentID: note.Data.ID,
		Status:    status,
		Metadata: map[string]string{
			"provider_status": note.Data.Status,
			"action":          note.Action,
		},
	}, nil
}

// mapMercadoPagoStatus maps the provider's native payment status vocabulary
// onto the internal one. The mapping is total over the documented values;
// anything else is ErrUnmappedStatus and goes to manual triage.
func mapMercadoPagoStatus(native string) (domain.PaymentStatus, error) {
	switch native {
	case "pending":
		return domain.PaymentStatusPending, nil
	case "in_process", "in_mediation", "authorized":
		return domain.PaymentStatusProcessing, nil
	case "approved":
		return domain.PaymentStatusPaid, nil
	case "rejected":
		return domain.PaymentStatusFailed, nil
	case "cancelled":
		return domain.PaymentStatusCanceled, nil
	case "expired":
		return domain.PaymentStatusExpired, nil
	case "refunded", "charged_back":
		return domain.PaymentStatusRefunded, nil
	}
	return "", fmt.Errorf("mercadopago status %q: %w", native, domain.ErrUnmappedStatus)
}

func parseSignatureHeader(header string) (ts, v1 string) {
	for _, part := range strings.Split(header, ",") {
		k, v, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch k {
		case "ts":
			ts = v
		case "v1":
			v1 = v
		}
	}
	return ts, v1
}

func centsToDecimal(cents int64) json.Number {
	return json.Number(decimal.NewFromInt(cents).Div(decimal.NewFromInt(100)).StringFixed(2))
}

func documentType(document string) string {
	if len(document) > 11 {
		return "CNPJ"
	}
	return "CPF"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n])
}
