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
	"time"

	"github.com/fedpay/payment-core/internal/domain"
)

const pagSeguroBaseURL = "https://api.pagseguro.com"

type PagSeguroConfig struct {
	Token           string
	AuthenticityKey string
	BaseURL         string
	NotificationURL string
}

type PagSeguro struct {
	cfg        PagSeguroConfig
	httpClient *http.Client
}

func NewPagSeguro(cfg PagSeguroConfig) *PagSeguro {
	if cfg.BaseURL == "" {
		cfg.BaseURL = pagSeguroBaseURL
	}
	return &PagSeguro{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (g *PagSeguro) Provider() domain.Provider { return domain.ProviderPagSeguro }

type psOrderRequest struct {
	ReferenceID      string       `json:"reference_id"`
	Customer         psCustomer   `json:"customer"`
	NotificationURLs []string     `json:"notification_urls,omitempty"`
	QRCodes          []psQRCode   `json:"qr_codes,omitempty"`
	Charges          []psCharge   `json:"charges,omitempty"`
}

type psCustomer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	TaxID string `json:"tax_id"`
}

type psAmount struct {
	Value    int64  `json:"value"`
	Currency string `json:"currency"`
}

type psQRCode struct {
	Amount         psAmount `json:"amount"`
	ExpirationDate string   `json:"expiration_date,omitempty"`
}

type psCharge struct {
	ReferenceID   string          `json:"reference_id"`
	Amount        psAmount        `json:"amount"`
	PaymentMethod psPaymentMethod `json:"payment_method"`
}

type psPaymentMethod struct {
	Type         string    `json:"type"`
	Installments int       `json:"installments,omitempty"`
	Capture      bool      `json:"capture,omitempty"`
	Boleto       *psBoleto `json:"boleto,omitempty"`
	Card         *psCard   `json:"card,omitempty"`
}

type psBoleto struct {
	DueDate string `json:"due_date"`
}

type psCard struct {
	Encrypted string `json:"encrypted"`
}

type psLink struct {
	Rel   string `json:"rel"`
	Href  string `json:"href"`
	Media string `json:"media"`
}

type psOrderResponse struct {
	ID      string `json:"id"`
	QRCodes []struct {
		Text  string   `json:"text"`
		Links []psLink `json:"links"`
	} `json:"qr_codes"`
	Charges []struct {
		ID            string `json:"id"`
		Status        string `json:"status"`
		PaymentMethod struct {
			Boleto struct {
				Barcode          string `json:"barcode"`
				FormattedBarcode string `json:"formatted_barcode"`
			} `json:"boleto"`
		} `json:"payment_method"`
		Links          []psLink `json:"links"`
		PaymentResponse struct {
			Message string `json:"message"`
		} `json:"payment_response"`
	} `json:"charges"`
}

func (g *PagSeguro) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*CreatePaymentResponse, error) {
	order := psOrderRequest{
		ReferenceID: req.ReferenceCode,
		Customer: psCustomer{
			Name:  req.Customer.Name,
			Email: req.Customer.Email,
			TaxID: req.Customer.Document,
		},
	}
	if g.cfg.NotificationURL != "" {
		order.NotificationURLs = []string{g.cfg.NotificationURL}
	}

	switch req.Method {
	case domain.PaymentMethodPix:
		qr := psQRCode{Amount: psAmount{Value: req.Amount, Currency: "BRL"}}
		if req.ExpiresAt != nil {
			qr.ExpirationDate = req.ExpiresAt.Format(time.RFC3339)
		}
		order.QRCodes = []psQRCode{qr}
	case domain.PaymentMethodBoleto:
		boleto := &psBoleto{}
		if req.ExpiresAt != nil {
			boleto.DueDate = req.ExpiresAt.Format("2006-01-02")
		}
		order.Charges = []psCharge{{
			ReferenceID:   req.ReferenceCode,
			Amount:        psAmount{Value: req.Amount, Currency: "BRL"},
			PaymentMethod: psPaymentMethod{Type: "BOLETO", Boleto: boleto},
		}}
	default:
		return nil, fmt.Errorf("CreatePayment: method %s: %w", req.Method, domain.ErrInvalidRequest)
	}

	resp, err := g.post(ctx, "/orders", order)
	if err != nil {
		return nil, fmt.Errorf("CreatePayment: %w", err)
	}

	out := &CreatePaymentResponse{ExternalID: resp.ID}
	if len(resp.QRCodes) > 0 {
		out.QRCode = resp.QRCodes[0].Text
		out.QRCodeBase64 = findLink(resp.QRCodes[0].Links, "image/png")
	}
	if len(resp.Charges) > 0 {
		out.BarcodeNumber = resp.Charges[0].PaymentMethod.Boleto.Barcode
		out.PaymentURL = findLink(resp.Charges[0].Links, "application/pdf")
	}
	return out, nil
}

func (g *PagSeguro) ProcessCardPayment(ctx context.Context, req CardPaymentRequest) (*CardPaymentResult, error) {
	installments := req.Installments
	if installments < 1 {
		installments = 1
	}

	order := psOrderRequest{
		ReferenceID: req.ReferenceCode,
		Customer: psCustomer{
			Name:  req.Customer.Name,
			Email: req.Customer.Email,
			TaxID: req.Customer.Document,
		},
		Charges: []psCharge{{
			ReferenceID: req.ReferenceCode,
			Amount:      psAmount{Value: req.Amount, Currency: "BRL"},
			PaymentMethod: psPaymentMethod{
				Type:         "CREDIT_CARD",
				Installments: installments,
				Capture:      true,
				Card:         &psCard{Encrypted: req.Token},
			},
		}},
	}

	resp, err := g.post(ctx, "/orders", order)
	if err != nil {
		return nil, fmt.Errorf("ProcessCardPayment: %w", err)
	}
	if len(resp.Charges) == 0 {
		return nil, fmt.Errorf("ProcessCardPayment: empty charges in response")
	}

	charge := resp.Charges[0]
	status, err := mapPagSeguroStatus(charge.Status)
	if err != nil {
		return nil, fmt.Errorf("ProcessCardPayment: %w", err)
	}
	if status == domain.PaymentStatusFailed {
		return nil, fmt.Errorf("ProcessCardPayment: %s: %w", charge.PaymentResponse.Message, domain.ErrCardDeclined)
	}

	return &CardPaymentResult{
		ExternalID: resp.ID,
		Status:     status,
		Metadata: map[string]string{
			"charge_id":    charge.ID,
			"installments": strconv.Itoa(installments),
		},
	}, nil
}

func (g *PagSeguro) post(ctx context.Context, path string, payload any) (*psOrderResponse, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.cfg.Token)

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

	var parsed psOrderResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &parsed, nil
}

// ValidateWebhook checks the x-authenticity-token header: the hex SHA-256 of
// the account's authenticity key concatenated with the raw body. hmac.Equal
// keeps the comparison constant-time.
func (g *PagSeguro) ValidateWebhook(payload []byte, signature string) bool {
	if signature == "" {
		return false
	}
	sum := sha256.Sum256(append([]byte(g.cfg.AuthenticityKey+"-"), payload...))
	expected := hex.EncodeToString(sum[:])
	return hmac.Equal([]byte(expected), []byte(signature))
}

type psWebhookPayload struct {
	ID      string `json:"id"`
	Charges []struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"charges"`
}

func (g *PagSeguro) ParseWebhookData(payload []byte) (*WebhookData, error) {
	var note psWebhookPayload
	if err := json.Unmarshal(payload, &note); err != nil {
		return nil, fmt.Errorf("ParseWebhookData: %w", err)
	}
	if note.ID == "" {
		return nil, fmt.Errorf("ParseWebhookData: missing order id: %w", domain.ErrInvalidRequest)
	}
	if len(note.Charges) == 0 {
		return nil, fmt.Errorf("ParseWebhookData: missing charges: %w", domain.ErrInvalidRequest)
	}

	charge := note.Charges[0]
	status, err := mapPagSeguroStatus(charge.Status)
	if err != nil {
		return nil, fmt.Errorf("ParseWebhookData: %w", err)
	}

	return &WebhookData{
		PaymentID: note.ID,
		Status:    status,
		Metadata: map[string]string{
			"provider_status": charge.Status,
			"charge_id":       charge.ID,
		},
	}, nil
}

// mapPagSeguroStatus maps the charge status vocabulary onto the internal one.
// Total over the documented values; anything else is ErrUnmappedStatus.
func mapPagSeguroStatus(native string) (domain.PaymentStatus, error) {
	switch native {
	case "WAITING":
		return domain.PaymentStatusPending, nil
	case "IN_ANALYSIS", "AUTHORIZED":
		return domain.PaymentStatusProcessing, nil
	case "PAID":
		return domain.PaymentStatusPaid, nil
	case "DECLINED":
		return domain.PaymentStatusFailed, nil
	case "CANCELED":
		return domain.PaymentStatusCanceled, nil
	case "EXPIRED":
		return domain.PaymentStatusExpired, nil
	case "REFUNDED":
		return domain.PaymentStatusRefunded, nil
	}
	return "", fmt.Errorf("pagseguro status %q: %w", native, domain.ErrUnmappedStatus)
}

func findLink(links []psLink, media string) string {
	for _, l := range links {
		if l.Media == media {
			return l.Href
		}
	}
	return ""
}
