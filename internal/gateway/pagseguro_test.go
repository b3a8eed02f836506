package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedpay/payment-core/internal/domain"
)

func TestMapPagSeguroStatus(t *testing.T) {
	tests := []struct {
		native string
		want   domain.PaymentStatus
	}{
		{"WAITING", domain.PaymentStatusPending},
		{"IN_ANALYSIS", domain.PaymentStatusProcessing},
		{"AUTHORIZED", domain.PaymentStatusProcessing},
		{"PAID", domain.PaymentStatusPaid},
		{"DECLINED", domain.PaymentStatusFailed},
		{"CANCELED", domain.PaymentStatusCanceled},
		{"EXPIRED", domain.PaymentStatusExpired},
		{"REFUNDED", domain.PaymentStatusRefunded},
	}

	for _, tt := range tests {
		t.Run(tt.native, func(t *testing.T) {
			got, err := mapPagSeguroStatus(tt.native)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMapPagSeguroStatus_Unknown(t *testing.T) {
	_, err := mapPagSeguroStatus("PARTIALLY_REFUNDED")
	assert.ErrorIs(t, err, domain.ErrUnmappedStatus)

	// mappings are case sensitive: the provider vocabulary is upper case
	_, err = mapPagSeguroStatus("paid")
	assert.ErrorIs(t, err, domain.ErrUnmappedStatus)
}

func signPagSeguro(key string, payload []byte) string {
	sum := sha256.Sum256(append([]byte(key+"-"), payload...))
	return hex.EncodeToString(sum[:])
}

func TestPagSeguroValidateWebhook(t *testing.T) {
	g := NewPagSeguro(PagSeguroConfig{AuthenticityKey: "auth-key"})
	payload := []byte(`{"id":"ORDE_123","charges":[{"id":"CHAR_1","status":"PAID"}]}`)

	t.Run("valid token", func(t *testing.T) {
		assert.True(t, g.ValidateWebhook(payload, signPagSeguro("auth-key", payload)))
	})

	t.Run("wrong key", func(t *testing.T) {
		assert.False(t, g.ValidateWebhook(payload, signPagSeguro("other-key", payload)))
	})

	t.Run("tampered body", func(t *testing.T) {
		sig := signPagSeguro("auth-key", payload)
		tampered := []byte(`{"id":"ORDE_123","charges":[{"id":"CHAR_1","status":"REFUNDED"}]}`)
		assert.False(t, g.ValidateWebhook(tampered, sig))
	})

	t.Run("missing header", func(t *testing.T) {
		assert.False(t, g.ValidateWebhook(payload, ""))
	})
}

func TestPagSeguroParseWebhookData(t *testing.T) {
	g := NewPagSeguro(PagSeguroConfig{})

	data, err := g.ParseWebhookData([]byte(`{"id":"ORDE_123","charges":[{"id":"CHAR_1","status":"PAID"}]}`))
	require.NoError(t, err)
	assert.Equal(t, "ORDE_123", data.PaymentID)
	assert.Equal(t, domain.PaymentStatusPaid, data.Status)
	assert.Equal(t, "CHAR_1", data.Metadata["charge_id"])

	_, err = g.ParseWebhookData([]byte(`{"id":"ORDE_123","charges":[{"id":"CHAR_1","status":"NEW_THING"}]}`))
	assert.ErrorIs(t, err, domain.ErrUnmappedStatus)

	_, err = g.ParseWebhookData([]byte(`{"charges":[{"id":"CHAR_1","status":"PAID"}]}`))
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = g.ParseWebhookData([]byte(`{"id":"ORDE_123","charges":[]}`))
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestPagSeguroCreatePayment_Pix(t *testing.T) {
	var gotReq psOrderRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/orders", r.URL.Path)
		require.Equal(t, "Bearer ps-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		fmt.Fprint(w, `{
			"id": "ORDE_ABC",
			"qr_codes": [{
				"text": "00020126pixcopypaste",
				"links": [{"rel": "QRCODE.PNG", "href": "https://ps.test/qr.png", "media": "image/png"}]
			}]
		}`)
	}))
	defer server.Close()

	g := NewPagSeguro(PagSeguroConfig{Token: "ps-token", BaseURL: server.URL})
	resp, err := g.CreatePayment(context.Background(), CreatePaymentRequest{
		TransactionID: uuid.New(),
		Method:        domain.PaymentMethodPix,
		Amount:        9900,
		Customer:      Customer{Name: "Bruno", Email: "bruno@test.com", Document: "12345678901"},
		ReferenceCode: "FED2026-XYZXYZXY",
	})
	require.NoError(t, err)

	assert.Equal(t, "ORDE_ABC", resp.ExternalID)
	assert.Equal(t, "00020126pixcopypaste", resp.QRCode)
	assert.Equal(t, "https://ps.test/qr.png", resp.QRCodeBase64)

	require.Len(t, gotReq.QRCodes, 1)
	assert.Equal(t, int64(9900), gotReq.QRCodes[0].Amount.Value)
	assert.Equal(t, "BRL", gotReq.QRCodes[0].Amount.Currency)
	assert.Empty(t, gotReq.Charges)
}

func TestPagSeguroCreatePayment_Boleto(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req psOrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Charges, 1)
		assert.Equal(t, "BOLETO", req.Charges[0].PaymentMethod.Type)

		fmt.Fprint(w, `{
			"id": "ORDE_DEF",
			"charges": [{
				"id": "CHAR_9",
				"status": "WAITING",
				"payment_method": {"boleto": {"barcode": "03399876543210000001234567890123456789012345"}},
				"links": [{"rel": "CHARGE.PDF", "href": "https://ps.test/boleto.pdf", "media": "application/pdf"}]
			}]
		}`)
	}))
	defer server.Close()

	g := NewPagSeguro(PagSeguroConfig{BaseURL: server.URL})
	resp, err := g.CreatePayment(context.Background(), CreatePaymentRequest{
		TransactionID: uuid.New(),
		Method:        domain.PaymentMethodBoleto,
		Amount:        9900,
		ReferenceCode: "FED2026-XYZXYZXY",
	})
	require.NoError(t, err)

	assert.Equal(t, "ORDE_DEF", resp.ExternalID)
	assert.Equal(t, "03399876543210000001234567890123456789012345", resp.BarcodeNumber)
	assert.Equal(t, "https://ps.test/boleto.pdf", resp.PaymentURL)
}

func TestPagSeguroCreatePayment_CardNotSupported(t *testing.T) {
	g := NewPagSeguro(PagSeguroConfig{})
	_, err := g.CreatePayment(context.Background(), CreatePaymentRequest{
		TransactionID: uuid.New(),
		Method:        domain.PaymentMethodCreditCard,
		Amount:        1000,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestPagSeguroProcessCardPayment_Declined(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"id": "ORDE_GHI",
			"charges": [{
				"id": "CHAR_10",
				"status": "DECLINED",
				"payment_response": {"message": "not authorized"}
			}]
		}`)
	}))
	defer server.Close()

	g := NewPagSeguro(PagSeguroConfig{BaseURL: server.URL})
	_, err := g.ProcessCardPayment(context.Background(), CardPaymentRequest{
		TransactionID: uuid.New(),
		Amount:        5000,
		Token:         "encrypted-card",
	})
	assert.ErrorIs(t, err, domain.ErrCardDeclined)
}

func TestPagSeguroProcessCardPayment_Unavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	g := NewPagSeguro(PagSeguroConfig{BaseURL: server.URL})
	_, err := g.ProcessCardPayment(context.Background(), CardPaymentRequest{
		TransactionID: uuid.New(),
		Amount:        5000,
		Token:         "encrypted-card",
	})
	assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)
}

func TestRegistryResolve(t *testing.T) {
	mp := NewMercadoPago(MercadoPagoConfig{})
	ps := NewPagSeguro(PagSeguroConfig{})
	registry := NewRegistry(mp, ps)

	got, err := registry.Resolve(domain.ProviderMercadoPago)
	require.NoError(t, err)
	assert.Same(t, mp, got.(*MercadoPago))

	got, err = registry.Resolve(domain.ProviderPagSeguro)
	require.NoError(t, err)
	assert.Same(t, ps, got.(*PagSeguro))

	_, err = registry.Resolve("STRIPE")
	assert.ErrorIs(t, err, domain.ErrUnknownProvider)
}
