package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedpay/payment-core/internal/domain"
)

type mockWebhookService struct {
	err       error
	provider  domain.Provider
	payload   []byte
	signature string
}

func (m *mockWebhookService) HandleWebhook(_ context.Context, provider domain.Provider, payload []byte, signature string) error {
	m.provider = provider
	m.payload = payload
	m.signature = signature
	return m.err
}

func doWebhookRequest(h *WebhookHandler, provider, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/"+provider, strings.NewReader(body))
	req.SetPathValue("provider", provider)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ReceiveWebhook(rr, req)
	return rr
}

func TestReceiveWebhook(t *testing.T) {
	tests := []struct {
		name       string
		provider   string
		svcErr     error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "accepted delivery",
			provider:   "MERCADO_PAGO",
			wantStatus: http.StatusOK,
		},
		{
			name:       "unknown provider segment",
			provider:   "STRIPE",
			wantStatus: http.StatusNotFound,
			wantCode:   "UNKNOWN_PROVIDER",
		},
		{
			name:       "invalid signature",
			provider:   "PAGSEGURO",
			svcErr:     domain.ErrInvalidSignature,
			wantStatus: http.StatusUnauthorized,
			wantCode:   "INVALID_SIGNATURE",
		},
		{
			name:       "provider not registered",
			provider:   "MERCADO_PAGO",
			svcErr:     domain.ErrUnknownProvider,
			wantStatus: http.StatusNotFound,
			wantCode:   "UNKNOWN_PROVIDER",
		},
		{
			name:       "unexpected failure",
			provider:   "MERCADO_PAGO",
			svcErr:     errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockWebhookService{err: tc.svcErr}
			h := NewWebhookHandler(svc)

			rr := doWebhookRequest(h, tc.provider, `{"data":{"id":"123"}}`, nil)

			assert.Equal(t, tc.wantStatus, rr.Code)

			var resp APIResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))

			if tc.wantCode == "" {
				assert.True(t, resp.Success)
			} else {
				assert.False(t, resp.Success)
				require.NotNil(t, resp.Error)
				assert.Equal(t, tc.wantCode, resp.Error.Code)
			}
		})
	}
}

func TestReceiveWebhook_PassesSignatureHeader(t *testing.T) {
	svc := &mockWebhookService{}
	h := NewWebhookHandler(svc)

	body := `{"data":{"id":"123","status":"approved"}}`
	rr := doWebhookRequest(h, "MERCADO_PAGO", body, map[string]string{
		"X-Signature": "ts=1700000000,v1=deadbeef",
	})

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, domain.ProviderMercadoPago, svc.provider)
	assert.Equal(t, body, string(svc.payload))
	assert.Equal(t, "ts=1700000000,v1=deadbeef", svc.signature)
}

func TestReceiveWebhook_PagSeguroHeader(t *testing.T) {
	svc := &mockWebhookService{}
	h := NewWebhookHandler(svc)

	rr := doWebhookRequest(h, "PAGSEGURO", `{"id":"ORDE_1"}`, map[string]string{
		"X-Authenticity-Token": "abc123",
	})

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, domain.ProviderPagSeguro, svc.provider)
	assert.Equal(t, "abc123", svc.signature)
}

func TestReceiveWebhook_UnknownProviderSkipsService(t *testing.T) {
	svc := &mockWebhookService{}
	h := NewWebhookHandler(svc)

	rr := doWebhookRequest(h, "STRIPE", `{}`, nil)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Empty(t, svc.provider, "the service is never reached for an unknown provider segment")
}
