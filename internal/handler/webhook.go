package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/fedpay/payment-core/internal/domain"
	"github.com/fedpay/payment-core/internal/logging"
)

type webhookService interface {
	HandleWebhook(ctx context.Context, provider domain.Provider, payload []byte, signature string) error
}

// signatureHeaders maps each provider to the header its callbacks sign with.
var signatureHeaders = map[domain.Provider]string{
	domain.ProviderMercadoPago: "X-Signature",
	domain.ProviderPagSeguro:   "X-Authenticity-Token",
}

type WebhookHandler struct {
	webhooks webhookService
}

func NewWebhookHandler(webhooks webhookService) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks}
}

// ReceiveWebhook accepts provider callbacks at /webhooks/{provider}. Once the
// payload has been accepted for processing the provider always gets a 200,
// even when processing no-ops internally; anything else would make it
// redeliver indefinitely. The only client errors are an unknown provider
// segment and a failed signature check.
func (h *WebhookHandler) ReceiveWebhook(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	provider := domain.Provider(r.PathValue("provider"))
	if !provider.IsValid() {
		RespondAppError(w, ErrUnknownProvider, nil)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		log.Error("failed to read webhook body", "error", err)
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	signature := r.Header.Get(signatureHeaders[provider])

	err = h.webhooks.HandleWebhook(r.Context(), provider, body, signature)
	switch {
	case err == nil:
		RespondSuccess(w, http.StatusOK, map[string]string{"status": "received"})
	case errors.Is(err, domain.ErrInvalidSignature):
		RespondAppError(w, ErrInvalidSignature, nil)
	case errors.Is(err, domain.ErrUnknownProvider):
		RespondAppError(w, ErrUnknownProvider, nil)
	default:
		log.Error("webhook processing failed", "provider", provider, "error", err)
		RespondAppError(w, ErrInternalError, nil)
	}
}
