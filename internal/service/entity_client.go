package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/fedpay/payment-core/internal/logging"
)

// EntityClient talks to the admin portal's internal API for the two paid side
// effects. The portal endpoints are idempotent (activating an active
// membership / confirming a confirmed registration answer 200 without change),
// which is what lets the webhook pipeline re-enter safely.
type EntityClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewEntityClient(baseURL string) *EntityClient {
	return &EntityClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (c *EntityClient) Activate(ctx context.Context, entityID uuid.UUID) error {
	return c.post(ctx, fmt.Sprintf("/internal/memberships/%s/activate", entityID))
}

func (c *EntityClient) Confirm(ctx context.Context, registrationID uuid.UUID) error {
	return c.post(ctx, fmt.Sprintf("/internal/registrations/%s/confirm", registrationID))
}

func (c *EntityClient) post(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("post: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("post %s: unexpected status %d: %s", path, resp.StatusCode, string(body))
	}
	return nil
}

// HTTPNotifier posts status-change notifications to the notification service,
// which owns templates and delivery channels (email, WhatsApp).
type HTTPNotifier struct {
	url        string
	httpClient *http.Client
}

func NewHTTPNotifier(url string) *HTTPNotifier {
	return &HTTPNotifier{
		url: url,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type notificationPayload struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Protocol   string `json:"protocol"`
	Status     string `json:"status"`
}

func (n *HTTPNotifier) Notify(ctx context.Context, note Notification) error {
	log := logging.FromContext(ctx)

	body, err := json.Marshal(notificationPayload{
		EntityType: string(note.EntityType),
		EntityID:   note.EntityID.String(),
		Protocol:   note.Protocol,
		Status:     string(note.Status),
	})
	if err != nil {
		return fmt.Errorf("Notify: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("Notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("Notify: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("Notify: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	log.Debug("notification dispatched", "protocol", note.Protocol, "status", note.Status)
	return nil
}

// NopNotifier is wired when no notification service is configured (local
// development, tests).
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Notification) error { return nil }
