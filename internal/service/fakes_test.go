package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fedpay/payment-core/internal/domain"
	"github.com/fedpay/payment-core/internal/gateway"
)

// fakeStore is an in-memory transactionStore. The mutex matters: the
// compare-and-set semantics under concurrent transitions are part of what the
// tests exercise.
type fakeStore struct {
	mu            sync.Mutex
	transactions  map[uuid.UUID]*domain.Transaction
	history       map[uuid.UUID][]domain.TransactionHistory
	protocolReads int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		transactions: make(map[uuid.UUID]*domain.Transaction),
		history:      make(map[uuid.UUID][]domain.TransactionHistory),
	}
}

func (s *fakeStore) CreateWithProtocol(_ context.Context, t *domain.Transaction, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.transactions {
		if existing.Protocol == t.Protocol {
			return domain.ErrProtocolCollision
		}
	}

	cp := *t
	s.transactions[t.ID] = &cp
	s.history[t.ID] = append(s.history[t.ID], domain.TransactionHistory{
		ID:            uuid.New(),
		TransactionID: t.ID,
		Status:        t.Status,
		Description:   description,
		CreatedAt:     t.CreatedAt,
	})
	return nil
}

func (s *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transactions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *fakeStore) GetByExternalID(_ context.Context, externalID string) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.transactions {
		if t.ExternalID != nil && *t.ExternalID == externalID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *fakeStore) GetByProtocol(_ context.Context, protocol string) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.protocolReads++
	for _, t := range s.transactions {
		if t.Protocol == protocol {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *fakeStore) ApplyTransition(_ context.Context, id uuid.UUID, expected, next domain.PaymentStatus, description string, metadata map[string]string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transactions[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if t.Status != expected {
		return false, nil
	}

	t.Status = next
	t.UpdatedAt = time.Now().UTC()
	s.history[id] = append(s.history[id], domain.TransactionHistory{
		ID:            uuid.New(),
		TransactionID: id,
		Status:        next,
		Description:   description,
		Metadata:      metadata,
		CreatedAt:     t.UpdatedAt,
	})
	return true, nil
}

func (s *fakeStore) SetExternalID(_ context.Context, id uuid.UUID, externalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transactions[id]
	if !ok {
		return domain.ErrNotFound
	}
	if t.ExternalID != nil {
		if *t.ExternalID == externalID {
			return nil
		}
		return domain.ErrExternalIDTaken
	}
	t.ExternalID = &externalID
	return nil
}

func (s *fakeStore) MergeMetadata(_ context.Context, id uuid.UUID, metadata map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transactions[id]
	if !ok {
		return domain.ErrNotFound
	}
	if t.Metadata == nil {
		t.Metadata = map[string]string{}
	}
	for k, v := range metadata {
		t.Metadata[k] = v
	}
	return nil
}

func (s *fakeStore) ListOverdue(_ context.Context, now time.Time, limit int) ([]domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Transaction
	for _, t := range s.transactions {
		if t.IsOverdue(now) {
			out = append(out, *t)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *fakeStore) historyCount(id uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history[id])
}

type fakeProtocolStore struct {
	mu       sync.Mutex
	statuses map[string]domain.PaymentStatus
}

func newFakeProtocolStore() *fakeProtocolStore {
	return &fakeProtocolStore{statuses: make(map[string]domain.PaymentStatus)}
}

func (s *fakeProtocolStore) UpdateStatus(_ context.Context, protocol string, status domain.PaymentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[protocol] = status
	return nil
}

func (s *fakeProtocolStore) status(protocol string) domain.PaymentStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statuses[protocol]
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]domain.TrackingView
	setErr  error
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]domain.TrackingView)}
}

func (c *fakeCache) Get(_ context.Context, protocol string) (domain.TrackingView, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	view, ok := c.entries[protocol]
	return view, ok
}

func (c *fakeCache) Set(_ context.Context, view domain.TrackingView) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	c.entries[view.Protocol] = view
	return nil
}

type fakeActivator struct {
	mu    sync.Mutex
	calls []uuid.UUID
	err   error
}

func (a *fakeActivator) Activate(_ context.Context, entityID uuid.UUID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.calls = append(a.calls, entityID)
	return nil
}

func (a *fakeActivator) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

type fakeConfirmer struct {
	mu    sync.Mutex
	calls []uuid.UUID
}

func (c *fakeConfirmer) Confirm(_ context.Context, registrationID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, registrationID)
	return nil
}

func (c *fakeConfirmer) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

type fakeNotifier struct {
	mu            sync.Mutex
	notifications []Notification
}

func (n *fakeNotifier) Notify(_ context.Context, notification Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifications = append(n.notifications, notification)
	return nil
}

func (n *fakeNotifier) last() (Notification, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.notifications) == 0 {
		return Notification{}, false
	}
	return n.notifications[len(n.notifications)-1], true
}

// fakeGateway stands in for a provider adapter. Webhook validation and parsing
// are scripted per test.
type fakeGateway struct {
	provider    domain.Provider
	validSig    string
	webhookData *gateway.WebhookData
	parseErr    error
	createResp  *gateway.CreatePaymentResponse
	createErr   error
	cardResult  *gateway.CardPaymentResult
	cardErr     error
	createCalls int
	cardCalls   int
}

func (g *fakeGateway) Provider() domain.Provider { return g.provider }

func (g *fakeGateway) CreatePayment(_ context.Context, _ gateway.CreatePaymentRequest) (*gateway.CreatePaymentResponse, error) {
	g.createCalls++
	if g.createErr != nil {
		return nil, g.createErr
	}
	return g.createResp, nil
}

func (g *fakeGateway) ProcessCardPayment(_ context.Context, _ gateway.CardPaymentRequest) (*gateway.CardPaymentResult, error) {
	g.cardCalls++
	if g.cardErr != nil {
		return nil, g.cardErr
	}
	return g.cardResult, nil
}

func (g *fakeGateway) ValidateWebhook(_ []byte, signature string) bool {
	return signature == g.validSig
}

func (g *fakeGateway) ParseWebhookData(_ []byte) (*gateway.WebhookData, error) {
	if g.parseErr != nil {
		return nil, g.parseErr
	}
	return g.webhookData, nil
}

var errBoom = errors.New("boom")
