package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/fedpay/payment-core/internal/domain"
	"github.com/fedpay/payment-core/internal/logging"
)

// protocolAlphabet has no vowels or easily-confused glyphs (0/O, 1/I); these
// strings are read over the phone to federation staff.
const protocolAlphabet = "23456789BCDFGHJKLMNPQRSTVWXZ"

const protocolSuffixLen = 8

// ProtocolService mints and tracks the human-facing protocol number bound 1:1
// to a transaction, independent of the payment provider.
type ProtocolService struct {
	protocols protocolStore
	cache     protocolCache
}

func NewProtocolService(protocols protocolStore, cache protocolCache) *ProtocolService {
	return &ProtocolService{protocols: protocols, cache: cache}
}

// Generate builds `<prefix><year>-<suffix>` with a crypto-random suffix.
// 28^8 values per (prefix, year) scope makes a collision exceptional; callers
// retry generation when the store reports one.
func (s *ProtocolService) Generate(prefix string) (string, error) {
	buf := make([]byte, protocolSuffixLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("Generate: %w", err)
	}
	for i, b := range buf {
		buf[i] = protocolAlphabet[int(b)%len(protocolAlphabet)]
	}
	return fmt.Sprintf("%s%d-%s", prefix, time.Now().UTC().Year(), buf), nil
}

// UpdateStatus mirrors a transaction status onto the protocol record. The
// caller holds the full row and refreshes the cached view through CacheView.
func (s *ProtocolService) UpdateStatus(ctx context.Context, protocol string, status domain.PaymentStatus) error {
	if err := s.protocols.UpdateStatus(ctx, protocol, status); err != nil {
		return fmt.Errorf("UpdateStatus: %w", err)
	}
	return nil
}

// CacheView stores the public tracking view for the protocol. Best-effort: a
// cache write failure is logged and the store stays authoritative.
func (s *ProtocolService) CacheView(ctx context.Context, view domain.TrackingView) {
	if err := s.cache.Set(ctx, view); err != nil {
		logging.FromContext(ctx).Warn("protocol cache refresh failed", "protocol", view.Protocol, "error", err)
	}
}

// CachedView serves the hot tracking path. A miss falls back to the caller's
// authoritative read.
func (s *ProtocolService) CachedView(ctx context.Context, protocol string) (domain.TrackingView, bool) {
	return s.cache.Get(ctx, protocol)
}
