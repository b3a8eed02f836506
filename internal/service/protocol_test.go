package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedpay/payment-core/internal/domain"
)

func TestProtocolGenerate_Format(t *testing.T) {
	svc := NewProtocolService(newFakeProtocolStore(), newFakeCache())

	pattern := regexp.MustCompile(`^[A-Z0-9]{3,}\d{4}-[A-Z0-9]{6,}$`)
	year := fmt.Sprintf("%d", time.Now().UTC().Year())

	for range 100 {
		protocol, err := svc.Generate("FED")
		require.NoError(t, err)

		assert.Regexp(t, pattern, protocol)
		assert.True(t, strings.HasPrefix(protocol, "FED"+year+"-"), protocol)

		suffix := strings.TrimPrefix(protocol, "FED"+year+"-")
		require.Len(t, suffix, protocolSuffixLen)
		for _, r := range suffix {
			assert.Contains(t, protocolAlphabet, string(r), protocol)
		}
	}
}

func TestProtocolGenerate_Uniqueness(t *testing.T) {
	svc := NewProtocolService(newFakeProtocolStore(), newFakeCache())

	seen := make(map[string]struct{}, 5000)
	for range 5000 {
		protocol, err := svc.Generate("FED")
		require.NoError(t, err)

		_, dup := seen[protocol]
		require.False(t, dup, "duplicate protocol %s", protocol)
		seen[protocol] = struct{}{}
	}
}

func TestProtocolUpdateStatus(t *testing.T) {
	store := newFakeProtocolStore()
	svc := NewProtocolService(store, newFakeCache())

	require.NoError(t, svc.UpdateStatus(context.Background(), "FED2026-ABCDEFGH", domain.PaymentStatusPaid))
	assert.Equal(t, domain.PaymentStatusPaid, store.status("FED2026-ABCDEFGH"))
}

func TestProtocolCacheView(t *testing.T) {
	cache := newFakeCache()
	svc := NewProtocolService(newFakeProtocolStore(), cache)

	view := domain.TrackingView{
		Protocol:      "FED2026-ABCDEFGH",
		Status:        domain.PaymentStatusPaid,
		PaymentMethod: domain.PaymentMethodPix,
		Amount:        15000,
	}
	svc.CacheView(context.Background(), view)

	cached, ok := cache.Get(context.Background(), "FED2026-ABCDEFGH")
	require.True(t, ok)
	assert.Equal(t, view, cached)
}

func TestProtocolCacheView_FailureIsNotFatal(t *testing.T) {
	cache := newFakeCache()
	cache.setErr = errors.New("redis down")
	svc := NewProtocolService(newFakeProtocolStore(), cache)

	// the write is logged and dropped; the store stays authoritative
	svc.CacheView(context.Background(), domain.TrackingView{Protocol: "FED2026-ABCDEFGH", Status: domain.PaymentStatusPaid})

	_, ok := cache.Get(context.Background(), "FED2026-ABCDEFGH")
	assert.False(t, ok)
}

func TestProtocolCachedView(t *testing.T) {
	cache := newFakeCache()
	svc := NewProtocolService(newFakeProtocolStore(), cache)

	_, ok := svc.CachedView(context.Background(), "FED2026-MISSING2")
	assert.False(t, ok)

	view := domain.TrackingView{
		Protocol:      "FED2026-ABCDEFGH",
		Status:        domain.PaymentStatusExpired,
		PaymentMethod: domain.PaymentMethodBoleto,
		Amount:        9900,
	}
	require.NoError(t, cache.Set(context.Background(), view))

	got, ok := svc.CachedView(context.Background(), "FED2026-ABCDEFGH")
	require.True(t, ok)
	assert.Equal(t, view, got)
}
