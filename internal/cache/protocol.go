package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/fedpay/payment-core/internal/domain"
)

const protocolTTL = 5 * time.Minute

// ProtocolStatusCache is a read-through cache in front of the transactions
// table for the public "track my payment" lookup, which is by far the hottest
// read. It stores the full tracking view so a hit answers the lookup without
// touching Postgres. A nil *ProtocolStatusCache is valid and degrades to
// pass-through.
type ProtocolStatusCache struct {
	client *redis.Client
}

func NewProtocolStatusCache(addr string) (*ProtocolStatusCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("NewProtocolStatusCache: ping: %w", err)
	}

	return &ProtocolStatusCache{client: client}, nil
}

func (c *ProtocolStatusCache) Get(ctx context.Context, protocol string) (domain.TrackingView, bool) {
	if c == nil {
		return domain.TrackingView{}, false
	}
	val, err := c.client.Get(ctx, key(protocol)).Bytes()
	if err != nil {
		// miss, or an error we treat as a miss; the store stays authoritative
		return domain.TrackingView{}, false
	}
	var view domain.TrackingView
	if err := json.Unmarshal(val, &view); err != nil {
		// an entry written by an older encoding reads as a miss
		return domain.TrackingView{}, false
	}
	return view, true
}

func (c *ProtocolStatusCache) Set(ctx context.Context, view domain.TrackingView) error {
	if c == nil {
		return nil
	}
	buf, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("Set: %w", err)
	}
	if err := c.client.Set(ctx, key(view.Protocol), buf, protocolTTL).Err(); err != nil {
		return fmt.Errorf("Set: %w", err)
	}
	return nil
}

func (c *ProtocolStatusCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

func key(protocol string) string {
	return "protocol:status:" + protocol
}
