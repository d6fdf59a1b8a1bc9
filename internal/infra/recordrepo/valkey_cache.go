package recordrepo

import (
	"context"
	"time"

	"github.com/valkey-io/valkey-go"
)

// ValkeyCache implements SnapshotCache on a Valkey-compatible database.
type ValkeyCache struct {
	client valkey.Client
}

// NewValkeyCache constructs the cache.
func NewValkeyCache(client valkey.Client) *ValkeyCache {
	return &ValkeyCache{client: client}
}

func (c *ValkeyCache) Get(ctx context.Context, key string) (string, bool, error) {
	payload, err := c.client.Do(ctx, c.client.B().Get().Key(key).Build()).ToString()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return payload, true, nil
}

func (c *ValkeyCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	builder := c.client.B().Set().Key(key).Value(value)
	var cmd valkey.Completed
	if ttl > 0 {
		if ttl < time.Second {
			ttl = time.Second
		}
		cmd = builder.Ex(ttl).Build()
	} else {
		cmd = builder.Build()
	}
	return c.client.Do(ctx, cmd).Error()
}

func (c *ValkeyCache) Delete(ctx context.Context, key string) error {
	return c.client.Do(ctx, c.client.B().Del().Key(key).Build()).Error()
}

var _ SnapshotCache = (*ValkeyCache)(nil)
