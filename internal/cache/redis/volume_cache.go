package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/oraclebot/internal/domain"
)

const (
	volumeKey = "gamma:markets"
	volumeTTL = 10 * time.Minute
)

// VolumeCache implements domain.VolumeCache using a single JSON-serialized
// Redis key. The feed is refreshed at most once per TTL across all
// automation cycles and process restarts.
type VolumeCache struct {
	rdb *redis.Client
}

// NewVolumeCache creates a VolumeCache backed by the given Client.
func NewVolumeCache(c *Client) *VolumeCache {
	return &VolumeCache{rdb: c.Underlying()}
}

// Get returns the cached volume feed, or an empty slice when the key is
// missing or expired.
func (vc *VolumeCache) Get(ctx context.Context) ([]domain.MarketVolume, error) {
	data, err := vc.rdb.Get(ctx, volumeKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: get volume feed: %w", err)
	}

	var volumes []domain.MarketVolume
	if err := json.Unmarshal(data, &volumes); err != nil {
		return nil, fmt.Errorf("redis: unmarshal volume feed: %w", err)
	}
	return volumes, nil
}

// Set stores the volume feed with a 10-minute TTL.
func (vc *VolumeCache) Set(ctx context.Context, markets []domain.MarketVolume) error {
	data, err := json.Marshal(markets)
	if err != nil {
		return fmt.Errorf("redis: marshal volume feed: %w", err)
	}
	if err := vc.rdb.Set(ctx, volumeKey, data, volumeTTL).Err(); err != nil {
		return fmt.Errorf("redis: set volume feed: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.VolumeCache = (*VolumeCache)(nil)
