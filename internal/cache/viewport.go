package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/tabledrop/backend/internal/logger"
	"go.uber.org/zap"
)

// viewportTTL keeps map results fresh enough that a reserved listing
// disappears within a few seconds even without an invalidation
const viewportTTL = 15 * time.Second

// viewportKey buckets coordinates to 2 decimal places (~1km) so nearby
// pans hit the same cache entry
func viewportKey(minLat, minLng, maxLat, maxLng float64, category string) string {
	round := func(v float64) float64 {
		return math.Round(v*100) / 100
	}
	key := fmt.Sprintf("viewport:%.2f:%.2f:%.2f:%.2f",
		round(minLat), round(minLng), round(maxLat), round(maxLng))
	if category != "" {
		key += ":" + category
	}
	return key
}

// GetViewport returns cached map results for a bounding box, or false
// on a miss
func (rc *RedisClient) GetViewport(ctx context.Context, minLat, minLng, maxLat, maxLng float64, category string, out interface{}) bool {
	if rc == nil || rc.client == nil {
		return false
	}

	data, err := rc.client.Get(ctx, viewportKey(minLat, minLng, maxLat, maxLng, category)).Bytes()
	if err != nil {
		return false
	}

	if err := json.Unmarshal(data, out); err != nil {
		logger.Log.Warn("Discarding corrupt viewport cache entry", zap.Error(err))
		return false
	}
	return true
}

// SetViewport caches map results for a bounding box
func (rc *RedisClient) SetViewport(ctx context.Context, minLat, minLng, maxLat, maxLng float64, category string, value interface{}) {
	if rc == nil || rc.client == nil {
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		return
	}

	if err := rc.client.Set(ctx, viewportKey(minLat, minLng, maxLat, maxLng, category), data, viewportTTL).Err(); err != nil {
		logger.Log.Warn("Failed to cache viewport results", zap.Error(err))
	}
}

// InvalidateViewports drops all cached map results. Called after a
// listing is created, reserved, or closed so the map never shows a
// stale pin for long.
func (rc *RedisClient) InvalidateViewports(ctx context.Context) {
	if rc == nil || rc.client == nil {
		return
	}

	keys, err := rc.client.Keys(ctx, "viewport:*").Result()
	if err != nil || len(keys) == 0 {
		return
	}

	if err := rc.client.Del(ctx, keys...).Err(); err != nil {
		logger.Log.Warn("Failed to invalidate viewport cache", zap.Error(err))
	}
}
