package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/detect"
)

const (
	cacheKeyPrefix = "vision:detections:"
	cacheTTL       = 10 * time.Second
)

var ErrNoDetections = errors.New("no cached detections")

// CachedDetections is the freshest detection batch for a camera plus how
// stale it is.
type CachedDetections struct {
	CameraID   string             `json:"camera_id"`
	Detections []detect.Detection `json:"detections"`
	StoredAt   time.Time          `json:"stored_at"`
	AgeMS      int64              `json:"age_ms"`
}

// DetectionCache keeps the latest detections per camera in Redis with a
// short TTL, so a stale entry simply expires instead of being served as
// current.
type DetectionCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewDetectionCache(rdb *redis.Client) *DetectionCache {
	return &DetectionCache{rdb: rdb, ttl: cacheTTL}
}

// StoreDetections implements pipeline.DetectionCache.
func (c *DetectionCache) StoreDetections(ctx context.Context, cameraID string, dets []detect.Detection) error {
	entry := CachedDetections{
		CameraID:   cameraID,
		Detections: dets,
		StoredAt:   time.Now().UTC(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal detections: %w", err)
	}
	return c.rdb.Set(ctx, cacheKeyPrefix+cameraID, data, c.ttl).Err()
}

// Latest returns the cached batch for a camera with its age filled in.
func (c *DetectionCache) Latest(ctx context.Context, cameraID string) (*CachedDetections, error) {
	data, err := c.rdb.Get(ctx, cacheKeyPrefix+cameraID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoDetections
		}
		return nil, err
	}
	var entry CachedDetections
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("unmarshal detections: %w", err)
	}
	entry.AgeMS = time.Since(entry.StoredAt).Milliseconds()
	return &entry, nil
}
