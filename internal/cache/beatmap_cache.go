package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// BeatmapCache caches beatmap checksums so playlist validation does not
// hit the database on every add/edit.
type BeatmapCache interface {
	SetChecksum(ctx context.Context, beatmapID int64, checksum string) error
	GetChecksum(ctx context.Context, beatmapID int64) (string, error)
}

type beatmapCache struct {
	client *redis.Client
}

func NewBeatmapCache(client *redis.Client) BeatmapCache {
	return &beatmapCache{
		client: client,
	}
}

func (c *beatmapCache) SetChecksum(ctx context.Context, beatmapID int64, checksum string) error {
	return c.client.Set(ctx, "beatmap:checksum:"+strconv.FormatInt(beatmapID, 10), checksum, 24*time.Hour).Err()
}

func (c *beatmapCache) GetChecksum(ctx context.Context, beatmapID int64) (string, error) {
	return c.client.Get(ctx, "beatmap:checksum:"+strconv.FormatInt(beatmapID, 10)).Result()
}
