package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RestrictionCache caches the restricted-account flag checked on every
// room join. Short TTL so moderation actions take effect quickly.
type RestrictionCache interface {
	SetRestricted(ctx context.Context, userID int64, restricted bool) error
	GetRestricted(ctx context.Context, userID int64) (bool, error)
}

type restrictionCache struct {
	client *redis.Client
}

func NewRestrictionCache(client *redis.Client) RestrictionCache {
	return &restrictionCache{
		client: client,
	}
}

func (c *restrictionCache) SetRestricted(ctx context.Context, userID int64, restricted bool) error {
	return c.client.Set(ctx, "user:restricted:"+strconv.FormatInt(userID, 10), strconv.FormatBool(restricted), 5*time.Minute).Err()
}

func (c *restrictionCache) GetRestricted(ctx context.Context, userID int64) (bool, error) {
	data, err := c.client.Get(ctx, "user:restricted:"+strconv.FormatInt(userID, 10)).Result()
	if err != nil {
		return false, err
	}
	return strconv.ParseBool(data)
}
