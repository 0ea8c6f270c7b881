package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/platform/sentinel"
)

const lockKeyPrefix = "ocpi:lock:"

// releaseScript deletes the key only if it still holds our owner value, so
// a lock that expired and was taken by another instance is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker hands out short-lived exclusive locks shared by every instance
// pointing at the same Redis.
type Locker struct {
	client *redis.Client
}

func NewLocker(client *redis.Client) *Locker {
	return &Locker{client: client}
}

// Acquire takes the lock for key or fails with sentinel.ErrLocked. The
// returned release function is safe to call after the TTL has elapsed.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	owner := uuid.NewString()
	fullKey := lockKeyPrefix + key

	ok, err := l.client.SetNX(ctx, fullKey, owner, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("lock %s: %w", key, sentinel.ErrLocked)
	}

	release := func(ctx context.Context) error {
		err := releaseScript.Run(ctx, l.client, []string{fullKey}, owner).Err()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("release lock %s: %w", key, err)
		}
		return nil
	}
	return release, nil
}
