package ledger

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/TOOL2U/Application---Property-Management--sub002/internal/utils"
)

const defaultKeyPrefix = "jobsync:ledger:"

/*
RedisLedger shares dedupe state across every replica of the service.
SET NX PX gives the atomic single-key insert; expiry is left to Redis.
*/
type RedisLedger struct {
	rc     *redis.Client
	prefix string
}

func NewRedisLedger(rc *redis.Client, prefix string) *RedisLedger {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisLedger{rc: rc, prefix: prefix}
}

func (l *RedisLedger) ShouldProceed(ctx context.Context, key string, window time.Duration) (bool, error) {
	ok, err := l.rc.SetNX(ctx, l.prefix+key, 1, window).Result()
	if err != nil {
		return false, utils.NewStoreError("ledger.set_nx", err)
	}
	return ok, nil
}

func (l *RedisLedger) Forget(ctx context.Context, key string) error {
	if err := l.rc.Del(ctx, l.prefix+key).Err(); err != nil {
		return utils.NewStoreError("ledger.del", err)
	}
	return nil
}

func (l *RedisLedger) Ping(ctx context.Context) error {
	return l.rc.Ping(ctx).Err()
}
