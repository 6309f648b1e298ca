package lease

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "lease:"

// Снимает или сокращает аренду, только если ее держит тот же владелец
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		local ms = tonumber(ARGV[2])
		if ms > 0 then
			return redis.call("pexpire", KEYS[1], ms)
		end
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// RedisLocker аренда в виде ключа Redis с TTL
type RedisLocker struct {
	client redis.UniversalClient
	now    func() time.Time
}

func NewRedisLocker(client redis.UniversalClient) *RedisLocker {
	return &RedisLocker{
		client: client,
		now:    time.Now,
	}
}

func (l *RedisLocker) Acquire(ctx context.Context, name, owner string, lockAtMostFor time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, redisKeyPrefix+name, owner, lockAtMostFor).Result()
	if err != nil {
		return false, fmt.Errorf("ошибка захвата аренды %s: %w", name, err)
	}
	return ok, nil
}

func (l *RedisLocker) Release(ctx context.Context, name, owner string, keepUntil time.Time) error {
	remaining := keepUntil.Sub(l.now()).Milliseconds()
	if remaining < 0 {
		remaining = 0
	}

	if err := releaseScript.Run(ctx, l.client, []string{redisKeyPrefix + name}, owner, remaining).Err(); err != nil {
		return fmt.Errorf("ошибка освобождения аренды %s: %w", name, err)
	}
	return nil
}
