package leader

import (
	"context"
	"errors"
	"time"

	"nft-marketplace/pkg/logger"

	"github.com/go-redis/redis/v8"
)

var ErrLeaseLost = errors.New("registry lease lost")

var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

var renewScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// RedisLease grants one instance at a time the right to run the auction
// registry. The registry keeps its arena in process, so a second writer
// against the same ledgers would diverge from the first.
type RedisLease struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	log    logger.Logger
}

func NewRedisLease(client *redis.Client, registryAddress string, ttl time.Duration, log logger.Logger) *RedisLease {
	return &RedisLease{
		client: client,
		key:    "registry_lease:" + registryAddress,
		ttl:    ttl,
		log:    log,
	}
}

// Acquire takes the lease, or renews it when instanceID already holds it.
func (l *RedisLease) Acquire(ctx context.Context, instanceID string) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, instanceID, l.ttl).Result()
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	return l.renew(ctx, instanceID)
}

// AcquireBlocking retries Acquire every interval until it succeeds or ctx ends.
func (l *RedisLease) AcquireBlocking(ctx context.Context, instanceID string, interval time.Duration) error {
	for {
		ok, err := l.Acquire(ctx, instanceID)
		if err != nil {
			l.log.Error("Failed to attempt registry lease", "instance_id", instanceID, "error", err)
		} else if ok {
			l.log.Info("Acquired registry lease", "instance_id", instanceID, "key", l.key)
			return nil
		} else {
			l.log.Info("Registry lease held elsewhere, waiting", "instance_id", instanceID)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// Hold renews the lease at a third of its TTL until ctx ends. Call it right
// after acquiring. It returns ErrLeaseLost as soon as another instance owns
// the key, or once a full TTL has passed without a successful renewal.
func (l *RedisLease) Hold(ctx context.Context, instanceID string) error {
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	renewedAt := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			renewCtx, cancel := context.WithTimeout(ctx, l.ttl/3)
			ok, err := l.renew(renewCtx, instanceID)
			cancel()

			if err != nil {
				if time.Since(renewedAt) >= l.ttl {
					l.log.Error("Registry lease not renewed within its TTL", "instance_id", instanceID, "error", err)
					return ErrLeaseLost
				}
				l.log.Warn("Failed to renew registry lease", "instance_id", instanceID, "error", err)
				continue
			}
			if !ok {
				return ErrLeaseLost
			}
			renewedAt = time.Now()
		}
	}
}

func (l *RedisLease) Holder(ctx context.Context) (string, bool, error) {
	holder, err := l.client.Get(ctx, l.key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return holder, true, nil
}

func (l *RedisLease) Release(ctx context.Context, instanceID string) error {
	return releaseScript.Run(ctx, l.client, []string{l.key}, instanceID).Err()
}

func (l *RedisLease) renew(ctx context.Context, instanceID string) (bool, error) {
	result, err := renewScript.Run(ctx, l.client, []string{l.key}, instanceID, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return result == 1, nil
}
