package sessionlock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis lock defaults.
const (
	DefaultLockTTL      = 2 * time.Minute
	DefaultPollInterval = 50 * time.Millisecond
	keyPrefix           = "salespipe:lock:"
)

// unlockScript deletes the key only if it still holds our token, so an
// expired lock taken over by another process is never released by us.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker serializes sessions across processes that share a Redis.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	poll   time.Duration
}

// RedisOpts configures a RedisLocker.
type RedisOpts struct {
	Addr     string
	Password string
	TTL      time.Duration
	Wait     time.Duration
}

// RedisOption configures a RedisLocker.
type RedisOption func(*RedisOpts)

// WithRedisAddr sets the Redis address (host:port).
func WithRedisAddr(addr string) RedisOption {
	return func(o *RedisOpts) { o.Addr = addr }
}

// WithRedisPassword sets the Redis password.
func WithRedisPassword(password string) RedisOption {
	return func(o *RedisOpts) { o.Password = password }
}

// WithLockTTL sets how long a held lock survives a crashed holder.
func WithLockTTL(ttl time.Duration) RedisOption {
	return func(o *RedisOpts) { o.TTL = ttl }
}

// WithLockWait sets how long Lock waits for a busy session.
func WithLockWait(wait time.Duration) RedisOption {
	return func(o *RedisOpts) { o.Wait = wait }
}

// NewRedisLocker connects to Redis and verifies the connection with PING.
func NewRedisLocker(ctx context.Context, opts ...RedisOption) (*RedisLocker, error) {
	cfg := RedisOpts{TTL: DefaultLockTTL, Wait: DefaultWait}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		return nil, errors.New("redis address not set")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	slog.Info("RedisLocker: connected", "addr", cfg.Addr, "ttl", cfg.TTL)
	return NewRedisLockerFromClient(client, cfg.TTL, cfg.Wait), nil
}

// NewRedisLockerFromClient wraps an existing client.
func NewRedisLockerFromClient(client *redis.Client, ttl, wait time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	if wait <= 0 {
		wait = DefaultWait
	}
	return &RedisLocker{client: client, ttl: ttl, wait: wait, poll: DefaultPollInterval}
}

// Lock polls SET NX until the key is ours, ctx is done, or the wait expires.
func (l *RedisLocker) Lock(ctx context.Context, sessionID string) (func(), error) {
	key := keyPrefix + sessionID
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire session lock %s: %w", sessionID, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, sessionID)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// Release even if the turn's context was cancelled.
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := unlockScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil {
				slog.Error("RedisLocker.unlock: release failed", "sessionID", sessionID, "error", err)
			}
		})
	}, nil
}

// Close closes the Redis client.
func (l *RedisLocker) Close() error {
	return l.client.Close()
}
