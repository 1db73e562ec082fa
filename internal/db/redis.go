package db

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrNilRedisStore is returned when a RedisStore pointer is nil or uninitialized.
var ErrNilRedisStore = errors.New("redis store is nil")

const (
	// RemoteConfigKey is the hash holding remote-config parameters.
	RemoteConfigKey = "remote_config"
	vipKeyPrefix    = "vip:"
	lastShowPrefix  = "ads:last_show:"
)

// RedisStore wraps a redis client and context for operations.
type RedisStore struct {
	Client *redis.Client
	Ctx    context.Context
}

// InitRedis initializes a Redis client and returns a RedisStore.
func InitRedis(addr string) (*RedisStore, error) {
	rs := &RedisStore{
		Client: redis.NewClient(&redis.Options{Addr: addr}),
		Ctx:    context.Background(),
	}

	if err := redisotel.InstrumentTracing(rs.Client); err != nil {
		return nil, fmt.Errorf("failed to instrument redis tracing: %w", err)
	}

	if err := rs.Client.Ping(rs.Ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	zap.L().Info("Connected to Redis", zap.String("addr", addr))
	return rs, nil
}

func (r *RedisStore) ready() error {
	if r == nil || r.Client == nil {
		return ErrNilRedisStore
	}
	return nil
}

// RemoteConfigValue returns a remote-config parameter. The boolean is false
// when the parameter is not set.
func (r *RedisStore) RemoteConfigValue(key string) (string, bool, error) {
	if err := r.ready(); err != nil {
		return "", false, err
	}
	v, err := r.Client.HGet(r.Ctx, RemoteConfigKey, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// SetRemoteConfigValue writes a remote-config parameter.
func (r *RedisStore) SetRemoteConfigValue(key, value string) error {
	if err := r.ready(); err != nil {
		return err
	}
	return r.Client.HSet(r.Ctx, RemoteConfigKey, key, value).Err()
}

// IsVIP reports whether the user holds an active VIP entitlement. An absent
// key means not VIP.
func (r *RedisStore) IsVIP(userID string) (bool, error) {
	if err := r.ready(); err != nil {
		return false, err
	}
	v, err := r.Client.Get(r.Ctx, vipKeyPrefix+userID).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("vip flag for %s: %w", userID, err)
	}
	return b, nil
}

// SetVIP stores the VIP flag for a user. A zero ttl keeps the flag until it
// is overwritten; otherwise the entitlement expires with the subscription.
func (r *RedisStore) SetVIP(userID string, vip bool, ttl time.Duration) error {
	if err := r.ready(); err != nil {
		return err
	}
	return r.Client.Set(r.Ctx, vipKeyPrefix+userID, strconv.FormatBool(vip), ttl).Err()
}

// LastShow returns the persisted last-show time for an ad kind.
func (r *RedisStore) LastShow(kind string) (time.Time, bool, error) {
	if err := r.ready(); err != nil {
		return time.Time{}, false, err
	}
	ms, err := r.Client.Get(r.Ctx, lastShowPrefix+kind).Int64()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms), true, nil
}

// SetLastShow persists the last-show time for an ad kind. The key expires
// after ttl since a timestamp older than the cooldown is irrelevant.
func (r *RedisStore) SetLastShow(kind string, at time.Time, ttl time.Duration) error {
	if err := r.ready(); err != nil {
		return err
	}
	return r.Client.Set(r.Ctx, lastShowPrefix+kind, at.UnixMilli(), ttl).Err()
}

// Ping checks connectivity.
func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.ready(); err != nil {
		return err
	}
	return r.Client.Ping(ctx).Err()
}

// Close shuts down the Redis client.
func (r *RedisStore) Close() {
	if r != nil && r.Client != nil {
		if err := r.Client.Close(); err != nil {
			zap.L().Error("redis close", zap.Error(err))
		}
	}
}
