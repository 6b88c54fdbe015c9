package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/process-portal/internal/application/port"
	"github.com/garyjia/process-portal/internal/domain/entity"
)

const keyPrefix = "portal:edit-lock:"

// KEYS[1] lock key, ARGV[1] session id, ARGV[2] new value, ARGV[3] ttl ms
var renewScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then return 0 end
if cjson.decode(v).session_id ~= ARGV[1] then return 0 end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// KEYS[1] lock key, ARGV[1] session id
var releaseScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then return 0 end
if cjson.decode(v).session_id ~= ARGV[1] then return 0 end
return redis.call('DEL', KEYS[1])
`)

// RedisLocker stores advisory edit locks in Redis so they are shared across nodes
type RedisLocker struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisLocker creates a locker over an existing client
func NewRedisLocker(client *redis.Client, logger *zap.Logger) *RedisLocker {
	return &RedisLocker{client: client, logger: logger}
}

func lockKey(processID int64) string {
	return keyPrefix + strconv.FormatInt(processID, 10)
}

// Acquire sets the lock with SET NX PX. A second acquire by the holding session renews it.
func (r *RedisLocker) Acquire(ctx context.Context, lock entity.EditLock, ttl time.Duration) (*entity.EditLock, error) {
	lock.ExpiresAt = time.Now().UTC().Add(ttl)
	value, err := json.Marshal(lock)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lock: %w", err)
	}

	ok, err := r.client.SetNX(ctx, lockKey(lock.ProcessID), value, ttl).Result()
	if err != nil {
		r.logger.Error("Failed to acquire edit lock", zap.Int64("process_id", lock.ProcessID), zap.Error(err))
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if ok {
		return &lock, nil
	}

	held, err := r.Status(ctx, lock.ProcessID)
	if err != nil {
		return nil, err
	}
	if held == nil {
		// expired between SETNX and GET
		return r.Acquire(ctx, lock, ttl)
	}
	if held.SessionID == lock.SessionID {
		return r.Renew(ctx, lock.ProcessID, lock.SessionID, ttl)
	}
	return nil, &port.LockHeldError{Holder: *held}
}

func (r *RedisLocker) Renew(ctx context.Context, processID int64, sessionID string, ttl time.Duration) (*entity.EditLock, error) {
	held, err := r.Status(ctx, processID)
	if err != nil {
		return nil, err
	}
	if held == nil || held.SessionID != sessionID {
		return nil, port.ErrLockNotHeld
	}

	held.ExpiresAt = time.Now().UTC().Add(ttl)
	value, err := json.Marshal(held)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lock: %w", err)
	}

	n, err := renewScript.Run(ctx, r.client, []string{lockKey(processID)},
		sessionID, string(value), ttl.Milliseconds()).Int()
	if err != nil {
		r.logger.Error("Failed to renew edit lock", zap.Int64("process_id", processID), zap.Error(err))
		return nil, fmt.Errorf("failed to renew lock: %w", err)
	}
	if n == 0 {
		return nil, port.ErrLockNotHeld
	}
	return held, nil
}

func (r *RedisLocker) Release(ctx context.Context, processID int64, sessionID string) error {
	n, err := releaseScript.Run(ctx, r.client, []string{lockKey(processID)}, sessionID).Int()
	if err != nil {
		r.logger.Error("Failed to release edit lock", zap.Int64("process_id", processID), zap.Error(err))
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if n == 0 {
		return port.ErrLockNotHeld
	}
	return nil
}

func (r *RedisLocker) Status(ctx context.Context, processID int64) (*entity.EditLock, error) {
	raw, err := r.client.Get(ctx, lockKey(processID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to read edit lock", zap.Int64("process_id", processID), zap.Error(err))
		return nil, fmt.Errorf("failed to read lock: %w", err)
	}

	var held entity.EditLock
	if err := json.Unmarshal(raw, &held); err != nil {
		return nil, fmt.Errorf("failed to decode lock: %w", err)
	}
	return &held, nil
}
