package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
)

const (
	unlockScript = "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end"
	extendScript = "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('pexpire', KEYS[1], ARGV[2]) else return 0 end"
)

var (
	// ErrLockHeld 鎖目前被其他持有者持有
	ErrLockHeld = errors.New("redis: lock is already held")
	// ErrNotHolder 鎖已過期或不是自己持有
	ErrNotHolder = errors.New("redis: lock expired or not held by caller")
)

// Mutex 是以 SET NX PX 實作的單一 key 分散式鎖
// value 用來確認只有持有者能解鎖或延長
type Mutex struct {
	client redis.UniversalClient
	key    string
	value  string
}

// NewMutex 建立 Mutex，value 每個持有者必須唯一
func NewMutex(client redis.UniversalClient, key, value string) *Mutex {
	return &Mutex{
		client: client,
		key:    key,
		value:  value,
	}
}

// Key 回傳鎖的 key
func (m *Mutex) Key() string {
	return m.key
}

// TryLock 嘗試取得鎖一次
func (m *Mutex) TryLock(ctx context.Context, ttl time.Duration) error {
	ok, err := m.client.SetNX(ctx, m.key, m.value, ttl).Result()
	if err != nil {
		return fmt.Errorf("lock %s: %w", m.key, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrLockHeld, m.key)
	}
	return nil
}

// Lock 依 wait 的間隔重試直到取得鎖、Redis 出錯或 ctx 結束
func (m *Mutex) Lock(ctx context.Context, ttl time.Duration, wait backoff.BackOff) error {
	return backoff.Retry(func() error {
		err := m.TryLock(ctx, ttl)
		if err == nil || errors.Is(err, ErrLockHeld) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(wait, ctx))
}

// Unlock 只有值相符時才刪除 key
func (m *Mutex) Unlock(ctx context.Context) error {
	result, err := m.client.Eval(ctx, unlockScript, []string{m.key}, m.value).Result()
	if err != nil {
		return fmt.Errorf("unlock %s: %w", m.key, err)
	}
	if result == int64(0) {
		return fmt.Errorf("%w: %s", ErrNotHolder, m.key)
	}
	return nil
}

// Extend 延長鎖的存活時間
func (m *Mutex) Extend(ctx context.Context, ttl time.Duration) error {
	result, err := m.client.Eval(ctx, extendScript, []string{m.key}, m.value, strconv.FormatInt(ttl.Milliseconds(), 10)).Result()
	if err != nil {
		return fmt.Errorf("extend %s: %w", m.key, err)
	}
	if result == int64(0) {
		return fmt.Errorf("%w: %s", ErrNotHolder, m.key)
	}
	return nil
}
