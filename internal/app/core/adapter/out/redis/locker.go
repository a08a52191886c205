package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-bank-ledger/pkg/redis"
)

const (
	defaultKeyPrefix = "ledger:lock:account:"
	defaultTTL       = 10 * time.Second
	unlockTimeout    = 2 * time.Second
)

// Locker 以 Redis 實作跨行程的帳戶鎖
// 多個 ledger 實例共用同一個 MySQL 時，轉帳協調器用它取代行程內的鎖
type Locker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *logrus.Logger
	wait   func() backoff.BackOff
}

// LockerOption 定義了 Locker 的配置選項函數
type LockerOption func(*Locker)

// WithTTL 設定鎖的存活時間，持有者當機時鎖會在 TTL 後釋放
func WithTTL(ttl time.Duration) LockerOption {
	return func(l *Locker) {
		l.ttl = ttl
	}
}

// WithKeyPrefix 設定 key 前綴
func WithKeyPrefix(prefix string) LockerOption {
	return func(l *Locker) {
		l.prefix = prefix
	}
}

// WithLogger 設定 logger
func WithLogger(logger *logrus.Logger) LockerOption {
	return func(l *Locker) {
		l.logger = logger
	}
}

// NewLocker 建立 Locker
func NewLocker(client *redis.Client, opts ...LockerOption) *Locker {
	l := &Locker{
		client: client,
		prefix: defaultKeyPrefix,
		ttl:    defaultTTL,
		logger: logrus.StandardLogger(),
		wait: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 5 * time.Millisecond
			b.MaxInterval = 100 * time.Millisecond
			b.MaxElapsedTime = 0
			return b
		},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock 取得帳戶鎖，等待直到取得或 ctx 結束
// 持有期間背景每 TTL/3 延長一次，解鎖時停止
func (l *Locker) Lock(ctx context.Context, accountID int64) (func(), error) {
	m := redis.NewMutex(l.client.Universal(), fmt.Sprintf("%s%d", l.prefix, accountID), uuid.NewString())
	if err := m.Lock(ctx, l.ttl, l.wait()); err != nil {
		return nil, fmt.Errorf("lock account %d: %w", accountID, err)
	}

	// 呼叫端的 ctx 可能已取消，延長與解鎖仍要送出
	bg := context.WithoutCancel(ctx)
	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(bg, m, accountID, stop, done)

	return func() {
		close(stop)
		<-done
		unlockCtx, cancel := context.WithTimeout(bg, unlockTimeout)
		defer cancel()
		if err := m.Unlock(unlockCtx); err != nil {
			l.logger.WithError(err).WithField("account_id", accountID).Warn("release account lock failed")
		}
	}, nil
}

// keepAlive 定期延長鎖的 TTL，鎖已不屬於自己時記錄並結束
func (l *Locker) keepAlive(ctx context.Context, m *redis.Mutex, accountID int64, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	interval := l.ttl / 3
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			extendCtx, cancel := context.WithTimeout(ctx, unlockTimeout)
			err := m.Extend(extendCtx, l.ttl)
			cancel()
			if err != nil {
				l.logger.WithError(err).WithFields(logrus.Fields{
					"account_id": accountID,
					"lock_key":   m.Key(),
				}).Warn("account lock lost")
				return
			}
		}
	}
}

var _ usecase.AccountLocker = (*Locker)(nil)
