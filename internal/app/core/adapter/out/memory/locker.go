package memory

import (
	"context"
	"sync"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
)

// keyLock 單一帳戶的鎖，refs 歸零時從 map 移除
type keyLock struct {
	ch   chan struct{}
	refs int
}

// Locker 是行程內、以帳戶為單位的互斥鎖
// 只鎖涉及的帳戶，不同帳戶的操作不會互相阻塞
type Locker struct {
	mu    sync.Mutex
	locks map[int64]*keyLock
}

// NewLocker 建立 Locker
func NewLocker() *Locker {
	return &Locker{
		locks: make(map[int64]*keyLock),
	}
}

// Lock 取得帳戶鎖，ctx 結束時放棄等待
// ctx 已結束時一律失敗，即使鎖是空的
func (l *Locker) Lock(ctx context.Context, accountID int64) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	k, ok := l.locks[accountID]
	if !ok {
		k = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[accountID] = k
	}
	k.refs++
	l.mu.Unlock()

	select {
	case k.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-k.ch
				l.release(accountID, k)
			})
		}, nil
	case <-ctx.Done():
		l.release(accountID, k)
		return nil, ctx.Err()
	}
}

func (l *Locker) release(accountID int64, k *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k.refs--
	if k.refs == 0 {
		delete(l.locks, accountID)
	}
}

var _ usecase.AccountLocker = (*Locker)(nil)
