package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMutex_TryLock(t *testing.T) {
	db, mock := redismock.NewClientMock()
	m := NewMutex(db, "ledger:lock:account:1", "owner-a")

	mock.ExpectSetNX("ledger:lock:account:1", "owner-a", 5*time.Second).SetVal(true)
	assert.NoError(t, m.TryLock(context.Background(), 5*time.Second))

	mock.ExpectSetNX("ledger:lock:account:1", "owner-a", 5*time.Second).SetVal(false)
	assert.ErrorIs(t, m.TryLock(context.Background(), 5*time.Second), ErrLockHeld)

	mock.ExpectSetNX("ledger:lock:account:1", "owner-a", 5*time.Second).SetErr(errors.New("connection refused"))
	err := m.TryLock(context.Background(), 5*time.Second)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrLockHeld)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMutex_Unlock(t *testing.T) {
	db, mock := redismock.NewClientMock()
	m := NewMutex(db, "k", "v")

	mock.ExpectEval(unlockScript, []string{"k"}, "v").SetVal(int64(1))
	assert.NoError(t, m.Unlock(context.Background()))

	mock.ExpectEval(unlockScript, []string{"k"}, "v").SetVal(int64(0))
	assert.ErrorIs(t, m.Unlock(context.Background()), ErrNotHolder)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMutex_Extend(t *testing.T) {
	db, mock := redismock.NewClientMock()
	m := NewMutex(db, "k", "v")

	mock.ExpectEval(extendScript, []string{"k"}, "v", "3000").SetVal(int64(1))
	assert.NoError(t, m.Extend(context.Background(), 3*time.Second))

	mock.ExpectEval(extendScript, []string{"k"}, "v", "3000").SetVal(int64(0))
	assert.ErrorIs(t, m.Extend(context.Background(), 3*time.Second), ErrNotHolder)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMutex_LockWaitsForRelease(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ctx := context.Background()

	holder := NewMutex(client, "k", "holder")
	require.NoError(t, holder.TryLock(ctx, time.Minute))

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = holder.Unlock(context.Background())
	}()

	waiter := NewMutex(client, "k", "waiter")
	require.NoError(t, waiter.Lock(ctx, time.Minute, backoff.NewConstantBackOff(5*time.Millisecond)))

	got, err := client.Get(ctx, "k").Result()
	require.NoError(t, err)
	assert.Equal(t, "waiter", got)

	// 不是持有者不能解鎖
	assert.ErrorIs(t, holder.Unlock(ctx), ErrNotHolder)
	assert.NoError(t, waiter.Unlock(ctx))
}

func TestMutex_LockStopsWithContext(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	require.NoError(t, NewMutex(client, "k", "holder").TryLock(context.Background(), time.Minute))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := NewMutex(client, "k", "waiter").Lock(ctx, time.Minute, backoff.NewConstantBackOff(5*time.Millisecond))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewClient(context.Background(), Config{Addrs: []string{mr.Addr()}})
	require.NoError(t, err)
	defer client.Close()
	assert.NoError(t, client.Universal().Set(context.Background(), "a", "b", 0).Err())

	_, err = NewClient(context.Background(), Config{})
	assert.Error(t, err)
}
