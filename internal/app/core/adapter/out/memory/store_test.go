package memory

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/pkg/wal"
)

func newAccount(t *testing.T, s *Store, balance int64) *domain.Account {
	t.Helper()
	account, err := domain.NewAccount(gofakeit.Name(), balance)
	require.NoError(t, err)
	created, err := s.CreateAccount(context.Background(), account)
	require.NoError(t, err)
	return created
}

func TestStore_CreateGetList(t *testing.T) {
	ctx := context.Background()
	s, err := NewStore()
	require.NoError(t, err)

	a := newAccount(t, s, 100)
	b := newAccount(t, s, 0)
	assert.Equal(t, int64(1), a.ID)
	assert.Equal(t, int64(2), b.ID)

	got, err := s.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.Balance)

	// 回傳的是複本
	got.Balance = 999
	again, err := s.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), again.Balance)

	accounts, err := s.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, a.ID, accounts[0].ID)
	assert.Equal(t, b.ID, accounts[1].ID)

	_, err = s.GetAccount(ctx, 42)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestStore_CompareAndSwapBalance(t *testing.T) {
	ctx := context.Background()
	s, err := NewStore()
	require.NoError(t, err)
	a := newAccount(t, s, 100)

	updated, err := s.CompareAndSwapBalance(ctx, a.ID, a.Version, 150)
	require.NoError(t, err)
	assert.Equal(t, int64(150), updated.Balance)
	assert.Equal(t, a.Version+1, updated.Version)

	// 舊版本不能再寫
	_, err = s.CompareAndSwapBalance(ctx, a.ID, a.Version, 10)
	assert.ErrorIs(t, err, domain.ErrVersionConflict)

	_, err = s.CompareAndSwapBalance(ctx, a.ID, updated.Version, -1)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	_, err = s.CompareAndSwapBalance(ctx, 99, 0, 1)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestStore_CompareAndSwapBalance_OneWinnerPerVersion(t *testing.T) {
	ctx := context.Background()
	s, err := NewStore()
	require.NoError(t, err)
	a := newAccount(t, s, 0)

	const writers = 32
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.CompareAndSwapBalance(ctx, a.ID, a.Version, int64(i+1)); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}

func TestStore_DeleteIsTerminal(t *testing.T) {
	ctx := context.Background()
	s, err := NewStore()
	require.NoError(t, err)
	a := newAccount(t, s, 100)
	require.NoError(t, s.AppendTransactions(ctx, domain.NewTransaction(a.ID, uuid.New(), domain.TransactionTypeDeposit, 5)))

	require.NoError(t, s.DeleteAccount(ctx, a.ID))
	assert.ErrorIs(t, s.DeleteAccount(ctx, a.ID), domain.ErrAccountNotFound)

	_, err = s.GetAccount(ctx, a.ID)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	_, err = s.CompareAndSwapBalance(ctx, a.ID, a.Version+1, 1)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	accounts, err := s.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, accounts)

	// 交易紀錄保留
	history, err := s.ListTransactions(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	_, err = s.ListTransactions(ctx, 77)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestStore_AppendTransactions_OrderingAndTimestamps(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	clock := []time.Time{base, base.Add(time.Second), base.Add(-time.Minute), base.Add(2 * time.Second)}
	var tick int
	s, err := NewStore(WithClock(func() time.Time {
		now := clock[tick%len(clock)]
		tick++
		return now
	}))
	require.NoError(t, err)

	// CreateAccount 會用掉 clock[0]、clock[1]
	a := newAccount(t, s, 0)
	b := newAccount(t, s, 0)
	tick = 0

	first := domain.NewTransaction(a.ID, uuid.New(), domain.TransactionTypeDeposit, 10)
	require.NoError(t, s.AppendTransactions(ctx, first))
	corr := uuid.New()
	out := domain.NewTransaction(a.ID, corr, domain.TransactionTypeTransferOut, 4)
	in := domain.NewTransaction(b.ID, corr, domain.TransactionTypeTransferIn, 4)
	require.NoError(t, s.AppendTransactions(ctx, out, in))
	// 時鐘倒退
	late := domain.NewTransaction(a.ID, uuid.New(), domain.TransactionTypeDeposit, 1)
	require.NoError(t, s.AppendTransactions(ctx, late))

	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, int64(2), out.ID)
	assert.Equal(t, int64(3), in.ID)
	assert.Equal(t, int64(4), late.ID)
	assert.Equal(t, out.CreatedAt, in.CreatedAt)
	assert.False(t, late.CreatedAt.Before(out.CreatedAt))

	history, err := s.ListTransactions(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, []int64{4, 2, 1}, []int64{history[0].ID, history[1].ID, history[2].ID})

	err = s.AppendTransactions(ctx, domain.NewTransaction(404, uuid.New(), domain.TransactionTypeDeposit, 1))
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestStore_RecoverFromWAL(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.wal")
	w, err := wal.NewWAL(path)
	require.NoError(t, err)

	s, err := NewStore(WithWAL(w))
	require.NoError(t, err)
	a := newAccount(t, s, 100)
	b := newAccount(t, s, 0)
	c := newAccount(t, s, 0)

	// 有紀錄的異動
	updated, err := s.CompareAndSwapBalance(ctx, a.ID, a.Version, 150)
	require.NoError(t, err)
	require.NoError(t, s.AppendTransactions(ctx, domain.NewTransaction(a.ID, uuid.New(), domain.TransactionTypeDeposit, 50)))
	corr := uuid.New()
	_, err = s.CompareAndSwapBalance(ctx, a.ID, updated.Version, 110)
	require.NoError(t, err)
	_, err = s.CompareAndSwapBalance(ctx, b.ID, b.Version, 40)
	require.NoError(t, err)
	require.NoError(t, s.AppendTransactions(ctx,
		domain.NewTransaction(a.ID, corr, domain.TransactionTypeTransferOut, 40),
		domain.NewTransaction(b.ID, corr, domain.TransactionTypeTransferIn, 40),
	))
	// 沒有紀錄的異動，恢復後不存在
	_, err = s.CompareAndSwapBalance(ctx, c.ID, c.Version, 999)
	require.NoError(t, err)
	require.NoError(t, s.DeleteAccount(ctx, c.ID))
	require.NoError(t, w.Close())

	w2, err := wal.NewWAL(path)
	require.NoError(t, err)
	defer w2.Close()
	recovered, err := NewStore(WithWAL(w2))
	require.NoError(t, err)

	gotA, err := recovered.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(110), gotA.Balance)
	gotB, err := recovered.GetAccount(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(40), gotB.Balance)
	_, err = recovered.GetAccount(ctx, c.ID)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	history, err := recovered.ListTransactions(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, domain.TransactionTypeTransferOut, history[0].Type)
	assert.Equal(t, corr, history[0].CorrelationID)

	// ID 接續
	d := newAccount(t, recovered, 0)
	assert.Equal(t, int64(4), d.ID)
	next := domain.NewTransaction(d.ID, uuid.New(), domain.TransactionTypeDeposit, 1)
	require.NoError(t, recovered.AppendTransactions(ctx, next))
	assert.Equal(t, int64(4), next.ID)
}
