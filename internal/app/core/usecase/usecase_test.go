package usecase_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/out/memory"
	mysqlstore "github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/out/mysql"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-bank-ledger/pkg/mysql"
)

// backend 是一組要跑相同測試的儲存實作
// memory 走補償協議，sqlite 上的 gorm store 走資料庫交易
type backend struct {
	name     string
	newStore func(t *testing.T) usecase.Store
}

var backends = []backend{
	{
		name: "memory",
		newStore: func(t *testing.T) usecase.Store {
			s, err := memory.NewStore()
			require.NoError(t, err)
			return s
		},
	},
	{
		name: "gorm",
		newStore: func(t *testing.T) usecase.Store {
			ctx := context.Background()
			client, err := mysql.NewClientWithDialector(ctx, sqlite.Open(filepath.Join(t.TempDir(), "ledger.db")), mysql.Config{
				MaxOpenConns: 1,
				LogLevel:     "silent",
			})
			require.NoError(t, err)
			t.Cleanup(func() { _ = client.Close() })
			s := mysqlstore.NewStore(client)
			require.NoError(t, s.Migrate(ctx))
			return s
		},
	},
}

func newCore(t *testing.T, store usecase.Store, opts ...usecase.Option) (*usecase.CoreUseCase, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	opts = append([]usecase.Option{usecase.WithLogger(logger)}, opts...)
	return usecase.NewCoreUseCase(store, memory.NewLocker(), opts...), hook
}

func mustCreate(t *testing.T, core *usecase.CoreUseCase, balance int64) *domain.Account {
	t.Helper()
	account, err := core.CreateAccount(context.Background(), gofakeit.Name(), balance)
	require.NoError(t, err)
	return account
}

func balanceOf(t *testing.T, core *usecase.CoreUseCase, id int64) int64 {
	t.Helper()
	account, err := core.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return account.Balance
}

func requireBalanced(t *testing.T, core *usecase.CoreUseCase, ids ...int64) {
	t.Helper()
	for _, id := range ids {
		result, err := core.Reconcile(context.Background(), id)
		require.NoError(t, err)
		assert.True(t, result.Balanced, "account %d: expected %d, actual %d", id, result.Expected, result.Actual)
	}
}

func TestScenario_DepositWithdrawTransfer(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			core, _ := newCore(t, b.newStore(t))

			src := mustCreate(t, core, 100)

			updated, err := core.Deposit(ctx, src.ID, 50)
			require.NoError(t, err)
			assert.Equal(t, int64(150), updated.Balance)

			history, err := core.ListTransactions(ctx, src.ID)
			require.NoError(t, err)
			require.Len(t, history, 1)
			assert.Equal(t, domain.TransactionTypeDeposit, history[0].Type)
			assert.Equal(t, int64(50), history[0].Amount)

			_, err = core.Withdraw(ctx, src.ID, 200)
			assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
			assert.Equal(t, int64(150), balanceOf(t, core, src.ID))
			history, err = core.ListTransactions(ctx, src.ID)
			require.NoError(t, err)
			assert.Len(t, history, 1)

			dst := mustCreate(t, core, 0)
			transfer, err := core.Transfer(ctx, src.ID, dst.ID, 100)
			require.NoError(t, err)
			assert.Equal(t, int64(50), transfer.From.Balance)
			assert.Equal(t, int64(100), transfer.To.Balance)
			assert.Equal(t, int64(50), balanceOf(t, core, src.ID))
			assert.Equal(t, int64(100), balanceOf(t, core, dst.ID))

			srcHistory, err := core.ListTransactions(ctx, src.ID)
			require.NoError(t, err)
			require.Len(t, srcHistory, 2)
			dstHistory, err := core.ListTransactions(ctx, dst.ID)
			require.NoError(t, err)
			require.Len(t, dstHistory, 1)

			out, in := srcHistory[0], dstHistory[0]
			assert.Equal(t, domain.TransactionTypeTransferOut, out.Type)
			assert.Equal(t, int64(-100), out.Amount)
			assert.Equal(t, domain.TransactionTypeTransferIn, in.Type)
			assert.Equal(t, int64(100), in.Amount)
			assert.Equal(t, out.CorrelationID, in.CorrelationID)
			assert.Equal(t, transfer.CorrelationID, out.CorrelationID)
			assert.True(t, out.CreatedAt.Equal(in.CreatedAt))

			requireBalanced(t, core, src.ID, dst.ID)
		})
	}
}

func TestSequentialOperations_MatchSignedDeltas(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			core, _ := newCore(t, b.newStore(t))
			account := mustCreate(t, core, 0)

			faker := gofakeit.New(42)
			var expected int64
			applied := 0
			for i := 0; i < 60; i++ {
				amount := int64(faker.IntRange(1, 50))
				if faker.Bool() {
					_, err := core.Deposit(ctx, account.ID, amount)
					require.NoError(t, err)
					expected += amount
					applied++
					continue
				}
				_, err := core.Withdraw(ctx, account.ID, amount)
				if amount > expected {
					require.ErrorIs(t, err, domain.ErrInsufficientFunds)
					continue
				}
				require.NoError(t, err)
				expected -= amount
				applied++
			}

			assert.Equal(t, expected, balanceOf(t, core, account.ID))
			history, err := core.ListTransactions(ctx, account.ID)
			require.NoError(t, err)
			assert.Len(t, history, applied)
			requireBalanced(t, core, account.ID)
		})
	}
}

func TestConcurrentDepositAndWithdraw_NoLostUpdate(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			core, _ := newCore(t, b.newStore(t), usecase.WithMaxAttempts(500))
			account := mustCreate(t, core, 1000)

			const workers = 20
			var wg sync.WaitGroup
			for i := 0; i < workers; i++ {
				wg.Add(2)
				go func() {
					defer wg.Done()
					_, err := core.Deposit(ctx, account.ID, 10)
					assert.NoError(t, err)
				}()
				go func() {
					defer wg.Done()
					_, err := core.Withdraw(ctx, account.ID, 5)
					assert.NoError(t, err)
				}()
			}
			wg.Wait()

			assert.Equal(t, int64(1000+workers*10-workers*5), balanceOf(t, core, account.ID))
			history, err := core.ListTransactions(ctx, account.ID)
			require.NoError(t, err)
			assert.Len(t, history, 2*workers)
			requireBalanced(t, core, account.ID)
		})
	}
}

func TestRacingWithdrawals_AtMostOneSucceeds(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			core, _ := newCore(t, b.newStore(t), usecase.WithMaxAttempts(100))

			for round := 0; round < 10; round++ {
				account := mustCreate(t, core, 100)
				errs := make([]error, 2)
				var wg sync.WaitGroup
				for i := range errs {
					wg.Add(1)
					go func(i int) {
						defer wg.Done()
						_, errs[i] = core.Withdraw(ctx, account.ID, 60)
					}(i)
				}
				wg.Wait()

				succeeded := 0
				for _, err := range errs {
					if err == nil {
						succeeded++
						continue
					}
					assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
				}
				assert.Equal(t, 1, succeeded)
				assert.Equal(t, int64(40), balanceOf(t, core, account.ID))
			}
		})
	}
}

func TestOppositeTransfers_DoNotDeadlock(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			core, _ := newCore(t, b.newStore(t), usecase.WithMaxAttempts(500))
			a := mustCreate(t, core, 1000)
			bAcc := mustCreate(t, core, 1000)

			const rounds = 25
			done := make(chan struct{})
			go func() {
				defer close(done)
				var wg sync.WaitGroup
				for i := 0; i < rounds; i++ {
					wg.Add(2)
					go func() {
						defer wg.Done()
						_, err := core.Transfer(ctx, a.ID, bAcc.ID, 3)
						assert.NoError(t, err)
					}()
					go func() {
						defer wg.Done()
						_, err := core.Transfer(ctx, bAcc.ID, a.ID, 1)
						assert.NoError(t, err)
					}()
				}
				wg.Wait()
			}()

			select {
			case <-done:
			case <-time.After(30 * time.Second):
				t.Fatal("opposite transfers did not complete")
			}

			assert.Equal(t, int64(1000-rounds*3+rounds), balanceOf(t, core, a.ID))
			assert.Equal(t, int64(1000+rounds*3-rounds), balanceOf(t, core, bAcc.ID))
			requireBalanced(t, core, a.ID, bAcc.ID)
		})
	}
}

func TestTransfer_InvalidInput(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			core, _ := newCore(t, b.newStore(t))
			a := mustCreate(t, core, 10)
			other := mustCreate(t, core, 0)

			_, err := core.Transfer(ctx, a.ID, a.ID, 1)
			assert.ErrorIs(t, err, domain.ErrSelfTransfer)
			_, err = core.Transfer(ctx, a.ID, other.ID, 0)
			assert.ErrorIs(t, err, domain.ErrInvalidAmount)
			_, err = core.Transfer(ctx, a.ID, 9999, 1)
			assert.ErrorIs(t, err, domain.ErrAccountNotFound)
			_, err = core.Transfer(ctx, 9999, a.ID, 1)
			assert.ErrorIs(t, err, domain.ErrAccountNotFound)
			_, err = core.Transfer(ctx, a.ID, other.ID, 11)
			assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

			assert.Equal(t, int64(10), balanceOf(t, core, a.ID))
			assert.Equal(t, int64(0), balanceOf(t, core, other.ID))
			history, err := core.ListTransactions(ctx, a.ID)
			require.NoError(t, err)
			assert.Empty(t, history)
		})
	}
}

func TestEngine_InvalidInput(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			core, _ := newCore(t, b.newStore(t))

			_, err := core.CreateAccount(ctx, "   ", 10)
			assert.ErrorIs(t, err, domain.ErrInvalidAccount)
			_, err = core.CreateAccount(ctx, gofakeit.Name(), -1)
			assert.ErrorIs(t, err, domain.ErrInvalidAmount)

			account := mustCreate(t, core, 10)
			_, err = core.Deposit(ctx, account.ID, 0)
			assert.ErrorIs(t, err, domain.ErrInvalidAmount)
			_, err = core.Withdraw(ctx, account.ID, -3)
			assert.ErrorIs(t, err, domain.ErrInvalidAmount)
			_, err = core.Deposit(ctx, 4040, 1)
			assert.ErrorIs(t, err, domain.ErrAccountNotFound)
		})
	}
}

func TestDeleteAccount(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			core, _ := newCore(t, b.newStore(t))
			account := mustCreate(t, core, 10)
			keep := mustCreate(t, core, 0)
			_, err := core.Deposit(ctx, account.ID, 5)
			require.NoError(t, err)

			require.NoError(t, core.DeleteAccount(ctx, account.ID))
			assert.ErrorIs(t, core.DeleteAccount(ctx, account.ID), domain.ErrAccountNotFound)

			_, err = core.GetAccount(ctx, account.ID)
			assert.ErrorIs(t, err, domain.ErrAccountNotFound)
			_, err = core.Deposit(ctx, account.ID, 1)
			assert.ErrorIs(t, err, domain.ErrAccountNotFound)
			_, err = core.Transfer(ctx, keep.ID, account.ID, 1)
			assert.ErrorIs(t, err, domain.ErrAccountNotFound)

			accounts, err := core.ListAccounts(ctx)
			require.NoError(t, err)
			require.Len(t, accounts, 1)
			assert.Equal(t, keep.ID, accounts[0].ID)

			history, err := core.ListTransactions(ctx, account.ID)
			require.NoError(t, err)
			assert.Len(t, history, 1)
		})
	}
}

func TestReconcileAll(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			core, _ := newCore(t, b.newStore(t))
			a := mustCreate(t, core, 100)
			c := mustCreate(t, core, 0)
			_, err := core.Transfer(ctx, a.ID, c.ID, 30)
			require.NoError(t, err)
			_, err = core.Withdraw(ctx, c.ID, 10)
			require.NoError(t, err)

			unbalanced, err := core.ReconcileAll(ctx)
			require.NoError(t, err)
			assert.Empty(t, unbalanced)
		})
	}
}
