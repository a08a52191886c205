package usecase

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

// Engine 是帳本核心，負責單一帳戶的餘額異動與交易紀錄
//
// 正確性不靠 engine 層的全域鎖：每次異動都是「讀取 -> 計算 -> 條件更新」，
// 版本衝突時以 backoff 重試，次數用盡回傳 domain.ErrConcurrencyExhausted。
//
// 儲存不支援 Transactor 時，條件更新與紀錄寫入是兩次呼叫，
// 期間持有該帳戶的 AccountLocker，交易紀錄的順序才會等於 commit 順序。
type Engine struct {
	store  Store
	locker AccountLocker
	options
}

// NewEngine 建立 Engine
//
// 參數:
//
//	store: 儲存實作，若同時實作 Transactor，條件更新與紀錄寫入會在同一個資料庫交易內完成
//	locker: 帳戶鎖，與 TransferCoordinator 共用同一個；nil 代表只依賴條件更新
//	opts: 可選設定
//
// 回傳:
//
//	*Engine: Engine 實例
func NewEngine(store Store, locker AccountLocker, opts ...Option) *Engine {
	return &Engine{
		store:   store,
		locker:  locker,
		options: newOptions(opts),
	}
}

// CreateAccount 開戶
func (e *Engine) CreateAccount(ctx context.Context, holderName string, initialBalance int64) (*domain.Account, error) {
	ctx, span := tracer.Start(ctx, "ledger.create_account")
	defer span.End()

	account, err := domain.NewAccount(holderName, initialBalance)
	if err != nil {
		return nil, recordError(span, err)
	}
	created, err := e.store.CreateAccount(ctx, account)
	if err != nil {
		return nil, recordError(span, fmt.Errorf("create account: %w", err))
	}
	e.logger.WithFields(logrus.Fields{
		"account_id":      created.ID,
		"opening_balance": created.OpeningBalance,
	}).Info("account created")
	return created, nil
}

// GetAccount 取得帳戶
func (e *Engine) GetAccount(ctx context.Context, accountID int64) (*domain.Account, error) {
	return e.store.GetAccount(ctx, accountID)
}

// ListAccounts 列出所有帳戶
func (e *Engine) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	return e.store.ListAccounts(ctx)
}

// DeleteAccount 刪除帳戶，交易紀錄保留供稽核
// 持有帳戶鎖的操作 (例如進行中的轉帳) 結束前不會刪除
func (e *Engine) DeleteAccount(ctx context.Context, accountID int64) error {
	unlock, err := e.lock(ctx, accountID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := e.store.DeleteAccount(ctx, accountID); err != nil {
		return err
	}
	e.logger.WithField("account_id", accountID).Info("account deleted")
	return nil
}

// ListTransactions 依時間由新到舊列出帳戶的交易紀錄
func (e *Engine) ListTransactions(ctx context.Context, accountID int64) ([]*domain.Transaction, error) {
	return e.store.ListTransactions(ctx, accountID)
}

// Deposit 存款
func (e *Engine) Deposit(ctx context.Context, accountID, amount int64) (*domain.Account, error) {
	return e.apply(ctx, accountID, amount, domain.TransactionTypeDeposit)
}

// Withdraw 提款，餘額檢查針對的是實際拿去做條件更新的那個值
func (e *Engine) Withdraw(ctx context.Context, accountID, amount int64) (*domain.Account, error) {
	return e.apply(ctx, accountID, amount, domain.TransactionTypeWithdraw)
}

// Reconcile 以交易紀錄重放餘額並與目前餘額比對
func (e *Engine) Reconcile(ctx context.Context, accountID int64) (*domain.Reconciliation, error) {
	ctx, span := tracer.Start(ctx, "ledger.reconcile")
	defer span.End()

	account, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, recordError(span, err)
	}
	history, err := e.store.ListTransactions(ctx, accountID)
	if err != nil {
		return nil, recordError(span, err)
	}
	result := domain.Replay(account, history)
	if !result.Balanced {
		e.logger.WithFields(logrus.Fields{
			"account_id": accountID,
			"expected":   result.Expected,
			"actual":     result.Actual,
		}).Error("ledger replay does not match balance")
	}
	return result, nil
}

func (e *Engine) apply(ctx context.Context, accountID, amount int64, tranType domain.TransactionType) (*domain.Account, error) {
	ctx, span := tracer.Start(ctx, "ledger."+tranType.String())
	defer span.End()

	if amount <= 0 {
		return nil, recordError(span, fmt.Errorf("%s %d: %w", tranType, amount, domain.ErrInvalidAmount))
	}
	record := domain.NewTransaction(accountID, uuid.New(), tranType, amount)

	var (
		updated *domain.Account
		err     error
	)
	if t, ok := e.store.(Transactor); ok {
		updated, err = e.applyInTransaction(ctx, t, record)
	} else {
		updated, err = e.applyLocked(ctx, record)
	}
	if err != nil {
		return nil, recordError(span, fmt.Errorf("%s account %d: %w", tranType, accountID, err))
	}
	e.publish(ctx, record)
	return updated, nil
}

// applyInTransaction 條件更新與紀錄寫入在同一個資料庫交易內，任何失敗都整筆 rollback
func (e *Engine) applyInTransaction(ctx context.Context, t Transactor, record *domain.Transaction) (*domain.Account, error) {
	var updated *domain.Account
	err := e.retry(ctx, e.maxAttempts, func(attempt int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return t.WithinTransaction(ctx, func(ctx context.Context, tx TxStore) error {
			account, err := tx.GetAccount(ctx, record.AccountID)
			if err != nil {
				return err
			}
			newBalance, err := shiftBalance(account, record.Amount)
			if err != nil {
				return err
			}
			updated, err = tx.CompareAndSwapBalance(ctx, record.AccountID, account.Version, newBalance)
			if err == nil {
				err = tx.AppendTransactions(ctx, record)
			}
			if err != nil {
				e.auditFailure(record.AccountID, record.Amount, attempt, err)
				return err
			}
			return nil
		})
	})
	return updated, err
}

// applyLocked 在帳戶鎖內完成條件更新與紀錄寫入
func (e *Engine) applyLocked(ctx context.Context, record *domain.Transaction) (*domain.Account, error) {
	unlock, err := e.lock(ctx, record.AccountID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return e.applyThenAppend(ctx, record)
}

func (e *Engine) lock(ctx context.Context, accountID int64) (func(), error) {
	if e.locker == nil {
		return func() {}, nil
	}
	unlock, err := e.locker.Lock(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("lock account %d: %w", accountID, err)
	}
	return unlock, nil
}

// applyThenAppend 用於不支援多列交易的儲存：
// 條件更新成功後，紀錄一定要寫入；寫不進去就補償餘額並回報失敗，絕不回報沒有紀錄的成功
func (e *Engine) applyThenAppend(ctx context.Context, record *domain.Transaction) (*domain.Account, error) {
	updated, err := e.applyDelta(ctx, e.store, record.AccountID, record.Amount, e.maxAttempts)
	if err != nil {
		return nil, err
	}
	if err := e.appendCommitted(ctx, e.store, record); err != nil {
		if cerr := e.compensate(ctx, e.store, record.AccountID, -record.Amount); cerr != nil {
			return nil, fmt.Errorf("%w: append failed (%v) and compensation failed: %w", domain.ErrStorageUnavailable, err, cerr)
		}
		return nil, fmt.Errorf("%w: append transaction: %w", domain.ErrStorageUnavailable, err)
	}
	return updated, nil
}
