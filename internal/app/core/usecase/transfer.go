package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

// TransferCoordinator 把跨帳戶的扣款與入帳當作一個原子單位
//
// 儲存支援 Transactor 時，兩筆條件更新與兩筆紀錄在同一個資料庫交易內完成；
// 否則採用補償協議：先扣款、再入帳，入帳失敗就把扣款退回並回傳 domain.ErrTransferFailedRolledBack。
type TransferCoordinator struct {
	store  Store
	locker AccountLocker
	options
}

// NewTransferCoordinator 建立 TransferCoordinator
//
// 參數:
//
//	store: 儲存實作
//	locker: 帳戶鎖，nil 代表只依賴條件更新
//	opts: 可選設定
//
// 回傳:
//
//	*TransferCoordinator: 實例
func NewTransferCoordinator(store Store, locker AccountLocker, opts ...Option) *TransferCoordinator {
	return &TransferCoordinator{
		store:   store,
		locker:  locker,
		options: newOptions(opts),
	}
}

// Transfer 從 fromID 轉 amount 到 toID
func (c *TransferCoordinator) Transfer(ctx context.Context, fromID, toID, amount int64) (*domain.Transfer, error) {
	ctx, span := tracer.Start(ctx, "ledger.transfer")
	defer span.End()

	if fromID == toID {
		return nil, recordError(span, domain.ErrSelfTransfer)
	}
	if amount <= 0 {
		return nil, recordError(span, fmt.Errorf("transfer %d: %w", amount, domain.ErrInvalidAmount))
	}

	// 不論方向，一律由小到大取得帳戶鎖
	unlock, err := c.lockAll(ctx, domain.LockOrder(fromID, toID))
	if err != nil {
		return nil, recordError(span, err)
	}
	defer unlock()

	correlationID := uuid.New()
	debit := domain.NewTransaction(fromID, correlationID, domain.TransactionTypeTransferOut, amount)
	credit := domain.NewTransaction(toID, correlationID, domain.TransactionTypeTransferIn, amount)

	var transfer *domain.Transfer
	if t, ok := c.store.(Transactor); ok {
		transfer, err = c.transferInTransaction(ctx, t, debit, credit)
	} else {
		transfer, err = c.transferWithCompensation(ctx, debit, credit)
	}
	if err != nil {
		return nil, recordError(span, fmt.Errorf("transfer %d -> %d: %w", fromID, toID, err))
	}

	c.logger.WithFields(logrus.Fields{
		"correlation_id": correlationID,
		"from":           fromID,
		"to":             toID,
		"amount":         amount,
	}).Debug("transfer committed")
	c.publish(ctx, debit, credit)
	return transfer, nil
}

// lockAll 依序取得帳戶鎖，失敗時釋放已取得的部分
func (c *TransferCoordinator) lockAll(ctx context.Context, accountIDs []int64) (func(), error) {
	if c.locker == nil {
		return func() {}, nil
	}
	unlocks := make([]func(), 0, len(accountIDs))
	release := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
	for _, id := range accountIDs {
		unlock, err := c.locker.Lock(ctx, id)
		if err != nil {
			release()
			return nil, fmt.Errorf("lock account %d: %w", id, err)
		}
		unlocks = append(unlocks, unlock)
	}
	return release, nil
}

func (c *TransferCoordinator) transferInTransaction(ctx context.Context, t Transactor, debit, credit *domain.Transaction) (*domain.Transfer, error) {
	fromID, toID := debit.AccountID, credit.AccountID
	amount := credit.Amount

	var transfer *domain.Transfer
	err := c.retry(ctx, c.maxAttempts, func(attempt int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return t.WithinTransaction(ctx, func(ctx context.Context, tx TxStore) error {
			locked, err := tx.LockAccounts(ctx, domain.LockOrder(fromID, toID)...)
			if err != nil {
				return err
			}
			from, ok := locked[fromID]
			if !ok {
				return fmt.Errorf("account %d: %w", fromID, domain.ErrAccountNotFound)
			}
			to, ok := locked[toID]
			if !ok {
				return fmt.Errorf("account %d: %w", toID, domain.ErrAccountNotFound)
			}

			fromBalance, err := from.Debit(amount)
			if err != nil {
				return err
			}
			toBalance, err := to.Credit(amount)
			if err != nil {
				return err
			}

			debited, err := tx.CompareAndSwapBalance(ctx, fromID, from.Version, fromBalance)
			if err != nil {
				c.auditFailure(fromID, -amount, attempt, err)
				return err
			}
			credited, err := tx.CompareAndSwapBalance(ctx, toID, to.Version, toBalance)
			if err != nil {
				c.auditFailure(toID, amount, attempt, err)
				return err
			}
			if err := tx.AppendTransactions(ctx, debit, credit); err != nil {
				c.auditFailure(fromID, -amount, attempt, err)
				c.auditFailure(toID, amount, attempt, err)
				return err
			}
			transfer = &domain.Transfer{
				CorrelationID: debit.CorrelationID,
				From:          debited,
				To:            credited,
				Debit:         debit,
				Credit:        credit,
			}
			return nil
		})
	})
	return transfer, err
}

// transferWithCompensation 用於不支援多列交易的儲存
//
// 取消只在扣款 commit 之前有效；扣款之後的入帳、紀錄寫入、補償都不受取消影響。
func (c *TransferCoordinator) transferWithCompensation(ctx context.Context, debit, credit *domain.Transaction) (*domain.Transfer, error) {
	fromID, toID := debit.AccountID, credit.AccountID
	amount := credit.Amount

	// 先確認入帳方存在，避免不必要的補償
	if _, err := c.store.GetAccount(ctx, toID); err != nil {
		return nil, fmt.Errorf("account %d: %w", toID, err)
	}

	debited, err := c.applyDelta(ctx, c.store, fromID, -amount, c.maxAttempts)
	if err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	credited, err := c.applyDelta(ctx, c.store, toID, amount, c.maxAttempts)
	if err != nil {
		return nil, c.rollback(ctx, debit, err)
	}

	if err := c.appendCommitted(ctx, c.store, debit, credit); err != nil {
		if cerr := c.compensate(ctx, c.store, toID, -amount); cerr != nil {
			return nil, fmt.Errorf("%w: credit of account %d could not be reverted: %w", domain.ErrStorageUnavailable, toID, errors.Join(cerr, err))
		}
		return nil, c.rollback(ctx, debit, err)
	}

	return &domain.Transfer{
		CorrelationID: debit.CorrelationID,
		From:          debited,
		To:            credited,
		Debit:         debit,
		Credit:        credit,
	}, nil
}

// rollback 把已 commit 的扣款退回 (credit-back)
func (c *TransferCoordinator) rollback(ctx context.Context, debit *domain.Transaction, cause error) error {
	c.logger.WithFields(logrus.Fields{
		"correlation_id": debit.CorrelationID,
		"account_id":     debit.AccountID,
		"delta":          debit.Amount,
	}).WithError(cause).Warn("transfer leg failed, crediting back source account")

	if err := c.compensate(ctx, c.store, debit.AccountID, -debit.Amount); err != nil {
		return fmt.Errorf("%w: debit of account %d could not be reverted: %w", domain.ErrStorageUnavailable, debit.AccountID, errors.Join(err, cause))
	}
	return fmt.Errorf("%w: %w", domain.ErrTransferFailedRolledBack, cause)
}
