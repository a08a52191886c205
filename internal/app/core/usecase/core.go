package usecase

import (
	"context"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

// CoreUseCase 是核心業務邏輯層，也是 adapter 唯一依賴的入口
type CoreUseCase struct {
	engine    *Engine
	transfers *TransferCoordinator
}

// NewCoreUseCase 以同一個 Store 建立 Engine 與 TransferCoordinator
func NewCoreUseCase(store Store, locker AccountLocker, opts ...Option) *CoreUseCase {
	return &CoreUseCase{
		engine:    NewEngine(store, locker, opts...),
		transfers: NewTransferCoordinator(store, locker, opts...),
	}
}

// CreateAccount 開戶，initialBalance 為最小單位
func (c *CoreUseCase) CreateAccount(ctx context.Context, holderName string, initialBalance int64) (*domain.Account, error) {
	return c.engine.CreateAccount(ctx, holderName, initialBalance)
}

// GetAccount 取得帳戶
func (c *CoreUseCase) GetAccount(ctx context.Context, accountID int64) (*domain.Account, error) {
	return c.engine.GetAccount(ctx, accountID)
}

// ListAccounts 列出帳戶
func (c *CoreUseCase) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	return c.engine.ListAccounts(ctx)
}

// DeleteAccount 刪除帳戶
func (c *CoreUseCase) DeleteAccount(ctx context.Context, accountID int64) error {
	return c.engine.DeleteAccount(ctx, accountID)
}

// Deposit 存款
func (c *CoreUseCase) Deposit(ctx context.Context, accountID, amount int64) (*domain.Account, error) {
	return c.engine.Deposit(ctx, accountID, amount)
}

// Withdraw 提款
func (c *CoreUseCase) Withdraw(ctx context.Context, accountID, amount int64) (*domain.Account, error) {
	return c.engine.Withdraw(ctx, accountID, amount)
}

// Transfer 轉帳
func (c *CoreUseCase) Transfer(ctx context.Context, fromID, toID, amount int64) (*domain.Transfer, error) {
	return c.transfers.Transfer(ctx, fromID, toID, amount)
}

// ListTransactions 列出帳戶交易紀錄
func (c *CoreUseCase) ListTransactions(ctx context.Context, accountID int64) ([]*domain.Transaction, error) {
	return c.engine.ListTransactions(ctx, accountID)
}

// Reconcile 對單一帳戶對帳
func (c *CoreUseCase) Reconcile(ctx context.Context, accountID int64) (*domain.Reconciliation, error) {
	return c.engine.Reconcile(ctx, accountID)
}

// ReconcileAll 對所有帳戶對帳，回傳不平衡的結果
func (c *CoreUseCase) ReconcileAll(ctx context.Context) ([]*domain.Reconciliation, error) {
	accounts, err := c.engine.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	var unbalanced []*domain.Reconciliation
	for _, account := range accounts {
		result, err := c.engine.Reconcile(ctx, account.ID)
		if err != nil {
			return nil, err
		}
		if !result.Balanced {
			unbalanced = append(unbalanced, result)
		}
	}
	return unbalanced, nil
}
