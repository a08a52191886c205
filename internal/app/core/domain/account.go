package domain

import (
	"fmt"
	"strings"
	"time"
)

// Account 帳戶
// Balance 只能由 Ledger Engine 透過條件更新修改
type Account struct {
	ID         int64
	HolderName string
	// Balance: 目前餘額 (最小單位)，任何可觀察的時間點都 >= 0
	Balance int64
	// OpeningBalance: 開戶時的餘額，重放交易紀錄時的起點
	OpeningBalance int64
	// Version: 每次餘額異動或刪除都會 +1，用於條件更新
	Version   uint64
	Deleted   bool
	CreatedAt time.Time
}

// NewAccount 建立尚未儲存的帳戶
func NewAccount(holderName string, initialBalance int64) (*Account, error) {
	holderName = strings.TrimSpace(holderName)
	if holderName == "" {
		return nil, fmt.Errorf("%w: holder name is required", ErrInvalidAccount)
	}
	if initialBalance < 0 {
		return nil, fmt.Errorf("%w: initial balance must not be negative", ErrInvalidAmount)
	}
	return &Account{
		HolderName:     holderName,
		Balance:        initialBalance,
		OpeningBalance: initialBalance,
	}, nil
}

// Credit 計算存入 amount 後的新餘額，不修改帳戶本身
func (a *Account) Credit(amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if a.Balance > MaxBalance-amount {
		return 0, fmt.Errorf("%w: balance overflow", ErrInvalidAmount)
	}
	return a.Balance + amount, nil
}

// Debit 計算扣除 amount 後的新餘額，不修改帳戶本身
// 餘額檢查是針對這次讀到的值，呼叫端必須把結果交給條件更新
func (a *Account) Debit(amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if a.Balance < amount {
		return 0, ErrInsufficientFunds
	}
	return a.Balance - amount, nil
}

// Clone 回傳複本，讓儲存層不會把內部指標交出去
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

// Reconciliation 重放交易紀錄後的對帳結果
type Reconciliation struct {
	AccountID int64
	// Expected: OpeningBalance + 所有交易 delta
	Expected int64
	// Actual: 帳戶目前餘額
	Actual       int64
	Transactions int
	Balanced     bool
}

// Replay 以開戶餘額為起點重放交易紀錄
func Replay(account *Account, history []*Transaction) *Reconciliation {
	expected := account.OpeningBalance
	for _, tran := range history {
		expected += tran.Amount
	}
	return &Reconciliation{
		AccountID:    account.ID,
		Expected:     expected,
		Actual:       account.Balance,
		Transactions: len(history),
		Balanced:     expected == account.Balance,
	}
}
