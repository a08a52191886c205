package usecase

import (
	"context"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

// Store 是 Ledger Engine 依賴的儲存介面
//
// 實作必須是 thread-safe，且 CompareAndSwapBalance 必須是原子的條件更新：
// 同一帳戶上兩個根據相同版本計算出的更新，只能有一個成功。
type Store interface {
	// GetAccount 取得帳戶，不存在或已刪除回傳 domain.ErrAccountNotFound
	GetAccount(ctx context.Context, accountID int64) (*domain.Account, error)
	// ListAccounts 依 ID 排序回傳所有未刪除帳戶
	ListAccounts(ctx context.Context) ([]*domain.Account, error)
	// CreateAccount 建立帳戶並分配 ID
	CreateAccount(ctx context.Context, account *domain.Account) (*domain.Account, error)
	// DeleteAccount 刪除帳戶 (終態)，同時遞增版本讓進行中的條件更新失敗
	DeleteAccount(ctx context.Context, accountID int64) error
	// CompareAndSwapBalance 只有在目前版本等於 expectedVersion 時才寫入 newBalance
	// 版本不符回傳 domain.ErrVersionConflict
	CompareAndSwapBalance(ctx context.Context, accountID int64, expectedVersion uint64, newBalance int64) (*domain.Account, error)
	// AppendTransactions 以同一個 commit 時間寫入一批紀錄，並分配 ID 與 CreatedAt
	AppendTransactions(ctx context.Context, records ...*domain.Transaction) error
	// ListTransactions 依 CreatedAt、ID 由新到舊回傳帳戶的交易紀錄
	// 帳戶從未建立過才回傳 domain.ErrAccountNotFound，刪除後紀錄仍保留
	ListTransactions(ctx context.Context, accountID int64) ([]*domain.Transaction, error)
}

// TxStore 是在資料庫交易內使用的 Store
type TxStore interface {
	Store
	// LockAccounts 依傳入順序鎖定帳戶列 (SELECT ... FOR UPDATE)
	LockAccounts(ctx context.Context, accountIDs ...int64) (map[int64]*domain.Account, error)
}

// Transactor 由支援多列交易的儲存實作
// fn 回傳錯誤時整個交易 rollback，沒有任何變更可被觀察到
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context, tx TxStore) error) error
}

// AccountLocker 提供以帳戶為單位的互斥鎖
type AccountLocker interface {
	// Lock 取得 accountID 的鎖，回傳的 unlock 必須被呼叫
	Lock(ctx context.Context, accountID int64) (unlock func(), err error)
}

// EventPublisher 在交易 commit 後發送通知 (best effort)
type EventPublisher interface {
	Publish(ctx context.Context, event *TransactionCommitted) error
}

// TransactionCommitted 一筆 (或一對) 交易紀錄 commit 後的事件
type TransactionCommitted struct {
	CorrelationID string
	Records       []*domain.Transaction
}
