package memory

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-bank-ledger/pkg/wal"
)

type walKind string

const (
	walAccountCreated       walKind = "account_created"
	walAccountDeleted       walKind = "account_deleted"
	walTransactionsAppended walKind = "transactions_appended"
)

// walEntry WAL 內的一筆紀錄
// 餘額異動本身不寫 WAL：恢復時以 OpeningBalance + 交易紀錄重建餘額
type walEntry struct {
	Kind         walKind               `json:"kind"`
	Account      *domain.Account       `json:"account,omitempty"`
	AccountID    int64                 `json:"account_id,omitempty"`
	Transactions []*domain.Transaction `json:"transactions,omitempty"`
}

// Store 是記憶體內的帳本儲存
//
// 結構:
//
//	accounts: 帳戶資料 Map (包含已刪除的帳戶，交易紀錄要保留)
//	transactions: 每個帳戶的交易紀錄，依 ID 遞增
//	lastCommit: 每個帳戶最後一筆紀錄的時間，確保時間不遞減
//	mu: 每個操作只持有一次讀取 / 條件更新 / append 的時間
//	wal: Write-Ahead Log 實例 (可為 nil)
//
// 只提供單列條件更新，不實作 usecase.Transactor，跨帳戶轉帳走補償協議。
type Store struct {
	mu            sync.RWMutex
	accounts      map[int64]*domain.Account
	transactions  map[int64][]*domain.Transaction
	lastCommit    map[int64]time.Time
	nextAccountID int64
	nextTranID    int64
	wal           *wal.WAL
	now           func() time.Time
}

// StoreOption 定義了 Store 的配置選項函數
type StoreOption func(*Store)

// WithWAL 設定 WAL，建立 Store 時會先從 WAL 恢復
func WithWAL(w *wal.WAL) StoreOption {
	return func(s *Store) {
		s.wal = w
	}
}

// WithClock 設定時間來源 (測試用)
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore 建立一個新的 Store 實例
//
// 參數:
//
//	opts: 可選設定
//
// 回傳:
//
//	*Store: Store 實例
//	error: 初始化錯誤 (如 WAL 恢復失敗)
func NewStore(opts ...StoreOption) (*Store, error) {
	s := &Store{
		accounts:     make(map[int64]*domain.Account),
		transactions: make(map[int64][]*domain.Transaction),
		lastCommit:   make(map[int64]time.Time),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.wal != nil {
		if err := s.recoverFromWAL(); err != nil {
			return nil, fmt.Errorf("recover from wal: %w", err)
		}
	}
	return s, nil
}

// recoverFromWAL 從 WAL 檔案恢復帳本狀態
// 只有 NewStore 呼叫，無需 Lock (單執行緒)
func (s *Store) recoverFromWAL() error {
	return s.wal.ReadAll(func(raw json.RawMessage) error {
		var entry walEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return err
		}
		switch entry.Kind {
		case walAccountCreated:
			if entry.Account == nil {
				return fmt.Errorf("wal entry %s without account", entry.Kind)
			}
			account := entry.Account.Clone()
			account.Balance = account.OpeningBalance
			s.accounts[account.ID] = account
			s.nextAccountID = max(s.nextAccountID, account.ID)
		case walAccountDeleted:
			if account, ok := s.accounts[entry.AccountID]; ok {
				account.Deleted = true
				account.Version++
			}
		case walTransactionsAppended:
			for _, tran := range entry.Transactions {
				account, ok := s.accounts[tran.AccountID]
				if !ok {
					return fmt.Errorf("wal transaction %d for unknown account %d", tran.ID, tran.AccountID)
				}
				account.Balance += tran.Amount
				account.Version++
				s.transactions[tran.AccountID] = append(s.transactions[tran.AccountID], tran)
				s.lastCommit[tran.AccountID] = tran.CreatedAt
				s.nextTranID = max(s.nextTranID, tran.ID)
			}
		default:
			return fmt.Errorf("unknown wal entry kind %q", entry.Kind)
		}
		return nil
	})
}

func (s *Store) writeWAL(entry *walEntry) error {
	if s.wal == nil {
		return nil
	}
	if err := s.wal.Append(entry); err != nil {
		return fmt.Errorf("%w: wal append: %w", domain.ErrStorageUnavailable, err)
	}
	return nil
}

// GetAccount 取得指定帳戶
func (s *Store) GetAccount(ctx context.Context, accountID int64) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[accountID]
	if !ok || account.Deleted {
		return nil, domain.ErrAccountNotFound
	}
	return account.Clone(), nil
}

// ListAccounts 依 ID 排序回傳所有未刪除帳戶
func (s *Store) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	accounts := make([]*domain.Account, 0, len(s.accounts))
	for _, account := range s.accounts {
		if !account.Deleted {
			accounts = append(accounts, account.Clone())
		}
	}
	slices.SortFunc(accounts, func(a, b *domain.Account) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return accounts, nil
}

// CreateAccount 建立帳戶並分配 ID
func (s *Store) CreateAccount(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := account.Clone()
	created.ID = s.nextAccountID + 1
	created.Version = 0
	created.Deleted = false
	created.CreatedAt = s.now()
	if err := s.writeWAL(&walEntry{Kind: walAccountCreated, Account: created}); err != nil {
		return nil, err
	}
	s.nextAccountID = created.ID
	s.accounts[created.ID] = created
	return created.Clone(), nil
}

// DeleteAccount 刪除帳戶 (終態)
func (s *Store) DeleteAccount(ctx context.Context, accountID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[accountID]
	if !ok || account.Deleted {
		return domain.ErrAccountNotFound
	}
	if err := s.writeWAL(&walEntry{Kind: walAccountDeleted, AccountID: accountID}); err != nil {
		return err
	}
	account.Deleted = true
	account.Version++
	return nil
}

// CompareAndSwapBalance 版本相符才寫入新餘額
func (s *Store) CompareAndSwapBalance(ctx context.Context, accountID int64, expectedVersion uint64, newBalance int64) (*domain.Account, error) {
	if newBalance < 0 {
		return nil, domain.ErrInsufficientFunds
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[accountID]
	if !ok || account.Deleted {
		return nil, domain.ErrAccountNotFound
	}
	if account.Version != expectedVersion {
		return nil, domain.ErrVersionConflict
	}
	account.Balance = newBalance
	account.Version++
	return account.Clone(), nil
}

// AppendTransactions 寫入一批紀錄，同一批共用一個 commit 時間
func (s *Store) AppendTransactions(ctx context.Context, records ...*domain.Transaction) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	commitAt := s.now()
	for _, rec := range records {
		if _, ok := s.accounts[rec.AccountID]; !ok {
			return fmt.Errorf("append transaction: account %d: %w", rec.AccountID, domain.ErrAccountNotFound)
		}
		// 時鐘倒退時沿用最後一筆的時間，確保同一帳戶內不遞減
		if last := s.lastCommit[rec.AccountID]; last.After(commitAt) {
			commitAt = last
		}
	}

	committed := make([]*domain.Transaction, len(records))
	for i, rec := range records {
		c := *rec
		c.ID = s.nextTranID + int64(i) + 1
		c.CreatedAt = commitAt
		committed[i] = &c
	}
	if err := s.writeWAL(&walEntry{Kind: walTransactionsAppended, Transactions: committed}); err != nil {
		return err
	}

	s.nextTranID += int64(len(records))
	for i, c := range committed {
		s.transactions[c.AccountID] = append(s.transactions[c.AccountID], c)
		s.lastCommit[c.AccountID] = commitAt
		records[i].ID = c.ID
		records[i].CreatedAt = c.CreatedAt
	}
	return nil
}

// ListTransactions 依 CreatedAt、ID 由新到舊回傳帳戶的交易紀錄
func (s *Store) ListTransactions(ctx context.Context, accountID int64) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.accounts[accountID]; !ok {
		return nil, domain.ErrAccountNotFound
	}
	history := s.transactions[accountID]
	result := make([]*domain.Transaction, len(history))
	for i, tran := range history {
		c := *tran
		result[i] = &c
	}
	slices.SortStableFunc(result, func(a, b *domain.Transaction) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return result, nil
}

var _ usecase.Store = (*Store)(nil)
