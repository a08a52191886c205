package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-bank-ledger/pkg/mysql"
)

// MySQL 在交易互相等待時回傳的錯誤碼，視同版本衝突交給上層重試
const (
	errLockWaitTimeout uint16 = 1205
	errDeadlock        uint16 = 1213
)

// sqlAccount 對應資料庫的 accounts 表
type sqlAccount struct {
	ID             int64  `gorm:"primaryKey;autoIncrement"`
	HolderName     string `gorm:"size:255;not null"`
	Balance        int64  `gorm:"not null"`
	OpeningBalance int64  `gorm:"not null"`
	Version        uint64 `gorm:"not null"`
	Deleted        bool   `gorm:"not null;index"`
	CreatedAt      int64  `gorm:"autoCreateTime:milli"`
	UpdatedAt      int64  `gorm:"autoUpdateTime:milli"`
}

func (*sqlAccount) TableName() string {
	return "accounts"
}

func (a *sqlAccount) toDomain() *domain.Account {
	return &domain.Account{
		ID:             a.ID,
		HolderName:     a.HolderName,
		Balance:        a.Balance,
		OpeningBalance: a.OpeningBalance,
		Version:        a.Version,
		Deleted:        a.Deleted,
		CreatedAt:      time.UnixMilli(a.CreatedAt).UTC(),
	}
}

// sqlTransaction 對應資料庫的 transactions 表
// CommittedAt 以奈秒保存，同一批紀錄共用同一個值
type sqlTransaction struct {
	ID            int64  `gorm:"primaryKey;autoIncrement"`
	AccountID     int64  `gorm:"not null;index:idx_account_committed,priority:1"`
	CorrelationID []byte `gorm:"column:correlation_id;type:binary(16);not null;index"`
	Amount        int64  `gorm:"not null"`
	Type          uint8  `gorm:"not null"`
	CommittedAt   int64  `gorm:"not null;index:idx_account_committed,priority:2"`
}

func (*sqlTransaction) TableName() string {
	return "transactions"
}

func (t *sqlTransaction) toDomain() (*domain.Transaction, error) {
	correlationID, err := uuid.FromBytes(t.CorrelationID)
	if err != nil {
		return nil, fmt.Errorf("transaction %d: bad correlation id: %w", t.ID, err)
	}
	return &domain.Transaction{
		ID:            t.ID,
		AccountID:     t.AccountID,
		CorrelationID: correlationID,
		Amount:        t.Amount,
		Type:          domain.TransactionType(t.Type),
		CreatedAt:     time.Unix(0, t.CommittedAt).UTC(),
	}, nil
}

// Models 回傳需要 migrate 的資料表
func Models() []any {
	return []any{&sqlAccount{}, &sqlTransaction{}}
}

// Store 是以 GORM 實作的帳本儲存
//
// 實作 usecase.Transactor：條件更新、紀錄寫入、轉帳雙方的異動都可以放進同一個資料庫交易。
type Store struct {
	db   *gorm.DB
	now  func() time.Time
	inTx bool
}

// StoreOption 定義了 Store 的配置選項函數
type StoreOption func(*Store)

// WithClock 設定時間來源 (測試用)
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore 建立 Store
func NewStore(client *mysql.Client, opts ...StoreOption) *Store {
	s := &Store{
		db:  client.DB(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate 建立資料表
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("migrate ledger tables: %w", err)
	}
	return nil
}

func (s *Store) withTx(tx *gorm.DB) *Store {
	return &Store{db: tx, now: s.now, inTx: true}
}

// WithinTransaction 在一個資料庫交易內執行 fn
// fn 回傳的錯誤原樣回傳，begin / commit 失敗視為儲存層錯誤
func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context, tx usecase.TxStore) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return storageErr(ctx, "begin", tx.Error)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(ctx, s.withTx(tx)); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit().Error; err != nil {
		return storageErr(ctx, "commit", err)
	}
	return nil
}

// LockAccounts 以 SELECT ... FOR UPDATE 鎖定帳戶列，依 ID 由小到大加鎖
// 不存在或已刪除的帳戶不會出現在結果中
func (s *Store) LockAccounts(ctx context.Context, accountIDs ...int64) (map[int64]*domain.Account, error) {
	var rows []sqlAccount
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ? AND deleted = ?", accountIDs, false).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, storageErr(ctx, "lock accounts", err)
	}
	locked := make(map[int64]*domain.Account, len(rows))
	for i := range rows {
		locked[rows[i].ID] = rows[i].toDomain()
	}
	return locked, nil
}

// GetAccount 取得帳戶
func (s *Store) GetAccount(ctx context.Context, accountID int64) (*domain.Account, error) {
	var row sqlAccount
	err := s.db.WithContext(ctx).Where("id = ? AND deleted = ?", accountID, false).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, storageErr(ctx, "get account", err)
	}
	return row.toDomain(), nil
}

// ListAccounts 依 ID 排序回傳所有未刪除帳戶
func (s *Store) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	var rows []sqlAccount
	if err := s.db.WithContext(ctx).Where("deleted = ?", false).Order("id").Find(&rows).Error; err != nil {
		return nil, storageErr(ctx, "list accounts", err)
	}
	accounts := make([]*domain.Account, len(rows))
	for i := range rows {
		accounts[i] = rows[i].toDomain()
	}
	return accounts, nil
}

// CreateAccount 建立帳戶，ID 由資料庫分配
func (s *Store) CreateAccount(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	row := sqlAccount{
		HolderName:     account.HolderName,
		Balance:        account.OpeningBalance,
		OpeningBalance: account.OpeningBalance,
		CreatedAt:      s.now().UnixMilli(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, storageErr(ctx, "create account", err)
	}
	return row.toDomain(), nil
}

// DeleteAccount 標記刪除並遞增版本，交易紀錄保留
func (s *Store) DeleteAccount(ctx context.Context, accountID int64) error {
	res := s.db.WithContext(ctx).Model(&sqlAccount{}).
		Where("id = ? AND deleted = ?", accountID, false).
		Updates(map[string]any{
			"deleted": true,
			"version": gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return storageErr(ctx, "delete account", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// CompareAndSwapBalance 以 UPDATE ... WHERE version = ? 做條件更新
// 在交易外呼叫時會自己開一個交易，讓回傳的帳戶就是這次寫入的結果
func (s *Store) CompareAndSwapBalance(ctx context.Context, accountID int64, expectedVersion uint64, newBalance int64) (*domain.Account, error) {
	if newBalance < 0 {
		return nil, domain.ErrInsufficientFunds
	}
	var updated *domain.Account
	err := s.WithinTransaction(ctx, func(ctx context.Context, tx usecase.TxStore) error {
		var err error
		updated, err = tx.(*Store).compareAndSwap(ctx, accountID, expectedVersion, newBalance)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Store) compareAndSwap(ctx context.Context, accountID int64, expectedVersion uint64, newBalance int64) (*domain.Account, error) {
	res := s.db.WithContext(ctx).Model(&sqlAccount{}).
		Where("id = ? AND version = ? AND deleted = ?", accountID, expectedVersion, false).
		Updates(map[string]any{
			"balance": newBalance,
			"version": gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return nil, storageErr(ctx, "update balance", res.Error)
	}

	var row sqlAccount
	err := s.db.WithContext(ctx).Where("id = ?", accountID).First(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, domain.ErrAccountNotFound
	case err != nil:
		return nil, storageErr(ctx, "read balance", err)
	case res.RowsAffected == 0 && row.Deleted:
		return nil, domain.ErrAccountNotFound
	case res.RowsAffected == 0:
		return nil, domain.ErrVersionConflict
	}
	return row.toDomain(), nil
}

// AppendTransactions 寫入一批紀錄，同一批共用一個 commit 時間
// 時間不會早於同帳戶已存在的紀錄
func (s *Store) AppendTransactions(ctx context.Context, records ...*domain.Transaction) error {
	if len(records) == 0 {
		return nil
	}
	return s.WithinTransaction(ctx, func(ctx context.Context, tx usecase.TxStore) error {
		return tx.(*Store).appendTransactions(ctx, records)
	})
}

func (s *Store) appendTransactions(ctx context.Context, records []*domain.Transaction) error {
	ids := make([]int64, 0, len(records))
	seen := make(map[int64]struct{}, len(records))
	for _, rec := range records {
		if _, ok := seen[rec.AccountID]; !ok {
			seen[rec.AccountID] = struct{}{}
			ids = append(ids, rec.AccountID)
		}
	}

	// 已刪除的帳戶仍可寫入 (補償紀錄)
	var existing int64
	if err := s.db.WithContext(ctx).Model(&sqlAccount{}).Where("id IN ?", ids).Count(&existing).Error; err != nil {
		return storageErr(ctx, "check accounts", err)
	}
	if existing != int64(len(ids)) {
		return fmt.Errorf("append transaction: %w", domain.ErrAccountNotFound)
	}

	var last sql.NullInt64
	err := s.db.WithContext(ctx).Model(&sqlTransaction{}).
		Where("account_id IN ?", ids).
		Select("MAX(committed_at)").
		Row().Scan(&last)
	if err != nil {
		return storageErr(ctx, "read last commit", err)
	}
	commitAt := s.now().UnixNano()
	if last.Valid && last.Int64 > commitAt {
		commitAt = last.Int64
	}

	rows := make([]sqlTransaction, len(records))
	for i, rec := range records {
		rows[i] = sqlTransaction{
			AccountID:     rec.AccountID,
			CorrelationID: rec.CorrelationID[:],
			Amount:        rec.Amount,
			Type:          uint8(rec.Type),
			CommittedAt:   commitAt,
		}
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return storageErr(ctx, "insert transactions", err)
	}
	for i, rec := range records {
		rec.ID = rows[i].ID
		rec.CreatedAt = time.Unix(0, commitAt).UTC()
	}
	return nil
}

// ListTransactions 依 CreatedAt、ID 由新到舊回傳帳戶的交易紀錄
func (s *Store) ListTransactions(ctx context.Context, accountID int64) ([]*domain.Transaction, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&sqlAccount{}).Where("id = ?", accountID).Count(&count).Error; err != nil {
		return nil, storageErr(ctx, "check account", err)
	}
	if count == 0 {
		return nil, domain.ErrAccountNotFound
	}

	var rows []sqlTransaction
	err := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("committed_at DESC").
		Order("id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, storageErr(ctx, "list transactions", err)
	}
	history := make([]*domain.Transaction, len(rows))
	for i := range rows {
		tran, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		history[i] = tran
	}
	return history, nil
}

// storageErr 把資料庫錯誤轉成 domain 錯誤
//
//	ctx 已結束: 原樣回傳 ctx 的錯誤
//	死鎖 / 等鎖逾時: domain.ErrVersionConflict，交由上層重試
//	其他: domain.ErrStorageUnavailable
func storageErr(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) && (myErr.Number == errDeadlock || myErr.Number == errLockWaitTimeout) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrVersionConflict, err)
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrStorageUnavailable, op, err)
}

var (
	_ usecase.Store      = (*Store)(nil)
	_ usecase.TxStore    = (*Store)(nil)
	_ usecase.Transactor = (*Store)(nil)
)
